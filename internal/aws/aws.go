package aws

import (
	"bytes"
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
)

type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type Clients struct {
	bucketName string
	region     string
	s3Client   s3API
	presigner  presignAPI
	ssmClient  ssmAPI
	sqsClient  sqsAPI
}

// Init loads the default credential chain for region.
func Init(ctx context.Context, bucketName, region string) (*Clients, error) {
	if region == "" {
		return nil, errors.New("aws region not present")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws sdk config")
	}
	s3Client := s3.NewFromConfig(cfg)
	log.Infof("aws clients initialized for %v", region)
	return &Clients{
		bucketName: bucketName,
		region:     region,
		s3Client:   s3Client,
		presigner:  s3.NewPresignClient(s3Client),
		ssmClient:  ssm.NewFromConfig(cfg),
		sqsClient:  sqs.NewFromConfig(cfg),
	}, nil
}

// GetParameterValue reads a decrypted SSM parameter.
func (s *Clients) GetParameterValue(ctx context.Context, paramName string) (string, error) {
	input := &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: true,
	}
	out, err := s.ssmClient.GetParameter(ctx, input)
	if err != nil {
		return "", errors.WrapAndReport(err, "query parameter from ssm")
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.Errorf("ssm parameter %v has no value", paramName)
	}
	return *out.Parameter.Value, nil
}

func (s *Clients) GetS3PresignedAccessURL(ctx context.Context, key string, expire time.Duration) (string, error) {
	request, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expire))
	if err != nil {
		return "", errors.WithStackAndReport(err)
	}
	return request.URL, nil
}

func (s *Clients) PutFileToS3(ctx context.Context, key, contentType string, content []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	}
	_, err := s.s3Client.PutObject(ctx, input)
	return errors.WrapAndReport(err, "put object to s3")
}

func (s *Clients) DeleteFileFromS3(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}
	_, err := s.s3Client.DeleteObject(ctx, input)
	return errors.WrapAndReport(err, "delete s3 object")
}

const (
	httpsStr  = "https://"
	s3DotStr  = ".s3."
	amazonStr = ".amazonaws.com/"
)

func (s *Clients) PublicS3AccessURLFrom(key string) string {
	var buf bytes.Buffer
	buf.WriteString(httpsStr)
	buf.WriteString(s.bucketName)
	buf.WriteString(s3DotStr)
	buf.WriteString(s.region)
	buf.WriteString(amazonStr)
	buf.WriteString(key)
	return buf.String()
}
