package aws

import (
	"context"
	"io/ioutil"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/pkg/errors"
)

type fakeSSM struct {
	param *ssmtypes.Parameter
	err   error
	in    *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: f.param}, nil
}

type fakeS3 struct {
	puts    map[string][]byte
	deletes []string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := ioutil.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://signed/" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)}, nil
}

type fakeSQS struct {
	fails  int
	bodies []string
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.fails > 0 {
		f.fails--
		return nil, errors.New("throttled")
	}
	f.bodies = append(f.bodies, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func TestGetParameterValue(t *testing.T) {
	t.Setenv("DEBUG", "1")
	f := &fakeSSM{param: &ssmtypes.Parameter{Value: aws.String("project-123")}}
	c := &Clients{ssmClient: f}

	v, err := c.GetParameterValue(context.Background(), "/wc/project")
	require.NoError(t, err)
	assert.Equal(t, "project-123", v)
	assert.Equal(t, "/wc/project", aws.ToString(f.in.Name))
	assert.True(t, f.in.WithDecryption)

	_, err = (&Clients{ssmClient: &fakeSSM{param: &ssmtypes.Parameter{}}}).GetParameterValue(context.Background(), "x")
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = (&Clients{ssmClient: &fakeSSM{err: boom}}).GetParameterValue(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestS3Objects(t *testing.T) {
	t.Setenv("DEBUG", "1")
	f := &fakeS3{}
	c := &Clients{bucketName: "qr", region: "ap-northeast-2", s3Client: f, presigner: fakePresigner{}}

	require.NoError(t, c.PutFileToS3(context.Background(), "pairing/qr.png", "image/png", []byte{1, 2}))
	assert.Equal(t, []byte{1, 2}, f.puts["pairing/qr.png"])

	url, err := c.GetS3PresignedAccessURL(context.Background(), "pairing/qr.png", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://signed/qr/pairing/qr.png", url)

	require.NoError(t, c.DeleteFileFromS3(context.Background(), "pairing/qr.png"))
	assert.Equal(t, []string{"pairing/qr.png"}, f.deletes)

	assert.Equal(t, "https://qr.s3.ap-northeast-2.amazonaws.com/pairing/qr.png", c.PublicS3AccessURLFrom("pairing/qr.png"))
}

func TestQueueNotifierRetries(t *testing.T) {
	t.Setenv("DEBUG", "1")
	f := &fakeSQS{fails: 2}
	c := &Clients{sqsClient: f}

	n := c.NewQueueNotifier("https://sqs/q")
	require.NoError(t, n.Notify(context.Background(), session.Notification{Type: session.NotifyConnected, Account: "0xabc"}))
	require.Len(t, f.bodies, 1)
	assert.Equal(t, "connected", gjson.Get(f.bodies[0], "type").String())

	f = &fakeSQS{fails: notifyMaxTry}
	c = &Clients{sqsClient: f}
	assert.Error(t, c.NewQueueNotifier("https://sqs/q").Notify(context.Background(), session.Notification{Type: session.NotifyReset}))
	assert.Empty(t, f.bodies)
}
