package aws

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
)

const notifyMaxTry = 3

func (s *Clients) MultiTrySendMessageToSQS(ctx context.Context, queueUrl, message string, maxTry int) error {
	for i := 0; i < maxTry; i++ {
		_, err := s.sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(queueUrl),
			MessageBody: aws.String(message),
		})
		if err != nil {
			if ctx.Err() != nil {
				return errors.Wrapf(err, "send sqs message to %s", queueUrl)
			}
			log.Warnf("send sqs message to %s (try %d): %v", queueUrl, i+1, err)
			continue
		}
		return nil
	}
	return errors.ErrorfAndReport("send sqs message to %s max try exceeded", queueUrl)
}

// QueueNotifier forwards session notifications to an SQS queue.
type QueueNotifier struct {
	clients  *Clients
	queueURL string
}

func (s *Clients) NewQueueNotifier(queueURL string) *QueueNotifier {
	return &QueueNotifier{clients: s, queueURL: queueURL}
}

func (q *QueueNotifier) Notify(ctx context.Context, n session.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "marshal session notification")
	}
	return q.clients.MultiTrySendMessageToSQS(ctx, q.queueURL, string(body), notifyMaxTry)
}
