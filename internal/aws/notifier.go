package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// Notifier publishes JSON events to an SNS topic. A Notifier without a topic is a no-op.
type Notifier struct {
	SNS      SNSAPI
	TopicARN string
}

// NewNotifier returns a Notifier bound to a topic ARN.
func NewNotifier(client SNSAPI, topicARN string) *Notifier {
	return &Notifier{SNS: client, TopicARN: topicARN}
}

// Publish sends event to the topic with an event_type message attribute.
func (n *Notifier) Publish(ctx context.Context, eventType string, event interface{}) error {
	if n == nil || n.SNS == nil || n.TopicARN == "" {
		return nil
	}
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = n.SNS.Publish(ctx, &sns.PublishInput{
		TopicArn: awsString(n.TopicARN),
		Message:  awsString(string(b)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"event_type": {DataType: awsString("String"), StringValue: awsString(eventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish failed for topic %s: %w", n.TopicARN, err)
	}
	return nil
}
