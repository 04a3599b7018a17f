package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	sc "github.com/dmitrijs2005/sealvault/internal/server/config"
)

var loadDefaultAWSConfig = config.LoadDefaultConfig

type sendAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type SQSPublisher struct {
	client   sendAPI
	queueURL string
}

// NewSQSPublisher builds a client for cfg.SQSQueueURL. Queues hosted outside
// amazonaws.com (elasticmq, localstack) are reached through the queue's own host.
func NewSQSPublisher(ctx context.Context, cfg *sc.Config) (*SQSPublisher, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	endpoint, err := customEndpoint(cfg.SQSQueueURL)
	if err != nil {
		return nil, err
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &SQSPublisher{client: client, queueURL: cfg.SQSQueueURL}, nil
}

func customEndpoint(queueURL string) (string, error) {
	u, err := url.Parse(queueURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid queue url %q", queueURL)
	}
	if strings.HasSuffix(u.Hostname(), ".amazonaws.com") {
		return "", nil
	}
	return u.Scheme + "://" + u.Host, nil
}

func (p *SQSPublisher) PublishAccountErased(ctx context.Context, ev AccountErased) error {
	ev.Type = TypeAccountErased
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"type": {DataType: aws.String("String"), StringValue: aws.String(TypeAccountErased)},
		},
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}
