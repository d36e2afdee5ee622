package message

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

const sesCharset = "UTF-8"

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type sesClient struct {
	api           sesAPI
	senderAddress string
}

var _ MessengerClient = (*sesClient)(nil)

func NewSESClient(ctx context.Context, region, senderAddress string) (MessengerClient, error) {
	if senderAddress == "" {
		return nil, fmt.Errorf("a sender address is required for the SES client")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &sesClient{api: ses.NewFromConfig(cfg), senderAddress: senderAddress}, nil
}

func (c *sesClient) MessengerType() MessengerType {
	return MessengerTypeAWSEmail
}

func (c *sesClient) SendMessage(ctx context.Context, message Message) error {
	if err := message.Validate(); err != nil {
		return fmt.Errorf("validating message: %w", err)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(c.senderAddress),
		Destination: &types.Destination{
			ToAddresses: []string{message.ToEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Charset: aws.String(sesCharset), Data: aws.String(message.Subject)},
			Body: &types.Body{
				Html: &types.Content{Charset: aws.String(sesCharset), Data: aws.String(message.HTML)},
			},
		},
	}

	if _, err := c.api.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("sending email through SES: %w", err)
	}
	return nil
}
