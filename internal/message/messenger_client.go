package message

import (
	"context"
	"fmt"
	"strings"
)

// Message is one outbound email after template rendering.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	HTML    string
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.ToEmail) == "" {
		return fmt.Errorf("message is missing a recipient email")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("message is missing a subject")
	}
	if strings.TrimSpace(m.HTML) == "" {
		return fmt.Errorf("message is missing a body")
	}
	return nil
}

type MessengerClient interface {
	SendMessage(ctx context.Context, message Message) error
	MessengerType() MessengerType
}

type MessengerType string

const (
	MessengerTypeAWSEmail MessengerType = "AWS_EMAIL"
	MessengerTypeDryRun   MessengerType = "DRY_RUN"
)

func ParseMessengerType(raw string) (MessengerType, error) {
	switch MessengerType(strings.ToUpper(strings.TrimSpace(raw))) {
	case MessengerTypeAWSEmail:
		return MessengerTypeAWSEmail, nil
	case MessengerTypeDryRun, "":
		return MessengerTypeDryRun, nil
	default:
		return "", fmt.Errorf("invalid messenger type %q", raw)
	}
}

type MessengerOptions struct {
	MessengerType MessengerType
	AWSRegion     string
	SenderAddress string
}

// GetClient builds the messenger for the configured type.
func GetClient(ctx context.Context, opts MessengerOptions) (MessengerClient, error) {
	switch opts.MessengerType {
	case MessengerTypeAWSEmail:
		return NewSESClient(ctx, opts.AWSRegion, opts.SenderAddress)
	case MessengerTypeDryRun:
		return NewDryRunClient(), nil
	default:
		return nil, fmt.Errorf("unknown messenger type %q", opts.MessengerType)
	}
}
