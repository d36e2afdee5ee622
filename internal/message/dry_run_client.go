package message

import (
	"context"

	"github.com/opsplane/opsplane-backend/pkg/log"
)

// dryRunClient prints the email instead of sending it; the default outside
// production.
type dryRunClient struct{}

var _ MessengerClient = (*dryRunClient)(nil)

func NewDryRunClient() MessengerClient {
	return &dryRunClient{}
}

func (c *dryRunClient) MessengerType() MessengerType {
	return MessengerTypeDryRun
}

func (c *dryRunClient) SendMessage(ctx context.Context, message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	log.Ctx(ctx).WithFields(log.F{
		"to":      message.ToEmail,
		"subject": message.Subject,
	}).Info("dry-run messenger: email not sent")
	return nil
}
