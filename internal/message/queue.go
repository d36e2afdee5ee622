package message

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
	"github.com/opsplane/opsplane-backend/internal/monitor"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const (
	// EmailQueue is the durable queue email jobs live on.
	EmailQueue = "emails"
	// SendEmailJob is the job name of one rendered-and-sent email.
	SendEmailJob = "send_email"
)

type emailJobPayload struct {
	ToEmail  string         `json:"toEmail"`
	ToName   string         `json:"toName"`
	Subject  string         `json:"subject"`
	Template string         `json:"template"`
	Locale   string         `json:"locale"`
	Data     map[string]any `json:"data"`
}

// EnqueueEmail schedules an email on the caller's transaction, so a rolled
// back business operation never leaks mail.
func EnqueueEmail(ctx context.Context, sqlExec db.SQLExecuter, store *jobqueue.Store, toEmail, toName, subject, templateName, locale string, templateData map[string]any) error {
	tenantID, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}

	payload := emailJobPayload{
		ToEmail:  toEmail,
		ToName:   toName,
		Subject:  subject,
		Template: templateName,
		Locale:   locale,
		Data:     templateData,
	}
	_, err = store.EnqueueTx(ctx, sqlExec, EmailQueue, SendEmailJob, payload,
		jobqueue.EnqueueOptions{TenantID: tenantID, MaxAttempts: 5})
	if err != nil {
		return fmt.Errorf("enqueueing email %s to %s: %w", templateName, toEmail, err)
	}
	return nil
}

// EmailHandler renders the template and hands the message to the messenger.
type EmailHandler struct {
	Messenger      MessengerClient
	MonitorService monitor.MonitorServiceInterface
}

var _ jobqueue.Handler = (*EmailHandler)(nil)

func (h *EmailHandler) Name() string { return SendEmailJob }

func (h *EmailHandler) Execute(ctx context.Context, job *jobqueue.Job) error {
	var payload emailJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decoding email job payload: %w", err)
	}

	data := payload.Data
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["Name"]; !ok {
		data["Name"] = payload.ToName
	}

	html, err := RenderTemplate(payload.Template, payload.Locale, data)
	if err != nil {
		return err
	}

	err = h.Messenger.SendMessage(ctx, Message{
		ToEmail: payload.ToEmail,
		ToName:  payload.ToName,
		Subject: payload.Subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("dispatching email %s: %w", payload.Template, err)
	}

	if h.MonitorService != nil {
		labels := map[string]string{"template": payload.Template}
		if job.TenantID.Valid {
			labels["tenant"] = job.TenantID.String
		}
		if merr := h.MonitorService.MonitorCounters(monitor.EmailDispatchedTag, labels); merr != nil {
			log.Errorf("recording email metric: %v", merr)
		}
	}
	return nil
}
