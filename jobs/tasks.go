package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskSaleCreated notifies the creator that a sale was entered.
	TaskSaleCreated = "sale:created"
	// TaskSaleActivated notifies the creator that a sale went live.
	TaskSaleActivated = "sale:activated"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SaleNoticePayload carries a sale lifecycle notice to its recipient.
type SaleNoticePayload struct {
	SaleID         int64  `json:"sale_id"`
	ClientName     string `json:"client_name"`
	ClientRut      string `json:"client_rut"`
	StatusID       int64  `json:"sale_status_id"`
	RecipientID    int64  `json:"recipient_id"`
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
	ActorID        int64  `json:"actor_id"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewSaleNoticeTask constructs a sale notice task of the given type.
func NewSaleNoticeTask(taskType string, payload SaleNoticePayload) (*asynq.Task, error) {
	if taskType != TaskSaleCreated && taskType != TaskSaleActivated {
		return nil, fmt.Errorf("jobs: unknown sale notice %q", taskType)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data, asynq.MaxRetry(5)), nil
}

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// handleSendEmail processes TaskTypeSendEmail tasks.
func handleSendEmail(mailer Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if strings.TrimSpace(payload.To) == "" {
			return fmt.Errorf("jobs: email without recipient: %w", asynq.SkipRetry)
		}
		return mailer.Send(ctx, payload)
	}
}

// handleSaleNotice renders a sale notice and mails it.
func handleSaleNotice(mailer Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SaleNoticePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if strings.TrimSpace(payload.RecipientEmail) == "" {
			return fmt.Errorf("jobs: sale %d notice without recipient email: %w", payload.SaleID, asynq.SkipRetry)
		}
		return mailer.Send(ctx, RenderSaleNotice(t.Type(), payload))
	}
}

// RenderSaleNotice builds the plain text email for a sale notice.
func RenderSaleNotice(taskType string, p SaleNoticePayload) SendEmailPayload {
	var subject, lead string
	switch taskType {
	case TaskSaleActivated:
		subject = fmt.Sprintf("Venta #%d activa", p.SaleID)
		lead = "La venta que ingresaste quedó activa."
	default:
		subject = fmt.Sprintf("Venta #%d ingresada", p.SaleID)
		lead = "Tu venta fue ingresada y está pendiente de validación."
	}
	var b strings.Builder
	if name := strings.TrimSpace(p.RecipientName); name != "" {
		fmt.Fprintf(&b, "Hola %s,\n\n", name)
	}
	fmt.Fprintf(&b, "%s\n\n", lead)
	fmt.Fprintf(&b, "Venta: #%d\nCliente: %s\nRUT: %s\n", p.SaleID, strings.TrimSpace(p.ClientName), p.ClientRut)
	return SendEmailPayload{To: p.RecipientEmail, Subject: subject, Body: b.String()}
}
