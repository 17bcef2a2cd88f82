package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	_ "github.com/salesdesk/salesdesk/testing"
)

type recordingMailer struct {
	sent []SendEmailPayload
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg SendEmailPayload) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func TestRenderSaleNotice(t *testing.T) {
	msg := RenderSaleNotice(TaskSaleActivated, SaleNoticePayload{
		SaleID:         42,
		ClientName:     "Ana Pérez",
		ClientRut:      "11111111-1",
		RecipientName:  "Eva",
		RecipientEmail: "eva@example.com",
	})
	require.Equal(t, "eva@example.com", msg.To)
	require.Equal(t, "Venta #42 activa", msg.Subject)
	require.Contains(t, msg.Body, "Hola Eva")
	require.Contains(t, msg.Body, "RUT: 11111111-1")

	created := RenderSaleNotice(TaskSaleCreated, SaleNoticePayload{SaleID: 7, RecipientEmail: "x@example.com"})
	require.Equal(t, "Venta #7 ingresada", created.Subject)
}

func TestNewSaleNoticeTaskRejectsUnknownType(t *testing.T) {
	_, err := NewSaleNoticeTask("sale:deleted", SaleNoticePayload{})
	require.Error(t, err)
}

func TestSaleNoticeHandlerSendsMail(t *testing.T) {
	mailer := &recordingMailer{}
	task, err := NewSaleNoticeTask(TaskSaleCreated, SaleNoticePayload{SaleID: 3, RecipientEmail: "exec@example.com"})
	require.NoError(t, err)

	require.NoError(t, handleSaleNotice(mailer)(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	require.Equal(t, "exec@example.com", mailer.sent[0].To)
}

func TestSaleNoticeWithoutEmailSkipsRetry(t *testing.T) {
	mailer := &recordingMailer{}
	task, err := NewSaleNoticeTask(TaskSaleCreated, SaleNoticePayload{SaleID: 3})
	require.NoError(t, err)

	err = handleSaleNotice(mailer)(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, mailer.sent)
}

func TestSendEmailHandlerBadPayload(t *testing.T) {
	err := handleSendEmail(&recordingMailer{})(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSMTPMailerBuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	mailer := &SMTPMailer{
		cfg: SMTPConfig{Host: "mail.local", Port: 2525, From: "no-reply@salesdesk.local"},
		send: func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
			gotAddr, gotTo, gotMsg = addr, to, string(msg)
			return nil
		},
	}
	err := mailer.Send(context.Background(), SendEmailPayload{To: "a@b.cl", Subject: "Hi\r\nBcc: x", Body: "line1\nline2"})
	require.NoError(t, err)
	require.Equal(t, "mail.local:2525", gotAddr)
	require.Equal(t, []string{"a@b.cl"}, gotTo)
	require.Contains(t, gotMsg, "Subject: Hi  Bcc: x\r\n")
	require.True(t, strings.HasSuffix(gotMsg, "line1\r\nline2"))
}

func TestSMTPMailerWrapsFailure(t *testing.T) {
	mailer := &SMTPMailer{
		cfg:  SMTPConfig{Host: "mail.local", Port: 25},
		send: func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") },
	}
	err := mailer.Send(context.Background(), SendEmailPayload{To: "a@b.cl"})
	require.ErrorContains(t, err, "refused")
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(nil, nil).health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, QueueDefault, body.Queue)
}
