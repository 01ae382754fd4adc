package mailer

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/ports"
)

const sendPath = "/v3/mail/send"

// SendGridMailer delivers email through the SendGrid v3 API.
type SendGridMailer struct {
	apiKey   string
	host     string
	fromMail string
	fromName string
}

var _ ports.Mailer = (*SendGridMailer)(nil)

// NewSendGridMailer targets the public SendGrid host.
func NewSendGridMailer(apiKey, fromMail, fromName string) *SendGridMailer {
	return &SendGridMailer{apiKey: apiKey, fromMail: fromMail, fromName: fromName}
}

// Send posts the message and returns the X-Message-Id assigned by SendGrid.
func (s *SendGridMailer) Send(ctx context.Context, msg domain.Email) (string, error) {
	if s.apiKey == "" || s.fromMail == "" {
		return "", fmt.Errorf("sendgrid mailer misconfigured")
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(s.fromName, s.fromMail))
	message.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	message.AddPersonalizations(p)

	if msg.Text != "" {
		message.AddContent(mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		message.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	for k, v := range msg.Headers {
		message.SetHeader(k, v)
	}
	if msg.Category != "" {
		message.AddCategories(msg.Category)
	}

	request := sendgrid.GetRequest(s.apiKey, sendPath, s.host)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return "", fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("sendgrid API error: %d %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return headerValue(resp.Headers, "X-Message-Id"), nil
}

func headerValue(headers map[string][]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}
