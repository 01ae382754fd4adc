package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/ports"
)

// SMTPMailer delivers email through a plain SMTP relay.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	FromMail string
	FromName string
	Timeout  time.Duration
	now      func() time.Time
}

var _ ports.Mailer = (*SMTPMailer)(nil)

// Send dials the relay, upgrades to TLS when offered and returns the Message-ID it set.
func (m *SMTPMailer) Send(ctx context.Context, msg domain.Email) (string, error) {
	if m.Host == "" || m.FromMail == "" {
		return "", fmt.Errorf("smtp mailer misconfigured")
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.Host)
	raw, err := m.buildMessage(msg, messageID)
	if err != nil {
		return "", err
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(m.Host, strconv.Itoa(m.Port)))
	if err != nil {
		return "", fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	c, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.Host}); err != nil {
			return "", fmt.Errorf("starttls: %w", err)
		}
	}
	if m.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.Username, m.Password, m.Host)); err != nil {
			return "", fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.FromMail); err != nil {
		return "", err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return "", err
	}
	w, err := c.Data()
	if err != nil {
		return "", err
	}
	if _, err := w.Write(raw); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return messageID, c.Quit()
}

func (m *SMTPMailer) buildMessage(msg domain.Email, messageID string) ([]byte, error) {
	now := time.Now
	if m.now != nil {
		now = m.now
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	parts := []struct{ contentType, content string }{
		{"text/plain; charset=\"UTF-8\"", msg.Text},
		{"text/html; charset=\"UTF-8\"", msg.HTML},
	}
	for _, part := range parts {
		if part.content == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(part.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	headers := map[string]string{
		"From":         formatAddress(m.FromName, m.FromMail),
		"To":           formatAddress(msg.ToName, msg.To),
		"Subject":      mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date":         now().Format(time.RFC1123Z),
		"Message-ID":   messageID,
		"MIME-Version": "1.0",
	}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	if msg.Category != "" {
		headers["X-Category"] = msg.Category
	}
	headers["Content-Type"] = "multipart/alternative; boundary=" + mw.Boundary()

	var buf bytes.Buffer
	writeHeaders(&buf, headers)
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

func writeHeaders(buf *bytes.Buffer, headers map[string]string) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s: %s\r\n", k, headers[k])
	}
	buf.WriteString("\r\n")
}

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), addr)
}
