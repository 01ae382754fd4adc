// Package mailer holds the email delivery providers.
package mailer

import (
	"fmt"

	"DocketWatch/internal/config"
	"DocketWatch/internal/ports"
)

// New selects the delivery provider named in configuration.
func New(cfg config.EmailConfig) (ports.Mailer, error) {
	switch cfg.Provider {
	case "sendgrid":
		return NewSendGridMailer(cfg.SendGrid.APIKey, cfg.FromAddress, cfg.FromName), nil
	case "smtp":
		return &SMTPMailer{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			FromMail: cfg.FromAddress,
			FromName: cfg.FromName,
		}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
