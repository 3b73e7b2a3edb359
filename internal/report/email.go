package report

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	smtpHost = "smtp.gmail.com"
	smtpPort = "587"
)

// SendMail emails the final report via SMTP with an app key. Missing
// credentials downgrade to a log line; a run never fails on mail.
func SendMail(to, appKey, subject, body string) error {
	if to == "" || appKey == "" {
		log.Info().Msg("Email credentials not configured, skipping report mail")
		return nil
	}

	msg := strings.Join([]string{
		"From: " + to,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	auth := smtp.PlainAuth("", to, appKey, smtpHost)
	if err := smtp.SendMail(smtpHost+":"+smtpPort, auth, to, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send report mail: %w", err)
	}
	log.Info().Str("to", to).Msg("Report mail sent")
	return nil
}
