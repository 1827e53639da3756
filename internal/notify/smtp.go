package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/goccy/go-json"
)

// SMTPConfig carries the mail relay settings.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// SMTPNotifier delivers events as plain emails through an SMTP relay.
type SMTPNotifier struct {
	cfg SMTPConfig
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

var subjects = map[EventType]string{
	EventRidePublished:    "Your ride is live",
	EventRideCancelled:    "A ride was cancelled",
	EventRideCompleted:    "Ride completed",
	EventBookingCreated:   "New booking request",
	EventBookingConfirmed: "Your booking is confirmed",
	EventBookingCancelled: "A booking was cancelled",
	EventBookingCompleted: "Booking completed",
	EventKycReviewed:      "Your verification was reviewed",
}

func (n *SMTPNotifier) Send(ctx context.Context, e Event) error {
	if e.Recipient == "" {
		return nil
	}

	msg, err := buildMessage(n.cfg, e)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	return smtp.SendMail(addr, auth, n.cfg.FromEmail, []string{e.Recipient}, msg)
}

func buildMessage(cfg SMTPConfig, e Event) ([]byte, error) {
	subject, ok := subjects[e.Type]
	if !ok {
		subject = string(e.Type)
	}

	body, err := json.MarshalIndent(e.Data, "", "  ")
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s <%s>\r\n", cfg.FromName, cfg.FromEmail)
	fmt.Fprintf(&sb, "To: %s\r\n", e.Recipient)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	sb.WriteString("\r\n")
	sb.Write(body)
	sb.WriteString("\r\n")
	return []byte(sb.String()), nil
}
