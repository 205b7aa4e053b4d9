package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/atelierhq/atelier-api/internal/config"
	"github.com/atelierhq/atelier-api/internal/models"
)

// Mailer delivers the two transactional emails the ledger produces: invoice
// payment reminders and client portal invites. Delivery is best-effort; the
// caller's ledger state never depends on it.
type Mailer interface {
	SendInvoiceReminder(recipientEmail string, invoice models.Invoice, paymentURL string) error
	SendInvite(recipientEmail, organizationName, inviteURL string) error
}

// SMTPMailer sends mail through a plain SMTP server.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPMailer constructs an SMTPMailer from config.
func NewSMTPMailer(cfg config.EmailConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
	}, nil
}

func (m *SMTPMailer) send(recipient, subject, body string) error {
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		m.from, recipient, subject)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if strings.TrimSpace(m.username) != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return smtp.SendMail(addr, auth, m.from, []string{recipient}, []byte(headers+body))
}

// SendInvoiceReminder dispatches a payment reminder for an open invoice.
func (m *SMTPMailer) SendInvoiceReminder(recipientEmail string, invoice models.Invoice, paymentURL string) error {
	subject := fmt.Sprintf("Payment reminder for invoice %s", invoice.Number)

	body := strings.Builder{}
	body.WriteString("Hello,\n\n")
	body.WriteString(fmt.Sprintf("This is a friendly reminder that invoice %s (%s) is awaiting payment.\n",
		invoice.Number, invoice.Title))
	body.WriteString(fmt.Sprintf("Amount due: $%.2f\n", float64(invoice.TotalCents)/100))
	if invoice.DueDate != nil {
		body.WriteString(fmt.Sprintf("Due date: %s\n", invoice.DueDate.Format("January 2, 2006")))
	}
	body.WriteString("\nYou can pay online here:\n\n")
	body.WriteString(paymentURL + "\n\n")
	body.WriteString("If you have already paid, please disregard this message.\n\n")
	body.WriteString("Thanks,\nThe Atelier Team\n")

	return m.send(recipientEmail, subject, body.String())
}

// SendInvite dispatches a client portal invitation email.
func (m *SMTPMailer) SendInvite(recipientEmail, organizationName, inviteURL string) error {
	subject := fmt.Sprintf("You have been invited to the %s client portal", organizationName)

	body := strings.Builder{}
	body.WriteString("Hello,\n\n")
	body.WriteString(fmt.Sprintf("You've been invited to the %s client portal on Atelier.\n", organizationName))
	body.WriteString("Click the link below to accept the invitation and create your account:\n\n")
	body.WriteString(inviteURL + "\n\n")
	body.WriteString("This invite is valid for a limited time. If you did not expect this email, you can ignore it.\n\n")
	body.WriteString("Thanks,\nThe Atelier Team\n")

	return m.send(recipientEmail, subject, body.String())
}

// Notify lets the mailer double as a notifier channel for warning-severity
// feed events.
func (m *SMTPMailer) Notify(_ context.Context, notif models.Notification) error {
	if notif.Severity != models.NotificationSeverityWarning {
		return nil
	}
	return m.send(m.from, "[Atelier] "+notif.Title, notif.Message+"\n")
}
