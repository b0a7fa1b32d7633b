// Package email provides the email dispatch action.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/template"
)

var (
	// ErrRecipientRequired is returned when the config carries no recipient.
	ErrRecipientRequired = errors.New("email action requires a 'to' address")
	// ErrSubjectRequired is returned when the config carries no subject.
	ErrSubjectRequired = errors.New("email action requires a 'subject'")
	// ErrHostRequired is returned when the config carries no SMTP host.
	ErrHostRequired = errors.New("email action requires an smtp 'host'")
)

// Message is one outbound mail.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Sender delivers a message. The default implementation speaks SMTP;
// tests substitute their own.
type Sender interface {
	Send(ctx context.Context, host string, port int, auth smtp.Auth, msg Message) error
}

// Action sends an email through an SMTP relay. Subject, body and
// recipients support templating.
type Action struct {
	sender Sender
}

func NewAction() *Action {
	return &Action{sender: &smtpSender{}}
}

// NewActionWithSender injects a custom sender. Used by tests.
func NewActionWithSender(sender Sender) *Action {
	return &Action{sender: sender}
}

func (a *Action) Type() string {
	return "email"
}

func (a *Action) DisplayName() string {
	return "Send Email"
}

func (a *Action) ValidateConfig(config map[string]any) error {
	if host, _ := config["host"].(string); host == "" {
		return ErrHostRequired
	}

	if len(recipients(config)) == 0 {
		return ErrRecipientRequired
	}

	if subject, _ := config["subject"].(string); subject == "" {
		return ErrSubjectRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, execCtx *models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error) {
	data := template.ContextData(execCtx)

	host, _ := config["host"].(string)

	port := 587
	if p, ok := config["port"].(float64); ok {
		port = int(p)
	}

	from, _ := config["from"].(string)

	to := make([]string, 0, 1)
	for _, addr := range recipients(config) {
		to = append(to, template.ResolveString(addr, data))
	}

	subject, _ := config["subject"].(string)
	subject = template.ResolveString(subject, data)

	body, _ := config["body"].(string)
	body = template.ResolveString(body, data)

	var auth smtp.Auth

	if username, _ := config["username"].(string); username != "" {
		password, _ := config["password"].(string)
		auth = smtp.PlainAuth("", username, password, host)
	}

	logger = logger.With("action_type", "email", "to", to, "subject", subject)
	logger.InfoContext(ctx, "Sending email")

	msg := Message{From: from, To: to, Subject: subject, Body: body}

	if err := a.sender.Send(ctx, host, port, auth, msg); err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	logger.InfoContext(ctx, "Email sent")

	return map[string]any{
		"to":      to,
		"subject": subject,
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func recipients(config map[string]any) []string {
	switch to := config["to"].(type) {
	case string:
		if to == "" {
			return nil
		}

		return []string{to}
	case []any:
		addresses := make([]string, 0, len(to))

		for _, addr := range to {
			if str, ok := addr.(string); ok && str != "" {
				addresses = append(addresses, str)
			}
		}

		return addresses
	case []string:
		return to
	default:
		return nil
	}
}

func (a *Action) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"host":     map[string]any{"type": "string", "description": "SMTP relay host."},
			"port":     map[string]any{"type": "integer", "default": 587},
			"from":     map[string]any{"type": "string"},
			"to":       map[string]any{"description": "Recipient address or list of addresses. Supports templating."},
			"subject":  map[string]any{"type": "string", "description": "Subject line. Supports templating."},
			"body":     map[string]any{"type": "string", "format": "code", "description": "Mail body. Supports templating."},
			"username": map[string]any{"type": "string"},
			"password": map[string]any{"type": "string", "format": "password"},
		},
		"required": []string{"host", "to", "subject"},
	}
}

type smtpSender struct{}

func (s *smtpSender) Send(_ context.Context, host string, port int, auth smtp.Auth, msg Message) error {
	var builder strings.Builder

	builder.WriteString("From: " + msg.From + "\r\n")
	builder.WriteString("To: " + strings.Join(msg.To, ", ") + "\r\n")
	builder.WriteString("Subject: " + msg.Subject + "\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", host, port)

	return smtp.SendMail(addr, auth, msg.From, msg.To, []byte(builder.String()))
}
