package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"gopkg.in/gomail.v2"
)

// Sender delivers a composed message. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Email sends notifications over SMTP.
type Email struct {
	from   string
	to     []string
	sender Sender
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// NewEmail creates an SMTP notifier.
func NewEmail(cfg EmailConfig) *Email {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &Email{
		from:   from,
		to:     cfg.To,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// NewEmailWithSender creates a notifier that hands messages to sender.
func NewEmailWithSender(from string, to []string, sender Sender) *Email {
	return &Email{from: from, to: to, sender: sender}
}

func (m *Email) DraftCreated(_ context.Context, e Event) error {
	return m.send(draftSubject(e), e)
}

func (m *Email) PostFailed(_ context.Context, e Event) error {
	return m.send(failedSubject(e), e)
}

func (m *Email) send(subject string, e Event) error {
	if len(m.to) == 0 {
		return fmt.Errorf("no email recipients configured")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", plainBody(e))
	msg.AddAlternative("text/html", htmlBody(e))

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func htmlBody(e Event) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, `<p><a href="%s">%s</a></p>`, html.EscapeString(e.PostURL), html.EscapeString(e.PostTitle))
	fmt.Fprintf(&b, "<p>Record: %s</p>", html.EscapeString(e.ID))
	if e.Reason != "" {
		fmt.Fprintf(&b, "<p>Reason: %s</p>", html.EscapeString(e.Reason))
	}
	if e.Reply != "" {
		fmt.Fprintf(&b, "<blockquote>%s</blockquote>", strings.ReplaceAll(html.EscapeString(e.Reply), "\n", "<br>"))
	}
	if e.ReviewURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s">Review</a></p>`, html.EscapeString(e.ReviewURL))
	}
	b.WriteString("</body></html>")
	return b.String()
}
