package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	To       []string
}

// IsConfigured returns true if outgoing mail can be sent.
func (c EmailConfig) IsConfigured() bool {
	return c.Host != "" && c.Port != "" && c.From != "" && len(c.To) > 0
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSink mails Success and Error notifications to the portfolio owner.
// Mail goes out from a background worker so Notify never waits on SMTP.
type EmailSink struct {
	config EmailConfig
	server string
	auth   smtp.Auth
	send   sendFunc
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	queue  chan Notification
	wg     sync.WaitGroup
}

// NewEmailSink starts the mail worker. Call Close to stop it.
func NewEmailSink(config EmailConfig, logger *zap.Logger) *EmailSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &EmailSink{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
		send:   smtp.SendMail,
		logger: logger,
		queue:  make(chan Notification, 16),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *EmailSink) Notify(kind Kind, message string, _ bool) {
	if kind != KindSuccess && kind != KindError {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- Notification{Kind: kind, Message: message}:
	default:
		s.logger.Warn("email queue full, dropping notification", zap.String("kind", string(kind)))
	}
}

func (s *EmailSink) run() {
	defer s.wg.Done()
	for n := range s.queue {
		if err := s.deliver(n); err != nil {
			s.logger.Warn("send notification email failed", zap.Error(err))
		}
	}
}

// Close drains queued mail and stops the worker.
func (s *EmailSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *EmailSink) deliver(n Notification) error {
	if !s.config.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	subject := "Portfolio saved"
	if n.Kind == KindError {
		subject = "Portfolio save failed"
	}
	body, err := renderTemplate(notificationTemplate, struct {
		Subject string
		Message string
	}{subject, n.Message})
	if err != nil {
		return fmt.Errorf("render notification template: %w", err)
	}
	return s.send(s.server, s.auth, s.config.From, s.config.To, s.buildMessage(subject, body))
}

func (s *EmailSink) buildMessage(subject, htmlBody string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(s.config.To, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	return msg.Bytes()
}

func renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const notificationTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
    </style>
</head>
<body>
    <div class="header"><h1>{{.Subject}}</h1></div>
    <p>{{.Message}}</p>
</body>
</html>`
