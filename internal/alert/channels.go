package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// LogChannel writes alerts to the process log. Always available.
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Send(e Event) error {
	log.Printf("[ALERT:%s] %s: %s", strings.ToUpper(string(e.Severity)), e.Topic, e.Message)
	return nil
}

// SlackChannel posts alerts to a Slack incoming webhook.
type SlackChannel struct {
	Webhook string
	client  *http.Client
}

// NewSlackChannel creates the channel, or an error when the webhook is unset.
func NewSlackChannel(webhook string) (*SlackChannel, error) {
	if webhook == "" {
		return nil, fmt.Errorf("slack webhook not configured")
	}
	return &SlackChannel{
		Webhook: webhook,
		client:  &http.Client{Timeout: 3 * time.Second},
	}, nil
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(e Event) error {
	emoji := ":bell:"
	switch e.Severity {
	case SeverityWarning:
		emoji = ":warning:"
	case SeverityCritical:
		emoji = ":rotating_light:"
	}
	text := fmt.Sprintf("%s *%s* [%s]\n%s", emoji, e.Topic, e.Severity, e.Message)
	if len(e.Context) > 0 {
		for k, v := range e.Context {
			text += fmt.Sprintf("\n  • %s: %v", k, v)
		}
	}
	return postJSON(s.client, s.Webhook, map[string]any{"text": text})
}

// WebhookChannel POSTs the full event as JSON to an arbitrary endpoint.
type WebhookChannel struct {
	URL    string
	client *http.Client
}

// NewWebhookChannel creates the channel, or an error when the URL is unset.
func NewWebhookChannel(url string) (*WebhookChannel, error) {
	if url == "" {
		return nil, fmt.Errorf("alert webhook URL not configured")
	}
	return &WebhookChannel{
		URL:    url,
		client: &http.Client{Timeout: 3 * time.Second},
	}, nil
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(e Event) error {
	return postJSON(w.client, w.URL, e)
}

// EmailChannel sends alerts over SMTP.
type EmailChannel struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string
}

// NewEmailChannel creates the channel, or an error when required SMTP
// settings are missing.
func NewEmailChannel(host string, port int, user, password, from string, to []string) (*EmailChannel, error) {
	if host == "" || from == "" || len(to) == 0 {
		return nil, fmt.Errorf("smtp host, from, and recipients are required")
	}
	return &EmailChannel{Host: host, Port: port, User: user, Password: password, From: from, To: to}, nil
}

func (m *EmailChannel) Name() string { return "email" }

func (m *EmailChannel) Send(e Event) error {
	subject := e.Subject
	if subject == "" {
		subject = fmt.Sprintf("[%s] %s", strings.ToUpper(string(e.Severity)), e.Topic)
	}
	body := e.Body
	if body == "" {
		body = e.Message
	}

	msg := strings.Builder{}
	msg.WriteString("From: " + m.From + "\r\n")
	msg.WriteString("To: " + strings.Join(m.To, ", ") + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	var auth smtp.Auth
	if m.User != "" {
		auth = smtp.PlainAuth("", m.User, m.Password, m.Host)
	}
	return smtp.SendMail(addr, auth, m.From, m.To, []byte(msg.String()))
}

func postJSON(client *http.Client, url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
