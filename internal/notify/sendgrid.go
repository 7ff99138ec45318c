package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultSendGridBase = "https://api.sendgrid.com"

// SendGridClient sends email through the SendGrid v3 mail send API
type SendGridClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       address
}

// SendGridConfig configures a SendGridClient
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	BaseURL   string
	Timeout   time.Duration
}

func NewSendGridClient(cfg SendGridConfig) (*SendGridClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid: api key required")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("sendgrid: from email required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSendGridBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &SendGridClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		from:       address{Email: cfg.FromEmail, Name: cfg.FromName},
	}, nil
}

// Email is an outgoing message with a text and an optional HTML body
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

type personalization struct {
	To []address `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridErrors struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// SendEmail posts a single message. It does not retry.
func (c *SendGridClient) SendEmail(ctx context.Context, e Email) error {
	if strings.TrimSpace(e.To) == "" {
		return fmt.Errorf("sendgrid: recipient required")
	}
	if strings.TrimSpace(e.Subject) == "" {
		return fmt.Errorf("sendgrid: subject required")
	}

	contents := []mailContent{}
	// SendGrid requires text/plain before text/html
	if e.Text != "" {
		contents = append(contents, mailContent{Type: "text/plain", Value: e.Text})
	}
	if e.HTML != "" {
		contents = append(contents, mailContent{Type: "text/html", Value: e.HTML})
	}
	if len(contents) == 0 {
		return fmt.Errorf("sendgrid: content required")
	}

	payload := mailSendRequest{
		Personalizations: []personalization{{To: []address{{Email: e.To}}}},
		From:             c.from,
		Subject:          e.Subject,
		Content:          contents,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mail/send", &buf)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		herr := &HTTPError{Service: "sendgrid", StatusCode: resp.StatusCode, Body: string(raw)}
		var se sendGridErrors
		if json.Unmarshal(raw, &se) == nil && len(se.Errors) > 0 {
			herr.Message = se.Errors[0].Message
		}
		return herr
	}

	return nil
}
