package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioBase = "https://api.twilio.com/2010-04-01"

// TwilioClient sends SMS through the Twilio Messages API
type TwilioClient struct {
	httpClient *http.Client
	baseURL    string
	accountSID string
	authToken  string
	from       string
}

// TwilioConfig configures a TwilioClient
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
	Timeout    time.Duration
}

// NewTwilioClient validates credentials and builds a client
func NewTwilioClient(cfg TwilioConfig) (*TwilioClient, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, fmt.Errorf("twilio: account sid required")
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("twilio: auth token required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("twilio: from number required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &TwilioClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
	}, nil
}

// Message is the subset of the Twilio message resource we use
type Message struct {
	SID    string `json:"sid"`
	To     string `json:"to"`
	Status string `json:"status"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendSMS posts a single message. It does not retry.
func (c *TwilioClient) SendSMS(ctx context.Context, to, body string) (*Message, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, fmt.Errorf("twilio: recipient required")
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("twilio: body required")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending sms: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := &HTTPError{Service: "twilio", StatusCode: resp.StatusCode, Body: string(raw)}
		var te twilioError
		if json.Unmarshal(raw, &te) == nil && te.Message != "" {
			herr.Message = te.Message
		}
		return nil, herr
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &msg, nil
}
