// Package mailer sends HTML email through a Resend compatible HTTP API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured indicates no API key was supplied.
var ErrNotConfigured = errors.New("mailer: api key not configured")

// ProviderError is a rejection reported by the email API.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mailer: status %d", e.StatusCode)
	}
	return fmt.Sprintf("mailer: status %d: %s", e.StatusCode, e.Message)
}

// Message is one outgoing email.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

// Config configures Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client posts messages to the provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a Client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// sendResponse covers both the success body and the provider error shapes.
type sendResponse struct {
	ID      string          `json:"id"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Name    string          `json:"name"`
}

// Send delivers msg and returns the provider message id. A response carrying
// an error field is a failure even when the HTTP status is 2xx.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if c == nil || c.apiKey == "" {
		return "", ErrNotConfigured
	}
	raw, err := json.Marshal(sendRequest{From: msg.From, To: msg.To, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mailer: request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("mailer: read response: %w", err)
	}

	var out sendResponse
	decodeErr := json.Unmarshal(body, &out)
	if perr := providerError(out); decodeErr == nil && perr != "" {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: perr}
	}
	if resp.StatusCode >= 400 {
		pErr := &ProviderError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			pErr.Message = out.Message
		}
		return "", pErr
	}
	if decodeErr != nil {
		return "", fmt.Errorf("mailer: decode response: %w", decodeErr)
	}
	if out.ID == "" {
		return "", errors.New("mailer: response carried no message id")
	}
	return out.ID, nil
}

func providerError(out sendResponse) string {
	raw := strings.TrimSpace(string(out.Error))
	if raw == "" || raw == "null" || raw == `""` {
		return ""
	}
	var text string
	if err := json.Unmarshal(out.Error, &text); err == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(out.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return raw
}
