package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"macropulse/internal/logging"
)

const defaultBaseURL = "https://api.resend.com"

// Sender delivers digest emails through the Resend REST API. Send confirms
// success synchronously; callers flip lifecycle flags only after it returns
// nil.
type Sender struct {
	baseURL    string
	apiKey     string
	from       string
	to         string
	httpClient *http.Client
	logger     logging.Logger
}

// NewSender constructs a Sender with sane defaults.
func NewSender(apiKey, from, to string, logger logging.Logger, opts ...func(*Sender)) *Sender {
	s := &Sender{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		from:    from,
		to:      to,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithBaseURL overrides the default API base URL (useful for tests).
func WithBaseURL(url string) func(*Sender) {
	return func(s *Sender) {
		if url != "" {
			s.baseURL = url
		}
	}
}

// WithHTTPClient overrides the internal HTTP client.
func WithHTTPClient(hc *http.Client) func(*Sender) {
	return func(s *Sender) {
		s.httpClient = hc
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send delivers one email and returns nil only on a confirmed accept from
// the API.
func (s *Sender) Send(ctx context.Context, subject, htmlBody, textBody string) error {
	if s.apiKey == "" {
		return fmt.Errorf("email: missing API key")
	}

	body, err := json.Marshal(sendRequest{
		From:    s.from,
		To:      []string{s.to},
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
	if err != nil {
		return fmt.Errorf("email: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("email: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("email: api error %d: %s", resp.StatusCode, string(data))
	}

	var payload sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil && err != io.EOF {
		return fmt.Errorf("email: decode response: %w", err)
	}

	s.logger.WithFields(logging.Fields{"to": s.to, "subject": subject, "message_id": payload.ID}).Info("email delivered")
	return nil
}
