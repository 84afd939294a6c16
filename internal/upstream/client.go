package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/noah-isme/scc-sat-api/internal/models"
)

// ErrRejected is returned when the backend answered but did not report success.
var ErrRejected = errors.New("submission rejected")

// Submission is the payload posted for every registration.
type Submission struct {
	models.StudentRecord
}

// Result carries the backend's verdict and optional authoritative overrides.
type Result struct {
	Result          string `json:"result"`
	SeatNumber      string `json:"seatNumber,omitempty"`
	OwnReferralCode string `json:"ownReferralCode,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Succeeded reports whether the backend accepted the submission.
func (r Result) Succeeded() bool {
	return r.Result == "success"
}

// Client posts registrations to the remote sheet backend.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client with the given timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a backend URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.BaseURL != ""
}

// Submit posts the record. A non-success result is returned together with ErrRejected.
func (c *Client) Submit(ctx context.Context, record models.StudentRecord) (*Result, error) {
	body, err := json.Marshal(Submission{StudentRecord: record})
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registration backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("registration backend error %s: %s", resp.Status, string(bodyBytes))
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.Succeeded() {
		return &out, ErrRejected
	}
	return &out, nil
}
