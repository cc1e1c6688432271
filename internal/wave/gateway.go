package wave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	// Upstream request timeout. Bulk display queries against large
	// subscriptions routinely take tens of seconds.
	requestTimeout = 45 * time.Second

	// Cap on upstream response bodies.
	maxResponseBody = 50 * 1024 * 1024
)

// Request is a GraphQL document plus its bound variables. Documents are
// static strings; all caller input travels through Variables.
type Request struct {
	Query     string
	Variables map[string]any
}

// FieldError is a single entry of a GraphQL errors array.
type FieldError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// UpstreamError is a failed call to the device API: a non-2xx response,
// a transport failure, or a response carrying a GraphQL errors array.
type UpstreamError struct {
	Status  int
	Message string
	Errors  []FieldError
}

func (e *UpstreamError) Error() string {
	if len(e.Errors) > 0 {
		msgs := make([]string, 0, len(e.Errors))
		for _, fe := range e.Errors {
			msgs = append(msgs, fe.Message)
		}
		return fmt.Sprintf("wave api error (status %d): %s", e.Status, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("wave api error (status %d): %s", e.Status, e.Message)
}

// Gateway executes GraphQL documents against the device API. The concrete
// implementation is Client; tests substitute fakes.
type Gateway interface {
	Execute(ctx context.Context, req Request, out any) error
}

// Client is the HTTP implementation of Gateway.
type Client struct {
	httpClient    *http.Client
	url           string
	authorization string
}

// NewClient returns a Client for the given endpoint. The authorization
// value is sent verbatim in the Authorization header.
func NewClient(url, authorization string) *Client {
	return &Client{
		url:           url,
		authorization: authorization,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type graphqlEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []FieldError    `json:"errors"`
}

// Execute posts the request and unmarshals the response data into out.
// A non-2xx status or any errors array in the body is surfaced as an
// *UpstreamError, never as partial success.
func (c *Client) Execute(ctx context.Context, req Request, out any) error {
	payload, err := json.Marshal(map[string]any{
		"query":     req.Query,
		"variables": req.Variables,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authorization != "" {
		httpReq.Header.Set("Authorization", c.authorization)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach wave api: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[WARN] Error closing response body: %v", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{Status: resp.StatusCode, Message: resp.Status}
	}

	var envelope graphqlEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return &UpstreamError{Status: resp.StatusCode, Errors: envelope.Errors}
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
