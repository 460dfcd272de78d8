// Package predictions talks to the asynchronous prediction API shared by the
// generation providers: create a prediction, poll it by id until it reaches a
// terminal status.
package predictions

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

// Status enumerates prediction lifecycle states reported by the provider.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether the provider will make no further progress.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Prediction is the provider's handle to an in-flight or finished request.
// Output arrives in provider-specific shapes and is normalized by the
// predict package.
type Prediction struct {
	ID     string          `json:"id"`
	Status Status          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Client is the contract job handlers depend on.
type Client interface {
	Create(ctx context.Context, model string, input map[string]any) (*Prediction, error)
	Get(ctx context.Context, id string) (*Prediction, error)
}

// Options configures the HTTP client.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// HTTPClient implements Client over the provider's REST API.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(opts Options) *HTTPClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPClient{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
	}
}

type createRequest struct {
	Model string         `json:"model"`
	Input map[string]any `json:"input"`
}

// Create starts a prediction for the given model.
func (c *HTTPClient) Create(ctx context.Context, model string, input map[string]any) (*Prediction, error) {
	body, err := json.Marshal(createRequest{Model: model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("predictions: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("predictions: build request: %w", err)
	}
	return c.do(req)
}

// Get fetches the current state of a prediction.
func (c *HTTPClient) Get(ctx context.Context, id string) (*Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/predictions/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("predictions: build request: %w", err)
	}
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) (*Prediction, error) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predictions: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("predictions: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("predictions: provider returned %d: %s", resp.StatusCode, truncate(string(payload), 200))
	}
	var prediction Prediction
	if err := json.Unmarshal(payload, &prediction); err != nil {
		return nil, fmt.Errorf("predictions: decode response: %w", err)
	}
	if prediction.ID == "" {
		return nil, fmt.Errorf("predictions: response missing prediction id")
	}
	return &prediction, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Client = (*HTTPClient)(nil)
