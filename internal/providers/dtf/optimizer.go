// Package dtf wraps the synchronous print-transfer optimization service that
// converts a design image into a direct-to-film friendly variant.
package dtf

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

// Optimizer converts a design image URL into a print-optimized URL.
type Optimizer interface {
	Optimize(ctx context.Context, imageURL string) (string, error)
}

// Options configures the HTTP optimizer.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

type HTTPOptimizer struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewHTTPOptimizer(opts Options) *HTTPOptimizer {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &HTTPOptimizer{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
	}
}

type optimizeRequest struct {
	ImageURL string `json:"image_url"`
}

type optimizeResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

func (o *HTTPOptimizer) Optimize(ctx context.Context, imageURL string) (string, error) {
	body, err := json.Marshal(optimizeRequest{ImageURL: imageURL})
	if err != nil {
		return "", fmt.Errorf("dtf: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/optimize", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("dtf: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("dtf: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("dtf: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("dtf: provider returned %d", resp.StatusCode)
	}
	var decoded optimizeResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("dtf: decode response: %w", err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("dtf: %s", decoded.Error)
	}
	if decoded.URL == "" {
		return "", fmt.Errorf("dtf: response missing url")
	}
	return decoded.URL, nil
}

var _ Optimizer = (*HTTPOptimizer)(nil)
