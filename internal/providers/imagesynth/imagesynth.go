// Package imagesynth fans image generation out across multiple independent
// synthesis models. Synchronous models return their output inline;
// asynchronous ones are driven through the predictions API.
package imagesynth

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

// Model describes one entry of the synthesis catalog.
type Model struct {
	ID          string
	Name        string
	Version     string
	Synchronous bool
}

// DefaultCatalog is the stock model fan-out used when a job does not narrow
// the selection.
func DefaultCatalog() []Model {
	return []Model{
		{ID: "flux-schnell", Name: "FLUX Schnell", Version: "black-forest-labs/flux-schnell", Synchronous: true},
		{ID: "sdxl", Name: "Stable Diffusion XL", Version: "stability-ai/sdxl", Synchronous: false},
		{ID: "recraft-v3", Name: "Recraft V3", Version: "recraft-ai/recraft-v3", Synchronous: false},
	}
}

// Request carries the prompt-derived fields down to a synthesis model.
type Request struct {
	Prompt         string `json:"prompt"`
	ShirtColor     string `json:"shirt_color,omitempty"`
	PrintStyle     string `json:"print_style,omitempty"`
	ProductType    string `json:"product_type,omitempty"`
	PrintPlacement string `json:"print_placement,omitempty"`
}

// Input flattens the request into the generic provider input map.
func (r Request) Input() map[string]any {
	input := map[string]any{"prompt": r.Prompt}
	if r.ShirtColor != "" {
		input["shirt_color"] = r.ShirtColor
	}
	if r.PrintStyle != "" {
		input["print_style"] = r.PrintStyle
	}
	if r.ProductType != "" {
		input["product_type"] = r.ProductType
	}
	if r.PrintPlacement != "" {
		input["print_placement"] = r.PrintPlacement
	}
	return input
}

// Synthesizer generates an image synchronously and returns the provider's raw
// output shape for normalization.
type Synthesizer interface {
	Generate(ctx context.Context, model Model, req Request) (json.RawMessage, error)
}

// Options configures the synchronous HTTP synthesizer.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// HTTPSynthesizer calls the provider's blocking generation endpoint.
type HTTPSynthesizer struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewHTTPSynthesizer(opts Options) *HTTPSynthesizer {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &HTTPSynthesizer{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
	}
}

type generateRequest struct {
	Model string         `json:"model"`
	Input map[string]any `json:"input"`
}

type generateResponse struct {
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error,omitempty"`
}

func (s *HTTPSynthesizer) Generate(ctx context.Context, model Model, req Request) (json.RawMessage, error) {
	body, err := json.Marshal(generateRequest{Model: model.Version, Input: req.Input()})
	if err != nil {
		return nil, fmt.Errorf("imagesynth: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/images", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("imagesynth: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("imagesynth: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("imagesynth: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("imagesynth: %s returned %d", model.ID, resp.StatusCode)
	}
	var decoded generateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("imagesynth: decode response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("imagesynth: %s: %s", model.ID, decoded.Error)
	}
	return decoded.Output, nil
}

var _ Synthesizer = (*HTTPSynthesizer)(nil)
