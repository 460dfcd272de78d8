// Package model3d wraps the synchronous legs of the 3D pipeline: per-angle
// view rendering from a concept image, and GLB-to-STL conversion. Mesh
// reconstruction itself runs through the predictions API.
package model3d

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

// Angles lists the four views required for reconstruction, in generation
// order.
var Angles = []string{"front", "back", "left", "right"}

// AngleRenderer renders one view of the concept image.
type AngleRenderer interface {
	RenderAngle(ctx context.Context, conceptURL, angle string) (string, error)
}

// MeshConverter converts a reconstructed GLB mesh into STL.
type MeshConverter interface {
	ConvertSTL(ctx context.Context, glbURL string) (string, error)
}

// Options configures the HTTP client.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// HTTPClient implements AngleRenderer and MeshConverter over the provider's
// REST API.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(opts Options) *HTTPClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 180 * time.Second}
	}
	return &HTTPClient{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
	}
}

type angleRequest struct {
	ConceptURL string `json:"concept_url"`
	Angle      string `json:"angle"`
}

type urlResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

func (c *HTTPClient) RenderAngle(ctx context.Context, conceptURL, angle string) (string, error) {
	return c.postForURL(ctx, "/v1/angles", angleRequest{ConceptURL: conceptURL, Angle: angle})
}

type convertRequest struct {
	GLBUrl string `json:"glb_url"`
}

func (c *HTTPClient) ConvertSTL(ctx context.Context, glbURL string) (string, error) {
	return c.postForURL(ctx, "/v1/convert/stl", convertRequest{GLBUrl: glbURL})
}

func (c *HTTPClient) postForURL(ctx context.Context, path string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("model3d: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("model3d: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("model3d: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("model3d: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("model3d: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded urlResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("model3d: decode response: %w", err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("model3d: %s", decoded.Error)
	}
	if decoded.URL == "" {
		return "", fmt.Errorf("model3d: response missing url")
	}
	return decoded.URL, nil
}

var (
	_ AngleRenderer = (*HTTPClient)(nil)
	_ MeshConverter = (*HTTPClient)(nil)
)
