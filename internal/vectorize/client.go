// Package vectorize is the HTTP client for the external text-embedding
// worker.
package vectorize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client calls the embedding worker's /vectorize endpoint. The worker's
// contract is singular: one text in, one fixed-length float vector out.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client for the worker at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type vectorizeRequest struct {
	Text string `json:"text"`
}

type vectorizeResponse struct {
	Vector []float32 `json:"vector"`
}

// Vectorize embeds one text string into a float vector.
func (c *Client) Vectorize(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(vectorizeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode vectorize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vectorize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build vectorize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding worker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding worker returned %d", resp.StatusCode)
	}

	var out vectorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode vectorize response: %w", err)
	}
	if len(out.Vector) == 0 {
		return nil, fmt.Errorf("embedding worker returned an empty vector")
	}
	return out.Vector, nil
}
