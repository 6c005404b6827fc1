// Package extract is the HTTP client for the external page-extraction
// worker and for downloading candidate button images.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrDaPoyo/indieseas/internal/crawler"
)

// Candidate images larger than this are not buttons.
const maxImageBytes = 4 << 20

// wirePage mirrors the extraction worker's response JSON. Buttons arrive
// keyed by an opaque identifier; only the values matter.
type wirePage struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	RawText     string                `json:"rawText"`
	Buttons     map[string]wireButton `json:"buttons"`
	Links       []wireLink            `json:"links"`
}

type wireButton struct {
	Src     string `json:"src"`
	LinksTo string `json:"links_to"`
	Alt     string `json:"alt"`
	Title   string `json:"title"`
}

type wireLink struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// Client calls the extraction worker over HTTP.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient builds a Client for the worker at baseURL with the given
// per-request timeout.
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
	}
}

// Extract asks the worker to fetch and parse target, returning the
// structured page. A non-2xx worker response is a fetch failure.
func (c *Client) Extract(ctx context.Context, target string) (crawler.Page, error) {
	endpoint := c.baseURL + "/" + url.QueryEscape(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("call extraction worker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return crawler.Page{}, fmt.Errorf("extraction worker returned %d for %s", resp.StatusCode, target)
	}

	var wire wirePage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return crawler.Page{}, fmt.Errorf("decode extraction response: %w", err)
	}

	page := crawler.Page{
		URL:         target,
		StatusCode:  resp.StatusCode,
		Title:       wire.Title,
		Description: wire.Description,
		RawText:     wire.RawText,
	}
	for _, b := range wire.Buttons {
		if b.Src == "" {
			continue
		}
		page.Buttons = append(page.Buttons, crawler.ButtonCandidate{
			Src:     b.Src,
			LinksTo: b.LinksTo,
			Alt:     b.Alt,
			Title:   b.Title,
		})
	}
	for _, l := range wire.Links {
		if l.Href == "" {
			continue
		}
		page.Links = append(page.Links, crawler.Link{Href: l.Href, Text: l.Text})
	}
	return page, nil
}

// ImageFetcher downloads raw image bytes for button candidates.
type ImageFetcher struct {
	userAgent string
	http      *http.Client
}

// NewImageFetcher builds an ImageFetcher with the given timeout.
func NewImageFetcher(userAgent string, timeout time.Duration) *ImageFetcher {
	return &ImageFetcher{
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
	}
}

// FetchImage downloads src and returns the body bytes plus HTTP status.
// Oversized bodies are rejected.
func (f *ImageFetcher) FetchImage(ctx context.Context, src string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("image fetch returned %d for %s", resp.StatusCode, src)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read image body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, resp.StatusCode, fmt.Errorf("image at %s exceeds %d bytes", src, maxImageBytes)
	}
	return data, resp.StatusCode, nil
}
