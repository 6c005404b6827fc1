// Package crawler defines the core types and interfaces for the crawl engine.
// It includes the frontier, the worker pool, and the contracts for the
// external collaborators a worker talks to while processing one URL.
package crawler

import (
	"context"
	"time"
)

// Page is the structured result of fetching one URL through the external
// extraction worker.
type Page struct {
	URL         string
	StatusCode  int
	Title       string
	Description string
	RawText     string
	Buttons     []ButtonCandidate
	Links       []Link
}

// ButtonCandidate is an <img> found on a page that may be an 88x31 button.
type ButtonCandidate struct {
	Src     string
	LinksTo string
	Alt     string
	Title   string
}

// Link is an outbound anchor found on a page.
type Link struct {
	Href string
	Text string
}

// Site is the persisted record for one crawled (or discovered) website URL.
type Site struct {
	URL         string
	Scraped     bool
	StatusCode  int
	Title       string
	Description string
	RawText     string
	ButtonCount int
	ScrapedAt   time.Time
}

// Button is a persisted 88x31 badge image. Identity is the image byte
// content; the storage layer's uniqueness constraint collapses duplicates.
type Button struct {
	SourceURL    string
	StatusCode   int
	Alt          string
	Title        string
	ColorTags    []string
	ColorAverage string
	Content      []byte
}

// Extractor fetches a URL through the external extraction worker and
// returns the structured page.
type Extractor interface {
	Extract(ctx context.Context, target string) (Page, error)
}

// ImageFetcher downloads raw image bytes for a button candidate.
type ImageFetcher interface {
	FetchImage(ctx context.Context, src string) ([]byte, int, error)
}

// RobotsPolicy reports whether a URL may be fetched at all.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Indexer turns a scraped site's text fields into embedding records.
// Implementations must treat per-field failures as non-fatal.
type Indexer interface {
	IndexSite(ctx context.Context, site, title, description, rawText string) error
}

// SiteStore is the durable side of the crawl: site rows double as the
// resumption queue (scraped=false) and as the cross-restart dedup authority.
type SiteStore interface {
	PendingSites(ctx context.Context) ([]string, error)
	EnsureSite(ctx context.Context, url string) error
	IsSiteScraped(ctx context.Context, url string) (bool, error)
	MarkSiteScraped(ctx context.Context, url string, statusCode int) error
	UpsertScrapedSite(ctx context.Context, site Site) error
	SaveButton(ctx context.Context, b Button) (int64, error)
	LinkButtonToSite(ctx context.Context, buttonID int64, siteURL, linksTo string) error
}
