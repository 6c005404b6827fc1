// Package store provides Postgres-backed persistence for sites, buttons,
// embeddings, and robots decisions.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrDaPoyo/indieseas/internal/crawler"
	"github.com/MrDaPoyo/indieseas/internal/indexer"
	"github.com/MrDaPoyo/indieseas/internal/ranker"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store is the single persistence facade for the crawler, indexer, ranker,
// and HTTP API.
type Store struct {
	pool db
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// New connects a pool and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for tests).
func NewWithPool(pool db) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS websites (
		id SERIAL PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		is_scraped BOOLEAN DEFAULT FALSE,
		status_code INTEGER,
		title TEXT,
		description TEXT,
		raw_text TEXT,
		scraped_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		amount_of_buttons INTEGER DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS buttons (
		id SERIAL PRIMARY KEY,
		url TEXT NOT NULL,
		status_code INTEGER,
		color_tag TEXT,
		color_average TEXT,
		scraped_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		alt TEXT,
		title TEXT,
		content BYTEA NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS buttons_relations (
		id SERIAL PRIMARY KEY,
		button_id INTEGER REFERENCES buttons(id),
		website_id INTEGER REFERENCES websites(id),
		links_to_url TEXT,
		UNIQUE(button_id, website_id)
	)`,
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS websites_index (
		id SERIAL PRIMARY KEY,
		website TEXT NOT NULL,
		embedding vector(512) NOT NULL,
		type TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS embedding_index ON websites_index USING hnsw (embedding vector_cosine_ops)`,
	`CREATE TABLE IF NOT EXISTS robots (
		id SERIAL PRIMARY KEY,
		website_id INTEGER REFERENCES websites(id) UNIQUE,
		allowed BOOLEAN DEFAULT TRUE,
		last_checked TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// PendingSites returns all site URLs that were discovered but never
// scraped; they seed the frontier on startup.
func (s *Store) PendingSites(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT url FROM websites WHERE is_scraped = FALSE`)
	if err != nil {
		return nil, fmt.Errorf("query pending sites: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan pending site: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// EnsureSite registers a discovered URL, leaving existing rows untouched.
func (s *Store) EnsureSite(ctx context.Context, url string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO websites (url) VALUES ($1) ON CONFLICT (url) DO NOTHING`, url)
	if err != nil {
		return fmt.Errorf("ensure site: %w", err)
	}
	return nil
}

// IsSiteScraped reports whether the URL has already been processed. An
// unknown URL is not scraped.
func (s *Store) IsSiteScraped(ctx context.Context, url string) (bool, error) {
	var scraped bool
	err := s.pool.QueryRow(ctx,
		`SELECT is_scraped FROM websites WHERE url = $1`, url).Scan(&scraped)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query scraped flag: %w", err)
	}
	return scraped, nil
}

// MarkSiteScraped terminally marks a URL done without content, used for
// robots blocks and fetch failures so the frontier drains.
func (s *Store) MarkSiteScraped(ctx context.Context, url string, statusCode int) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO websites (url, is_scraped, status_code, scraped_at)
VALUES ($1, TRUE, $2, NOW())
ON CONFLICT (url) DO UPDATE
SET is_scraped = TRUE, status_code = EXCLUDED.status_code, scraped_at = NOW()`,
		url, statusCode)
	if err != nil {
		return fmt.Errorf("mark site scraped: %w", err)
	}
	return nil
}

// UpsertScrapedSite writes the final crawled state of a site.
func (s *Store) UpsertScrapedSite(ctx context.Context, site crawler.Site) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO websites (url, is_scraped, status_code, title, description, raw_text, amount_of_buttons, scraped_at)
VALUES ($1, TRUE, $2, $3, $4, $5, $6, $7)
ON CONFLICT (url) DO UPDATE
SET is_scraped = TRUE,
    status_code = EXCLUDED.status_code,
    title = EXCLUDED.title,
    description = EXCLUDED.description,
    raw_text = EXCLUDED.raw_text,
    amount_of_buttons = EXCLUDED.amount_of_buttons,
    scraped_at = EXCLUDED.scraped_at`,
		site.URL, site.StatusCode, site.Title, site.Description,
		site.RawText, site.ButtonCount, site.ScrapedAt)
	if err != nil {
		return fmt.Errorf("upsert site: %w", err)
	}
	return nil
}

// SaveButton upserts a button by image content. Two URLs serving identical
// bytes collapse to one row; the uniqueness constraint arbitrates races.
func (s *Store) SaveButton(ctx context.Context, b crawler.Button) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO buttons (url, status_code, color_tag, color_average, alt, title, content, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (content) DO UPDATE
SET url = EXCLUDED.url,
    status_code = EXCLUDED.status_code,
    color_tag = EXCLUDED.color_tag,
    color_average = EXCLUDED.color_average,
    alt = EXCLUDED.alt,
    title = EXCLUDED.title,
    scraped_at = NOW()
RETURNING id`,
		b.SourceURL, b.StatusCode, strings.Join(b.ColorTags, ","),
		b.ColorAverage, b.Alt, b.Title, b.Content).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save button: %w", err)
	}
	return id, nil
}

// LinkButtonToSite records that a site hosts a button, with the button's
// optional anchor target.
func (s *Store) LinkButtonToSite(ctx context.Context, buttonID int64, siteURL, linksTo string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO buttons_relations (button_id, website_id, links_to_url)
SELECT $1, id, $3 FROM websites WHERE url = $2
ON CONFLICT (button_id, website_id) DO UPDATE
SET links_to_url = EXCLUDED.links_to_url`,
		buttonID, siteURL, linksTo)
	if err != nil {
		return fmt.Errorf("link button to site: %w", err)
	}
	return nil
}

// ButtonContent returns the stored image bytes for a button id.
func (s *Store) ButtonContent(ctx context.Context, id int64) ([]byte, error) {
	var content []byte
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM buttons WHERE id = $1`, id).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query button content: %w", err)
	}
	return content, nil
}

// ReplaceSiteEmbeddings swaps a site's embedding records wholesale.
func (s *Store) ReplaceSiteEmbeddings(ctx context.Context, site string, records []indexer.Embedding) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM websites_index WHERE website = $1`, site); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	for _, rec := range records {
		if _, err := s.pool.Exec(ctx, `
INSERT INTO websites_index (website, embedding, type) VALUES ($1, $2::vector, $3)`,
			site, VectorLiteral(rec.Vector), rec.Type); err != nil {
			return fmt.Errorf("insert embedding %s: %w", rec.Type, err)
		}
	}
	return nil
}

// NearestMatches runs the ANN candidate query: the closest embedding rows
// to the query vector by cosine distance, across all sites and types.
func (s *Store) NearestMatches(ctx context.Context, vector []float32, limit int) ([]ranker.Match, error) {
	rows, err := s.pool.Query(ctx, `
SELECT website, type, embedding <=> $1::vector AS distance
FROM websites_index
ORDER BY distance ASC
LIMIT $2`,
		VectorLiteral(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("query nearest matches: %w", err)
	}
	defer rows.Close()

	var matches []ranker.Match
	for rows.Next() {
		var m ranker.Match
		if err := rows.Scan(&m.Website, &m.Type, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// SitesByURL resolves display fields for a set of site URLs.
func (s *Store) SitesByURL(ctx context.Context, urls []string) (map[string]ranker.SiteInfo, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, url, COALESCE(title, ''), COALESCE(description, ''), amount_of_buttons
FROM websites WHERE url = ANY($1)`, urls)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()

	info := make(map[string]ranker.SiteInfo)
	for rows.Next() {
		var (
			si  ranker.SiteInfo
			url string
		)
		if err := rows.Scan(&si.ID, &url, &si.Title, &si.Description, &si.ButtonCount); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		info[url] = si
	}
	return info, rows.Err()
}

// SaveRobotsDecision upserts the per-site robots verdict with a timestamp.
func (s *Store) SaveRobotsDecision(ctx context.Context, siteURL string, allowed bool) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO robots (website_id, allowed, last_checked)
SELECT id, $2, NOW() FROM websites WHERE url = $1
ON CONFLICT (website_id) DO UPDATE
SET allowed = EXCLUDED.allowed, last_checked = NOW()`,
		siteURL, allowed)
	if err != nil {
		return fmt.Errorf("save robots decision: %w", err)
	}
	return nil
}

// Stats summarizes index size for the status endpoint.
type Stats struct {
	Websites        int64 `json:"websites"`
	ScrapedWebsites int64 `json:"scraped_websites"`
	Buttons         int64 `json:"buttons"`
	Embeddings      int64 `json:"embeddings"`
}

// Stats returns row counts across the main tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM websites),
	(SELECT COUNT(*) FROM websites WHERE is_scraped = TRUE),
	(SELECT COUNT(*) FROM buttons),
	(SELECT COUNT(*) FROM websites_index)`).
		Scan(&st.Websites, &st.ScrapedWebsites, &st.Buttons, &st.Embeddings)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

// RandomSite picks one scraped site for the discovery endpoint.
type RandomSite struct {
	ID          int64  `json:"website_id"`
	URL         string `json:"website"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ButtonCount int    `json:"amount_of_buttons"`
}

// RandomScrapedSite returns a uniformly random scraped site.
func (s *Store) RandomScrapedSite(ctx context.Context) (RandomSite, error) {
	var rs RandomSite
	err := s.pool.QueryRow(ctx, `
SELECT id, url, COALESCE(title, ''), COALESCE(description, ''), amount_of_buttons
FROM websites WHERE is_scraped = TRUE
ORDER BY RANDOM() LIMIT 1`).
		Scan(&rs.ID, &rs.URL, &rs.Title, &rs.Description, &rs.ButtonCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return RandomSite{}, ErrNotFound
	}
	if err != nil {
		return RandomSite{}, fmt.Errorf("query random site: %w", err)
	}
	return rs, nil
}

// VectorLiteral renders a float vector in pgvector's text format.
func VectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
