package crawler

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MrDaPoyo/indieseas/internal/buttons"
	"github.com/MrDaPoyo/indieseas/internal/metrics"
)

// priorityKeywords mark same-host links that are crawled before the rest of
// a page's outlinks, since they are the likeliest places to find buttons.
var priorityKeywords = []string{"button", "link", "sitemap", "about", "friend", "neighbor", "webring"}

// Config tunes the crawl engine.
type Config struct {
	Concurrency   int
	MaxPages      int
	DomainPageCap int
	FolderPageCap int
	HighWater     int
	PerDomainRPS  float64
}

// Engine runs the crawl: a fixed pool of workers pulls URLs from the
// frontier, fetches them through the extraction worker, harvests buttons
// and links, and hands the text off to the indexer.
type Engine struct {
	cfg       Config
	frontier  *Frontier
	limiter   *DomainLimiter
	extractor Extractor
	images    ImageFetcher
	robots    RobotsPolicy
	indexer   Indexer
	store     SiteStore
	logger    *zap.Logger

	pages atomic.Int64
}

// New builds an Engine from its collaborators.
func New(cfg Config, extractor Extractor, images ImageFetcher, robots RobotsPolicy, indexer Indexer, store SiteStore, logger *zap.Logger) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Engine{
		cfg:       cfg,
		frontier:  NewFrontier(cfg.DomainPageCap, cfg.FolderPageCap, cfg.HighWater),
		limiter:   NewDomainLimiter(cfg.PerDomainRPS),
		extractor: extractor,
		images:    images,
		robots:    robots,
		indexer:   indexer,
		store:     store,
		logger:    logger,
	}
}

// Seed loads unscraped sites from storage and enqueues them along with any
// extra seed URLs, so an interrupted crawl resumes where it stopped.
func (e *Engine) Seed(ctx context.Context, extra []string) error {
	pending, err := e.store.PendingSites(ctx)
	if err != nil {
		return err
	}
	for _, u := range pending {
		e.frontier.Enqueue(u)
	}
	for _, u := range extra {
		if e.frontier.Enqueue(u) {
			if nu, err := NormalizeURL(u); err == nil {
				if err := e.store.EnsureSite(ctx, nu); err != nil {
					e.logger.Warn("seed ensure failed", zap.String("url", nu), zap.Error(err))
				}
			}
		}
	}
	e.logger.Info("frontier seeded",
		zap.Int("pending", len(pending)),
		zap.Int("extra", len(extra)),
		zap.Int("depth", e.frontier.Depth()))
	return nil
}

// Enqueue adds one URL to the frontier and registers it in storage. It is
// used by the HTTP trigger endpoint.
func (e *Engine) Enqueue(ctx context.Context, rawURL string) bool {
	if !e.frontier.Enqueue(rawURL) {
		return false
	}
	if nu, err := NormalizeURL(rawURL); err == nil {
		if err := e.store.EnsureSite(ctx, nu); err != nil {
			e.logger.Warn("enqueue ensure failed", zap.String("url", nu), zap.Error(err))
		}
	}
	return true
}

// Run starts the worker pool and blocks until the frontier drains, the page
// budget is exhausted, or the context is canceled.
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.worker(ctx, id)
		}(i)
	}
	wg.Wait()
	e.logger.Info("crawl finished", zap.Int64("pages", e.pages.Load()))
	return ctx.Err()
}

func (e *Engine) worker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		if e.cfg.MaxPages > 0 && e.pages.Load() >= int64(e.cfg.MaxPages) {
			return
		}
		target, ok := e.frontier.Next()
		if !ok {
			if e.frontier.Idle() {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(250 * time.Millisecond):
			}
			continue
		}

		metrics.IncActiveWorkers()
		e.process(ctx, target)
		metrics.DecActiveWorkers()
		e.frontier.Done(target)
		e.pages.Add(1)
	}
}

// process handles one URL end to end. Failures mark the site as scraped so
// it is never retried; indexing failures never roll back the page itself.
func (e *Engine) process(ctx context.Context, target string) {
	log := e.logger.With(zap.String("url", target))

	scraped, err := e.store.IsSiteScraped(ctx, target)
	if err != nil {
		log.Warn("scraped lookup failed", zap.Error(err))
	} else if scraped {
		metrics.ObservePage(target, "skipped")
		return
	}

	if !e.robots.Allowed(ctx, target) {
		log.Info("blocked by robots")
		if err := e.store.MarkSiteScraped(ctx, target, 0); err != nil {
			log.Warn("mark scraped failed", zap.Error(err))
		}
		metrics.ObservePage(target, "robots_blocked")
		return
	}

	if err := e.limiter.Wait(ctx, DomainOf(target)); err != nil {
		return
	}

	page, err := e.extractor.Extract(ctx, target)
	if err != nil {
		log.Warn("extract failed", zap.Error(err))
		if err := e.store.MarkSiteScraped(ctx, target, 0); err != nil {
			log.Warn("mark scraped failed", zap.Error(err))
		}
		metrics.ObservePage(target, "fetch_error")
		return
	}
	if page.StatusCode >= 400 {
		log.Info("page unavailable", zap.Int("status", page.StatusCode))
		if err := e.store.MarkSiteScraped(ctx, target, page.StatusCode); err != nil {
			log.Warn("mark scraped failed", zap.Error(err))
		}
		metrics.ObservePage(target, "http_error")
		return
	}

	base, _ := url.Parse(target)
	buttonCount := e.harvestButtons(ctx, base, target, page.Buttons, log)
	e.followLinks(ctx, base, target, page.Links)

	if err := e.indexer.IndexSite(ctx, target, page.Title, page.Description, page.RawText); err != nil {
		log.Warn("indexing failed", zap.Error(err))
	}

	site := Site{
		URL:         target,
		Scraped:     true,
		StatusCode:  page.StatusCode,
		Title:       page.Title,
		Description: page.Description,
		RawText:     page.RawText,
		ButtonCount: buttonCount,
		ScrapedAt:   time.Now().UTC(),
	}
	if err := e.store.UpsertScrapedSite(ctx, site); err != nil {
		log.Error("persist site failed", zap.Error(err))
		metrics.ObservePage(target, "store_error")
		return
	}
	metrics.ObservePage(target, "ok")
	log.Info("page crawled",
		zap.Int("status", page.StatusCode),
		zap.Int("buttons", buttonCount),
		zap.Int("links", len(page.Links)))
}

// harvestButtons downloads each candidate image, keeps only exact 88x31
// ones, persists them, and enqueues cross-host button targets.
func (e *Engine) harvestButtons(ctx context.Context, base *url.URL, siteURL string, candidates []ButtonCandidate, log *zap.Logger) int {
	seen := make(map[string]struct{})
	count := 0
	for _, c := range candidates {
		src, err := ResolveRef(base, c.Src)
		if err != nil || Denied(src) {
			continue
		}
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}

		data, status, err := e.images.FetchImage(ctx, src)
		if err != nil {
			log.Debug("button fetch failed", zap.String("src", src), zap.Error(err))
			continue
		}
		tags, average, ok := buttons.Classify(data)
		if !ok {
			continue
		}

		linksTo := ""
		if c.LinksTo != "" {
			if resolved, err := ResolveRef(base, c.LinksTo); err == nil && !Denied(resolved) {
				linksTo = resolved
			}
		}

		id, err := e.store.SaveButton(ctx, Button{
			SourceURL:    src,
			StatusCode:   status,
			Alt:          c.Alt,
			Title:        c.Title,
			ColorTags:    tags,
			ColorAverage: average,
			Content:      data,
		})
		if err != nil {
			log.Warn("save button failed", zap.String("src", src), zap.Error(err))
			continue
		}
		if err := e.store.LinkButtonToSite(ctx, id, siteURL, linksTo); err != nil {
			log.Warn("link button failed", zap.String("src", src), zap.Error(err))
		}
		count++
		metrics.ObserveButton()

		// A button pointing at another host is a discovery signal: that
		// host joins the crawl.
		if linksTo != "" && DomainOf(linksTo) != DomainOf(siteURL) {
			e.discover(ctx, linksTo)
		}
	}
	return count
}

// followLinks enqueues a page's outlinks. Same-host links matching a
// priority keyword go first; cross-host links are registered as new sites.
func (e *Engine) followLinks(ctx context.Context, base *url.URL, siteURL string, links []Link) {
	siteDomain := DomainOf(siteURL)
	var priority, rest []string
	for _, l := range links {
		resolved, err := ResolveRef(base, l.Href)
		if err != nil || Denied(resolved) {
			continue
		}
		if DomainOf(resolved) != siteDomain {
			e.discover(ctx, resolved)
			continue
		}
		if isPriorityLink(resolved) {
			priority = append(priority, resolved)
		} else {
			rest = append(rest, resolved)
		}
	}
	sort.Strings(priority)
	for _, u := range priority {
		e.frontier.Enqueue(u)
	}
	for _, u := range rest {
		e.frontier.Enqueue(u)
	}
}

// discover registers a cross-host URL as a new site and enqueues it.
func (e *Engine) discover(ctx context.Context, rawURL string) {
	if !e.frontier.Enqueue(rawURL) {
		return
	}
	if err := e.store.EnsureSite(ctx, rawURL); err != nil {
		e.logger.Warn("ensure site failed", zap.String("url", rawURL), zap.Error(err))
	}
}

func isPriorityLink(u string) bool {
	ls := strings.ToLower(u)
	for _, kw := range priorityKeywords {
		if strings.Contains(ls, kw) {
			return true
		}
	}
	return false
}
