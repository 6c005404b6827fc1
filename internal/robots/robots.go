// Package robots fetches, parses, and caches robots.txt exclusion rules.
package robots

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	fetchTimeout = 5 * time.Second
	// Bodies over this size are treated as malformed and ignored.
	maxBodySize = 5000
)

// rule is one Allow/Disallow line, wildcard-stripped to a path prefix.
type rule struct {
	allow  bool
	prefix string
}

// group holds the ordered rules for one user-agent token.
type group struct {
	userAgent string
	rules     []rule
}

type ruleset struct {
	groups []group
}

// DecisionStore persists per-site robots decisions for observability and
// explicit re-check tooling.
type DecisionStore interface {
	SaveRobotsDecision(ctx context.Context, siteURL string, allowed bool) error
}

// Gate answers "may this URL be fetched?" by consulting each origin's
// robots.txt. Parsed rulesets are cached in memory per origin; a fetch
// failure is treated as allowed but left uncached so the origin is
// re-evaluated on a later attempt.
type Gate struct {
	client    *http.Client
	userAgent string
	store     DecisionStore
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]*ruleset
}

// NewGate builds a Gate identifying itself with userAgent. The store may be
// nil, in which case decisions are not persisted.
func NewGate(userAgent string, store DecisionStore, logger *zap.Logger) *Gate {
	return &Gate{
		client:    &http.Client{Timeout: fetchTimeout},
		userAgent: strings.ToLower(userAgent),
		store:     store,
		logger:    logger,
		cache:     make(map[string]*ruleset),
	}
}

// SetHTTPClient overrides the HTTP client, for tests.
func (g *Gate) SetHTTPClient(c *http.Client) {
	g.client = c
}

// Allowed reports whether rawURL may be fetched under its origin's
// robots.txt rules.
func (g *Gate) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	origin := u.Scheme + "://" + u.Host

	g.mu.Lock()
	rs, cached := g.cache[origin]
	g.mu.Unlock()

	if !cached {
		fetched, err := g.fetch(ctx, origin)
		if err != nil {
			// Fail open but do not cache: the origin gets re-checked on a
			// future attempt instead of being stuck on a transient error.
			g.logger.Warn("robots fetch failed, allowing",
				zap.String("origin", origin), zap.Error(err))
			return true
		}
		g.mu.Lock()
		g.cache[origin] = fetched
		g.mu.Unlock()
		rs = fetched
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	allowed := rs.allowed(g.userAgent, path)

	if g.store != nil {
		if err := g.store.SaveRobotsDecision(ctx, rawURL, allowed); err != nil {
			g.logger.Warn("persist robots decision failed",
				zap.String("url", rawURL), zap.Error(err))
		}
	}
	return allowed
}

// fetch retrieves and parses {origin}/robots.txt. A non-2xx status or an
// oversized body yields an empty ruleset (fully allowed); only transport
// errors propagate.
func (g *Gate) fetch(ctx context.Context, origin string) (*ruleset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ruleset{}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	if len(body) > maxBodySize {
		return &ruleset{}, nil
	}
	return parse(string(body)), nil
}

// parse splits robots.txt content into user-agent groups with ordered
// Allow/Disallow rules. Patterns containing '*' are truncated at the first
// wildcard and matched as prefixes.
func parse(content string) *ruleset {
	rs := &ruleset{}
	var current *group

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			rs.groups = append(rs.groups, group{userAgent: strings.ToLower(value)})
			current = &rs.groups[len(rs.groups)-1]
		case "allow", "disallow":
			if value == "" {
				continue
			}
			if current == nil {
				rs.groups = append(rs.groups, group{userAgent: "*"})
				current = &rs.groups[len(rs.groups)-1]
			}
			current.rules = append(current.rules, rule{
				allow:  key == "allow",
				prefix: stripWildcard(value),
			})
		}
	}
	return rs
}

func stripWildcard(pattern string) string {
	if i := strings.IndexByte(pattern, '*'); i >= 0 {
		pattern = pattern[:i]
	}
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}
	return pattern
}

// allowed evaluates a path against the group matching userAgent exactly, or
// the wildcard group. The longest matching prefix wins; Allow wins ties.
// No applicable rules means allowed.
func (r *ruleset) allowed(userAgent, path string) bool {
	var rules []rule
	for _, g := range r.groups {
		if g.userAgent == userAgent {
			rules = append(rules, g.rules...)
		}
	}
	if len(rules) == 0 {
		for _, g := range r.groups {
			if g.userAgent == "*" {
				rules = append(rules, g.rules...)
			}
		}
	}
	if len(rules) == 0 {
		return true
	}

	verdict := true
	bestLen := -1
	for _, rl := range rules {
		if !strings.HasPrefix(path, rl.prefix) {
			continue
		}
		n := len(rl.prefix)
		if n > bestLen || (n == bestLen && rl.allow) {
			bestLen = n
			verdict = rl.allow
		}
	}
	return verdict
}
