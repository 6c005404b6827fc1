// Package ranker implements type-weighted rank fusion over the embedding
// index: per-field similarity scores are combined into one relevance score
// per site.
package ranker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	titleWeight       = 2.0
	descriptionWeight = 1.5
	chunkWeight       = 1.0

	// Sites whose fused score falls below this are noise, not results.
	scoreFloor = 0.3

	candidateLimit = 1000
	resultLimit    = 50
)

// Vectorizer embeds the query text.
type Vectorizer interface {
	Vectorize(ctx context.Context, text string) ([]float32, error)
}

// Match is one row from the ANN query: an embedding record and its cosine
// distance to the query vector.
type Match struct {
	Website  string
	Type     string
	Distance float64
}

// SiteInfo carries the display fields joined onto each result.
type SiteInfo struct {
	ID          int64
	Title       string
	Description string
	ButtonCount int
}

// MatchStore runs the ANN candidate query and resolves site display info.
type MatchStore interface {
	NearestMatches(ctx context.Context, vector []float32, limit int) ([]Match, error)
	SitesByURL(ctx context.Context, urls []string) (map[string]SiteInfo, error)
}

// Result is one ranked site.
type Result struct {
	Website      string
	WebsiteID    int64
	Title        string
	Description  string
	ButtonCount  int
	Score        float64
	MatchedTypes int
}

// Metadata reports how many candidate sites the index produced and how
// many survived scoring.
type Metadata struct {
	OriginalDBCount int
	FinalCount      int
}

// Ranker fuses per-field vector matches into per-site scores.
type Ranker struct {
	vectorizer Vectorizer
	store      MatchStore
	logger     *zap.Logger
}

// New builds a Ranker.
func New(vectorizer Vectorizer, store MatchStore, logger *zap.Logger) *Ranker {
	return &Ranker{vectorizer: vectorizer, store: store, logger: logger}
}

// Search embeds the query, pulls the nearest embedding records across all
// sites and field types, and fuses them: similarity = 1 - distance, scaled
// by the field-type weight, summed per site. Sites scoring under the floor
// are dropped; the rest are returned best-first, capped at 50.
func (r *Ranker) Search(ctx context.Context, query string) ([]Result, Metadata, error) {
	vector, err := r.vectorizer.Vectorize(ctx, query)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.store.NearestMatches(ctx, vector, candidateLimit)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("nearest matches: %w", err)
	}

	type accum struct {
		score float64
		types map[string]struct{}
	}
	bySite := make(map[string]*accum)
	for _, m := range matches {
		a, ok := bySite[m.Website]
		if !ok {
			a = &accum{types: make(map[string]struct{})}
			bySite[m.Website] = a
		}
		a.score += (1 - m.Distance) * typeWeight(m.Type)
		a.types[m.Type] = struct{}{}
	}

	meta := Metadata{OriginalDBCount: len(bySite)}

	results := make([]Result, 0, len(bySite))
	for site, a := range bySite {
		if a.score < scoreFloor {
			continue
		}
		results = append(results, Result{
			Website:      site,
			Score:        a.score,
			MatchedTypes: len(a.types),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Website < results[j].Website
	})
	if len(results) > resultLimit {
		results = results[:resultLimit]
	}
	meta.FinalCount = len(results)

	if len(results) > 0 {
		urls := make([]string, len(results))
		for i, res := range results {
			urls[i] = res.Website
		}
		info, err := r.store.SitesByURL(ctx, urls)
		if err != nil {
			// Scores are still valid without display fields.
			r.logger.Warn("resolve site info failed", zap.Error(err))
		} else {
			for i := range results {
				if si, ok := info[results[i].Website]; ok {
					results[i].WebsiteID = si.ID
					results[i].Title = si.Title
					results[i].Description = si.Description
					results[i].ButtonCount = si.ButtonCount
				}
			}
		}
	}
	return results, meta, nil
}

func typeWeight(fieldType string) float64 {
	switch {
	case fieldType == "title":
		return titleWeight
	case fieldType == "description":
		return descriptionWeight
	case strings.HasPrefix(fieldType, "raw_text_chunk_"):
		return chunkWeight
	default:
		return chunkWeight
	}
}
