// Package indexer turns a scraped site's text fields into embedding
// records via the external embedding worker.
package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MrDaPoyo/indieseas/internal/metrics"
	"github.com/MrDaPoyo/indieseas/internal/textproc"
)

// Vectorizer embeds one text string into a float vector.
type Vectorizer interface {
	Vectorize(ctx context.Context, text string) ([]float32, error)
}

// Embedding is one (type tag, vector) record for a site.
type Embedding struct {
	Type   string
	Vector []float32
}

// EmbeddingStore persists a site's embedding records. Re-indexing replaces
// the site's records wholesale.
type EmbeddingStore interface {
	ReplaceSiteEmbeddings(ctx context.Context, site string, records []Embedding) error
}

// Indexer coordinates field embedding for one site at a time. A failed
// field or chunk is skipped; partial indexing is expected.
type Indexer struct {
	vectorizer Vectorizer
	store      EmbeddingStore
	logger     *zap.Logger
}

// New builds an Indexer.
func New(vectorizer Vectorizer, store EmbeddingStore, logger *zap.Logger) *Indexer {
	return &Indexer{vectorizer: vectorizer, store: store, logger: logger}
}

// IndexSite embeds the title, description, and frequency-weighted raw-text
// chunks of a site and replaces its stored embedding records. Raw text is
// tokenized and re-expanded by word frequency before chunking, so the
// dominant vocabulary of a page weighs more in its chunk vectors.
func (ix *Indexer) IndexSite(ctx context.Context, site, title, description, rawText string) error {
	type field struct {
		tag  string
		text string
	}
	var fields []field
	if title != "" {
		fields = append(fields, field{"title", title})
	}
	if description != "" {
		fields = append(fields, field{"description", description})
	}
	if rawText != "" {
		weighted := textproc.Resynthesize(textproc.Tokenize(rawText))
		for i, chunk := range textproc.Chunk(weighted, textproc.DefaultChunkSize) {
			fields = append(fields, field{fmt.Sprintf("raw_text_chunk_%d", i), chunk})
		}
	}
	if len(fields) == 0 {
		return nil
	}

	records := make([]Embedding, 0, len(fields))
	for _, f := range fields {
		vector, err := ix.vectorizer.Vectorize(ctx, f.text)
		if err != nil {
			ix.logger.Warn("embedding failed, skipping field",
				zap.String("site", site),
				zap.String("type", f.tag),
				zap.Error(err))
			continue
		}
		records = append(records, Embedding{Type: f.tag, Vector: vector})
		metrics.ObserveEmbedding(f.tag)
	}

	// If every field failed the worker is down; keep whatever index the
	// site already has instead of wiping it.
	if len(records) == 0 {
		return fmt.Errorf("no fields embedded for %s", site)
	}

	if err := ix.store.ReplaceSiteEmbeddings(ctx, site, records); err != nil {
		return fmt.Errorf("persist embeddings for %s: %w", site, err)
	}
	return nil
}
