package indexer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MrDaPoyo/indieseas/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakeVectorizer struct {
	failFor map[string]bool
	calls   []string
}

func (f *fakeVectorizer) Vectorize(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.failFor[text] {
		return nil, fmt.Errorf("worker unavailable")
	}
	return []float32{0.5, 0.5}, nil
}

type fakeEmbeddingStore struct {
	site    string
	records []Embedding
	calls   int
}

func (f *fakeEmbeddingStore) ReplaceSiteEmbeddings(_ context.Context, site string, records []Embedding) error {
	f.site = site
	f.records = records
	f.calls++
	return nil
}

func TestIndexSiteEmbedsAllFields(t *testing.T) {
	vec := &fakeVectorizer{}
	st := &fakeEmbeddingStore{}
	ix := New(vec, st, zap.NewNop())

	// Enough surviving words that the weighted pseudo-text spans two chunks.
	rawText := strings.Repeat("galaxy ", 100)
	err := ix.IndexSite(context.Background(), "https://example.org/", "My Site", "a description", rawText)
	require.NoError(t, err)

	require.Equal(t, 1, st.calls)
	assert.Equal(t, "https://example.org/", st.site)

	var tags []string
	for _, rec := range st.records {
		tags = append(tags, rec.Type)
	}
	assert.Equal(t, []string{"title", "description", "raw_text_chunk_0", "raw_text_chunk_1"}, tags)
}

func TestIndexSiteSkipsFailedFields(t *testing.T) {
	vec := &fakeVectorizer{failFor: map[string]bool{"a description": true}}
	st := &fakeEmbeddingStore{}
	ix := New(vec, st, zap.NewNop())

	err := ix.IndexSite(context.Background(), "https://example.org/", "My Site", "a description", "")
	require.NoError(t, err)

	require.Len(t, st.records, 1, "the failed field is skipped, not fatal")
	assert.Equal(t, "title", st.records[0].Type)
}

func TestIndexSiteAllFieldsFailedKeepsOldIndex(t *testing.T) {
	vec := &fakeVectorizer{failFor: map[string]bool{"My Site": true}}
	st := &fakeEmbeddingStore{}
	ix := New(vec, st, zap.NewNop())

	err := ix.IndexSite(context.Background(), "https://example.org/", "My Site", "", "")
	assert.Error(t, err)
	assert.Zero(t, st.calls, "a fully failed pass must not wipe existing records")
}

func TestIndexSiteNothingToEmbed(t *testing.T) {
	vec := &fakeVectorizer{}
	st := &fakeEmbeddingStore{}
	ix := New(vec, st, zap.NewNop())

	err := ix.IndexSite(context.Background(), "https://example.org/", "", "", "")
	require.NoError(t, err)
	assert.Zero(t, st.calls)
	assert.Empty(t, vec.calls)
}
