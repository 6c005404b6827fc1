package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	Init()
	m.Run()
}

func TestInitIsIdempotent(t *testing.T) {
	// A second Init must not re-register collectors (promauto panics on
	// duplicate registration) and must leave the originals in place.
	require.NotPanics(t, func() { Init() })
	require.NotNil(t, crawlerPagesTotal)
	require.NotNil(t, crawlerButtonsTotal)
	require.NotNil(t, crawlerEmbeddingsTotal)
	require.NotNil(t, crawlerActiveWorkers)
	require.NotNil(t, crawlerFrontierDepth)
	require.NotNil(t, searchRequestsTotal)
	require.NotNil(t, httpRequestsTotal)
	require.NotNil(t, httpRequestDurationSeconds)
}

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full url", "https://Example.COM/page", "example.com"},
		{"bare hostname", "neocities.org", "neocities.org"},
		{"with port", "http://localhost:8080/x", "localhost"},
		{"empty", "", "unknown"},
		{"garbage", "http://\x7f", "unknown"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SanitizeSite(tt.in))
		})
	}
}

func TestObservePageIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("a.example", "ok"))
	ObservePage("https://a.example/page", "ok")
	after := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("a.example", "ok"))
	assert.Equal(t, before+1, after)
}

func TestObserveEmbeddingCollapsesChunkTags(t *testing.T) {
	before := testutil.ToFloat64(crawlerEmbeddingsTotal.WithLabelValues("raw_text_chunk"))
	ObserveEmbedding("raw_text_chunk_0")
	ObserveEmbedding("raw_text_chunk_17")
	after := testutil.ToFloat64(crawlerEmbeddingsTotal.WithLabelValues("raw_text_chunk"))
	assert.Equal(t, before+2, after)

	before = testutil.ToFloat64(crawlerEmbeddingsTotal.WithLabelValues("title"))
	ObserveEmbedding("title")
	after = testutil.ToFloat64(crawlerEmbeddingsTotal.WithLabelValues("title"))
	assert.Equal(t, before+1, after)
}

func TestWorkerGaugeRoundTrip(t *testing.T) {
	base := testutil.ToFloat64(crawlerActiveWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	assert.Equal(t, base+2, testutil.ToFloat64(crawlerActiveWorkers))
	DecActiveWorkers()
	DecActiveWorkers()
	assert.Equal(t, base, testutil.ToFloat64(crawlerActiveWorkers))
}

func TestSetFrontierDepth(t *testing.T) {
	SetFrontierDepth(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(crawlerFrontierDepth))
	SetFrontierDepth(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(crawlerFrontierDepth))
}

func TestObserveSearchCountsByResult(t *testing.T) {
	before := testutil.ToFloat64(searchRequestsTotal.WithLabelValues("error"))
	ObserveSearch("error", 5*time.Millisecond)
	after := testutil.ToFloat64(searchRequestsTotal.WithLabelValues("error"))
	assert.Equal(t, before+1, after)
}

func FuzzSanitizeSite(f *testing.F) {
	f.Add("https://example.com/path")
	f.Add("not a url")
	f.Add("")
	f.Fuzz(func(t *testing.T, rawURL string) {
		// Must never panic and always return something non-empty.
		if got := SanitizeSite(rawURL); got == "" {
			t.Errorf("SanitizeSite(%q) returned empty string", rawURL)
		}
	})
}
