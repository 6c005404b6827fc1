package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MrDaPoyo/indieseas/internal/metrics"
	"github.com/MrDaPoyo/indieseas/internal/ranker"
	"github.com/MrDaPoyo/indieseas/internal/store"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakeSearcher struct {
	results []ranker.Result
	meta    ranker.Metadata
	err     error
}

func (f *fakeSearcher) Search(context.Context, string) ([]ranker.Result, ranker.Metadata, error) {
	return f.results, f.meta, f.err
}

type fakeStorage struct {
	content  []byte
	stats    store.Stats
	statsErr error
	random   store.RandomSite
}

func (f *fakeStorage) ButtonContent(_ context.Context, id int64) ([]byte, error) {
	if f.content == nil {
		return nil, store.ErrNotFound
	}
	return f.content, nil
}

func (f *fakeStorage) Stats(context.Context) (store.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeStorage) RandomScrapedSite(context.Context) (store.RandomSite, error) {
	if f.random.URL == "" {
		return store.RandomSite{}, store.ErrNotFound
	}
	return f.random, nil
}

type fakeEnqueuer struct {
	accepted bool
	urls     []string
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, rawURL string) bool {
	f.urls = append(f.urls, rawURL)
	return f.accepted
}

func newTestServer(searcher Searcher, storage Storage, enqueuer Enqueuer) *httptest.Server {
	s := NewServer(searcher, storage, enqueuer, zap.NewNop())
	return httptest.NewServer(s.Handler())
}

func TestSearchMissingQuery(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeStorage{}, &fakeEnqueuer{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/search")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchReturnsRankedResults(t *testing.T) {
	searcher := &fakeSearcher{
		results: []ranker.Result{
			{
				Website:      "https://a.example/",
				WebsiteID:    1,
				Title:        "A",
				Description:  "about a",
				ButtonCount:  3,
				Score:        1.9,
				MatchedTypes: 2,
			},
		},
		meta: ranker.Metadata{OriginalDBCount: 5, FinalCount: 1},
	}
	srv := newTestServer(searcher, &fakeStorage{}, &fakeEnqueuer{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/search?q=indie")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Results []struct {
			Website           string  `json:"website"`
			Title             string  `json:"title"`
			AmountOfButtons   int     `json:"amount_of_buttons"`
			Score             float64 `json:"score"`
			MatchedTypesCount int     `json:"matched_types_count"`
			WebsiteID         int64   `json:"website_id"`
		} `json:"results"`
		Metadata struct {
			OriginalDBCount int `json:"originalDbCount"`
			FinalCount      int `json:"finalCount"`
		} `json:"metadata"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "https://a.example/", body.Results[0].Website)
	assert.Equal(t, 3, body.Results[0].AmountOfButtons)
	assert.Equal(t, 2, body.Results[0].MatchedTypesCount)
	assert.Equal(t, int64(1), body.Results[0].WebsiteID)
	assert.Equal(t, 5, body.Metadata.OriginalDBCount)
	assert.Equal(t, 1, body.Metadata.FinalCount)
}

func TestSearchUpstreamFailureIsGenericServerError(t *testing.T) {
	srv := newTestServer(&fakeSearcher{err: fmt.Errorf("pgvector exploded")}, &fakeStorage{}, &fakeEnqueuer{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/search?q=indie")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotContains(t, body["error"], "pgvector", "internal detail must not leak to clients")
}

func TestRetrieveButton(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeStorage{content: []byte{0x89, 'P', 'N', 'G'}}, &fakeEnqueuer{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/retrieveButton?buttonId=7")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
}

func TestRetrieveButtonNotFound(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeStorage{}, &fakeEnqueuer{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/retrieveButton?buttonId=99")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRetrieveButtonBadID(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeStorage{}, &fakeEnqueuer{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/retrieveButton?buttonId=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStats(t *testing.T) {
	storage := &fakeStorage{stats: store.Stats{Websites: 10, ScrapedWebsites: 7, Buttons: 4, Embeddings: 21}}
	srv := newTestServer(&fakeSearcher{}, storage, &fakeEnqueuer{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats store.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(10), stats.Websites)
	assert.Equal(t, int64(21), stats.Embeddings)
}

func TestRandomSite(t *testing.T) {
	storage := &fakeStorage{random: store.RandomSite{ID: 3, URL: "https://lucky.example/", Title: "Lucky"}}
	srv := newTestServer(&fakeSearcher{}, storage, &fakeEnqueuer{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/random")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var site store.RandomSite
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&site))
	assert.Equal(t, "https://lucky.example/", site.URL)
}

func TestRandomSiteEmptyIndex(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeStorage{}, &fakeEnqueuer{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/random")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitCrawl(t *testing.T) {
	enq := &fakeEnqueuer{accepted: true}
	srv := newTestServer(&fakeSearcher{}, &fakeStorage{}, enq)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/crawl", "application/json",
		strings.NewReader(`{"url": "https://new.example/"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, enq.urls, 1)
	assert.Equal(t, "https://new.example/", enq.urls[0])
}

func TestSubmitCrawlDuplicateIsSkipped(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeStorage{}, &fakeEnqueuer{accepted: false})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/crawl", "application/json",
		strings.NewReader(`{"url": "https://dup.example/"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "skipped", body["status"])
}

func TestSubmitCrawlMissingURL(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeStorage{}, &fakeEnqueuer{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/crawl", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeStorage{}, &fakeEnqueuer{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestReadyzReflectsStorage(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeStorage{statsErr: errors.New("down")}, &fakeEnqueuer{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
