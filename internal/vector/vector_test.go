package vector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"semcrawl/internal/config"
	"semcrawl/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEmbeddingServer mimics the OpenAI embeddings endpoint and records
// the inputs it received.
func fakeEmbeddingServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var inputs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			http.Error(w, "bad auth", http.StatusUnauthorized)
			return
		}
		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		mu.Lock()
		inputs = append(inputs, req.Input)
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2, 0.3}}},
		})
	}))
	return srv, &inputs
}

func TestOpenAIEmbedder(t *testing.T) {
	srv, inputs := fakeEmbeddingServer(t)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(srv.URL, "test-key", "test-model", 0)
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}

	got, err := e.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 3 || got[0] != 0.1 {
		t.Fatalf("unexpected embedding %v", got)
	}
	if len(*inputs) != 1 || (*inputs)[0] != "hello world" {
		t.Fatalf("unexpected recorded inputs %v", *inputs)
	}
}

func TestOpenAIEmbedderTruncatesLongInput(t *testing.T) {
	srv, inputs := fakeEmbeddingServer(t)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(srv.URL, "test-key", "", 0)
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}

	long := strings.Repeat("x", maxEmbedChars+500)
	if _, err := e.Embed(context.Background(), long); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	sent := (*inputs)[0]
	if len(sent) != maxEmbedChars+3 {
		t.Fatalf("expected truncated input of %d chars, got %d", maxEmbedChars+3, len(sent))
	}
	if !strings.HasSuffix(sent, "...") {
		t.Fatal("expected truncation marker")
	}
}

func TestOpenAIEmbedderTruncatesOnRuneBoundary(t *testing.T) {
	srv, inputs := fakeEmbeddingServer(t)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(srv.URL, "test-key", "", 0)
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}

	// The multi-byte rune straddles the cut point; the cut must back off
	// to the rune boundary instead of splitting it.
	long := strings.Repeat("x", maxEmbedChars-1) + strings.Repeat("é", 300)
	if _, err := e.Embed(context.Background(), long); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	sent := (*inputs)[0]
	if !utf8.ValidString(sent) {
		t.Fatal("expected truncated input to remain valid UTF-8")
	}
	if want := strings.Repeat("x", maxEmbedChars-1) + "..."; sent != want {
		t.Fatalf("expected cut before the split rune, got %d bytes ending %q", len(sent), sent[len(sent)-6:])
	}
}

func TestOpenAIEmbedderRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder("", "", "", 0); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestOpenAIEmbedderSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e, _ := NewOpenAIEmbedder(srv.URL, "test-key", "", 0)
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error for API failure")
	}
}

// fakeChromaServer implements the subset of the Chroma REST API the
// store talks to.
type fakeChromaServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	creates  int
	upserted map[string]map[string]any
}

func newFakeChromaServer(t *testing.T) *fakeChromaServer {
	t.Helper()
	f := &fakeChromaServer{upserted: make(map[string]map[string]any)}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.creates++
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"id": "col-1"})
	})
	mux.HandleFunc("/api/v1/collections/col-1/upsert", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs       []string         `json:"ids"`
			Metadatas []map[string]any `json:"metadatas"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		for i, id := range body.IDs {
			f.upserted[id] = body.Metadatas[i]
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/collections/col-1/query", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ids":       [][]string{{"id-1", "id-2"}},
			"distances": [][]float64{{0.05, 0.42}},
			"documents": [][]string{{"first doc", "second doc"}},
			"metadatas": [][]map[string]any{{
				{"url": "https://example.com/1", "title": "One"},
				{"url": "https://example.com/2", "title": "Two"},
			}},
		})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeChromaServer) store(t *testing.T) *ChromaStore {
	t.Helper()
	s, err := NewChromaStore(config.VectorConfig{
		Endpoint:   f.srv.URL,
		Collection: "pages",
	})
	if err != nil {
		t.Fatalf("NewChromaStore: %v", err)
	}
	return s
}

func TestChromaStoreUpsert(t *testing.T) {
	f := newFakeChromaServer(t)
	s := f.store(t)

	entries := []Entry{
		{URL: "https://example.com/1", Title: "One", Text: "t1", Embedding: []float64{0.1}},
		{URL: "https://example.com/2", Title: "Two", Text: "t2", Embedding: []float64{0.2}},
	}
	if err := s.Upsert(context.Background(), entries); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	meta, ok := f.upserted[EntryID("https://example.com/1")]
	if !ok {
		t.Fatalf("expected entry keyed by URL hash, got %v", f.upserted)
	}
	if meta["title"] != "One" {
		t.Fatalf("unexpected metadata %v", meta)
	}

	// A second upsert reuses the cached collection ID.
	if err := s.Upsert(context.Background(), entries[:1]); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if f.creates != 1 {
		t.Fatalf("expected a single collection create, got %d", f.creates)
	}
}

func TestChromaStoreQuery(t *testing.T) {
	f := newFakeChromaServer(t)
	s := f.store(t)

	hits, err := s.Query(context.Background(), []float64{0.1, 0.2}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].URL != "https://example.com/1" || hits[0].Title != "One" || hits[0].Distance != 0.05 {
		t.Fatalf("unexpected first hit %+v", hits[0])
	}
	if hits[1].Text != "second doc" {
		t.Fatalf("unexpected second hit %+v", hits[1])
	}
}

func TestEntryIDIsStable(t *testing.T) {
	a := EntryID("https://example.com/page")
	b := EntryID("https://example.com/page")
	if a != b {
		t.Fatalf("expected stable IDs, got %q and %q", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-char hex digest, got %q", a)
	}
	if a == EntryID("https://example.com/other") {
		t.Fatal("different URLs must map to different IDs")
	}
}

// orderedStore records the order in which entries arrive.
type orderedStore struct {
	mu   sync.Mutex
	urls []string
}

func (s *orderedStore) Upsert(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.urls = append(s.urls, e.URL)
	}
	return nil
}

func (s *orderedStore) Query(context.Context, []float64, int) ([]Hit, error) {
	return nil, nil
}

type staticEmbedder struct{ err error }

func (e staticEmbedder) Embed(context.Context, string) ([]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float64{1}, nil
}

func TestIndexerPreservesCrawlOrder(t *testing.T) {
	store := &orderedStore{}
	ix := NewIndexer(staticEmbedder{}, store, 2, 3, discardLogger())

	pages := make([]types.CrawledPage, 7)
	want := make([]string, 7)
	for i := range pages {
		url := "https://example.com/p" + string(rune('a'+i))
		pages[i] = types.CrawledPage{URL: url, Title: "T", Text: "body"}
		want[i] = url
	}

	if err := ix.IndexPages(context.Background(), pages); err != nil {
		t.Fatalf("IndexPages: %v", err)
	}
	if len(store.urls) != len(want) {
		t.Fatalf("expected %d upserted, got %d", len(want), len(store.urls))
	}
	for i := range want {
		if store.urls[i] != want[i] {
			t.Fatalf("position %d: expected %q, got %q", i, want[i], store.urls[i])
		}
	}
}

func TestIndexerStopsOnEmbedFailure(t *testing.T) {
	store := &orderedStore{}
	ix := NewIndexer(staticEmbedder{err: errors.New("quota exceeded")}, store, 4, 2, discardLogger())

	pages := []types.CrawledPage{{URL: "https://example.com/a", Text: "x"}}
	if err := ix.IndexPages(context.Background(), pages); err == nil {
		t.Fatal("expected embedding failure to surface")
	}
	if len(store.urls) != 0 {
		t.Fatalf("expected no upserts after a failed batch, got %v", store.urls)
	}
}

func TestIndexerSearch(t *testing.T) {
	f := newFakeChromaServer(t)
	s := f.store(t)
	ix := NewIndexer(staticEmbedder{}, s, 4, 2, discardLogger())

	hits, err := ix.Search(context.Background(), "example query", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].URL != "https://example.com/1" {
		t.Fatalf("unexpected hits %+v", hits)
	}
}
