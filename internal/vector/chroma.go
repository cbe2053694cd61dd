package vector

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"semcrawl/internal/config"
)

// Entry is one vector-store document.
type Entry struct {
	URL       string
	Title     string
	Text      string
	Embedding []float64
}

// Hit is one similarity-search result. Distance is cosine distance, so
// smaller is closer.
type Hit struct {
	URL      string
	Title    string
	Text     string
	Distance float64
}

// Store persists embeddings and answers similarity queries.
type Store interface {
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, embedding []float64, topK int) ([]Hit, error)
}

// NewStore builds the configured vector store provider.
func NewStore(cfg config.VectorConfig) (Store, error) {
	switch cfg.Provider {
	case "", "chroma":
		return NewChromaStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported vector provider %q", cfg.Provider)
	}
}

// ChromaStore persists embeddings to a Chroma collection over its REST
// API. The collection is created lazily with cosine distance.
type ChromaStore struct {
	endpoint   string
	collection string
	httpClient *http.Client

	mu           sync.Mutex
	collectionID string
}

// NewChromaStore initialises a Chroma-backed Store.
func NewChromaStore(cfg config.VectorConfig) (*ChromaStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("chroma endpoint not configured")
	}
	collection := strings.TrimSpace(cfg.Collection)
	if collection == "" {
		return nil, fmt.Errorf("chroma collection not configured")
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ChromaStore{
		endpoint:   strings.TrimRight(endpoint, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// EntryID derives the stable vector-store ID for a URL.
func EntryID(pageURL string) string {
	sum := md5.Sum([]byte(pageURL))
	return hex.EncodeToString(sum[:])
}

// Upsert stores the entries in the collection.
func (s *ChromaStore) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	ids := make([]string, 0, len(entries))
	embeddings := make([][]float64, 0, len(entries))
	documents := make([]string, 0, len(entries))
	metadatas := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, EntryID(e.URL))
		embeddings = append(embeddings, e.Embedding)
		documents = append(documents, e.Text)
		metadatas = append(metadatas, map[string]any{
			"url":   e.URL,
			"title": e.Title,
		})
	}

	body := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	path := fmt.Sprintf("/api/v1/collections/%s/upsert", url.PathEscape(collectionID))
	if err := s.post(ctx, path, body, nil); err != nil {
		return fmt.Errorf("chroma upsert: %w", err)
	}
	return nil
}

type chromaQueryResponse struct {
	IDs       [][]string         `json:"ids"`
	Distances [][]float64        `json:"distances"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
}

// Query returns the topK entries closest to the embedding.
func (s *ChromaStore) Query(ctx context.Context, embedding []float64, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	body := map[string]any{
		"query_embeddings": [][]float64{embedding},
		"n_results":        topK,
		"include":          []string{"metadatas", "documents", "distances"},
	}
	var parsed chromaQueryResponse
	path := fmt.Sprintf("/api/v1/collections/%s/query", url.PathEscape(collectionID))
	if err := s.post(ctx, path, body, &parsed); err != nil {
		return nil, fmt.Errorf("chroma query: %w", err)
	}
	if len(parsed.IDs) == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(parsed.IDs[0]))
	for i := range parsed.IDs[0] {
		hit := Hit{}
		if len(parsed.Distances) > 0 && i < len(parsed.Distances[0]) {
			hit.Distance = parsed.Distances[0][i]
		}
		if len(parsed.Documents) > 0 && i < len(parsed.Documents[0]) {
			hit.Text = parsed.Documents[0][i]
		}
		if len(parsed.Metadatas) > 0 && i < len(parsed.Metadatas[0]) {
			meta := parsed.Metadatas[0][i]
			if v, ok := meta["url"].(string); ok {
				hit.URL = v
			}
			if v, ok := meta["title"].(string); ok {
				hit.Title = v
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// ensureCollection resolves the collection ID, creating the collection
// with cosine distance on first use.
func (s *ChromaStore) ensureCollection(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionID != "" {
		return s.collectionID, nil
	}

	body := map[string]any{
		"name":          s.collection,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
		"get_or_create": true,
	}
	var parsed struct {
		ID string `json:"id"`
	}
	if err := s.post(ctx, "/api/v1/collections", body, &parsed); err != nil {
		return "", err
	}
	if parsed.ID == "" {
		// Older Chroma versions address collections by name.
		parsed.ID = s.collection
	}
	s.collectionID = parsed.ID
	return s.collectionID, nil
}

func (s *ChromaStore) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d body %s", resp.StatusCode, string(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
