package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type mockEmbedder struct {
	calls int
	err   error
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return []float32{3, 4}, nil
}

type mockIndex struct {
	vectorResults []Snippet
	vectorErr     error
	vectorCalls   int
	textResults   []Snippet
	textErr       error
	textCalls     int
}

func (m *mockIndex) VectorSearch(ctx context.Context, businessID string, embedding []float32, topK int, minSimilarity float64) ([]Snippet, error) {
	m.vectorCalls++
	if m.vectorErr != nil {
		return nil, m.vectorErr
	}
	return append([]Snippet{}, m.vectorResults...), nil
}

func (m *mockIndex) TextSearch(ctx context.Context, businessID, query string, topK int) ([]Snippet, error) {
	m.textCalls++
	if m.textErr != nil {
		return nil, m.textErr
	}
	return append([]Snippet{}, m.textResults...), nil
}

func newTestSearcher(embedder Embedder, index Index) *Searcher {
	return NewSearcher(embedder, index, DefaultConfig())
}

func TestEmbed_CacheHit(t *testing.T) {
	embedder := &mockEmbedder{}
	s := newTestSearcher(embedder, &mockIndex{})

	if _, err := s.Embed(context.Background(), "Opening Hours"); err != nil {
		t.Fatalf("first embed failed: %v", err)
	}
	// Same text, different casing and whitespace: must hit the cache.
	if _, err := s.Embed(context.Background(), "  opening hours "); err != nil {
		t.Fatalf("second embed failed: %v", err)
	}

	if embedder.calls != 1 {
		t.Errorf("expected 1 remote embed call, got %d", embedder.calls)
	}
}

func TestEmbed_CacheExpiry(t *testing.T) {
	embedder := &mockEmbedder{}
	s := newTestSearcher(embedder, &mockIndex{})

	base := time.Now()
	s.now = func() time.Time { return base }
	if _, err := s.Embed(context.Background(), "hours"); err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	s.now = func() time.Time { return base.Add(6 * time.Minute) }
	if _, err := s.Embed(context.Background(), "hours"); err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	if embedder.calls != 2 {
		t.Errorf("expected expired entry to trigger a second remote call, got %d calls", embedder.calls)
	}
}

func TestHybridSearch_HighConfidenceSkipsTextSearch(t *testing.T) {
	index := &mockIndex{
		vectorResults: []Snippet{
			{Content: "We offer haircuts.", Similarity: 0.85},
			{Content: "We offer coloring.", Similarity: 0.72},
		},
		textResults: []Snippet{{Content: "should not appear"}},
	}
	s := newTestSearcher(&mockEmbedder{}, index)

	results, method, err := s.HybridSearch(context.Background(), "biz-1", "haircut", 3, 0)
	if err != nil {
		t.Fatalf("hybrid search failed: %v", err)
	}

	if method != "vector" {
		t.Errorf("expected method 'vector', got %s", method)
	}
	if index.textCalls != 0 {
		t.Errorf("text search should not run when vector is high-confidence, got %d calls", index.textCalls)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 vector results, got %d", len(results))
	}
	for _, r := range results {
		if r.SearchType != "vector" {
			t.Errorf("expected vector search type, got %s", r.SearchType)
		}
	}
}

func TestHybridSearch_LowConfidenceMergesText(t *testing.T) {
	index := &mockIndex{
		vectorResults: []Snippet{{Content: "weak match", Similarity: 0.55}},
		textResults:   []Snippet{{Content: "lexical match"}},
	}
	s := newTestSearcher(&mockEmbedder{}, index)

	results, method, err := s.HybridSearch(context.Background(), "biz-1", "refunds", 3, 0)
	if err != nil {
		t.Fatalf("hybrid search failed: %v", err)
	}

	if method != "hybrid" {
		t.Errorf("expected method 'hybrid', got %s", method)
	}
	if index.textCalls != 1 {
		t.Errorf("expected one text search call, got %d", index.textCalls)
	}
	if len(results) != 2 {
		t.Fatalf("expected merged results, got %d", len(results))
	}
	// Sorted by similarity descending: vector 0.55 above text default 0.5.
	if results[0].Content != "weak match" || results[1].Content != "lexical match" {
		t.Errorf("results not sorted by similarity: %+v", results)
	}
}

func TestHybridSearch_TruncatesToTopK(t *testing.T) {
	index := &mockIndex{
		vectorResults: []Snippet{
			{Content: "a", Similarity: 0.6},
			{Content: "b", Similarity: 0.55},
		},
		textResults: []Snippet{
			{Content: "c"},
			{Content: "d"},
		},
	}
	s := newTestSearcher(&mockEmbedder{}, index)

	results, _, err := s.HybridSearch(context.Background(), "biz-1", "q", 3, 0)
	if err != nil {
		t.Fatalf("hybrid search failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected results truncated to topK=3, got %d", len(results))
	}
}

func TestVectorSearch_FallsBackToTextOnBackendFailure(t *testing.T) {
	index := &mockIndex{
		vectorErr:   errors.New("connection refused"),
		textResults: []Snippet{{Content: "fallback"}},
	}
	s := newTestSearcher(&mockEmbedder{}, index)

	results, err := s.VectorSearch(context.Background(), "biz-1", "q", 3, 0.5)
	if err != nil {
		t.Fatalf("vector search should degrade, not fail: %v", err)
	}
	if len(results) != 1 || results[0].SearchType != "text" {
		t.Errorf("expected text fallback results, got %+v", results)
	}
	if results[0].Similarity != 0.5 {
		t.Errorf("expected default text similarity 0.5, got %f", results[0].Similarity)
	}
}

func TestVectorSearch_FallsBackToTextOnEmbedFailure(t *testing.T) {
	index := &mockIndex{textResults: []Snippet{{Content: "fallback"}}}
	s := newTestSearcher(&mockEmbedder{err: errors.New("rate limited")}, index)

	results, err := s.VectorSearch(context.Background(), "biz-1", "q", 3, 0.5)
	if err != nil {
		t.Fatalf("vector search should degrade, not fail: %v", err)
	}
	if index.vectorCalls != 0 {
		t.Errorf("vector index should not be queried without an embedding")
	}
	if len(results) != 1 {
		t.Errorf("expected text fallback results, got %+v", results)
	}
}

func TestTextSearch_FailureDegradesToEmpty(t *testing.T) {
	index := &mockIndex{textErr: errors.New("table missing")}
	s := newTestSearcher(&mockEmbedder{}, index)

	results, err := s.TextSearch(context.Background(), "biz-1", "q", 3)
	if err != nil {
		t.Fatalf("text search should degrade, not fail: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %+v", results)
	}
}

func TestSearchWithContext_EmptyQuerySkipsSearch(t *testing.T) {
	index := &mockIndex{}
	s := newTestSearcher(&mockEmbedder{}, index)

	results, method, err := s.SearchWithContext(context.Background(), "biz-1", []ContextTurn{
		{Role: "assistant", Content: "Hello, how can I help?"},
	}, true, 3)
	if err != nil {
		t.Fatalf("contextual search failed: %v", err)
	}
	if method != "none" || results != nil {
		t.Errorf("expected search skipped for no user turns, got method=%s results=%+v", method, results)
	}
	if index.vectorCalls != 0 || index.textCalls != 0 {
		t.Error("no index query should run for an empty query")
	}
}

func TestSearchWithContext_UsesRecentUserTurns(t *testing.T) {
	index := &mockIndex{
		vectorResults: []Snippet{{Content: "services list", Similarity: 0.8}},
	}
	s := newTestSearcher(&mockEmbedder{}, index)

	results, method, err := s.SearchWithContext(context.Background(), "biz-1", []ContextTurn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "do you do haircuts"},
	}, true, 3)
	if err != nil {
		t.Fatalf("contextual search failed: %v", err)
	}
	if method != "vector" {
		t.Errorf("expected vector method, got %s", method)
	}
	if len(results) != 1 {
		t.Errorf("expected one result, got %d", len(results))
	}
}

func TestFormatSnippets(t *testing.T) {
	got := FormatSnippets([]Snippet{
		{Content: "Open 9-5 weekdays.", Similarity: 0.82, Source: "hours.md"},
		{Content: "Haircuts from $30.", Similarity: 0.5},
	})

	for _, want := range []string{
		"[1, Confidence: 82%] Open 9-5 weekdays. (Source: hours.md)",
		"[2, Confidence: 50%] Haircuts from $30.",
		"BUSINESS KNOWLEDGE BASE",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted context missing %q:\n%s", want, got)
		}
	}
}

func TestFormatSnippets_Empty(t *testing.T) {
	if got := FormatSnippets(nil); got != "No relevant business information found." {
		t.Errorf("unexpected empty formatting: %q", got)
	}
}
