// Package knowledge provides hybrid retrieval over a per-business
// knowledge base: embedding similarity search with a lexical fallback.
package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"ai-call-bridge-service/internal/observability/logging"
	"ai-call-bridge-service/internal/observability/metrics"
)

// Snippet is one retrieval result.
type Snippet struct {
	Content    string
	Similarity float64
	Source     string
	SearchType string // "vector" or "text"
}

// ContextTurn is one conversation turn used for contextual search.
type ContextTurn struct {
	Role    string
	Content string
}

// Embedder produces an embedding vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index answers similarity and lexical queries scoped to a business.
type Index interface {
	VectorSearch(ctx context.Context, businessID string, embedding []float32, topK int, minSimilarity float64) ([]Snippet, error)
	TextSearch(ctx context.Context, businessID, query string, topK int) ([]Snippet, error)
}

// Config holds retrieval tunables.
type Config struct {
	TopK                 int
	MinSimilarity        float64
	ContextMinSimilarity float64
	HighConfidence       float64
	TextSimilarity       float64
	EmbedCacheTTL        time.Duration
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return Config{
		TopK:                 3,
		MinSimilarity:        0.5,
		ContextMinSimilarity: 0.6,
		HighConfidence:       0.7,
		TextSimilarity:       0.5,
		EmbedCacheTTL:        5 * time.Minute,
	}
}

type cachedEmbedding struct {
	vector   []float32
	cachedAt time.Time
}

// Searcher performs hybrid knowledge retrieval with an embedding cache.
type Searcher struct {
	embedder Embedder
	index    Index
	cfg      Config
	metrics  *metrics.Metrics
	now      func() time.Time

	// cache is guarded by cacheMu; identical-key races are
	// last-writer-wins since embeddings are deterministic per input.
	cacheMu sync.Mutex
	cache   map[string]cachedEmbedding
}

// NewSearcher creates a Searcher. Either dependency may be nil; searches
// then degrade to empty results instead of failing the call.
func NewSearcher(embedder Embedder, index Index, cfg Config) *Searcher {
	return &Searcher{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		metrics:  metrics.DefaultMetrics,
		now:      time.Now,
		cache:    make(map[string]cachedEmbedding),
	}
}

// Config returns the searcher's retrieval tunables.
func (s *Searcher) Config() Config {
	return s.cfg
}

// Embed returns the embedding for text, serving from the TTL cache when
// possible. The cache key is the normalized lowercase text.
func (s *Searcher) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}

	key := strings.ToLower(strings.TrimSpace(text))

	s.cacheMu.Lock()
	if entry, ok := s.cache[key]; ok && s.now().Sub(entry.cachedAt) < s.cfg.EmbedCacheTTL {
		s.cacheMu.Unlock()
		s.metrics.RecordEmbedCache(true)
		return entry.vector, nil
	}
	s.cacheMu.Unlock()
	s.metrics.RecordEmbedCache(false)

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	s.cache[key] = cachedEmbedding{vector: vector, cachedAt: s.now()}
	s.evictExpiredLocked()
	s.cacheMu.Unlock()

	return vector, nil
}

// VectorSearch embeds the query and runs a similarity search. On any
// backend failure it falls back to TextSearch.
func (s *Searcher) VectorSearch(ctx context.Context, businessID, query string, topK int, minSimilarity float64) ([]Snippet, error) {
	logger := logging.WithComponent("knowledge")

	if s.index == nil {
		return nil, nil
	}

	embedding, err := s.Embed(ctx, query)
	if err != nil {
		logger.Warn().Err(err).Str("businessId", businessID).Msg("Embedding failed, falling back to text search")
		return s.TextSearch(ctx, businessID, query, topK)
	}

	results, err := s.index.VectorSearch(ctx, businessID, normalize(embedding), topK, minSimilarity)
	if err != nil {
		logger.Warn().Err(err).Str("businessId", businessID).Msg("Vector search failed, falling back to text search")
		return s.TextSearch(ctx, businessID, query, topK)
	}

	for i := range results {
		results[i].SearchType = "vector"
	}
	return results, nil
}

// TextSearch runs a lexical search. Lexical matches carry no native
// similarity score, so results are assigned the configured default.
// Failures degrade to an empty result set.
func (s *Searcher) TextSearch(ctx context.Context, businessID, query string, topK int) ([]Snippet, error) {
	if s.index == nil {
		return nil, nil
	}

	results, err := s.index.TextSearch(ctx, businessID, query, topK)
	if err != nil {
		logging.WithComponent("knowledge").Warn().
			Err(err).
			Str("businessId", businessID).
			Msg("Text search failed")
		s.metrics.RecordKnowledgeSearchError()
		return nil, nil
	}

	for i := range results {
		results[i].Similarity = s.cfg.TextSimilarity
		results[i].SearchType = "text"
	}
	return results, nil
}

// HybridSearch tries vector search first. When the top vector result is
// already high-confidence the second query is skipped entirely;
// otherwise vector and text results are merged, sorted by similarity,
// and truncated to topK.
func (s *Searcher) HybridSearch(ctx context.Context, businessID, query string, topK int, minSimilarity float64) ([]Snippet, string, error) {
	start := s.now()
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	vectorResults, err := s.VectorSearch(ctx, businessID, query, topK, minSimilarity)
	if err != nil {
		return nil, "none", err
	}

	if len(vectorResults) > 0 && vectorResults[0].Similarity >= s.cfg.HighConfidence {
		s.metrics.RecordKnowledgeSearch("vector", s.now().Sub(start).Seconds())
		return vectorResults, "vector", nil
	}

	textResults, _ := s.TextSearch(ctx, businessID, query, topK)

	merged := append(append([]Snippet{}, vectorResults...), textResults...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}

	s.metrics.RecordKnowledgeSearch("hybrid", s.now().Sub(start).Seconds())
	return merged, "hybrid", nil
}

// SearchWithContext builds the query from the most recent user turns.
// When includeHistory is set, the last three user turns are prepended to
// the current one. An empty resulting query skips the search entirely.
func (s *Searcher) SearchWithContext(ctx context.Context, businessID string, turns []ContextTurn, includeHistory bool, topK int) ([]Snippet, string, error) {
	var userTexts []string
	for _, t := range turns {
		if t.Role == "user" {
			userTexts = append(userTexts, t.Content)
		}
	}
	if len(userTexts) == 0 {
		return nil, "none", nil
	}

	current := userTexts[len(userTexts)-1]
	query := current
	if includeHistory {
		recent := userTexts
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		query = strings.Join(recent, " ") + " " + current
	}

	if strings.TrimSpace(query) == "" {
		return nil, "none", nil
	}

	return s.HybridSearch(ctx, businessID, query, topK, 0)
}

// FormatSnippets renders snippets as a numbered context block for the
// engine, with confidence percentages and source attribution.
func FormatSnippets(snippets []Snippet) string {
	if len(snippets) == 0 {
		return "No relevant business information found."
	}

	var lines []string
	for i, sn := range snippets {
		confidence := int(math.Round(sn.Similarity * 100))
		source := ""
		if sn.Source != "" {
			source = fmt.Sprintf(" (Source: %s)", sn.Source)
		}
		lines = append(lines, fmt.Sprintf("[%d, Confidence: %d%%] %s%s", i+1, confidence, sn.Content, source))
	}

	return fmt.Sprintf(`BUSINESS KNOWLEDGE BASE (Relevant Information):
%s

IMPORTANT: Use this information to answer accurately. If the information above doesn't fully answer the question, say what you know from above and ask for clarification if needed.`,
		strings.Join(lines, "\n\n"))
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// evictExpiredLocked drops stale cache entries. Caller holds cacheMu.
func (s *Searcher) evictExpiredLocked() {
	now := s.now()
	for key, entry := range s.cache {
		if now.Sub(entry.cachedAt) > s.cfg.EmbedCacheTTL {
			delete(s.cache, key)
		}
	}
}
