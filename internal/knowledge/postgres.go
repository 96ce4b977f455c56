package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresIndex answers knowledge queries from a pgvector-backed chunks
// table. Chunks are written by the external ingestion pipeline; this
// index only reads.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresIndex creates an index over the given connection pool.
func NewPostgresIndex(pool *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool}
}

// VectorSearch returns chunks ranked by cosine similarity to embedding.
func (x *PostgresIndex) VectorSearch(ctx context.Context, businessID string, embedding []float32, topK int, minSimilarity float64) ([]Snippet, error) {
	rows, err := x.pool.Query(ctx, `
		SELECT content,
		       1 - (embedding <=> $2::vector) AS similarity,
		       COALESCE(metadata->>'source', metadata->>'file_name', 'Unknown') AS source
		FROM knowledge_base_chunks
		WHERE business_id = $1
		  AND 1 - (embedding <=> $2::vector) >= $3
		ORDER BY embedding <=> $2::vector
		LIMIT $4`,
		businessID, vectorLiteral(embedding), minSimilarity, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search query: %w", err)
	}
	defer rows.Close()

	var results []Snippet
	for rows.Next() {
		var sn Snippet
		if err := rows.Scan(&sn.Content, &sn.Similarity, &sn.Source); err != nil {
			return nil, fmt.Errorf("scan vector result: %w", err)
		}
		results = append(results, sn)
	}
	return results, rows.Err()
}

// TextSearch returns chunks matching the query via full-text search.
func (x *PostgresIndex) TextSearch(ctx context.Context, businessID, query string, topK int) ([]Snippet, error) {
	rows, err := x.pool.Query(ctx, `
		SELECT content,
		       COALESCE(metadata->>'file_name', metadata->>'source', 'Unknown') AS source
		FROM knowledge_base_chunks
		WHERE business_id = $1
		  AND to_tsvector('english', content) @@ plainto_tsquery('english', $2)
		LIMIT $3`,
		businessID, query, topK)
	if err != nil {
		return nil, fmt.Errorf("text search query: %w", err)
	}
	defer rows.Close()

	var results []Snippet
	for rows.Next() {
		var sn Snippet
		if err := rows.Scan(&sn.Content, &sn.Source); err != nil {
			return nil, fmt.Errorf("scan text result: %w", err)
		}
		results = append(results, sn)
	}
	return results, rows.Err()
}

// vectorLiteral renders an embedding in pgvector input syntax.
func vectorLiteral(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
