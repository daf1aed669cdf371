// Package retrieval implements the Retriever (C4): hybrid fusion across
// vector/graph/keyword sub-sources, optional query expansion, and optional
// LLM re-ranking. Sub-sources are swappable SubSource implementations; the
// package ships adapters for qdrant (vector), sqlx/pgx (relational
// metadata, used as an additional keyword-ish source), and an in-memory
// keyword source for tests.
package retrieval

import (
	"context"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
)

// Filters narrows a retrieval call (e.g. document type, jurisdiction).
type Filters map[string]interface{}

// SubSource is one backing store the Retriever fuses across. Implementations
// live outside the core (spec §6: "the backing datastores ... treated as
// interfaces only"); this is the per-source seam the pack's SDKs plug into.
type SubSource interface {
	Kind() domain.SourceKind
	Search(ctx context.Context, queryText string, topK int, filters Filters) ([]domain.RetrievalResult, error)
}

// Expander produces query variants for short/vague queries (spec §4.4).
type Expander interface {
	Expand(ctx context.Context, query string) ([]string, error)
}

// Reranker scores fused documents under one of the contract's three modes.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []domain.RetrievalResult, mode core.RerankMode) ([]domain.RetrievalResult, error)
}
