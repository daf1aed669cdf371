package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/generation"
)

// LLMReranker scores the top M fused documents via the generation
// interface under relevance, informativeness, or a weighted combination of
// both (Open Question #2, resolved in RerankConfig). Any LLM failure
// degrades gracefully: Retriever.Retrieve falls back to the fused order
// when Rerank returns an error.
type LLMReranker struct {
	gen    generation.Interface
	cfg    RerankConfig
	topM   int
}

func NewLLMReranker(gen generation.Interface, cfg RerankConfig, topM int) *LLMReranker {
	return &LLMReranker{gen: gen, cfg: cfg, topM: topM}
}

func (rr *LLMReranker) Rerank(ctx context.Context, query string, docs []domain.RetrievalResult, mode core.RerankMode) ([]domain.RetrievalResult, error) {
	limit := rr.topM
	if limit <= 0 || limit > len(docs) {
		limit = len(docs)
	}
	head := docs[:limit]
	tail := docs[limit:]

	scored := make([]domain.RetrievalResult, len(head))
	copy(scored, head)

	for i := range scored {
		score, err := rr.score(ctx, query, scored[i].Content, mode)
		if err != nil {
			return nil, core.NewCoreError("retrieval.Rerank", core.KindTransient, err)
		}
		scored[i].RelevanceScore = score
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RelevanceScore > scored[j].RelevanceScore
	})

	return append(scored, tail...), nil
}

func (rr *LLMReranker) score(ctx context.Context, query, content string, mode core.RerankMode) (float64, error) {
	switch mode {
	case core.RerankRelevance:
		return rr.llmScore(ctx, query, content, "relevance")
	case core.RerankInformativeness:
		return rr.llmScore(ctx, query, content, "informativeness")
	case core.RerankCombined:
		relevance, err := rr.llmScore(ctx, query, content, "relevance")
		if err != nil {
			return 0, err
		}
		informativeness, err := rr.llmScore(ctx, query, content, "informativeness")
		if err != nil {
			return 0, err
		}
		return rr.cfg.RelevanceWeight*relevance + rr.cfg.InformativenessWeight*informativeness, nil
	default:
		return 0, core.NewCoreError("retrieval.score", core.KindPermanent, core.ErrUnsupportedOperation)
	}
}

func (rr *LLMReranker) llmScore(ctx context.Context, query, content, dimension string) (float64, error) {
	system := fmt.Sprintf("Rate the %s of the document to the query on a scale from 0 to 1. Respond with only the number.", dimension)
	user := fmt.Sprintf("Query: %s\n\nDocument: %s", query, content)
	text, err := rr.gen.Generate(ctx, system, user, generation.Options{MaxTokens: 8, Temperature: 0})
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, core.NewCoreError("retrieval.llmScore", core.KindPermanent, fmt.Errorf("%w: unparseable score %q", core.ErrSchemaViolation, text))
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return value, nil
}
