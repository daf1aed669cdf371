package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
)

// RerankConfig resolves Open Question #2 (re-rank combination formula):
// combined = RelevanceWeight*relevance + InformativenessWeight*
// informativeness, both configurable, defaulting to 0.5/0.5.
type RerankConfig struct {
	RelevanceWeight       float64
	InformativenessWeight float64
}

func DefaultRerankConfig() RerankConfig {
	return RerankConfig{RelevanceWeight: 0.5, InformativenessWeight: 0.5}
}

// Retriever fuses results across registered SubSources, each behind its
// own circuit breaker so one misbehaving backend degrades gracefully
// instead of slowing down every query.
type Retriever struct {
	sources  map[domain.SourceKind]SubSource
	weights  map[domain.SourceKind]float64
	breakers map[domain.SourceKind]*gobreaker.CircuitBreaker

	expander Expander
	reranker Reranker

	rrfK   int
	logger core.Logger
}

type Option func(*Retriever)

func WithSource(source SubSource, weight float64) Option {
	return func(r *Retriever) {
		r.sources[source.Kind()] = source
		r.weights[source.Kind()] = weight
		r.breakers[source.Kind()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: fmt.Sprintf("retrieval.%s", source.Kind()),
		})
	}
}

func WithExpander(e Expander) Option { return func(r *Retriever) { r.expander = e } }
func WithReranker(rr Reranker) Option { return func(r *Retriever) { r.reranker = rr } }

func New(rrfK int, logger core.Logger, opts ...Option) *Retriever {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	r := &Retriever{
		sources:  make(map[domain.SourceKind]SubSource),
		weights:  make(map[domain.SourceKind]float64),
		breakers: make(map[domain.SourceKind]*gobreaker.CircuitBreaker),
		rrfK:     rrfK,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve runs the full pipeline: optional expansion, parallel sub-source
// search per variant, fusion, optional re-rank. method narrows which
// sub-sources participate (vector/graph/keyword) or selects all of them
// (hybrid).
func (r *Retriever) Retrieve(ctx context.Context, queryText string, method domain.RetrievalMethod, topK int, filters Filters, expand bool, rerankMode core.RerankMode) ([]domain.RetrievalResult, error) {
	variants := []string{queryText}
	if expand && r.expander != nil {
		if extra, err := r.expander.Expand(ctx, queryText); err == nil {
			variants = append(variants, extra...)
		} else {
			r.logger.Warn("query expansion failed, continuing with original query", map[string]interface{}{"error": err.Error()})
		}
	}

	active := r.sourcesFor(method)
	if len(active) == 0 {
		return nil, core.NewCoreError("retrieval.Retrieve", core.KindPermanent, core.ErrUnsupportedOperation)
	}

	var (
		mu        sync.Mutex
		rankings  []sourceRanking
		succeeded int
		failed    int
		wg        sync.WaitGroup
	)

	for _, variant := range variants {
		for kind, source := range active {
			wg.Add(1)
			go func(kind domain.SourceKind, source SubSource, variant string) {
				defer wg.Done()
				results, err := r.searchWithBreaker(ctx, kind, source, variant, topK, filters)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					r.logger.Warn("sub-source search failed, excluding from fusion", map[string]interface{}{
						"source": string(kind), "error": err.Error(),
					})
					return
				}
				succeeded++
				rankings = append(rankings, sourceRanking{kind: kind, weight: r.weights[kind], results: results})
			}(kind, source, variant)
		}
	}
	wg.Wait()

	if succeeded == 0 {
		return nil, core.NewCoreError("retrieval.Retrieve", core.KindTransient, core.ErrUnavailable)
	}

	fused := fuse(rankings, r.rrfK)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	if rerankMode != core.RerankOff && r.reranker != nil {
		reranked, err := r.reranker.Rerank(ctx, queryText, fused, rerankMode)
		if err != nil {
			r.logger.Warn("re-rank failed, preserving fused order", map[string]interface{}{"error": err.Error()})
			return fused, nil
		}
		return reranked, nil
	}
	return fused, nil
}

func (r *Retriever) sourcesFor(method domain.RetrievalMethod) map[domain.SourceKind]SubSource {
	if method == domain.MethodHybrid {
		return r.sources
	}
	kind := domain.SourceKind(method)
	if s, ok := r.sources[kind]; ok {
		return map[domain.SourceKind]SubSource{kind: s}
	}
	return nil
}

func (r *Retriever) searchWithBreaker(ctx context.Context, kind domain.SourceKind, source SubSource, queryText string, topK int, filters Filters) ([]domain.RetrievalResult, error) {
	breaker := r.breakers[kind]
	out, err := breaker.Execute(func() (interface{}, error) {
		return source.Search(ctx, queryText, topK, filters)
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.RetrievalResult), nil
}
