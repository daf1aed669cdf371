package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/generation"
)

// KeywordSource is a simple in-memory BM25-free keyword source: term
// overlap scoring over a fixed corpus. Used by tests; bootstrap does not
// wire it in as a default source.
type KeywordSource struct {
	documents []domain.RetrievalResult
}

func NewKeywordSource(documents []domain.RetrievalResult) *KeywordSource {
	return &KeywordSource{documents: documents}
}

func (s *KeywordSource) Kind() domain.SourceKind { return domain.SourceKeyword }

func (s *KeywordSource) Search(ctx context.Context, queryText string, topK int, filters Filters) ([]domain.RetrievalResult, error) {
	terms := strings.Fields(strings.ToLower(queryText))
	type scored struct {
		doc   domain.RetrievalResult
		score float64
	}
	var results []scored
	for _, doc := range s.documents {
		lower := strings.ToLower(doc.Content)
		var hits int
		for _, t := range terms {
			if strings.Contains(lower, t) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		results = append(results, scored{doc: doc, score: float64(hits) / float64(len(terms))})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > topK {
		results = results[:topK]
	}
	out := make([]domain.RetrievalResult, len(results))
	for i, r := range results {
		r.doc.RelevanceScore = r.score
		r.doc.SourceKind = domain.SourceKeyword
		out[i] = r.doc
	}
	return out, nil
}

// LexiconExpander produces query variants by synonym substitution over a
// fixed German administrative-law lexicon (spec §4.4: up to N variants,
// default 3, original always participates — the caller, Retriever.Retrieve,
// is responsible for keeping the original).
type LexiconExpander struct {
	synonyms map[string][]string
	maxVariants int
}

func NewLexiconExpander(synonyms map[string][]string, maxVariants int) *LexiconExpander {
	if maxVariants <= 0 {
		maxVariants = 3
	}
	return &LexiconExpander{synonyms: synonyms, maxVariants: maxVariants}
}

func (e *LexiconExpander) Expand(ctx context.Context, query string) ([]string, error) {
	words := strings.Fields(query)
	var variants []string
	for i, w := range words {
		lower := strings.ToLower(strings.Trim(w, ".,!?"))
		syns, ok := e.synonyms[lower]
		if !ok {
			continue
		}
		for _, syn := range syns {
			replaced := make([]string, len(words))
			copy(replaced, words)
			replaced[i] = syn
			variants = append(variants, strings.Join(replaced, " "))
			if len(variants) >= e.maxVariants {
				return variants, nil
			}
		}
	}
	return variants, nil
}

// DefaultGermanAdminLexicon is a small seed lexicon; production deployments
// are expected to supply a richer one via NewLexiconExpander.
var DefaultGermanAdminLexicon = map[string][]string{
	"bauantrag":      {"baugenehmigung", "bauerlaubnis"},
	"gebühr":         {"kosten", "abgabe"},
	"frist":          {"zeitraum", "termin"},
	"genehmigung":    {"erlaubnis", "zulassung"},
}

// GenerationQueryExpander delegates expansion to the generation interface
// for lexicon entries that don't cover a term — kept separate from
// LexiconExpander so callers can choose the cheap deterministic path or
// the LLM-backed one per deployment.
type GenerationQueryExpander struct {
	gen         generation.Interface
	maxVariants int
}

func NewGenerationQueryExpander(gen generation.Interface, maxVariants int) *GenerationQueryExpander {
	if maxVariants <= 0 {
		maxVariants = 3
	}
	return &GenerationQueryExpander{gen: gen, maxVariants: maxVariants}
}

func (e *GenerationQueryExpander) Expand(ctx context.Context, query string) ([]string, error) {
	system := fmt.Sprintf("Produce up to %d alternative phrasings of the user's German administrative-law question, one per line, no numbering.", e.maxVariants)
	text, err := e.gen.Generate(ctx, system, query, generation.Options{MaxTokens: 200, Temperature: 0.3})
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var variants []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		variants = append(variants, l)
		if len(variants) >= e.maxVariants {
			break
		}
	}
	return variants, nil
}
