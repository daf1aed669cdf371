// Package hypothesis implements the HypothesisService (C11): a
// pre-execution estimate of completeness, missing information, and token
// budget, run before or alongside process building. It prefers an
// LLM-backed assessment and falls back to a rule-based one, grounded on
// resilience/retry.go's "classify, then degrade" shape: a hard dependency
// failure never blocks the rest of the pipeline, it just lowers quality.
package hypothesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/generation"
	"github.com/veritas-eu/orchestrator-core/retrieval"
)

// requiredParameters enumerates, per intent, the analysis parameters a
// complete answer needs — the basis of the rule-based fallback's
// completeness estimate.
var requiredParameters = map[domain.Intent][]string{
	domain.IntentProcedureQuery: {"location", "document_type"},
	domain.IntentComparison:     {"compared_entities"},
	domain.IntentCalculation:    {"amount_spec"},
	domain.IntentFactRetrieval:  {"location"},
	domain.IntentDefinition:     {},
	domain.IntentStatusCheck:    {"location"},
	domain.IntentExplanation:    {},
	domain.IntentRecommendation: {},
	domain.IntentTimeline:       {"period"},
	domain.IntentOther:          {},
}

// Service produces a Hypothesis from an Analysis, preferring a
// generation-backed assessment informed by a cheap preliminary retrieval.
type Service struct {
	gen       generation.Interface
	retriever *retrieval.Retriever
	logger    core.Logger
}

func New(gen generation.Interface, retriever *retrieval.Retriever, logger core.Logger) *Service {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Service{gen: gen, retriever: retriever, logger: logger}
}

// Assess runs the preliminary retrieval (best-effort: a failure here is
// absorbed, not propagated — the fallback path works without it) then
// attempts the LLM-backed hypothesis, falling back to the rule-based one on
// any generation failure.
func (s *Service) Assess(ctx context.Context, query domain.Query, analysis *domain.Analysis) (*domain.Hypothesis, error) {
	var preliminary []domain.RetrievalResult
	if s.retriever != nil {
		results, err := s.retriever.Retrieve(ctx, query.Text, domain.MethodHybrid, 5, nil, false, core.RerankOff)
		if err != nil {
			s.logger.Warn("preliminary retrieval for hypothesis failed, continuing without it", map[string]interface{}{"error": err.Error()})
		} else {
			preliminary = results
		}
	}

	if s.gen != nil {
		h, err := s.llmHypothesis(ctx, query, analysis, preliminary)
		if err == nil {
			return h, nil
		}
		s.logger.Warn("LLM hypothesis failed, falling back to rule-based", map[string]interface{}{"error": err.Error()})
	}

	return s.ruleBasedHypothesis(analysis, preliminary), nil
}

type llmHypothesisPayload struct {
	ConfidenceLevel      string   `json:"confidence_level"`
	EstimatedComplexity  string   `json:"estimated_complexity"`
	RequiredCriteria     []string `json:"required_criteria"`
	MissingInformation   []struct {
		Item     string `json:"item"`
		Severity string `json:"severity"`
	} `json:"missing_information"`
	AvailableInformation []string `json:"available_information"`
}

func (s *Service) llmHypothesis(ctx context.Context, query domain.Query, analysis *domain.Analysis, preliminary []domain.RetrievalResult) (*domain.Hypothesis, error) {
	system := "You assess whether enough information is available to answer a German administrative-law question. " +
		"Respond with JSON only: {\"confidence_level\":\"high|medium|low\",\"estimated_complexity\":\"simple|standard|complex\"," +
		"\"required_criteria\":[...],\"missing_information\":[{\"item\":\"...\",\"severity\":\"critical|important|optional\"}]," +
		"\"available_information\":[...]}"
	user := fmt.Sprintf("Question: %s\nIntent: %s\nParameters: %v\nPreliminary evidence found: %d documents",
		query.Text, analysis.Intent, analysis.Parameters, len(preliminary))

	text, err := s.gen.Generate(ctx, system, user, generation.Options{MaxTokens: 400, Temperature: 0})
	if err != nil {
		return nil, err
	}

	var payload llmHypothesisPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &payload); err != nil {
		return nil, core.NewCoreError("hypothesis.llmHypothesis", core.KindPermanent, fmt.Errorf("%w: %v", core.ErrSchemaViolation, err))
	}

	missing := make([]domain.MissingInformation, 0, len(payload.MissingInformation))
	for _, m := range payload.MissingInformation {
		missing = append(missing, domain.MissingInformation{Item: m.Item, Severity: domain.Severity(m.Severity)})
	}

	complexity := domain.Complexity(payload.EstimatedComplexity)
	if _, ok := domain.TokenBudgetByComplexity[complexity]; !ok {
		complexity = domain.ComplexityStandard
	}

	return &domain.Hypothesis{
		QuestionType:           analysis.QuestionType,
		ConfidenceLevel:        domain.ConfidenceLevel(payload.ConfidenceLevel),
		EstimatedComplexity:    complexity,
		RequiredCriteria:       payload.RequiredCriteria,
		MissingInformation:     missing,
		AvailableInformation:   payload.AvailableInformation,
		RecommendedTokenBudget: domain.TokenBudgetByComplexity[complexity],
	}, nil
}

// ruleBasedHypothesis derives completeness from the presence of the
// intent's required parameters and looks up the token budget from the
// fixed complexity table, per spec.md §4.11's degraded-mode contract.
func (s *Service) ruleBasedHypothesis(analysis *domain.Analysis, preliminary []domain.RetrievalResult) *domain.Hypothesis {
	required := requiredParameters[analysis.Intent]

	var missing []domain.MissingInformation
	var available []string
	for _, param := range required {
		if v, ok := analysis.Parameters[param]; ok && v != "" {
			available = append(available, param)
		} else {
			missing = append(missing, domain.MissingInformation{Item: param, Severity: domain.SeverityCritical})
		}
	}

	complexity := complexityFor(analysis, len(preliminary))
	confidence := domain.ConfidenceHigh
	switch {
	case len(missing) > 0:
		confidence = domain.ConfidenceLow
	case len(preliminary) == 0:
		confidence = domain.ConfidenceMedium
	}

	return &domain.Hypothesis{
		QuestionType:           analysis.QuestionType,
		ConfidenceLevel:        confidence,
		EstimatedComplexity:    complexity,
		RequiredCriteria:       required,
		MissingInformation:     missing,
		AvailableInformation:   available,
		RecommendedTokenBudget: domain.TokenBudgetByComplexity[complexity],
	}
}

func complexityFor(analysis *domain.Analysis, evidenceCount int) domain.Complexity {
	switch analysis.Intent {
	case domain.IntentDefinition, domain.IntentFactRetrieval:
		return domain.ComplexitySimple
	case domain.IntentComparison, domain.IntentRecommendation:
		return domain.ComplexityComplex
	}
	if evidenceCount == 0 {
		return domain.ComplexityComplex
	}
	return domain.ComplexityStandard
}
