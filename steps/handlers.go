package steps

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/generation"
)

func paramString(step *domain.ProcessStep, key string) string {
	v, ok := step.Parameters[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func paramInt(step *domain.ProcessStep, key string, fallback int) int {
	v, ok := step.Parameters[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return fallback
}

// runSearch invokes the Retriever with the step's query-plan and top_k,
// returning an ordered list of RetrievalResult. A hybrid retrieval failure
// where every sub-source is unavailable surfaces as TransientError.
func runSearch(ctx *Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	if ctx.Retriever == nil {
		return nil, nil, core.NewCoreErrorWithID("steps.runSearch", core.KindPermanent, step.StepID, core.ErrUnsupportedOperation)
	}
	query := paramString(step, "query")
	if query == "" {
		query = paramString(step, "entity")
	}
	topK := paramInt(step, "top_k", 10)

	results, err := ctx.Retriever.Retrieve(ctx.Ctx(), query, domain.MethodHybrid, topK, nil, false, core.RerankOff)
	if err != nil {
		return nil, nil, Classify(err)
	}

	dims := map[string]float64{
		"coverage":  coverageScore(results, topK),
		"relevance": meanRelevance(results),
	}
	return results, dims, nil
}

func coverageScore(results []domain.RetrievalResult, topK int) float64 {
	if topK == 0 {
		return 0
	}
	ratio := float64(len(results)) / float64(topK)
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

func meanRelevance(results []domain.RetrievalResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.RelevanceScore
	}
	avg := sum / float64(len(results))
	if avg > 1 {
		avg = 1
	}
	return avg
}

// runAnalysis summarizes/feature-extracts over dependency inputs via the
// generation interface.
func runAnalysis(ctx *Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	if ctx.Generation == nil {
		return nil, nil, core.NewCoreErrorWithID("steps.runAnalysis", core.KindPermanent, step.StepID, core.ErrUnsupportedOperation)
	}
	evidence := collectEvidence(ctx)
	system := "Extract the key facts relevant to the question from the evidence below. Be concise."
	text, err := ctx.Generation.Generate(ctx.Ctx(), system, evidence, generation.Options{MaxTokens: 500, Temperature: 0.1})
	if err != nil {
		return nil, nil, Classify(err)
	}
	return text, map[string]float64{"relevance": 0.8, "completeness": completenessFromLength(text)}, nil
}

// runSynthesis composes a coherent answer fragment from inputs, preserving
// citations by appending them after generation rather than asking the model
// to reproduce them verbatim.
func runSynthesis(ctx *Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	if ctx.Generation == nil {
		return nil, nil, core.NewCoreErrorWithID("steps.runSynthesis", core.KindPermanent, step.StepID, core.ErrUnsupportedOperation)
	}
	evidence := collectEvidence(ctx)
	citations := collectCitations(ctx)

	system := "Compose a clear, accurate answer fragment from the evidence. Do not invent facts not present in the evidence."
	text, err := ctx.Generation.Generate(ctx.Ctx(), system, evidence, generation.Options{MaxTokens: 800, Temperature: 0.2})
	if err != nil {
		return nil, nil, Classify(err)
	}

	result := SynthesisResult{Text: text, Citations: citations}
	return result, map[string]float64{
		"relevance":    0.8,
		"completeness": completenessFromLength(text),
		"coherence":    0.8,
	}, nil
}

// SynthesisResult pairs generated text with the citations it drew on, so
// the Aggregator can attribute every sentence.
type SynthesisResult struct {
	Text      string
	Citations []domain.Citation
}

// runComparison produces a structured diff over >= 2 analyses. Fewer than
// two usable inputs is a PermanentError: there's nothing to compare.
func runComparison(ctx *Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	var inputs []string
	var missing []domain.MissingUpstream
	for _, dep := range step.DependsOn {
		v, ok := ctx.Outputs[dep]
		if !ok {
			continue
		}
		if m, isMissing := v.(domain.MissingUpstream); isMissing {
			missing = append(missing, m)
			continue
		}
		inputs = append(inputs, fmt.Sprintf("%v", v))
	}
	if len(inputs) < 2 {
		return nil, nil, core.NewCoreErrorWithID("steps.runComparison", core.KindPermanent, step.StepID, fmt.Errorf("%w: need >=2 inputs, have %d (missing %d)", core.ErrInvalidState, len(inputs), len(missing)))
	}
	if ctx.Generation == nil {
		return nil, nil, core.NewCoreErrorWithID("steps.runComparison", core.KindPermanent, step.StepID, core.ErrUnsupportedOperation)
	}

	system := "Produce a structured comparison across the following items. Highlight differences and similarities."
	text, err := ctx.Generation.Generate(ctx.Ctx(), system, strings.Join(inputs, "\n---\n"), generation.Options{MaxTokens: 800, Temperature: 0.1})
	if err != nil {
		return nil, nil, Classify(err)
	}
	completeness := 1.0
	if len(missing) > 0 {
		completeness = float64(len(inputs)) / float64(len(inputs)+len(missing))
	}
	return text, map[string]float64{"completeness": completeness, "accuracy": 0.8}, nil
}

// runValidation asserts factual consistency of inputs against retrieved
// evidence.
func runValidation(ctx *Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	if ctx.Generation == nil {
		return nil, nil, core.NewCoreErrorWithID("steps.runValidation", core.KindPermanent, step.StepID, core.ErrUnsupportedOperation)
	}
	evidence := collectEvidence(ctx)
	system := "Assess whether the claim is consistent with the evidence. Respond with a single word: consistent, inconsistent, or unverifiable."
	text, err := ctx.Generation.Generate(ctx.Ctx(), system, evidence, generation.Options{MaxTokens: 10, Temperature: 0})
	if err != nil {
		return nil, nil, Classify(err)
	}
	verdict := strings.ToLower(strings.TrimSpace(text))
	accuracy := 0.5
	switch verdict {
	case "consistent":
		accuracy = 1.0
	case "inconsistent":
		accuracy = 0.0
	}
	return verdict, map[string]float64{"accuracy": accuracy}, nil
}

// runCalculation performs deterministic numeric computation over extracted
// parameters — no generation call, no suspension point beyond cancellation.
func runCalculation(ctx *Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	amountSpec := paramString(step, "amount_spec")
	if amountSpec == "" {
		return nil, nil, core.NewCoreErrorWithID("steps.runCalculation", core.KindPermanent, step.StepID, fmt.Errorf("%w: missing amount_spec parameter", core.ErrMissingParameter))
	}
	amount, err := parseAmount(amountSpec)
	if err != nil {
		return nil, nil, core.NewCoreErrorWithID("steps.runCalculation", core.KindPermanent, step.StepID, fmt.Errorf("%w: %v", core.ErrSchemaViolation, err))
	}
	return amount, map[string]float64{"accuracy": 1.0}, nil
}

func parseAmount(spec string) (float64, error) {
	cleaned := strings.NewReplacer("€", "", ".", "", ",", ".", " ", "").Replace(spec)
	return strconv.ParseFloat(cleaned, 64)
}

// runPresentation renders a structured artifact from upstream outputs.
func runPresentation(ctx *Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	var rows []string
	for _, dep := range step.DependsOn {
		v, ok := ctx.Outputs[dep]
		if !ok {
			continue
		}
		rows = append(rows, fmt.Sprintf("%v", v))
	}
	sort.Strings(rows)
	artifact := PresentationArtifact{Kind: paramString(step, "presentation_kind"), Rows: rows}
	return artifact, map[string]float64{"completeness": completenessFromLength(strings.Join(rows, "")), "coherence": 0.8}, nil
}

// PresentationArtifact is the rendered structured output of a presentation
// step (table/checklist/timeline).
type PresentationArtifact struct {
	Kind string
	Rows []string
}

// runQualityCheck is reserved for explicit QualityGate invocation outside
// the normal per-step gate pass (e.g. a mid-plan checkpoint gate); the
// orchestrator applies QualityGate to every step's result regardless, so
// this handler is a no-op: it returns a nil result and no dimensions.
func runQualityCheck(ctx *Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	return nil, nil, nil
}

// runFinalAnswer is reserved for the Aggregator and should never be
// dispatched directly by the StepRunner.
func runFinalAnswer(ctx *Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	return nil, nil, core.NewCoreErrorWithID("steps.runFinalAnswer", core.KindPermanent, step.StepID, core.ErrUnsupportedOperation)
}

// runClarificationRequest returns the step's missing-information list as
// its result; the clarification plan has no other step, and the Aggregator
// turns that list into the answer's clarification fields.
func runClarificationRequest(ctx *Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	return step.Parameters["missing"], nil, nil
}

func collectEvidence(ctx *Context) string {
	var parts []string
	for k, v := range ctx.Outputs {
		if _, missing := v.(domain.MissingUpstream); missing {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s] %v", k, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, "\n")
}

func collectCitations(ctx *Context) []domain.Citation {
	var citations []domain.Citation
	for _, v := range ctx.Outputs {
		results, ok := v.([]domain.RetrievalResult)
		if !ok {
			continue
		}
		for _, r := range results {
			citations = append(citations, r.Citations...)
		}
	}
	return citations
}

func completenessFromLength(text string) float64 {
	words := len(strings.Fields(text))
	switch {
	case words == 0:
		return 0
	case words < 20:
		return 0.5
	case words < 100:
		return 0.8
	default:
		return 1.0
	}
}
