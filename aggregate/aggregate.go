// Package aggregate implements the Aggregator (C10): composing a session's
// completed step outputs, retrieval evidence, and hypothesis into a single
// StructuredAnswer, with unsupported-sentence marking and a confidence
// score. Grounded on resilience/retry.go's "classify, then degrade" shape
// in spirit (nothing here is silently dropped, only flagged), and on
// quality/gate.go's decision vocabulary for recognizing request_review and
// rejected steps in the finished tree.
package aggregate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/quality"
	"github.com/veritas-eu/orchestrator-core/steps"
)

// Aggregator composes a StructuredAnswer from a finished (or partially
// finished) ProcessTree.
type Aggregator struct {
	cfg    core.AggregationConfig
	logger core.Logger
}

func New(cfg core.AggregationConfig, logger core.Logger) *Aggregator {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Aggregator{cfg: cfg, logger: logger}
}

var sentenceSplit = regexp.MustCompile(`(?:[.!?]+)\s+`)

// Aggregate runs the five-step algorithm: collect completed outputs, pick
// or compose the spine, merge citations (marking unsupported sentences),
// compute confidence, and attach warnings.
func (a *Aggregator) Aggregate(sessionID string, tree *domain.ProcessTree, hypothesis *domain.Hypothesis) *domain.StructuredAnswer {
	completed := completedStepsInOrder(tree)

	if cr := clarificationStep(completed); cr != nil {
		return clarificationAnswer(sessionID, cr)
	}

	spine, sections, citations := a.composeSpine(completed)
	text, citedSentences := a.markUnsupported(spine, citations)

	confidence := a.confidence(completed, citations)

	answer := &domain.StructuredAnswer{
		SessionID:  sessionID,
		Text:       text,
		Sections:   sections,
		Citations:  citations,
		Confidence: confidence,
		Warnings:   a.warnings(tree, citedSentences),
	}
	return answer
}

func completedStepsInOrder(tree *domain.ProcessTree) []*domain.ProcessStep {
	var out []*domain.ProcessStep
	for _, id := range tree.Order() {
		s, ok := tree.Step(id)
		if ok && s.Status == domain.StepCompleted {
			out = append(out, s)
		}
	}
	return out
}

// composeSpine prefers a completed final_answer step's text verbatim;
// otherwise it builds one section per completed step with content, in
// execution order, and appends a sources line to the joined text. No intro
// is generated, and the sources line is not added as a section.
func (a *Aggregator) composeSpine(completed []*domain.ProcessStep) (string, []domain.AnswerSection, []domain.Citation) {
	for _, s := range completed {
		if s.StepType == domain.StepFinalAnswer {
			if text, ok := s.Result.(string); ok {
				return text, nil, citationsOf(completed)
			}
		}
	}

	var sections []domain.AnswerSection
	var parts []string
	citations := citationsOf(completed)

	for _, s := range completed {
		title, content := sectionFor(s)
		if content == "" {
			continue
		}
		sections = append(sections, domain.AnswerSection{Title: title, Content: content})
		parts = append(parts, content)
	}

	if src := sourcesLine(citations); len(parts) > 0 && src != "" {
		parts = append(parts, src)
	}
	return strings.Join(parts, " "), sections, citations
}

// clarificationStep returns the plan's clarification_request step, if any
// completed — a plan that short-circuits to one never has further steps
// to compose a spine from.
func clarificationStep(completed []*domain.ProcessStep) *domain.ProcessStep {
	for _, s := range completed {
		if s.StepType == domain.StepClarificationRequest {
			return s
		}
	}
	return nil
}

// clarificationAnswer renders a form schema instead of prose, per the
// contract: clarification needs are a first-class output, not an error.
func clarificationAnswer(sessionID string, step *domain.ProcessStep) *domain.StructuredAnswer {
	missing, _ := step.Result.([]domain.MissingInformation)
	return &domain.StructuredAnswer{
		SessionID:             sessionID,
		RequiresClarification: true,
		ClarificationFields:   missing,
	}
}

func sectionFor(s *domain.ProcessStep) (string, string) {
	switch s.StepType {
	case domain.StepAnalysis:
		text, _ := s.Result.(string)
		return "analysis", text
	case domain.StepSynthesis:
		if sr, ok := s.Result.(steps.SynthesisResult); ok {
			return "synthesis", sr.Text
		}
	case domain.StepComparison:
		text, _ := s.Result.(string)
		return "comparison", text
	case domain.StepCalculation:
		if v, ok := s.Result.(float64); ok {
			return "calculation", fmt.Sprintf("Ergebnis: %.2f", v)
		}
	case domain.StepValidation:
		if text, ok := s.Result.(string); ok {
			return "validation", text
		}
	}
	return "", ""
}

func citationsOf(completed []*domain.ProcessStep) []domain.Citation {
	var out []domain.Citation
	seen := make(map[string]bool)
	add := func(c domain.Citation) {
		key := c.DocID + "|" + c.PageOrSection
		if !seen[key] {
			seen[key] = true
			out = append(out, c)
		}
	}
	for _, s := range completed {
		switch v := s.Result.(type) {
		case []domain.RetrievalResult:
			for _, r := range v {
				for _, c := range r.Citations {
					add(c)
				}
			}
		case steps.SynthesisResult:
			for _, c := range v.Citations {
				add(c)
			}
		}
	}
	return out
}

func sourcesLine(citations []domain.Citation) string {
	if len(citations) == 0 {
		return ""
	}
	ids := make([]string, 0, len(citations))
	for _, c := range citations {
		ids = append(ids, c.DocID)
	}
	return "Quellen: " + strings.Join(ids, ", ") + "."
}

// markUnsupported splits spine into sentences and flags each that mentions
// no known document ID among the gathered citations. When there are no
// citations at all, every non-empty sentence is unsupported — there is
// nothing to back any factual claim.
func (a *Aggregator) markUnsupported(spine string, citations []domain.Citation) (string, []string) {
	spine = strings.TrimSpace(spine)
	if spine == "" {
		return spine, nil
	}
	sentences := sentenceSplit.Split(spine, -1)
	knownIDs := make([]string, 0, len(citations))
	for _, c := range citations {
		knownIDs = append(knownIDs, c.DocID)
	}

	var unsupported []string
	var out []string
	for _, sent := range sentences {
		sent = strings.TrimSpace(sent)
		if sent == "" {
			continue
		}
		if !hasAnyCitation(sent, knownIDs) {
			unsupported = append(unsupported, sent)
			sent = sent + " [unsupported]"
		}
		out = append(out, sent)
	}
	return strings.Join(out, ". "), unsupported
}

func hasAnyCitation(sentence string, ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	lower := strings.ToLower(sentence)
	if strings.Contains(lower, "quellen:") {
		return true
	}
	for _, id := range ids {
		if id != "" && strings.Contains(lower, strings.ToLower(id)) {
			return true
		}
	}
	return false
}

// confidence blends the median quality_score of approved steps with the
// mean relevance_score of the top-k retrieval results of completed steps,
// per configured weights (default 0.6/0.4). The citations argument is not
// used: results count whether or not they are cited.
func (a *Aggregator) confidence(completed []*domain.ProcessStep, citations []domain.Citation) float64 {
	var qualities []float64
	for _, s := range completed {
		if s.GateDecision == string(quality.DecisionApprove) || s.GateDecision == string(quality.DecisionApproveWarning) {
			qualities = append(qualities, s.QualityScore)
		}
	}
	medianQuality := median(qualities)

	topK := a.cfg.TopKCitations
	if topK <= 0 {
		topK = 5
	}
	relevance := meanRelevanceOf(completed, topK)

	qw, rw := a.cfg.QualityWeight, a.cfg.RelevanceWeight
	if qw == 0 && rw == 0 {
		qw, rw = 0.6, 0.4
	}
	return qw*medianQuality + rw*relevance
}

func meanRelevanceOf(completed []*domain.ProcessStep, topK int) float64 {
	var scores []float64
	for _, s := range completed {
		if results, ok := s.Result.([]domain.RetrievalResult); ok {
			for _, r := range results {
				scores = append(scores, r.RelevanceScore)
			}
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	if len(scores) > topK {
		scores = scores[:topK]
	}
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// warnings attaches one entry per request_review step, every unsupported
// sentence, and every tolerably-failed step, so none of these are silently
// dropped from the final answer.
func (a *Aggregator) warnings(tree *domain.ProcessTree, unsupportedSentences []string) []domain.Warning {
	var out []domain.Warning
	for _, id := range tree.Order() {
		s, ok := tree.Step(id)
		if !ok {
			continue
		}
		switch {
		case s.GateDecision == string(quality.DecisionRequestReview):
			out = append(out, domain.Warning{Kind: domain.WarningReviewRequired, StepID: s.StepID, Detail: "quality score fell within the review band"})
		case s.Status == domain.StepFailed && s.OnFailure == domain.FailureTolerable:
			out = append(out, domain.Warning{Kind: domain.WarningTolerableFail, StepID: s.StepID, Detail: errString(s.LastError)})
		}
	}
	for _, sent := range unsupportedSentences {
		out = append(out, domain.Warning{Kind: domain.WarningUnsupported, Detail: sent})
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
