// Package analyzer implements the query classifier (intent, question type,
// entities, parameters). It is deliberately dependency-free: the contract
// requires a pure, deterministic function of (text, locale), and every
// third-party NLP library in the wider ecosystem trades that determinism
// for model-driven inference — the opposite of what a rule cascade needs.
// See DESIGN.md for the stdlib-only justification.
package analyzer

import (
	"strings"
	"unicode"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
)

// Analyzer holds a pluggable rule set so the German default can be swapped
// or extended without touching the cascade itself.
type Analyzer struct {
	rules  RuleSet
	logger core.Logger
}

// New returns an Analyzer using the given rule set, or DefaultGermanRules
// if rules is nil.
func New(rules RuleSet, logger core.Logger) *Analyzer {
	if rules == nil {
		rules = DefaultGermanRules()
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Analyzer{rules: rules, logger: logger}
}

// Analyze runs the deterministic rule cascade described by the contract:
// tokenize/normalize, match entities, classify intent, classify question
// type, score confidence. Fails only on empty/whitespace input.
func (a *Analyzer) Analyze(text, locale string) (*domain.Analysis, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, core.NewCoreError("analyzer.Analyze", core.KindInvalidQuery, core.ErrInvalidQuery)
	}

	normalized := normalize(trimmed)
	entities := a.rules.MatchEntities(trimmed, normalized)
	intent, intentSignals, intentExpected := a.rules.ClassifyIntent(normalized)
	qType := a.rules.ClassifyQuestionType(trimmed, normalized)

	confidence := confidenceScore(intentSignals, intentExpected, len(entities))
	if confidence < 0.25 {
		intent = domain.IntentOther
		qType = domain.QuestionStatement
	}

	params := bindParameters(intent, entities)

	return &domain.Analysis{
		Intent:       intent,
		QuestionType: qType,
		Entities:     entities,
		Parameters:   params,
		Confidence:   confidence,
	}, nil
}

// normalize lowercases and strips punctuation, except for tokens that look
// like a law citation marker ("§") which must survive for entity matching.
func normalize(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == '§':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// confidenceScore is the fraction of matched signals over expected signals
// for the winning class, nudged slightly by how many entities were found
// (more grounding signal, marginally higher confidence), capped at 1.
func confidenceScore(matched, expected, entityCount int) float64 {
	if expected == 0 {
		if entityCount > 0 {
			return 0.3
		}
		return 0.1
	}
	base := float64(matched) / float64(expected)
	bonus := 0.02 * float64(entityCount)
	score := base + bonus
	if score > 1 {
		score = 1
	}
	return score
}
