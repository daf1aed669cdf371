package analyzer

import (
	"regexp"
	"strings"

	"github.com/veritas-eu/orchestrator-core/domain"
)

// RuleSet is the pluggable matcher/classifier surface the cascade runs
// against. DefaultGermanRules is the locale-fixed default the contract
// describes; other locales can implement the same interface.
type RuleSet interface {
	MatchEntities(original, normalized string) []domain.Entity
	// ClassifyIntent returns the winning intent plus the signal counts
	// used to compute confidence (matched keyword hits, expected hits
	// for that class).
	ClassifyIntent(normalized string) (intent domain.Intent, matched, expected int)
	ClassifyQuestionType(original, normalized string) domain.QuestionType
}

type germanRules struct {
	lawCitation *regexp.Regexp
	money       *regexp.Regexp
	date        *regexp.Regexp
	locations   map[string]bool
	organizations map[string]bool

	// intentOrder is the tie-break priority, highest first.
	intentOrder []domain.Intent
	intentKeywords map[domain.Intent][]string
	questionWords map[string]domain.QuestionType
}

// DefaultGermanRules returns the fixed German rule set described by the
// contract; "pluggable" means callers may supply their own RuleSet, not
// that this one accepts runtime configuration.
func DefaultGermanRules() RuleSet {
	return &germanRules{
		lawCitation: regexp.MustCompile(`§\s*\d+[a-z]?\s+[A-Z]{2,}[a-zA-Z]*`),
		money:       regexp.MustCompile(`\d+([.,]\d+)?\s*(€|eur|euro)`),
		date:        regexp.MustCompile(`\b\d{1,2}\.\d{1,2}\.\d{2,4}\b|\b(januar|februar|märz|april|mai|juni|juli|august|september|oktober|november|dezember)\b`),
		locations: set(
			"stuttgart", "münchen", "munich", "berlin", "hamburg", "köln",
			"frankfurt", "düsseldorf", "leipzig", "dresden", "nürnberg",
			"bayern", "baden-württemberg", "hessen", "sachsen",
		),
		organizations: set(
			"gmbh", "ag", "bauamt", "ordnungsamt", "finanzamt", "landratsamt",
			"bürgeramt", "rathaus",
		),
		intentOrder: []domain.Intent{
			domain.IntentComparison,
			domain.IntentCalculation,
			domain.IntentProcedureQuery,
			domain.IntentFactRetrieval,
			domain.IntentStatusCheck,
			domain.IntentTimeline,
			domain.IntentRecommendation,
			domain.IntentExplanation,
			domain.IntentDefinition,
		},
		intentKeywords: map[domain.Intent][]string{
			domain.IntentComparison:     {"vs", "versus", "unterschied", "im vergleich", "gegenüber", "oder"},
			domain.IntentCalculation:    {"kosten", "kostet", "gebühr", "preis", "wie viel", "berechne"},
			domain.IntentProcedureQuery: {"antrag", "beantragen", "formular", "verfahren", "wie beantrage"},
			domain.IntentFactRetrieval:  {"§", "gesetz", "paragraph", "regelt", "steht"},
			domain.IntentStatusCheck:    {"status", "bearbeitungsstand", "stand meines"},
			domain.IntentTimeline:       {"wann", "frist", "zeitraum", "ablauf", "reihenfolge"},
			domain.IntentRecommendation: {"empfehlung", "sollte ich", "was ist besser", "empfiehlst"},
			domain.IntentExplanation:    {"warum", "wieso", "erkläre", "erklärung"},
			domain.IntentDefinition:     {"was ist", "was bedeutet", "definition"},
		},
		questionWords: map[string]domain.QuestionType{
			"was":    domain.QuestionWhat,
			"wer":    domain.QuestionWho,
			"wo":     domain.QuestionWhere,
			"wann":   domain.QuestionWhen,
			"wie":    domain.QuestionHow,
			"warum":  domain.QuestionWhy,
			"wieso":  domain.QuestionWhy,
			"ist":    domain.QuestionYesNo,
			"sind":   domain.QuestionYesNo,
			"kann":   domain.QuestionYesNo,
			"muss":   domain.QuestionYesNo,
			"vs":     domain.QuestionComparison,
			"versus": domain.QuestionComparison,
		},
	}
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func (r *germanRules) MatchEntities(original, normalized string) []domain.Entity {
	var entities []domain.Entity

	for _, loc := range r.lawCitation.FindAllStringIndex(original, -1) {
		entities = append(entities, domain.Entity{
			Text:       original[loc[0]:loc[1]],
			Kind:       domain.EntityLaw,
			Span:       domain.Span{Start: loc[0], End: loc[1]},
			Confidence: 0.95,
		})
	}
	for _, loc := range r.money.FindAllStringIndex(normalized, -1) {
		entities = append(entities, domain.Entity{
			Text:       normalized[loc[0]:loc[1]],
			Kind:       domain.EntityMoney,
			Span:       domain.Span{Start: loc[0], End: loc[1]},
			Confidence: 0.85,
		})
	}
	for _, loc := range r.date.FindAllStringIndex(normalized, -1) {
		entities = append(entities, domain.Entity{
			Text:       normalized[loc[0]:loc[1]],
			Kind:       domain.EntityDate,
			Span:       domain.Span{Start: loc[0], End: loc[1]},
			Confidence: 0.8,
		})
	}

	tokens := strings.Fields(normalized)
	offset := 0
	for _, tok := range tokens {
		idx := strings.Index(normalized[offset:], tok)
		start := offset + idx
		end := start + len(tok)
		offset = end
		clean := strings.Trim(tok, ".,!?")
		if r.locations[clean] {
			entities = append(entities, domain.Entity{
				Text: clean, Kind: domain.EntityLocation,
				Span: domain.Span{Start: start, End: end}, Confidence: 0.7,
			})
		}
		if r.organizations[clean] {
			entities = append(entities, domain.Entity{
				Text: clean, Kind: domain.EntityOrganization,
				Span: domain.Span{Start: start, End: end}, Confidence: 0.7,
			})
		}
	}
	return entities
}

func (r *germanRules) ClassifyIntent(normalized string) (domain.Intent, int, int) {
	bestIntent := domain.IntentOther
	bestMatched := 0
	bestExpected := 1

	for _, intent := range r.intentOrder {
		keywords := r.intentKeywords[intent]
		matched := 0
		for _, kw := range keywords {
			if strings.Contains(normalized, kw) {
				matched++
			}
		}
		if matched > 0 && (bestIntent == domain.IntentOther || matched > bestMatched) {
			bestIntent = intent
			bestMatched = matched
			bestExpected = len(keywords)
		}
	}
	return bestIntent, bestMatched, bestExpected
}

func (r *germanRules) ClassifyQuestionType(original, normalized string) domain.QuestionType {
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return domain.QuestionStatement
	}
	if strings.Contains(normalized, " vs ") || strings.Contains(normalized, "versus") {
		return domain.QuestionComparison
	}
	if qt, ok := r.questionWords[tokens[0]]; ok {
		return qt
	}
	if strings.HasSuffix(strings.TrimSpace(original), "?") {
		return domain.QuestionYesNo
	}
	return domain.QuestionStatement
}
