package process

import (
	"fmt"
	"strings"

	"github.com/veritas-eu/orchestrator-core/domain"
)

func (b *Builder) registerDefaultTemplates() {
	b.templates[domain.IntentProcedureQuery] = procedureQueryTemplate
	b.templates[domain.IntentComparison] = comparisonTemplate
	b.templates[domain.IntentCalculation] = calculationTemplate
	b.templates[domain.IntentFactRetrieval] = factRetrievalTemplate
	b.templates[domain.IntentDefinition] = definitionTemplate
	b.templates[domain.IntentExplanation] = explanationTemplate
	b.templates[domain.IntentRecommendation] = recommendationTemplate
	b.templates[domain.IntentTimeline] = timelineTemplate
	b.templates[domain.IntentOther] = fallbackTemplate
	// status_check has no dedicated canonical template in the contract;
	// it is treated like fact_retrieval (search + validate against the
	// latest known state) rather than falling all the way back to
	// search_generic.
	b.templates[domain.IntentStatusCheck] = factRetrievalTemplate
}

func procedureQueryTemplate(_ *domain.Analysis) []stepSpec {
	return []stepSpec{
		{localName: "search_requirements", stepType: domain.StepSearch},
		{localName: "search_forms", stepType: domain.StepSearch},
		{localName: "synthesize_checklist", stepType: domain.StepSynthesis,
			dependsOn: []string{"search_requirements", "search_forms"}},
	}
}

func comparisonTemplate(analysis *domain.Analysis) []stepSpec {
	entities := comparedEntities(analysis)
	if len(entities) < 2 {
		// Not enough entities to compare; fall back rather than build a
		// degenerate single-branch comparison.
		return fallbackTemplate(analysis)
	}
	var specs []stepSpec
	var analyzeNames []string
	for _, e := range entities {
		searchName := stepIDForEntity("search", e)
		analyzeName := stepIDForEntity("analyze", e)
		specs = append(specs,
			stepSpec{localName: searchName, stepType: domain.StepSearch},
			stepSpec{localName: analyzeName, stepType: domain.StepAnalysis, dependsOn: []string{searchName}},
		)
		analyzeNames = append(analyzeNames, analyzeName)
	}
	specs = append(specs, stepSpec{localName: "compare", stepType: domain.StepComparison, dependsOn: analyzeNames})
	return specs
}

func comparedEntities(analysis *domain.Analysis) []string {
	if raw, ok := analysis.Parameters["compared_entities"]; ok && raw != "" {
		return strings.Split(raw, ",")
	}
	return nil
}

func calculationTemplate(_ *domain.Analysis) []stepSpec {
	return []stepSpec{
		{localName: "search_rates", stepType: domain.StepSearch},
		{localName: "compute", stepType: domain.StepCalculation, dependsOn: []string{"search_rates"}},
	}
}

func factRetrievalTemplate(_ *domain.Analysis) []stepSpec {
	return []stepSpec{
		{localName: "search_fact", stepType: domain.StepSearch},
		{localName: "validate", stepType: domain.StepValidation, dependsOn: []string{"search_fact"}},
	}
}

func definitionTemplate(_ *domain.Analysis) []stepSpec {
	return []stepSpec{
		{localName: "search_definition", stepType: domain.StepSearch},
	}
}

func explanationTemplate(_ *domain.Analysis) []stepSpec {
	return []stepSpec{
		{localName: "search_context", stepType: domain.StepSearch},
		{localName: "synthesize_explanation", stepType: domain.StepSynthesis, dependsOn: []string{"search_context"}},
	}
}

func recommendationTemplate(_ *domain.Analysis) []stepSpec {
	return []stepSpec{
		{localName: "search_options", stepType: domain.StepSearch},
		{localName: "analyze_options", stepType: domain.StepAnalysis, dependsOn: []string{"search_options"}},
		{localName: "recommend", stepType: domain.StepSynthesis, dependsOn: []string{"analyze_options"}},
	}
}

func timelineTemplate(_ *domain.Analysis) []stepSpec {
	return []stepSpec{
		{localName: "search_events", stepType: domain.StepSearch},
		{localName: "order_events", stepType: domain.StepAnalysis, dependsOn: []string{"search_events"}},
	}
}

func fallbackTemplate(_ *domain.Analysis) []stepSpec {
	return []stepSpec{
		{localName: "search_generic", stepType: domain.StepSearch},
	}
}

// stepIDForEntity renders a stable, identifier-safe step name for a
// per-entity comparison branch (used by the comparison template above).
func stepIDForEntity(prefix, entity string) string {
	return fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(strings.TrimSpace(entity), " ", "_"))
}
