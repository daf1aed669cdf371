package analyzer

import "github.com/veritas-eu/orchestrator-core/domain"

// bindParameters maps extracted entities onto the parameter names the
// process templates expect (location, document_type, compared_entities,
// period, amount_spec). Intent-independent entities (law citations, dates)
// are always bound; intent-specific binding (compared_entities) only
// applies for comparison queries.
func bindParameters(intent domain.Intent, entities []domain.Entity) map[string]string {
	params := make(map[string]string)
	var compared []string

	for _, e := range entities {
		switch e.Kind {
		case domain.EntityLocation:
			if _, exists := params["location"]; !exists {
				params["location"] = e.Text
			}
		case domain.EntityMoney:
			params["amount_spec"] = e.Text
		case domain.EntityDate:
			params["period"] = e.Text
		case domain.EntityLaw:
			params["law_citation"] = e.Text
		case domain.EntityOrganization:
			if e.Text == "gmbh" || e.Text == "ag" {
				compared = append(compared, e.Text)
			} else if _, exists := params["document_type"]; !exists {
				params["document_type"] = e.Text
			}
		}
	}

	if intent == domain.IntentComparison && len(compared) > 0 {
		for i, c := range compared {
			if i == 0 {
				params["compared_entities"] = c
			} else {
				params["compared_entities"] += "," + c
			}
		}
	}

	return params
}
