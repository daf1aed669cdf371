package domain

// AnswerSection is one titled block of the composed answer spine, used
// when no terminal final_answer step supplies the spine directly.
type AnswerSection struct {
	Title   string
	Content string
}

// WarningKind classifies an entry in StructuredAnswer.Warnings.
type WarningKind string

const (
	WarningReviewRequired WarningKind = "request_review"
	WarningUnsupported    WarningKind = "unsupported"
	WarningTolerableFail  WarningKind = "tolerable_failed"
)

// Warning is one caveat attached to the aggregated answer.
type Warning struct {
	Kind   WarningKind
	StepID string
	Detail string
}

// StructuredAnswer is the Aggregator's (C10) output: a composed answer
// spine, the sections it was built from (when composed rather than taken
// from a final_answer step), the citations backing it, and the
// warnings/confidence the orchestrator's run produced along the way.
//
// When a plan short-circuits to a clarification_request step,
// RequiresClarification is true and ClarificationFields carries the form
// schema the caller needs to fill in; Text/Sections/Citations are empty in
// that case since there is no answer yet to compose.
type StructuredAnswer struct {
	SessionID  string
	Text       string
	Sections   []AnswerSection
	Citations  []Citation
	Confidence float64
	Warnings   []Warning

	RequiresClarification bool
	ClarificationFields   []MissingInformation
}
