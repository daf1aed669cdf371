package domain

// RetrievalMethod selects which Retriever sub-source(s) to use.
type RetrievalMethod string

const (
	MethodVector RetrievalMethod = "vector"
	MethodGraph  RetrievalMethod = "graph"
	MethodKeyword RetrievalMethod = "keyword"
	MethodHybrid RetrievalMethod = "hybrid"
)

// SourceKind identifies where a RetrievalResult came from, including the
// synthetic "fused" kind produced by RRF.
type SourceKind string

const (
	SourceVector  SourceKind = "vector"
	SourceGraph   SourceKind = "graph"
	SourceKeyword SourceKind = "keyword"
	SourceFused   SourceKind = "fused"
)

// Citation references a location within a retrieved document. Timestamp is
// optional (zero value means "not applicable").
type Citation struct {
	DocID         string
	PageOrSection string
	Timestamp     *string
	RankInSource  int
	RankAfterFusion int
}

// RetrievalResult is one document (or document fragment) returned by the
// Retriever, with citation metadata that must survive fusion/re-ranking.
type RetrievalResult struct {
	DocumentID     string
	Content        string
	RelevanceScore float64
	SourceKind     SourceKind
	Citations      []Citation
	Metadata       map[string]interface{}
}
