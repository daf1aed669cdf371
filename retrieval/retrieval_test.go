package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
)

type staticSource struct {
	kind    domain.SourceKind
	results []domain.RetrievalResult
	err     error
}

func (s *staticSource) Kind() domain.SourceKind { return s.kind }

func (s *staticSource) Search(ctx context.Context, queryText string, topK int, filters Filters) ([]domain.RetrievalResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > topK {
		return s.results[:topK], nil
	}
	return s.results, nil
}

func doc(id string, score float64) domain.RetrievalResult {
	return domain.RetrievalResult{
		DocumentID:     id,
		Content:        "content " + id,
		RelevanceScore: score,
		Citations:      []domain.Citation{{DocID: id}},
	}
}

func TestFuse_DocumentInMultipleSourcesRanksNoLowerThanBestSingleSourceRank(t *testing.T) {
	// "doc-shared" ranks 3rd in vector, 1st in keyword. Under RRF it must
	// rank at least as high as its best (keyword, rank 1) placement relative
	// to documents that only ever appear at lower single-source ranks.
	vector := []domain.RetrievalResult{doc("doc-a", 0.9), doc("doc-b", 0.8), doc("doc-shared", 0.7)}
	keyword := []domain.RetrievalResult{doc("doc-shared", 0.95), doc("doc-c", 0.5)}

	fused := fuse([]sourceRanking{
		{kind: domain.SourceVector, weight: 1, results: vector},
		{kind: domain.SourceKeyword, weight: 1, results: keyword},
	}, 60)

	positions := make(map[string]int)
	for i, r := range fused {
		positions[r.DocumentID] = i
	}

	assert.Less(t, positions["doc-shared"], positions["doc-b"])
	assert.Less(t, positions["doc-shared"], positions["doc-c"])
}

func TestFuse_PreservesCitationsAndStampsFusionRank(t *testing.T) {
	vector := []domain.RetrievalResult{doc("doc-a", 0.9)}
	keyword := []domain.RetrievalResult{doc("doc-a", 0.8), doc("doc-b", 0.6)}

	fused := fuse([]sourceRanking{
		{kind: domain.SourceVector, weight: 1, results: vector},
		{kind: domain.SourceKeyword, weight: 1, results: keyword},
	}, 60)

	require.Len(t, fused, 2)
	docA := fused[0]
	assert.Equal(t, "doc-a", docA.DocumentID)
	require.Len(t, docA.Citations, 2, "citations from both sources must survive fusion")
	for _, c := range docA.Citations {
		assert.Equal(t, 1, c.RankAfterFusion)
	}
}

func TestFuse_DeterministicTieBreakByDocumentID(t *testing.T) {
	vector := []domain.RetrievalResult{doc("doc-z", 0.5)}
	keyword := []domain.RetrievalResult{doc("doc-a", 0.5)}

	fused := fuse([]sourceRanking{
		{kind: domain.SourceVector, weight: 1, results: vector},
		{kind: domain.SourceKeyword, weight: 1, results: keyword},
	}, 60)

	require.Len(t, fused, 2)
	assert.Equal(t, "doc-a", fused[0].DocumentID)
	assert.Equal(t, "doc-z", fused[1].DocumentID)
}

func TestRetrieve_AllSubSourcesFail_ReturnsUnavailable(t *testing.T) {
	failing := errors.New("backend down")
	r := New(60, nil,
		WithSource(&staticSource{kind: domain.SourceVector, err: failing}, 1),
		WithSource(&staticSource{kind: domain.SourceKeyword, err: failing}, 1),
	)

	_, err := r.Retrieve(context.Background(), "bauantrag frist", domain.MethodHybrid, 10, nil, false, core.RerankOff)

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnavailable))
}

func TestRetrieve_OneSubSourceFails_OthersStillFuse(t *testing.T) {
	failing := errors.New("backend down")
	r := New(60, nil,
		WithSource(&staticSource{kind: domain.SourceVector, err: failing}, 1),
		WithSource(&staticSource{kind: domain.SourceKeyword, results: []domain.RetrievalResult{doc("doc-a", 0.9)}}, 1),
	)

	results, err := r.Retrieve(context.Background(), "bauantrag", domain.MethodHybrid, 10, nil, false, core.RerankOff)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-a", results[0].DocumentID)
}

func TestRetrieve_RerankFailure_FallsBackToFusedOrder(t *testing.T) {
	r := New(60, nil,
		WithSource(&staticSource{kind: domain.SourceKeyword, results: []domain.RetrievalResult{doc("doc-a", 0.9), doc("doc-b", 0.5)}}, 1),
		WithReranker(&failingReranker{}),
	)

	results, err := r.Retrieve(context.Background(), "frist", domain.MethodHybrid, 10, nil, false, core.RerankRelevance)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc-a", results[0].DocumentID)
}

type failingReranker struct{}

func (f *failingReranker) Rerank(ctx context.Context, query string, docs []domain.RetrievalResult, mode core.RerankMode) ([]domain.RetrievalResult, error) {
	return nil, errors.New("llm unavailable")
}
