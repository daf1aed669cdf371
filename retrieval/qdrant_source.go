package retrieval

import (
	"context"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/generation"
)

// QdrantSource is the vector SubSource: embeds the query via the
// generation interface's Embed, then searches a qdrant collection. Stable
// qdrant point IDs are surfaced as RetrievalResult.DocumentID so citations
// remain valid for the lifetime of a plan, per the external-interface
// contract.
type QdrantSource struct {
	client     *qdrant.Client
	collection string
	gen        generation.Interface
	logger     core.Logger
}

func NewQdrantSource(client *qdrant.Client, collection string, gen generation.Interface, logger core.Logger) *QdrantSource {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &QdrantSource{client: client, collection: collection, gen: gen, logger: logger}
}

func (s *QdrantSource) Kind() domain.SourceKind { return domain.SourceVector }

func (s *QdrantSource) Search(ctx context.Context, queryText string, topK int, filters Filters) ([]domain.RetrievalResult, error) {
	vector, err := s.gen.Embed(ctx, queryText)
	if err != nil {
		return nil, core.NewCoreError("retrieval.QdrantSource.Search", core.KindTransient, err)
	}

	limit := uint64(topK)
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, core.NewCoreError("retrieval.QdrantSource.Search", core.KindTransient, fmt.Errorf("%w: %v", core.ErrUnavailable, err))
	}

	out := make([]domain.RetrievalResult, 0, len(resp))
	for _, point := range resp {
		docID := pointIDString(point.Id)
		content, _ := payloadString(point.Payload, "content")
		section, _ := payloadString(point.Payload, "section")
		out = append(out, domain.RetrievalResult{
			DocumentID:     docID,
			Content:        content,
			RelevanceScore: float64(point.Score),
			SourceKind:     domain.SourceVector,
			Citations: []domain.Citation{
				{DocID: docID, PageOrSection: section},
			},
			Metadata: map[string]interface{}{"qdrant_collection": s.collection},
		})
	}
	return out, nil
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadString(payload map[string]*qdrant.Value, key string) (string, bool) {
	v, ok := payload[key]
	if !ok {
		return "", false
	}
	return v.GetStringValue(), true
}
