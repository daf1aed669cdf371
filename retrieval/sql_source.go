package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
)

// OpenPostgres opens a pgx-backed sqlx.DB for use with NewSQLSource. Kept
// here rather than in persistence/ since it's specific to the relational
// retrieval sub-source, not to checkpoint storage.
func OpenPostgres(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, core.NewCoreError("retrieval.OpenPostgres", core.KindPermanent, fmt.Errorf("%w: %v", core.ErrInvalidState, err))
	}
	return db, nil
}

// sqlRow mirrors the columns expected from the configured statement: a
// document id, its text content, a section/page label, and a JSON metadata
// blob that may carry nested fields callers want extracted with a JSON path.
type sqlRow struct {
	DocumentID string `db:"document_id"`
	Content    string `db:"content"`
	Section    string `db:"section"`
	Metadata   string `db:"metadata"`
}

// SQLSource is the keyword/structured-metadata SubSource backed by a
// relational store (pgx driver via sqlx). metadataPath, when set, is a gojq
// expression run over each row's metadata JSON to extract a single field
// promoted into RetrievalResult.Metadata["extracted"] — used for sources
// that store structured facts (fee schedules, deadlines) alongside free text.
type SQLSource struct {
	db           *sqlx.DB
	query        string
	metadataPath *gojq.Code
}

func NewSQLSource(db *sqlx.DB, query, metadataJQ string) (*SQLSource, error) {
	s := &SQLSource{db: db, query: query}
	if metadataJQ != "" {
		parsed, err := gojq.Parse(metadataJQ)
		if err != nil {
			return nil, core.NewCoreError("retrieval.NewSQLSource", core.KindPermanent, fmt.Errorf("%w: invalid metadata path: %v", core.ErrInvalidState, err))
		}
		code, err := gojq.Compile(parsed)
		if err != nil {
			return nil, core.NewCoreError("retrieval.NewSQLSource", core.KindPermanent, fmt.Errorf("%w: %v", core.ErrInvalidState, err))
		}
		s.metadataPath = code
	}
	return s, nil
}

func (s *SQLSource) Kind() domain.SourceKind { return domain.SourceKeyword }

func (s *SQLSource) Search(ctx context.Context, queryText string, topK int, filters Filters) ([]domain.RetrievalResult, error) {
	var rows []sqlRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(s.query), "%"+queryText+"%", topK); err != nil {
		return nil, core.NewCoreError("retrieval.SQLSource.Search", core.KindTransient, fmt.Errorf("%w: %v", core.ErrUnavailable, err))
	}

	out := make([]domain.RetrievalResult, 0, len(rows))
	for i, row := range rows {
		metadata := map[string]interface{}{}
		if s.metadataPath != nil && row.Metadata != "" {
			if extracted, ok := s.extract(row.Metadata); ok {
				metadata["extracted"] = extracted
			}
		}
		out = append(out, domain.RetrievalResult{
			DocumentID:     row.DocumentID,
			Content:        row.Content,
			RelevanceScore: 1.0 / float64(i+1),
			SourceKind:     domain.SourceKeyword,
			Citations: []domain.Citation{
				{DocID: row.DocumentID, PageOrSection: row.Section, RankInSource: i + 1},
			},
			Metadata: metadata,
		})
	}
	return out, nil
}

func (s *SQLSource) extract(rawJSON string) (interface{}, bool) {
	var doc interface{}
	if err := json.Unmarshal([]byte(rawJSON), &doc); err != nil {
		return nil, false
	}
	iter := s.metadataPath.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return nil, false
	}
	if err, isErr := v.(error); isErr {
		_ = err
		return nil, false
	}
	return v, true
}
