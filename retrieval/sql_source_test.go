package retrieval

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockSQLSource(t *testing.T, metadataJQ string) (*SQLSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	src, err := NewSQLSource(sqlxDB, "SELECT document_id, content, section, metadata FROM documents WHERE content ILIKE ? LIMIT ?", metadataJQ)
	require.NoError(t, err)
	return src, mock
}

func TestSQLSource_SearchMapsRowsToRetrievalResults(t *testing.T) {
	src, mock := newMockSQLSource(t, "")

	rows := sqlmock.NewRows([]string{"document_id", "content", "section", "metadata"}).
		AddRow("doc-1", "Baugenehmigung erforderlich", "§5", `{"fee": 120}`).
		AddRow("doc-2", "Ausnahme bei Kleinvorhaben", "§6", `{}`)
	mock.ExpectQuery("SELECT document_id, content, section, metadata FROM documents").
		WithArgs("%baugenehmigung%", 2).
		WillReturnRows(rows)

	results, err := src.Search(context.Background(), "baugenehmigung", 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "doc-1", results[0].DocumentID)
	require.Equal(t, "§5", results[0].Citations[0].PageOrSection)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSource_MetadataJQExtractsField(t *testing.T) {
	src, mock := newMockSQLSource(t, ".fee")

	rows := sqlmock.NewRows([]string{"document_id", "content", "section", "metadata"}).
		AddRow("doc-1", "Gebuehr fuer Baugenehmigung", "§5", `{"fee": 120}`)
	mock.ExpectQuery("SELECT document_id, content, section, metadata FROM documents").
		WithArgs("%gebuehr%", 1).
		WillReturnRows(rows)

	results, err := src.Search(context.Background(), "gebuehr", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, float64(120), results[0].Metadata["extracted"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSource_QueryErrorIsTransient(t *testing.T) {
	src, mock := newMockSQLSource(t, "")

	mock.ExpectQuery("SELECT document_id, content, section, metadata FROM documents").
		WillReturnError(context.DeadlineExceeded)

	_, err := src.Search(context.Background(), "x", 5, nil)
	require.Error(t, err)
}

func TestNewSQLSource_InvalidMetadataJQRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_ = mock
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	_, err = NewSQLSource(sqlxDB, "SELECT 1", "not a valid jq (((")
	require.Error(t, err)
}
