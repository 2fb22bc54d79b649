package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragline/vectorindex"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(db)
	require.NoError(t, err)
	return s, mock
}

func TestDescribeIndex(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, dimension, metric FROM vector_indexes")).
		WithArgs("openai-1536").
		WillReturnRows(sqlmock.NewRows([]string{"name", "dimension", "metric"}).AddRow("openai-1536", 1536, "cosine"))

	info, err := s.DescribeIndex(context.Background(), "openai-1536")
	require.NoError(t, err)
	assert.Equal(t, vectorindex.IndexInfo{Name: "openai-1536", Dimension: 1536, Metric: vectorindex.MetricCosine}, info)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDescribeIndex_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, dimension, metric FROM vector_indexes")).
		WithArgs("local-384").
		WillReturnRows(sqlmock.NewRows([]string{"name", "dimension", "metric"}))

	_, err := s.DescribeIndex(context.Background(), "local-384")
	assert.ErrorIs(t, err, vectorindex.ErrIndexNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIndex(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vector_indexes")).
		WithArgs("local-8", 8, "cosine").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(hnswDDL("local-8", 8))).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, s.CreateIndex(context.Background(), "local-8", 8, vectorindex.MetricCosine))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vector_indexes")).
		WithArgs("local-8", 8, "cosine").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.CreateIndex(context.Background(), "local-8", 8, vectorindex.MetricCosine)
	assert.ErrorIs(t, err, vectorindex.ErrIndexExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIndex_UnsupportedMetric(t *testing.T) {
	s, _ := newMockStore(t)
	assert.Error(t, s.CreateIndex(context.Background(), "local-8", 8, vectorindex.Metric("dot")))
}

func TestHNSWDDL(t *testing.T) {
	assert.Equal(t,
		`CREATE INDEX IF NOT EXISTS "vectors_openai_1536_hnsw" ON vectors USING hnsw ((embedding::vector(1536)) vector_cosine_ops) WHERE index_name = 'openai-1536'`,
		hnswDDL("openai-1536", 1536))
	assert.Equal(t,
		`CREATE INDEX IF NOT EXISTS "vectors_local_2000_hnsw" ON vectors USING hnsw ((embedding::vector(2000)) vector_cosine_ops) WHERE index_name = 'local-2000'`,
		hnswDDL("local-2000", 2000))
}

func TestHNSWDDL_WideEmbeddingsUseHalfvec(t *testing.T) {
	assert.Equal(t,
		`CREATE INDEX IF NOT EXISTS "vectors_openai_3072_hnsw" ON vectors USING hnsw ((embedding::halfvec(3072)) halfvec_cosine_ops) WHERE index_name = 'openai-3072'`,
		hnswDDL("openai-3072", 3072))
}

func TestCreateIndex_WideEmbedding(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vector_indexes")).
		WithArgs("openai-3072", 3072, "cosine").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("USING hnsw ((embedding::halfvec(3072)) halfvec_cosine_ops)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, s.CreateIndex(context.Background(), "openai-3072", 3072, vectorindex.MetricCosine))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_ReportsAcknowledgedIDs(t *testing.T) {
	s, mock := newMockStore(t)

	vectors := []vectorindex.Vector{
		{ID: "a", Values: []float32{1, 0}},
		{ID: "b", Values: []float32{0, 1}},
		{ID: "c", Values: []float32{1, 1}},
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO vectors (index_name, namespace, id, embedding, metadata) VALUES ($1, $2, $3, $4, $5), ($1, $2, $6, $7, $8), ($1, $2, $9, $10, $11)")).
		WithArgs("local-2", "bot|u1",
			"a", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"b", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"c", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("c"))

	res, err := s.Upsert(context.Background(), "local-2", "bot|u1", vectors)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, res.Succeeded)
	assert.Contains(t, res.Failed, "b")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_StatementError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO vectors")).
		WillReturnError(errors.New("connection reset"))

	_, err := s.Upsert(context.Background(), "local-2", "bot|u1", []vectorindex.Vector{{ID: "a", Values: []float32{1, 0}}})
	assert.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_Empty(t *testing.T) {
	s, mock := newMockStore(t)

	res, err := s.Upsert(context.Background(), "local-2", "bot|u1", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Succeeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, 1 - (embedding::vector(2) <=> $1::vector(2)) AS score, metadata")).
		WithArgs(sqlmock.AnyArg(), "local-2", "bot|u1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "score", "metadata"}).
			AddRow("a", 0.98, []byte(`{"document_id":"d1","chunk_index":3,"content_preview":"hello"}`)).
			AddRow("b", 0.5, []byte(`{}`)))

	matches, err := s.Query(context.Background(), "local-2", "bot|u1", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.InDelta(t, 0.98, matches[0].Score, 1e-9)
	assert.Equal(t, "d1", matches[0].Metadata.DocumentID)
	assert.Equal(t, 3, matches[0].Metadata.ChunkIndex)
	assert.Equal(t, "hello", matches[0].Metadata.ContentPreview)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_WideEmbeddingOrdersByHalfvec(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY embedding::halfvec(3072) <=> $1::halfvec(3072)")).
		WithArgs(sqlmock.AnyArg(), "openai-3072", "bot|u1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "score", "metadata"}).AddRow("a", 0.9, []byte(`{}`)))

	matches, err := s.Query(context.Background(), "openai-3072", "bot|u1", make([]float32, 3072), 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM vectors WHERE index_name = $1 AND namespace = $2 AND id IN ($3, $4)")).
		WithArgs("local-2", "bot|u1", "a", "b").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, s.Delete(context.Background(), "local-2", "bot|u1", []string{"a", "b"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_NilDB(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationFiles.ReadFile("migrations/00001_create_vectors.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
	assert.Contains(t, string(data), "CREATE EXTENSION IF NOT EXISTS vector")
}
