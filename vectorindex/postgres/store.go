// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/vectorindex"
)

// Store is a vectorindex.Store backed by PostgreSQL.
type Store struct {
	db     *sql.DB
	owned  bool
	logger *slog.Logger
}

var _ vectorindex.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// Open connects to dsn with the pgx driver, verifies the connection and
// applies migrations. The returned Store owns the connection pool.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s, err := New(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New wraps an existing database handle. The schema must already exist.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "pgvector-store")
	return s, nil
}

// Close closes the pool if the Store opened it.
func (s *Store) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// DescribeIndex implements vectorindex.Store.
func (s *Store) DescribeIndex(ctx context.Context, name string) (vectorindex.IndexInfo, error) {
	const q = `SELECT name, dimension, metric FROM vector_indexes WHERE name = $1`
	var (
		info   vectorindex.IndexInfo
		metric string
	)
	err := s.db.QueryRowContext(ctx, q, name).Scan(&info.Name, &info.Dimension, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return vectorindex.IndexInfo{}, vectorindex.ErrIndexNotFound
	}
	if err != nil {
		return vectorindex.IndexInfo{}, err
	}
	info.Metric = vectorindex.Metric(metric)
	return info, nil
}

// CreateIndex implements vectorindex.Store. The catalog row and the
// partial HNSW index are created in one transaction.
func (s *Store) CreateIndex(ctx context.Context, name string, dimension int, metric vectorindex.Metric) error {
	if metric != vectorindex.MetricCosine {
		return fmt.Errorf("unsupported metric %q", metric)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const insert = `
		INSERT INTO vector_indexes (name, dimension, metric)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`
	res, err := tx.ExecContext(ctx, insert, name, dimension, string(metric))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return vectorindex.ErrIndexExists
	}

	if _, err := tx.ExecContext(ctx, hnswDDL(name, dimension)); err != nil {
		return fmt.Errorf("creating hnsw index: %w", err)
	}
	return tx.Commit()
}

// maxVectorHNSWDim is the largest dimension pgvector can build an HNSW
// index over for the vector type. Wider embeddings are indexed as halfvec.
const maxVectorHNSWDim = 2000

// vectorCast returns the column type an index of the given dimension is
// built and searched over.
func vectorCast(dimension int) (typ, ops string) {
	if dimension > maxVectorHNSWDim {
		return fmt.Sprintf("halfvec(%d)", dimension), "halfvec_cosine_ops"
	}
	return fmt.Sprintf("vector(%d)", dimension), "vector_cosine_ops"
}

func hnswDDL(name string, dimension int) string {
	ident := pgx.Identifier{"vectors_" + strings.NewReplacer("-", "_", ".", "_").Replace(name) + "_hnsw"}.Sanitize()
	literal := "'" + strings.ReplaceAll(name, "'", "''") + "'"
	typ, ops := vectorCast(dimension)
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON vectors USING hnsw ((embedding::%s) %s) WHERE index_name = %s",
		ident, typ, ops, literal,
	)
}

// queryStatement orders by the same expression the partial index is built
// on so the planner can use it.
func queryStatement(dimension int) string {
	typ, _ := vectorCast(dimension)
	dist := fmt.Sprintf("embedding::%s <=> $1::%s", typ, typ)
	return fmt.Sprintf(`
		SELECT id, 1 - (%s) AS score, metadata
		FROM vectors
		WHERE index_name = $2 AND namespace = $3
		ORDER BY %s
		LIMIT $4
	`, dist, dist)
}

// Upsert implements vectorindex.Store with a single multi-row statement.
// Ids returned by the statement are the ones the database acknowledged.
func (s *Store) Upsert(ctx context.Context, index string, namespace core.Namespace, vectors []vectorindex.Vector) (vectorindex.UpsertResult, error) {
	if len(vectors) == 0 {
		return vectorindex.UpsertResult{}, nil
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(vectors)*3+2)
	)
	args = append(args, index, string(namespace))
	sb.WriteString("INSERT INTO vectors (index_name, namespace, id, embedding, metadata) VALUES ")
	for i, v := range vectors {
		meta, err := json.Marshal(v.Metadata)
		if err != nil {
			return vectorindex.UpsertResult{}, fmt.Errorf("marshal metadata for %s: %w", v.ID, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&sb, "($1, $2, $%d, $%d, $%d)", n+1, n+2, n+3)
		args = append(args, v.ID, pgvector.NewVector(v.Values), string(meta))
	}
	sb.WriteString(` ON CONFLICT (index_name, namespace, id) DO UPDATE
		SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = now()
		RETURNING id`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return vectorindex.UpsertResult{}, err
	}
	defer rows.Close()

	acked := make(map[string]bool, len(vectors))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return vectorindex.UpsertResult{}, err
		}
		acked[id] = true
	}
	if err := rows.Err(); err != nil {
		return vectorindex.UpsertResult{}, err
	}

	res := vectorindex.UpsertResult{Failed: make(map[string]error)}
	for _, v := range vectors {
		if acked[v.ID] {
			res.Succeeded = append(res.Succeeded, v.ID)
		} else {
			res.Failed[v.ID] = errors.New("not acknowledged")
		}
	}
	return res, nil
}

// Query implements vectorindex.Store. Score is cosine similarity.
func (s *Store) Query(ctx context.Context, index string, namespace core.Namespace, vector []float32, topK int) ([]vectorindex.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, queryStatement(len(vector)), pgvector.NewVector(vector), index, string(namespace), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vectorindex.Match
	for rows.Next() {
		var (
			m    vectorindex.Match
			meta []byte
		)
		if err := rows.Scan(&m.ID, &m.Score, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				s.logger.Warn("skipping unreadable metadata", "id", m.ID, "err", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete implements vectorindex.Store.
func (s *Store) Delete(ctx context.Context, index string, namespace core.Namespace, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, index, string(namespace))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, id)
	}
	q := "DELETE FROM vectors WHERE index_name = $1 AND namespace = $2 AND id IN (" + strings.Join(placeholders, ", ") + ")"
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}
