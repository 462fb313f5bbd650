// Package store implements the relational store on top of Postgres via
// pgx/v5, using direct SQL over a pgxpool.Pool rather than an ORM.
package store

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool and exposes the queries needed by the
// orchestrator and the two reconcilers.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Pool exposes the underlying pool for components (metrics, health checks)
// that only need to ping or inspect connection stats.
func (s *Store) Pool() *pgxpool.Pool {
	return s.db
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on any error or panic. The Ingest Reconciler uses this to
// keep the Observation insert, Vehicle merge, Listing upsert, and optional
// PriceEvent insert atomic.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(tx)
	return err
}
