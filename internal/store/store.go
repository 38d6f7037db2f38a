// Package store persists the structured memory families in PostgreSQL:
// conversation entries, the durable fact index, topic snapshots, period
// summaries, daily wellbeing metrics, and user profiles.
//
// All writes are single atomic statements (upserts via ON CONFLICT); there is
// no read-modify-write anywhere, so concurrent background tasks settle to
// last-write-wins without locking. A small per-session read cache fronts the
// fact index and is invalidated eagerly on any fact or profile write.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memodiary/memo/internal/log"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Querier is the subset of pgxpool.Pool the store needs. Defined here so
// tests can substitute a transaction or a fake.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed structured memory store.
type Store struct {
	db     Querier
	pool   *pgxpool.Pool
	cache  *factCache
	logger log.Logger
}

// New connects to PostgreSQL and returns a Store. The caller is responsible
// for running migrations first.
func New(ctx context.Context, dsn string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Store{
		db:     pool,
		pool:   pool,
		cache:  newFactCache(defaultCacheCap),
		logger: logger.With("component", "store"),
	}, nil
}

// NewWithQuerier returns a Store over an existing querier (e.g. a test
// transaction). Close is a no-op for stores built this way.
func NewWithQuerier(db Querier, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		db:     db,
		cache:  newFactCache(defaultCacheCap),
		logger: logger.With("component", "store"),
	}
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
