package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/northstaff/hragent/internal/dialog"
	"github.com/northstaff/hragent/pkg/logging"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInsufficientBalance is returned when a debit would overdraw the ledger.
	ErrInsufficientBalance = errors.New("store: insufficient balance")
)

// Querier is the query surface shared by pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the pool surface the store needs; pgxmock satisfies it in tests.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the single database layer shared by all pipelines.
type Store struct {
	db     DB
	logger *logging.Logger
}

func New(db DB, logger *logging.Logger) *Store {
	if db == nil {
		panic("store: db cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{db: db, logger: logger}
}

// Begin opens a transaction for a unit of work.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: failed to begin tx: %w", err)
	}
	return tx, nil
}

// DB exposes the underlying pool surface for non-transactional reads.
func (s *Store) DB() Querier { return s.db }

func marshalEntries(entries []dialog.Entry) ([]byte, error) {
	if entries == nil {
		return nil, nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("store: failed to marshal entries: %w", err)
	}
	return data, nil
}

func unmarshalEntries(data []byte) ([]dialog.Entry, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var entries []dialog.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("store: failed to unmarshal entries: %w", err)
	}
	return entries, nil
}
