package postgresrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository"
)

const maxTxAttempts = 3

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn in one read-committed transaction scoped to orgID. Calendar
// writers are serialized by the property lock, so serialization failures are
// rare; when they happen the whole function is retried.
func (s *Store) RunTx(
	ctx context.Context,
	orgID int64,
	fn func(ctx context.Context, tx repository.Tx) error,
) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, &pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, db DB) error {
			return fn(ctx, s.tenant(orgID, db))
		})
		if err == nil || !(IsRetryable(err) || errors.Is(err, repository.ErrRetryable)) {
			return err
		}
	}
	return err
}

// Tenant returns an organization-scoped view that runs each call on the pool.
func (s *Store) Tenant(orgID int64) repository.Tx {
	return s.tenant(orgID, nil)
}

func (s *Store) runTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		if opts.AccessMode != "" {
			txOpts.AccessMode = opts.AccessMode
		}
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) tenant(orgID int64, db DB) *tenantTx {
	b := base{pool: s.pool, db: db, org: orgID}
	return &tenantTx{
		CalendarRepo:       &CalendarRepo{base: b},
		CommandRepo:        &CommandRepo{base: b},
		OutboxRepo:         &OutboxRepo{base: b},
		PricingRepo:        &PricingRepo{base: b},
		RestrictionRepo:    &RestrictionRepo{base: b},
		AdminRepo:          &AdminRepo{base: b},
		ReconciliationRepo: &ReconciliationRepo{base: b},
	}
}

func (s *Store) Outbox() *OutboxRepo { return &OutboxRepo{base: base{pool: s.pool}} }

func (s *Store) Channels() *ReconciliationRepo {
	return &ReconciliationRepo{base: base{pool: s.pool}}
}

// ActiveChannelConnections lists connections across organizations for the
// reconciliation scheduler.
func (s *Store) ActiveChannelConnections(ctx context.Context) ([]domain.ChannelConnection, error) {
	return s.Channels().ActiveChannelConnections(ctx)
}

// base carries the handle and the organization every query is filtered by.
type base struct {
	pool *pgxpool.Pool
	db   DB
	org  int64
}

func (b base) handle() DB {
	if b.db != nil {
		return b.db
	}
	return b.pool
}

type tenantTx struct {
	*CalendarRepo
	*CommandRepo
	*OutboxRepo
	*PricingRepo
	*RestrictionRepo
	*AdminRepo
	*ReconciliationRepo
}

var (
	_ repository.Store            = (*Store)(nil)
	_ repository.ChannelDirectory = (*Store)(nil)
	_ repository.OutboxStore      = (*OutboxRepo)(nil)
	_ repository.Tx               = (*tenantTx)(nil)
)
