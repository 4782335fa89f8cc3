package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stakeScope/internal/model"
)

// Store provides Postgres persistence for position snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PutSnapshotBatch satisfies storage.Storage.
func (s *Store) PutSnapshotBatch(ctx context.Context, snapshots []model.PositionSnapshot) error {
	return s.UpsertSnapshots(ctx, snapshots)
}

// UpsertSnapshots inserts or updates position snapshots.
func (s *Store) UpsertSnapshots(ctx context.Context, snapshots []model.PositionSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO position_snapshots (
				chain_id, account, source, contract, token_address, symbol,
				balance, fiat_balance, price_status, captured_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
			ON CONFLICT (chain_id, account, source, contract, token_address, captured_at)
			DO UPDATE SET
				symbol = EXCLUDED.symbol,
				balance = EXCLUDED.balance,
				fiat_balance = EXCLUDED.fiat_balance,
				price_status = EXCLUDED.price_status
		`,
			int64(snap.ChainID),
			snap.Account,
			snap.Source,
			snap.Contract,
			snap.TokenAddress,
			snap.Symbol,
			snap.Balance,
			snap.FiatBalance,
			string(snap.PriceStatus),
			snap.CapturedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert snapshot: %w", err)
		}
	}
	return nil
}
