package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stargate-bridger/bridger/internal/ledger"
)

var ErrInvalidConfig = errors.New("ledger/postgres: invalid config")

// Store mirrors ledger records into Postgres for querying across hosts.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ledger/postgres: ensure schema: %w", err)
	}
	return nil
}

// Record inserts rec. Re-inserting an id already mirrored is a no-op.
func (s *Store) Record(ctx context.Context, wallet string, rec ledger.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if rec.ID == "" {
		return fmt.Errorf("%w: record without id", ErrInvalidConfig)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO bridge_records (
			id,
			wallet_address,
			from_chain,
			to_chain,
			amount_eth,
			mode,
			gas_price_gwei,
			gas_fee_eth,
			bridge_fee_eth,
			total_fee_eth,
			eth_price_usd,
			total_fee_usd,
			message_fee_wei,
			success,
			tx_hash,
			error,
			failure_reason,
			recorded_at,
			duration_seconds
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::TEXT::NUMERIC,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (id) DO NOTHING
	`,
		rec.ID,
		wallet,
		rec.FromChain,
		rec.ToChain,
		rec.Amount,
		rec.Mode,
		rec.GasPriceGwei,
		rec.GasFeeETH,
		rec.BridgeFeeETH,
		rec.TotalFeeETH,
		rec.ETHPriceUSD,
		rec.TotalFeeUSD,
		nullable(rec.MessageFeeWei),
		rec.Success,
		nullable(rec.TxHash),
		nullable(rec.Error),
		nullable(rec.FailureReason),
		rec.Timestamp.UTC(),
		rec.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("ledger/postgres: insert %s: %w", rec.ID, err)
	}
	return nil
}

// ListByWallet returns the wallet's newest records first. limit <= 0 returns all of them.
func (s *Store) ListByWallet(ctx context.Context, wallet string, limit int) ([]ledger.Record, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	q := `
		SELECT
			id, wallet_address, from_chain, to_chain, amount_eth, mode,
			gas_price_gwei, gas_fee_eth, bridge_fee_eth, total_fee_eth, eth_price_usd, total_fee_usd,
			COALESCE(message_fee_wei::TEXT, ''), success,
			COALESCE(tx_hash, ''), COALESCE(error, ''), COALESCE(failure_reason, ''),
			recorded_at, duration_seconds
		FROM bridge_records
		WHERE wallet_address = $1
		ORDER BY recorded_at DESC, id
	`
	args := []any{wallet}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: list: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Record, error) {
		var r ledger.Record
		err := row.Scan(
			&r.ID, &r.WalletAddress, &r.FromChain, &r.ToChain, &r.Amount, &r.Mode,
			&r.GasPriceGwei, &r.GasFeeETH, &r.BridgeFeeETH, &r.TotalFeeETH, &r.ETHPriceUSD, &r.TotalFeeUSD,
			&r.MessageFeeWei, &r.Success,
			&r.TxHash, &r.Error, &r.FailureReason,
			&r.Timestamp, &r.DurationSeconds,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: scan: %w", err)
	}
	return recs, nil
}

// Wallets returns every wallet with mirrored records.
func (s *Store) Wallets(ctx context.Context) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT wallet_address FROM bridge_records ORDER BY wallet_address`)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: wallets: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: wallets: %w", err)
	}
	return out, nil
}

func nullable(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
