package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/flakefi/flake-backend/internal/exchange"
)

// Repository persists executed swaps, request lifecycle transitions and
// pair snapshots. It is optional: when no DSN is configured the service
// runs memory-only and the repository is simply nil.
type Repository struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func NewRepository(db *sql.DB, logger *zap.SugaredLogger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// SwapRecord is one persisted trade row.
type SwapRecord struct {
	ID           int64  `json:"id"`
	Pair         uint64 `json:"pair"`
	Trader       string `json:"trader"`
	IsBuy        bool   `json:"is_buy"`
	AmountIn     uint64 `json:"amount_in"`
	AmountOut    uint64 `json:"amount_out"`
	ProtocolFee  uint64 `json:"protocol_fee"`
	CreatorFee   uint64 `json:"creator_fee"`
	SupplyMarker uint64 `json:"supply_marker"`
	ExecutedAt   int64  `json:"executed_at"`
}

// RequestTransition is one persisted request lifecycle row.
type RequestTransition struct {
	Pair       uint64 `json:"pair"`
	RequestID  string `json:"request_id"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Requester  string `json:"requester"`
	Amount     uint64 `json:"amount"`
	Payout     uint64 `json:"payout"`
	OccurredAt int64  `json:"occurred_at"`
}

func (r *Repository) StoreSwap(ctx context.Context, res *exchange.SwapResult, executedAt int64) error {
	query := `
		INSERT INTO swaps (pair_id, trader, is_buy, amount_in, amount_out, protocol_fee, creator_fee, supply_marker, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		res.Pair,
		string(res.Trader),
		res.IsBuy,
		res.AmountIn,
		res.AmountOut,
		res.ProtocolFee,
		res.CreatorFee,
		res.SupplyMarker,
		executedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to store swap: %w", err)
	}

	return nil
}

func (r *Repository) StoreRequestTransition(ctx context.Context, t RequestTransition) error {
	query := `
		INSERT INTO request_events (pair_id, request_id, kind, status, requester, amount, payout, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		t.Pair,
		t.RequestID,
		t.Kind,
		t.Status,
		t.Requester,
		t.Amount,
		t.Payout,
		t.OccurredAt,
	)

	if err != nil {
		return fmt.Errorf("failed to store request transition: %w", err)
	}

	return nil
}

// StorePairSnapshot persists a pair's state: the canonical BCS blob plus a
// queryable JSON projection.
func (r *Repository) StorePairSnapshot(ctx context.Context, pair *exchange.Pair, blob []byte, takenAt int64) error {
	detail, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed to marshal pair detail: %w", err)
	}

	query := `
		INSERT INTO pair_snapshots (pair_id, taken_at, snapshot, detail)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pair_id, taken_at) DO UPDATE SET
			snapshot = EXCLUDED.snapshot,
			detail = EXCLUDED.detail
	`

	_, err = r.db.ExecContext(ctx, query, pair.CreationNumber, takenAt, blob, detail)
	if err != nil {
		return fmt.Errorf("failed to store pair snapshot: %w", err)
	}

	return nil
}

// Trades returns the most recent swaps of one pair, newest first.
func (r *Repository) Trades(ctx context.Context, pair uint64, limit int) ([]SwapRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, pair_id, trader, is_buy, amount_in, amount_out, protocol_fee, creator_fee, supply_marker, executed_at
		FROM swaps
		WHERE pair_id = $1
		ORDER BY executed_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	records := []SwapRecord{}
	for rows.Next() {
		var rec SwapRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Pair,
			&rec.Trader,
			&rec.IsBuy,
			&rec.AmountIn,
			&rec.AmountOut,
			&rec.ProtocolFee,
			&rec.CreatorFee,
			&rec.SupplyMarker,
			&rec.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trade rows error: %w", err)
	}

	return records, nil
}

// RequestHistory returns a pair's request transitions, newest first.
func (r *Repository) RequestHistory(ctx context.Context, pair uint64, limit int) ([]RequestTransition, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT pair_id, request_id, kind, status, requester, amount, payout, occurred_at
		FROM request_events
		WHERE pair_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query request history: %w", err)
	}
	defer rows.Close()

	transitions := []RequestTransition{}
	for rows.Next() {
		var t RequestTransition
		if err := rows.Scan(
			&t.Pair,
			&t.RequestID,
			&t.Kind,
			&t.Status,
			&t.Requester,
			&t.Amount,
			&t.Payout,
			&t.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan request row: %w", err)
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("request rows error: %w", err)
	}

	return transitions, nil
}

// Ping verifies database connectivity for readiness checks.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
