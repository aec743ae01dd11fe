package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/storage"
)

// ExecutionStore implements storage.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

const executionColumns = `
	id, strategy_id, executor, nonce, status, failure_kind, error,
	gas_used, profit_usd::text, asset_profits, ts`

// assetProfitRow is the JSONB encoding of one per-asset profit.
type assetProfitRow struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// Insert adds a new result. Returns ErrDuplicateKey if id exists.
func (s *ExecutionStore) Insert(ctx context.Context, r *domain.ExecutionResult) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	profits := make([]assetProfitRow, 0, len(r.AssetProfits))
	for _, p := range r.AssetProfits {
		amount := "0"
		if p.Amount != nil {
			amount = p.Amount.String()
		}
		profits = append(profits, assetProfitRow{Asset: p.Asset.Hex(), Amount: amount})
	}
	encoded, err := json.Marshal(profits)
	if err != nil {
		return fmt.Errorf("encode asset profits: %w", err)
	}

	start := time.Now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO execution_results (
			id, strategy_id, executor, nonce, status, failure_kind, error,
			gas_used, profit_usd, asset_profits, ts
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9::numeric, $10, $11
		)
	`,
		r.ID, int64(r.StrategyID), r.Executor.Hex(), int64(r.Nonce), string(r.Status), string(r.FailureKind), r.Error,
		int64(r.GasUsed), r.ProfitUSD.String(), encoded, r.Timestamp,
	)
	observe("execution_insert", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert execution result: %w", err)
	}
	return nil
}

// GetByID retrieves a result by its provenance hash. Returns ErrNotFound if not exists.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (*domain.ExecutionResult, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM execution_results WHERE id = $1`, id)
	r, err := scanExecution(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get execution result by id: %w", err)
	}
	return r, nil
}

// GetByStrategyID retrieves all results for a strategy, ordered by (timestamp, nonce) ASC.
func (s *ExecutionStore) GetByStrategyID(ctx context.Context, strategyID uint64) ([]*domain.ExecutionResult, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM execution_results
		WHERE strategy_id = $1
		ORDER BY ts ASC, nonce ASC
	`, int64(strategyID))
	observe("execution_by_strategy", start, err)
	if err != nil {
		return nil, fmt.Errorf("get execution results by strategy: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// GetByExecutor retrieves all results submitted by executor, ordered by (timestamp, nonce) ASC.
func (s *ExecutionStore) GetByExecutor(ctx context.Context, executor common.Address) ([]*domain.ExecutionResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM execution_results
		WHERE executor = $1
		ORDER BY ts ASC, nonce ASC
	`, executor.Hex())
	if err != nil {
		return nil, fmt.Errorf("get execution results by executor: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

func scanExecutions(rows pgx.Rows) ([]*domain.ExecutionResult, error) {
	var result []*domain.ExecutionResult
	for rows.Next() {
		r, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution result: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution results: %w", err)
	}
	return result, nil
}

func scanExecution(row pgx.Row) (*domain.ExecutionResult, error) {
	var (
		r          domain.ExecutionResult
		strategyID int64
		executor   string
		nonce      int64
		status     string
		kind       string
		gasUsed    int64
		profitUSD  string
		profits    []byte
	)
	err := row.Scan(
		&r.ID, &strategyID, &executor, &nonce, &status, &kind, &r.Error,
		&gasUsed, &profitUSD, &profits, &r.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	r.StrategyID = uint64(strategyID)
	r.Executor = common.HexToAddress(executor)
	r.Nonce = uint64(nonce)
	r.Status = domain.ExecutionStatus(status)
	r.FailureKind = domain.ErrorKind(kind)
	r.GasUsed = uint64(gasUsed)
	if r.ProfitUSD, err = decimal.NewFromString(profitUSD); err != nil {
		return nil, fmt.Errorf("invalid profit %q: %w", profitUSD, err)
	}

	var decoded []assetProfitRow
	if err := json.Unmarshal(profits, &decoded); err != nil {
		return nil, fmt.Errorf("decode asset profits: %w", err)
	}
	for _, p := range decoded {
		amount, ok := new(big.Int).SetString(p.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("invalid asset profit %q", p.Amount)
		}
		r.AssetProfits = append(r.AssetProfits, domain.AssetProfit{Asset: common.HexToAddress(p.Asset), Amount: amount})
	}
	return &r, nil
}
