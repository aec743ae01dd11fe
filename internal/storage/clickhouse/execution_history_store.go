package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/storage"
)

// profitScale is the fractional precision of the profit_usd column.
const profitScale = 30

// ExecutionHistoryStore mirrors execution results into ClickHouse for
// analytics. It implements storage.ExecutionStore and
// storage.StrategyStatsStore.
type ExecutionHistoryStore struct {
	conn *Conn
}

// NewExecutionHistoryStore creates a new ExecutionHistoryStore.
func NewExecutionHistoryStore(conn *Conn) *ExecutionHistoryStore {
	return &ExecutionHistoryStore{conn: conn}
}

// Compile-time interface checks.
var (
	_ storage.ExecutionStore     = (*ExecutionHistoryStore)(nil)
	_ storage.StrategyStatsStore = (*ExecutionHistoryStore)(nil)
)

const historyColumns = `
	id, strategy_id, executor, nonce, status, failure_kind, error,
	gas_used, profit_usd, profit_assets, profit_amounts, ts`

// Insert adds a new result. Returns ErrDuplicateKey if id exists.
func (s *ExecutionHistoryStore) Insert(ctx context.Context, r *domain.ExecutionResult) (err error) {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("execution_insert", start, err) }()

	// ReplacingMergeTree does not reject duplicates, so check first.
	exists, err := s.exists(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	assets := make([]string, len(r.AssetProfits))
	amounts := make([]string, len(r.AssetProfits))
	for i, p := range r.AssetProfits {
		assets[i] = p.Asset.Hex()
		amounts[i] = "0"
		if p.Amount != nil {
			amounts[i] = p.Amount.String()
		}
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO execution_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.StrategyID, r.Executor.Hex(), r.Nonce, string(r.Status), string(r.FailureKind), r.Error,
		r.GasUsed, r.ProfitUSD.Round(profitScale), assets, amounts, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert execution history: %w", err)
	}
	return nil
}

// GetByID retrieves a result by its provenance hash. Returns ErrNotFound if not exists.
func (s *ExecutionHistoryStore) GetByID(ctx context.Context, id string) (*domain.ExecutionResult, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+historyColumns+`
		FROM execution_history FINAL
		WHERE id = ?
		LIMIT 1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get execution history by id: %w", err)
	}
	defer rows.Close()

	results, err := scanHistory(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, storage.ErrNotFound
	}
	return results[0], nil
}

// GetByStrategyID retrieves all results for a strategy, ordered by (timestamp, nonce) ASC.
func (s *ExecutionHistoryStore) GetByStrategyID(ctx context.Context, strategyID uint64) ([]*domain.ExecutionResult, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+historyColumns+`
		FROM execution_history FINAL
		WHERE strategy_id = ?
		ORDER BY ts ASC, nonce ASC
	`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("get execution history by strategy: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

// GetByExecutor retrieves all results submitted by executor, ordered by (timestamp, nonce) ASC.
func (s *ExecutionHistoryStore) GetByExecutor(ctx context.Context, executor common.Address) ([]*domain.ExecutionResult, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+historyColumns+`
		FROM execution_history FINAL
		WHERE executor = ?
		ORDER BY ts ASC, nonce ASC
	`, executor.Hex())
	if err != nil {
		return nil, fmt.Errorf("get execution history by executor: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

// GetStats aggregates the execution history of one strategy. A strategy
// that never executed yields zero counts.
func (s *ExecutionHistoryStore) GetStats(ctx context.Context, strategyID uint64) (*storage.StrategyStats, error) {
	start := time.Now()
	stats := &storage.StrategyStats{StrategyID: strategyID}
	err := s.conn.QueryRow(ctx, `
		SELECT
			count(),
			countIf(status = ?),
			sum(profit_usd),
			sum(gas_used),
			max(ts)
		FROM execution_history FINAL
		WHERE strategy_id = ?
	`, string(domain.ExecutionSuccess), strategyID).Scan(
		&stats.Attempts,
		&stats.Successes,
		&stats.TotalProfitUSD,
		&stats.TotalGasUsed,
		&stats.LastExecution,
	)
	observe("strategy_stats", start, err)
	if err != nil {
		return nil, fmt.Errorf("strategy stats: %w", err)
	}
	return stats, nil
}

func (s *ExecutionHistoryStore) exists(ctx context.Context, id string) (bool, error) {
	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM execution_history WHERE id = ?`, id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanHistory(rows driver.Rows) ([]*domain.ExecutionResult, error) {
	var result []*domain.ExecutionResult
	for rows.Next() {
		var (
			r        domain.ExecutionResult
			executor string
			status   string
			kind     string
			profit   decimal.Decimal
			assets   []string
			amounts  []string
		)
		if err := rows.Scan(
			&r.ID, &r.StrategyID, &executor, &r.Nonce, &status, &kind, &r.Error,
			&r.GasUsed, &profit, &assets, &amounts, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan execution history: %w", err)
		}
		r.Executor = common.HexToAddress(executor)
		r.Status = domain.ExecutionStatus(status)
		r.FailureKind = domain.ErrorKind(kind)
		r.ProfitUSD = profit
		if len(assets) != len(amounts) {
			return nil, fmt.Errorf("execution %s: %d profit assets, %d amounts", r.ID, len(assets), len(amounts))
		}
		for i := range assets {
			amount, ok := new(big.Int).SetString(amounts[i], 10)
			if !ok {
				return nil, fmt.Errorf("execution %s: invalid profit amount %q", r.ID, amounts[i])
			}
			r.AssetProfits = append(r.AssetProfits, domain.AssetProfit{Asset: common.HexToAddress(assets[i]), Amount: amount})
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution history: %w", err)
	}
	return result, nil
}
