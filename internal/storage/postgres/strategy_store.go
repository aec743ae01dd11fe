package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/storage"
)

// StrategyStore implements storage.StrategyStore using PostgreSQL.
// Actions live in strategy_actions and are rewritten on every Update.
type StrategyStore struct {
	pool *Pool
}

// NewStrategyStore creates a new StrategyStore.
func NewStrategyStore(pool *Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StrategyStore = (*StrategyStore)(nil)

const strategyColumns = `
	id, creator, name, description, strategy_type, active,
	min_profit_bps, max_gas_price::text, deadline,
	execution_count, total_profit_usd::text, created_at, updated_at`

// NextID allocates the next strategy id.
func (s *StrategyStore) NextID(ctx context.Context) (uint64, error) {
	start := time.Now()
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT nextval('strategy_id_seq')`).Scan(&id)
	observe("strategy_next_id", start, err)
	if err != nil {
		return 0, fmt.Errorf("next strategy id: %w", err)
	}
	return uint64(id), nil
}

// PeekNextID returns the id the next NextID call will allocate.
func (s *StrategyStore) PeekNextID(ctx context.Context) (uint64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		SELECT CASE WHEN is_called THEN last_value + 1 ELSE last_value END
		FROM strategy_id_seq
	`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("peek strategy id: %w", err)
	}
	return uint64(id), nil
}

// Insert adds a new strategy. Returns ErrDuplicateKey if id exists.
func (s *StrategyStore) Insert(ctx context.Context, st *domain.Strategy) (err error) {
	if st == nil || st.ID == 0 {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("strategy_insert", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO strategies (
			id, creator, name, description, strategy_type, active,
			min_profit_bps, max_gas_price, deadline,
			execution_count, total_profit_usd, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8::numeric, $9,
			$10, $11::numeric, $12, $13
		)
	`,
		int64(st.ID), st.Creator.Hex(), st.Name, st.Description, string(st.Type), st.Active,
		int32(st.MinProfitBps), numeric(st.MaxGasPrice), st.Deadline,
		int64(st.ExecutionCount), st.TotalProfitUSD.String(), st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert strategy: %w", err)
	}
	if err := insertActions(ctx, tx, st); err != nil {
		return err
	}

	// Keep the sequence ahead of explicitly inserted ids.
	if _, err := tx.Exec(ctx, `
		SELECT setval('strategy_id_seq', GREATEST(last_value, $1), true) FROM strategy_id_seq
	`, int64(st.ID)); err != nil {
		return fmt.Errorf("advance strategy id: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertActions(ctx context.Context, tx pgx.Tx, st *domain.Strategy) error {
	batch := &pgx.Batch{}
	for i, a := range st.Actions {
		payload := a.Payload
		if payload == nil {
			payload = []byte{}
		}
		batch.Queue(`
			INSERT INTO strategy_actions (strategy_id, idx, kind, target, payload, value, critical, description)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)
		`, int64(st.ID), i, int16(a.Kind), a.Target.Hex(), payload, numeric(a.Value), a.Critical, a.Description)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert strategy actions: %w", err)
	}
	return nil
}

// GetByID retrieves a strategy with its actions. Returns ErrNotFound if not exists.
func (s *StrategyStore) GetByID(ctx context.Context, id uint64) (*domain.Strategy, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `SELECT `+strategyColumns+` FROM strategies WHERE id = $1`, int64(id))
	st, err := scanStrategy(row)
	observe("strategy_get", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get strategy by id: %w", err)
	}

	actions, err := s.actions(ctx, []int64{int64(id)})
	if err != nil {
		return nil, err
	}
	st.Actions = actions[id]
	return st, nil
}

// Update replaces a stored strategy. Returns ErrNotFound if not exists.
func (s *StrategyStore) Update(ctx context.Context, st *domain.Strategy) (err error) {
	if st == nil || st.ID == 0 {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("strategy_update", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE strategies SET
			name = $2, description = $3, strategy_type = $4, active = $5,
			min_profit_bps = $6, max_gas_price = $7::numeric, deadline = $8,
			execution_count = $9, total_profit_usd = $10::numeric, updated_at = $11
		WHERE id = $1
	`,
		int64(st.ID), st.Name, st.Description, string(st.Type), st.Active,
		int32(st.MinProfitBps), numeric(st.MaxGasPrice), st.Deadline,
		int64(st.ExecutionCount), st.TotalProfitUSD.String(), st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update strategy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM strategy_actions WHERE strategy_id = $1`, int64(st.ID)); err != nil {
		return fmt.Errorf("clear strategy actions: %w", err)
	}
	if err := insertActions(ctx, tx, st); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// List retrieves all strategies, ordered by id ASC.
func (s *StrategyStore) List(ctx context.Context) ([]*domain.Strategy, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `SELECT `+strategyColumns+` FROM strategies ORDER BY id ASC`)
	if err != nil {
		observe("strategy_list", start, err)
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()

	var (
		result []*domain.Strategy
		ids    []int64
	)
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		result = append(result, st)
		ids = append(ids, int64(st.ID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategies: %w", err)
	}
	observe("strategy_list", start, nil)

	if len(ids) == 0 {
		return result, nil
	}
	actions, err := s.actions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, st := range result {
		st.Actions = actions[st.ID]
	}
	return result, nil
}

// ListByCreator retrieves up to limit strategy ids of creator, ordered by id ASC.
func (s *StrategyStore) ListByCreator(ctx context.Context, creator common.Address, limit int) ([]uint64, error) {
	query := `SELECT id FROM strategies WHERE creator = $1 ORDER BY id ASC`
	args := []any{creator.Hex()}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list strategies by creator: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan strategy id: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy ids: %w", err)
	}
	return ids, nil
}

// CountByCreator returns how many strategies creator owns.
func (s *StrategyStore) CountByCreator(ctx context.Context, creator common.Address) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM strategies WHERE creator = $1`, creator.Hex()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count strategies by creator: %w", err)
	}
	return n, nil
}

// actions loads the actions of the given strategies keyed by strategy id.
func (s *StrategyStore) actions(ctx context.Context, ids []int64) (map[uint64][]domain.Action, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT strategy_id, kind, target, payload, value::text, critical, description
		FROM strategy_actions
		WHERE strategy_id = ANY($1)
		ORDER BY strategy_id ASC, idx ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("load strategy actions: %w", err)
	}
	defer rows.Close()

	out := make(map[uint64][]domain.Action, len(ids))
	for rows.Next() {
		var (
			id      int64
			kind    int16
			target  string
			payload []byte
			value   *string
			a       domain.Action
		)
		if err := rows.Scan(&id, &kind, &target, &payload, &value, &a.Critical, &a.Description); err != nil {
			return nil, fmt.Errorf("scan strategy action: %w", err)
		}
		a.Kind = domain.ActionKind(kind)
		a.Target = common.HexToAddress(target)
		a.Payload = payload
		if a.Value, err = parseNumeric(value); err != nil {
			return nil, err
		}
		out[uint64(id)] = append(out[uint64(id)], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy actions: %w", err)
	}
	return out, nil
}

func scanStrategy(row pgx.Row) (*domain.Strategy, error) {
	var (
		st          domain.Strategy
		id          int64
		creator     string
		typ         string
		minProfit   int32
		maxGas      *string
		execCount   int64
		totalProfit string
	)
	err := row.Scan(
		&id, &creator, &st.Name, &st.Description, &typ, &st.Active,
		&minProfit, &maxGas, &st.Deadline,
		&execCount, &totalProfit, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.ID = uint64(id)
	st.Creator = common.HexToAddress(creator)
	st.Type = domain.StrategyType(typ)
	st.MinProfitBps = uint32(minProfit)
	st.ExecutionCount = uint64(execCount)
	if st.MaxGasPrice, err = parseNumeric(maxGas); err != nil {
		return nil, err
	}
	if st.TotalProfitUSD, err = decimal.NewFromString(totalProfit); err != nil {
		return nil, fmt.Errorf("invalid total profit %q: %w", totalProfit, err)
	}
	return &st, nil
}
