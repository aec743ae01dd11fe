// Package registry owns strategy records and their execution history.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/storage"
)

// Registry errors. All of them are returned as precondition violations.
var (
	ErrStrategyNotFound  = errors.New("strategy not found")
	ErrUnauthorized      = errors.New("caller is neither creator nor owner")
	ErrEmptyName         = errors.New("name is empty")
	ErrEmptyDescription  = errors.New("description is empty")
	ErrInvalidType       = errors.New("invalid strategy type")
	ErrEmptyActions      = errors.New("strategy has no actions")
	ErrTooManyActions    = errors.New("too many actions")
	ErrInvalidAction     = errors.New("invalid action")
	ErrInvalidDeadline   = errors.New("invalid deadline")
	ErrInvalidMinProfit  = errors.New("invalid minimum profit")
	ErrTooManyStrategies = errors.New("strategy limit per user reached")
	ErrActionIndex       = errors.New("action index out of range")
	ErrLastAction        = errors.New("cannot remove the last action")
	ErrEmergencyStop     = errors.New("emergency stop engaged")
)

// Defaults.
const (
	DefaultMaxStrategiesPerUser = 50
	DefaultMaxActions           = 20
)

// Policy is the subset of the safety governor the registry consults.
type Policy interface {
	IsOwner(identity common.Address) bool
	IsEmergencyStopped() bool
	Params() domain.SafetyParams
}

// Options configures a Registry.
type Options struct {
	Strategies storage.StrategyStore
	Executions storage.ExecutionStore
	// Mirror optionally receives a copy of every execution result, e.g. an
	// analytics store. Mirror failures are logged, never returned.
	Mirror storage.ExecutionStore
	Policy Policy

	MaxStrategiesPerUser int
	MaxActions           int

	Now    func() time.Time
	Logger *zap.Logger
}

// Registry validates and persists strategies. Writes are serialized.
type Registry struct {
	strategies storage.StrategyStore
	executions storage.ExecutionStore
	mirror     storage.ExecutionStore
	policy     Policy

	maxPerUser int
	maxActions int

	now    func() time.Time
	logger *zap.Logger

	mu sync.Mutex
}

// New creates a registry.
func New(opts Options) *Registry {
	if opts.MaxStrategiesPerUser <= 0 {
		opts.MaxStrategiesPerUser = DefaultMaxStrategiesPerUser
	}
	if opts.MaxActions <= 0 {
		opts.MaxActions = DefaultMaxActions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Registry{
		strategies: opts.Strategies,
		executions: opts.Executions,
		mirror:     opts.Mirror,
		policy:     opts.Policy,
		maxPerUser: opts.MaxStrategiesPerUser,
		maxActions: opts.MaxActions,
		now:        opts.Now,
		logger:     opts.Logger,
	}
}

// MaxStrategiesPerUser returns the per-user cap.
func (r *Registry) MaxStrategiesPerUser() int {
	return r.maxPerUser
}

// CreateParams are the caller-supplied fields of a new strategy.
type CreateParams struct {
	Name         string
	Description  string
	Type         domain.StrategyType
	Actions      []domain.Action
	Deadline     int64
	MinProfitBps uint32
	MaxGasPrice  *big.Int // optional
}

// Create validates p and stores a new active strategy owned by caller.
func (r *Registry) Create(ctx context.Context, caller common.Address, p CreateParams) (uint64, error) {
	const op = "create strategy"

	if caller == (common.Address{}) {
		return 0, domain.Precondition(op, ErrUnauthorized)
	}
	if r.policy.IsEmergencyStopped() {
		return 0, domain.Precondition(op, ErrEmergencyStop)
	}
	now := r.now().Unix()
	if err := r.validateCreate(p, now); err != nil {
		return 0, domain.Precondition(op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	count, err := r.strategies.CountByCreator(ctx, caller)
	if err != nil {
		return 0, fmt.Errorf("%s: count: %w", op, err)
	}
	if count >= r.maxPerUser {
		return 0, domain.Precondition(op, fmt.Errorf("%w: %d", ErrTooManyStrategies, r.maxPerUser))
	}

	id, err := r.strategies.NextID(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: allocate id: %w", op, err)
	}

	s := &domain.Strategy{
		ID:           id,
		Creator:      caller,
		Name:         strings.TrimSpace(p.Name),
		Description:  strings.TrimSpace(p.Description),
		Type:         p.Type,
		Active:       true,
		MinProfitBps: p.MinProfitBps,
		Deadline:     p.Deadline,
		Actions:      make([]domain.Action, len(p.Actions)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.MaxGasPrice != nil {
		s.MaxGasPrice = new(big.Int).Set(p.MaxGasPrice)
	}
	for i, a := range p.Actions {
		s.Actions[i] = a.Clone()
	}

	if err := r.strategies.Insert(ctx, s); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	r.logger.Info("strategy created",
		zap.Uint64("strategy_id", id),
		zap.String("creator", caller.Hex()),
		zap.String("type", string(p.Type)),
		zap.Int("actions", len(p.Actions)),
	)
	return id, nil
}

func (r *Registry) validateCreate(p CreateParams, now int64) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return ErrEmptyName
	case strings.TrimSpace(p.Description) == "":
		return ErrEmptyDescription
	case !p.Type.IsValid():
		return fmt.Errorf("%w: %q", ErrInvalidType, p.Type)
	case len(p.Actions) == 0:
		return ErrEmptyActions
	case len(p.Actions) > r.maxActions:
		return fmt.Errorf("%w: %d > %d", ErrTooManyActions, len(p.Actions), r.maxActions)
	case p.Deadline <= now:
		return fmt.Errorf("%w: %d is not after %d", ErrInvalidDeadline, p.Deadline, now)
	case p.MaxGasPrice != nil && p.MaxGasPrice.Sign() <= 0:
		return fmt.Errorf("%w: max gas price must be positive", ErrInvalidAction)
	}
	if err := r.validateMinProfit(p.MinProfitBps); err != nil {
		return err
	}
	for i, a := range p.Actions {
		if err := validateAction(a); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

func (r *Registry) validateMinProfit(bps uint32) error {
	floor := r.policy.Params().MinProfitBps
	if bps < floor || bps > domain.MaxBps {
		return fmt.Errorf("%w: %d bps outside [%d, %d]", ErrInvalidMinProfit, bps, floor, domain.MaxBps)
	}
	return nil
}

func validateAction(a domain.Action) error {
	switch {
	case !a.Kind.IsValid():
		return fmt.Errorf("%w: kind %d", ErrInvalidAction, a.Kind)
	case a.Target == (common.Address{}):
		return fmt.Errorf("%w: zero target", ErrInvalidAction)
	case a.Value != nil && a.Value.Sign() < 0:
		return fmt.Errorf("%w: negative value", ErrInvalidAction)
	}
	return nil
}

// mutate loads strategy id, checks caller may modify it, applies fn and
// stores the result. fn returning errNoChange skips the write.
func (r *Registry) mutate(ctx context.Context, op string, caller common.Address, id uint64, fn func(s *domain.Strategy, now int64) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.load(ctx, op, id)
	if err != nil {
		return err
	}
	if caller != s.Creator && !r.policy.IsOwner(caller) {
		return domain.Precondition(op, ErrUnauthorized)
	}

	now := r.now().Unix()
	if err := fn(s, now); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return domain.Precondition(op, err)
	}
	s.UpdatedAt = now

	if err := r.strategies.Update(ctx, s); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.logger.Info("strategy updated",
		zap.String("op", op),
		zap.Uint64("strategy_id", id),
		zap.String("caller", caller.Hex()),
	)
	return nil
}

var errNoChange = errors.New("no change")

// Update sets the active flag and, when deadline is non-zero, moves the
// deadline. A new deadline must be in the future and later than the current one.
func (r *Registry) Update(ctx context.Context, caller common.Address, id uint64, active bool, deadline int64) error {
	return r.mutate(ctx, "update strategy", caller, id, func(s *domain.Strategy, now int64) error {
		if deadline != 0 {
			if err := checkDeadline(s.Deadline, deadline, now); err != nil {
				return err
			}
			s.Deadline = deadline
		}
		s.Active = active
		return nil
	})
}

// Deactivate marks the strategy inactive. Deactivating an inactive
// strategy is a no-op.
func (r *Registry) Deactivate(ctx context.Context, caller common.Address, id uint64) error {
	return r.mutate(ctx, "deactivate strategy", caller, id, func(s *domain.Strategy, _ int64) error {
		if !s.Active {
			return errNoChange
		}
		s.Active = false
		return nil
	})
}

// ExtendDeadline moves the deadline strictly forward.
func (r *Registry) ExtendDeadline(ctx context.Context, caller common.Address, id uint64, deadline int64) error {
	return r.mutate(ctx, "extend deadline", caller, id, func(s *domain.Strategy, now int64) error {
		if err := checkDeadline(s.Deadline, deadline, now); err != nil {
			return err
		}
		s.Deadline = deadline
		return nil
	})
}

func checkDeadline(current, next, now int64) error {
	if next <= now || next <= current {
		return fmt.Errorf("%w: %d must exceed now %d and current %d", ErrInvalidDeadline, next, now, current)
	}
	return nil
}

// UpdateMinProfit changes the profit threshold.
func (r *Registry) UpdateMinProfit(ctx context.Context, caller common.Address, id uint64, bps uint32) error {
	return r.mutate(ctx, "update min profit", caller, id, func(s *domain.Strategy, _ int64) error {
		if err := r.validateMinProfit(bps); err != nil {
			return err
		}
		s.MinProfitBps = bps
		return nil
	})
}

// AddAction appends a to the strategy's actions.
func (r *Registry) AddAction(ctx context.Context, caller common.Address, id uint64, a domain.Action) error {
	return r.mutate(ctx, "add action", caller, id, func(s *domain.Strategy, _ int64) error {
		if err := validateAction(a); err != nil {
			return err
		}
		if len(s.Actions) >= r.maxActions {
			return fmt.Errorf("%w: %d", ErrTooManyActions, r.maxActions)
		}
		s.Actions = append(s.Actions, a.Clone())
		return nil
	})
}

// RemoveAction deletes the action at index by moving the last action into
// its slot. Relative order of the remaining actions is not preserved.
func (r *Registry) RemoveAction(ctx context.Context, caller common.Address, id uint64, index int) error {
	return r.mutate(ctx, "remove action", caller, id, func(s *domain.Strategy, _ int64) error {
		if index < 0 || index >= len(s.Actions) {
			return fmt.Errorf("%w: %d of %d", ErrActionIndex, index, len(s.Actions))
		}
		if len(s.Actions) == 1 {
			return ErrLastAction
		}
		last := len(s.Actions) - 1
		s.Actions[index] = s.Actions[last]
		s.Actions = s.Actions[:last]
		return nil
	})
}

// Get returns the strategy with id.
func (r *Registry) Get(ctx context.Context, id uint64) (*domain.Strategy, error) {
	return r.load(ctx, "get strategy", id)
}

func (r *Registry) load(ctx context.Context, op string, id uint64) (*domain.Strategy, error) {
	s, err := r.strategies.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.Precondition(op, fmt.Errorf("%w: %d", ErrStrategyNotFound, id))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// Actions returns the strategy's actions in execution order.
func (r *Registry) Actions(ctx context.Context, id uint64) ([]domain.Action, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Actions, nil
}

// IsActive reports whether the strategy is active and its deadline has not passed.
func (r *Registry) IsActive(ctx context.Context, id uint64) (bool, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return s.IsLive(r.now().Unix()), nil
}

// ListActive returns every live strategy ordered by id.
func (r *Registry) ListActive(ctx context.Context) ([]*domain.Strategy, error) {
	all, err := r.strategies.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	now := r.now().Unix()
	out := make([]*domain.Strategy, 0, len(all))
	for _, s := range all {
		if s.IsLive(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListByCreator returns up to MaxStrategiesPerUser ids owned by creator.
func (r *Registry) ListByCreator(ctx context.Context, creator common.Address) ([]uint64, error) {
	ids, err := r.strategies.ListByCreator(ctx, creator, r.maxPerUser)
	if err != nil {
		return nil, fmt.Errorf("list by creator: %w", err)
	}
	return ids, nil
}

// NextID returns the id the next created strategy will receive.
func (r *Registry) NextID(ctx context.Context) (uint64, error) {
	return r.strategies.PeekNextID(ctx)
}
