package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/observability"
)

// Engine executes one strategy attempt.
type Engine interface {
	ExecuteStrategy(ctx context.Context, caller common.Address, id uint64, assets []common.Address, amounts []*big.Int, payload []byte) (*domain.ExecutionResult, error)
}

// ParamsSource provides the current safety parameters.
type ParamsSource interface {
	Params() domain.SafetyParams
}

// Request is one queued execution request.
type Request struct {
	Caller      common.Address
	StrategyID  uint64
	Assets      []common.Address
	Amounts     []*big.Int
	Payload     []byte
	SubmittedAt time.Time // zero means now
}

// Sequencer admits top-level requests one at a time, in arrival order of
// the slot, so the engine only ever sees reentry from inside an attempt.
// Requests that waited longer than MaxExecutionTime are rejected as stale.
type Sequencer struct {
	engine Engine
	params ParamsSource
	now    func() time.Time
	slot   chan struct{}
}

// NewSequencer wraps engine.
func NewSequencer(engine Engine, params ParamsSource, now func() time.Time) *Sequencer {
	if now == nil {
		now = time.Now
	}
	return &Sequencer{
		engine: engine,
		params: params,
		now:    now,
		slot:   make(chan struct{}, 1),
	}
}

// Submit waits for the engine and runs req.
func (s *Sequencer) Submit(ctx context.Context, req Request) (*domain.ExecutionResult, error) {
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = s.now()
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.slot }()

	limit := time.Duration(s.params.Params().MaxExecutionTime) * time.Second
	if waited := s.now().Sub(req.SubmittedAt); waited > limit {
		observability.RecordPreconditionReject("stale_request")
		return nil, domain.Precondition("submit", fmt.Errorf("%w: waited %s, limit %s", ErrStaleRequest, waited, limit))
	}
	return s.engine.ExecuteStrategy(ctx, req.Caller, req.StrategyID, req.Assets, req.Amounts, req.Payload)
}
