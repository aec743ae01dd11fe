package api

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"flashloan-executor/internal/chain"
	"flashloan-executor/internal/observability"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) metrics(c *gin.Context) {
	observability.Handler().ServeHTTP(c.Writer, c.Request)
}

func (s *Server) info(c *gin.Context) {
	sys := s.opts.System
	next, err := s.opts.Registry.NextID(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	p := sys.Governor.Params()

	executors := sys.Governor.Executors()
	execs := make([]string, len(executors))
	for i, e := range executors {
		execs[i] = e.Hex()
	}
	handles := sys.Venues.List()
	venues := make([]gin.H, len(handles))
	for i, h := range handles {
		venues[i] = gin.H{"name": h.Name, "kind": string(h.Kind), "router": h.Router.Address().Hex()}
	}

	ok(c, gin.H{
		"version":                 s.opts.Version,
		"owner":                   sys.Owner().Hex(),
		"self":                    sys.Self.Hex(),
		"emergency_stop":          sys.Governor.IsEmergencyStopped(),
		"next_strategy_id":        next,
		"max_strategies_per_user": s.opts.Registry.MaxStrategiesPerUser(),
		"executors":               execs,
		"venues":                  venues,
		"safety": gin.H{
			"max_slippage_bps":   p.MaxSlippageBps,
			"deadline_buffer":    p.DeadlineBuffer,
			"min_profit_bps":     p.MinProfitBps,
			"max_gas_price":      bigString(p.MaxGasPrice),
			"max_execution_time": p.MaxExecutionTime,
		},
		"loan_pool": gin.H{
			"address":     s.opts.Pool.Address().Hex(),
			"premium_bps": s.opts.Pool.PremiumBps(),
		},
	}, nil)
}

func (s *Server) gas(c *gin.Context) {
	price, head, updated := s.opts.Gas.Snapshot()
	if price == nil {
		fail(c, http.StatusServiceUnavailable, chain.ErrNoGasPrice.Error())
		return
	}
	limit := s.opts.System.Governor.Params().MaxGasPrice
	ok(c, gin.H{
		"gas_price":     price.String(),
		"head":          head,
		"updated_at":    updated.Unix(),
		"max_gas_price": bigString(limit),
		"acceptable":    s.opts.System.Governor.CheckGasPrice(price) == nil,
	}, nil)
}

// authorization reports the identity's roles; with ?strategy= it also
// reports whether it may execute that strategy.
func (s *Server) authorization(c *gin.Context) {
	addr, valid := addressParam(c, c.Param("address"))
	if !valid {
		return
	}
	gov := s.opts.System.Governor
	out := gin.H{
		"address":     addr.Hex(),
		"is_owner":    gov.IsOwner(addr),
		"is_executor": gov.IsExecutor(addr),
	}
	if raw := strings.TrimSpace(c.Query("strategy")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid strategy id")
			return
		}
		st, err := s.opts.Registry.Get(c.Request.Context(), id)
		if err != nil {
			failErr(c, err)
			return
		}
		out["strategy_id"] = id
		out["authorized"] = gov.IsAuthorized(addr, st.Creator)
	}
	ok(c, out, nil)
}

func (s *Server) loanAvailability(c *gin.Context) {
	asset, valid := addressParam(c, c.Query("asset"))
	if !valid {
		return
	}
	amount, valid := amountQuery(c, "amount", true)
	if !valid {
		return
	}
	pool := s.opts.Pool
	ok(c, gin.H{
		"asset":       asset.Hex(),
		"amount":      amount.String(),
		"liquidity":   pool.Liquidity(asset).String(),
		"available":   pool.Available(asset, amount),
		"premium":     pool.Premium(amount).String(),
		"premium_bps": pool.PremiumBps(),
	}, nil)
}

// amountQuery parses a non-negative base-10 integer. A missing optional
// value yields nil.
func amountQuery(c *gin.Context, key string, required bool) (*big.Int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		if required {
			fail(c, http.StatusBadRequest, key+" is required")
			return nil, false
		}
		return nil, true
	}
	v, good := new(big.Int).SetString(raw, 10)
	if !good || v.Sign() < 0 {
		fail(c, http.StatusBadRequest, "invalid "+key)
		return nil, false
	}
	return v, true
}
