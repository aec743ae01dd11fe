package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/metrics"
	"flashloan-executor/internal/registry"
)

// listStrategies searches strategies. Query: creator, type, live, q,
// min_profit_usd, sort, desc, offset, limit.
func (s *Server) listStrategies(c *gin.Context) {
	crit := registry.Criteria{
		Type:     domain.StrategyType(strings.ToUpper(strings.TrimSpace(c.Query("type")))),
		LiveOnly: c.Query("live") == "true",
		Term:     c.Query("q"),
		SortBy:   c.Query("sort"),
		Desc:     c.Query("desc") == "true",
		Offset:   intQuery(c, "offset", 0),
		Limit:    intQuery(c, "limit", registry.DefaultPageSize),
	}
	if raw := c.Query("creator"); raw != "" {
		addr, valid := addressParam(c, raw)
		if !valid {
			return
		}
		crit.Creator = &addr
	}
	if raw := c.Query("min_profit_usd"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid min_profit_usd")
			return
		}
		crit.MinProfitUSD = &d
	}

	page, err := s.opts.Registry.Search(c.Request.Context(), crit)
	if err != nil {
		failErr(c, err)
		return
	}
	now := s.opts.Now().Unix()
	items := make([]strategyView, len(page.Items))
	for i, st := range page.Items {
		items[i] = viewStrategy(st, now, false)
	}
	ok(c, items, map[string]any{"total": page.Total, "offset": crit.Offset, "count": len(items)})
}

func (s *Server) getStrategy(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	st, err := s.opts.Registry.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, viewStrategy(st, s.opts.Now().Unix(), true), nil)
}

func (s *Server) strategyActions(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	actions, err := s.opts.Registry.Actions(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, viewActions(actions), map[string]any{"count": len(actions)})
}

func (s *Server) strategyExecutions(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	history, err := s.opts.Registry.ExecutionHistory(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	items := make([]executionView, len(history))
	for i, r := range history {
		items[i] = viewExecution(r)
	}
	ok(c, items, map[string]any{"count": len(items)})
}

func (s *Server) strategyStats(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()
	st, err := s.opts.Registry.Get(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}

	out := gin.H{
		"strategy_id":      id,
		"execution_count":  st.ExecutionCount,
		"total_profit_usd": st.TotalProfitUSD.String(),
	}
	if s.opts.Stats != nil {
		stats, err := s.opts.Stats.Compute(ctx, id)
		switch {
		case errors.Is(err, metrics.ErrNoExecutions):
		case err != nil:
			failErr(c, err)
			return
		default:
			out["history"] = statsView(stats)
		}
	}
	if s.opts.Analytics != nil {
		agg, err := s.opts.Analytics.GetStats(ctx, id)
		if err != nil {
			failErr(c, err)
			return
		}
		out["analytics"] = gin.H{
			"attempts":         agg.Attempts,
			"successes":        agg.Successes,
			"total_profit_usd": agg.TotalProfitUSD.String(),
			"total_gas_used":   agg.TotalGasUsed,
			"last_execution":   agg.LastExecution,
		}
	}
	ok(c, out, nil)
}

func statsView(st *metrics.ExecutionStats) gin.H {
	byKind := make(map[string]int, len(st.FailuresByKind))
	for k, n := range st.FailuresByKind {
		byKind[string(k)] = n
	}
	return gin.H{
		"attempts":                 st.Attempts,
		"successes":                st.Successes,
		"failures":                 st.Failures,
		"success_rate":             st.SuccessRate,
		"failures_by_kind":         byKind,
		"total_profit_usd":         st.TotalProfitUSD.String(),
		"total_gas_used":           st.TotalGasUsed,
		"profit_mean":              st.ProfitMean,
		"profit_median":            st.ProfitMedian,
		"profit_p10":               st.ProfitP10,
		"profit_p90":               st.ProfitP90,
		"profit_min":               st.ProfitMin,
		"profit_max":               st.ProfitMax,
		"profit_stddev":            st.ProfitStddev,
		"max_drawdown":             st.MaxDrawdown,
		"max_consecutive_failures": st.MaxConsecutiveFailures,
		"first_execution":          st.FirstExecution,
		"last_execution":           st.LastExecution,
	}
}

func (s *Server) userStrategies(c *gin.Context) {
	addr, valid := addressParam(c, c.Param("address"))
	if !valid {
		return
	}
	ids, err := s.opts.Registry.ListByCreator(c.Request.Context(), addr)
	if err != nil {
		failErr(c, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	ok(c, ids, map[string]any{"count": len(ids), "limit": s.opts.Registry.MaxStrategiesPerUser()})
}

// userProfit returns the user's cumulative profit in asset, the total
// across users, and with ?strategy= the share earned by one strategy.
func (s *Server) userProfit(c *gin.Context) {
	user, valid := addressParam(c, c.Param("address"))
	if !valid {
		return
	}
	asset, valid := addressParam(c, c.Param("asset"))
	if !valid {
		return
	}
	ctx := c.Request.Context()
	led := s.opts.System.Ledger

	userTotal, err := led.UserProfit(ctx, user, asset)
	if err != nil {
		failErr(c, err)
		return
	}
	total, err := led.TotalProfit(ctx, asset)
	if err != nil {
		failErr(c, err)
		return
	}
	out := gin.H{
		"user":   user.Hex(),
		"asset":  asset.Hex(),
		"profit": userTotal.String(),
		"total":  total.String(),
	}
	if raw := strings.TrimSpace(c.Query("strategy")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid strategy id")
			return
		}
		p, err := led.StrategyUserProfit(ctx, id, user, asset)
		if err != nil {
			failErr(c, err)
			return
		}
		out["strategy_id"] = id
		out["strategy_profit"] = p.String()
	}
	ok(c, out, nil)
}
