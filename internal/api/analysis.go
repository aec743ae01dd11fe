package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"flashloan-executor/internal/analysis"
)

// quote compares venues for one pair. Query: token_in, token_out,
// amount_in (raw units) and an optional comma separated venues list
// defaulting to every registered venue.
func (s *Server) quote(c *gin.Context) {
	if s.opts.Quoter == nil {
		fail(c, http.StatusServiceUnavailable, "quoting unavailable")
		return
	}
	in, valid := addressParam(c, c.Query("token_in"))
	if !valid {
		return
	}
	out, valid := addressParam(c, c.Query("token_out"))
	if !valid {
		return
	}
	amount, valid := amountQuery(c, "amount_in", true)
	if !valid {
		return
	}

	var names []string
	if raw := strings.TrimSpace(c.Query("venues")); raw != "" {
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	} else {
		for _, h := range s.opts.System.Venues.List() {
			names = append(names, h.Name)
		}
	}

	cmp, err := analysis.CompareVenues(c.Request.Context(), s.opts.Quoter, in, out, amount, names)
	if err != nil {
		failErr(c, err)
		return
	}
	quotes := make([]gin.H, len(cmp.Quotes))
	for i, q := range cmp.Quotes {
		v := gin.H{"venue": q.Venue, "kind": string(q.Kind)}
		if q.Fee != 0 {
			v["fee"] = q.Fee
		}
		if q.Err != "" {
			v["error"] = q.Err
		} else {
			v["amount_out"] = bigString(q.AmountOut)
		}
		quotes[i] = v
	}
	ok(c, gin.H{
		"token_in":   cmp.TokenIn.Hex(),
		"token_out":  cmp.TokenOut.Hex(),
		"amount_in":  cmp.AmountIn.String(),
		"best":       cmp.Best,
		"worst":      cmp.Worst,
		"spread_bps": cmp.SpreadBps,
		"quotes":     quotes,
	}, nil)
}

// profitability evaluates an opportunity. Query: expected_profit and
// principal (wei), optional gas_estimate, gas_price and min_profit_bps.
// Without gas_price the tracked network price is used when known. Without
// gas_estimate, a strategy id (plus an optional assets count, default 1)
// estimates gas from the strategy's actions.
func (s *Server) profitability(c *gin.Context) {
	profit, valid := amountQuery(c, "expected_profit", true)
	if !valid {
		return
	}
	principal, valid := amountQuery(c, "principal", true)
	if !valid {
		return
	}
	gasPrice, valid := amountQuery(c, "gas_price", false)
	if !valid {
		return
	}
	if gasPrice == nil {
		gasPrice, _, _ = s.opts.Gas.Snapshot()
	}
	req := analysis.ProfitabilityRequest{
		ExpectedProfit: profit,
		Principal:      principal,
		GasPrice:       gasPrice,
	}
	if raw := strings.TrimSpace(c.Query("gas_estimate")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid gas_estimate")
			return
		}
		req.GasEstimate = v
	} else if raw := strings.TrimSpace(c.Query("strategy")); raw != "" {
		v, valid := s.strategyGas(c, raw)
		if !valid {
			return
		}
		req.GasEstimate = v
	}
	if raw := strings.TrimSpace(c.Query("min_profit_bps")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid min_profit_bps")
			return
		}
		bps := uint32(v)
		req.MinProfitBps = &bps
	}

	res, err := analysis.CheckProfitability(req)
	if err != nil {
		failErr(c, err)
		return
	}
	gasEstimate := req.GasEstimate
	if gasEstimate == 0 {
		gasEstimate = analysis.DefaultGasEstimate
	}
	ok(c, gin.H{
		"gas_estimate":   gasEstimate,
		"gas_cost":       res.GasCost.String(),
		"net_profit":     res.NetProfit.String(),
		"profit_percent": res.ProfitPercent.String(),
		"min_profit_bps": res.MinProfitBps,
		"profitable":     res.Profitable,
	}, nil)
}

func (s *Server) strategyGas(c *gin.Context, raw string) (uint64, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid strategy")
		return 0, false
	}
	assets := intQuery(c, "assets", 1)
	if assets < 1 {
		fail(c, http.StatusBadRequest, "invalid assets")
		return 0, false
	}
	actions, err := s.opts.Registry.Actions(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return 0, false
	}
	return s.opts.GasModel.EstimateStrategy(actions, assets), true
}
