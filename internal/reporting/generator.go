package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/metrics"
	"flashloan-executor/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	strategies storage.StrategyStore
	executions storage.ExecutionStore
	aggregator *metrics.Aggregator
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(strategies storage.StrategyStore, executions storage.ExecutionStore) *Generator {
	return &Generator{
		strategies: strategies,
		executions: executions,
		aggregator: metrics.NewAggregator(executions),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a report over every stored strategy.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	strategies, err := g.strategies.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt:   g.now(),
		StrategyCount: len(strategies),
	}
	failures := make(map[domain.ErrorKind]int)
	total := decimal.Zero

	for _, s := range strategies {
		if s.Active {
			report.Summary.ActiveStrategies++
		}

		stats, err := g.aggregator.Compute(ctx, s.ID)
		if errors.Is(err, metrics.ErrNoExecutions) {
			report.StrategyMetrics = append(report.StrategyMetrics, StrategyMetricRow{
				StrategyID:     s.ID,
				Name:           s.Name,
				Type:           s.Type.String(),
				Active:         s.Active,
				TotalProfitUSD: decimal.Zero.StringFixed(2),
			})
			continue
		}
		if err != nil {
			return nil, err
		}

		report.StrategyMetrics = append(report.StrategyMetrics, metricRow(s, stats))
		report.Summary.TotalAttempts += stats.Attempts
		report.Summary.TotalSuccesses += stats.Successes
		total = total.Add(stats.TotalProfitUSD)
		for kind, n := range stats.FailuresByKind {
			failures[kind] += n
		}
		if report.Summary.DateRangeStart == 0 || stats.FirstExecution < report.Summary.DateRangeStart {
			report.Summary.DateRangeStart = stats.FirstExecution
		}
		if stats.LastExecution > report.Summary.DateRangeEnd {
			report.Summary.DateRangeEnd = stats.LastExecution
		}

		history, err := g.executions.GetByStrategyID(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range history {
			report.Executions = append(report.Executions, executionRow(r))
		}
	}
	report.Summary.TotalProfitUSD = total.StringFixed(2)

	for kind, n := range failures {
		report.FailureBreakdown = append(report.FailureBreakdown, FailureRow{Kind: string(kind), Count: n})
	}
	sort.Slice(report.FailureBreakdown, func(i, j int) bool {
		return report.FailureBreakdown[i].Kind < report.FailureBreakdown[j].Kind
	})
	sortStrategyMetrics(report.StrategyMetrics)
	sortExecutions(report.Executions)

	return report, nil
}

func metricRow(s *domain.Strategy, st *metrics.ExecutionStats) StrategyMetricRow {
	return StrategyMetricRow{
		StrategyID:             s.ID,
		Name:                   s.Name,
		Type:                   s.Type.String(),
		Active:                 s.Active,
		Attempts:               st.Attempts,
		Successes:              st.Successes,
		SuccessRate:            st.SuccessRate,
		TotalProfitUSD:         st.TotalProfitUSD.StringFixed(2),
		ProfitMean:             st.ProfitMean,
		ProfitMedian:           st.ProfitMedian,
		ProfitP10:              st.ProfitP10,
		ProfitP90:              st.ProfitP90,
		ProfitStddev:           st.ProfitStddev,
		MaxDrawdown:            st.MaxDrawdown,
		MaxConsecutiveFailures: st.MaxConsecutiveFailures,
	}
}

func executionRow(r *domain.ExecutionResult) ExecutionRow {
	return ExecutionRow{
		ID:          r.ID,
		StrategyID:  r.StrategyID,
		Executor:    r.Executor.Hex(),
		Nonce:       r.Nonce,
		Status:      string(r.Status),
		FailureKind: string(r.FailureKind),
		ProfitUSD:   r.ProfitUSD.StringFixed(2),
		GasUsed:     r.GasUsed,
		Timestamp:   r.Timestamp,
		Error:       r.Error,
	}
}

func sortStrategyMetrics(rows []StrategyMetricRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].StrategyID < rows[j].StrategyID })
}

func sortExecutions(rows []ExecutionRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Timestamp != rows[j].Timestamp {
			return rows[i].Timestamp < rows[j].Timestamp
		}
		return rows[i].Nonce < rows[j].Nonce
	})
}
