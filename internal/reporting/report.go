package reporting

import "time"

// Report summarizes strategies and their execution history.
type Report struct {
	GeneratedAt   time.Time
	StrategyCount int

	Summary Summary

	// sorted by strategy id
	StrategyMetrics []StrategyMetricRow

	// failed attempts grouped by error kind, sorted by kind
	FailureBreakdown []FailureRow

	// chronological (timestamp, nonce)
	Executions []ExecutionRow
}

// Summary contains totals across all strategies.
type Summary struct {
	ActiveStrategies int
	TotalAttempts    int
	TotalSuccesses   int
	TotalProfitUSD   string
	DateRangeStart   int64 // unix seconds, 0 without executions
	DateRangeEnd     int64
}

// StrategyMetricRow represents one row in the strategy metrics table.
type StrategyMetricRow struct {
	StrategyID             uint64
	Name                   string
	Type                   string
	Active                 bool
	Attempts               int
	Successes              int
	SuccessRate            float64
	TotalProfitUSD         string
	ProfitMean             float64
	ProfitMedian           float64
	ProfitP10              float64
	ProfitP90              float64
	ProfitStddev           float64
	MaxDrawdown            float64
	MaxConsecutiveFailures int
}

// FailureRow counts failed attempts of one error kind.
type FailureRow struct {
	Kind  string
	Count int
}

// ExecutionRow is one recorded attempt.
type ExecutionRow struct {
	ID          string
	StrategyID  uint64
	Executor    string
	Nonce       uint64
	Status      string
	FailureKind string
	ProfitUSD   string
	GasUsed     uint64
	Timestamp   int64
	Error       string
}
