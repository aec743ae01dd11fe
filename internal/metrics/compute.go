package metrics

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"flashloan-executor/internal/domain"
)

// ExecutionStats summarizes a strategy's execution history. Profit figures
// are in USD; failed attempts count as zero profit.
type ExecutionStats struct {
	StrategyID uint64

	Attempts  int
	Successes int
	Failures  int
	// SuccessRate is successes / attempts.
	SuccessRate float64
	// FailuresByKind counts failed attempts per error kind.
	FailuresByKind map[domain.ErrorKind]int

	TotalProfitUSD decimal.Decimal
	TotalGasUsed   uint64

	ProfitMean   float64
	ProfitMedian float64
	ProfitP10    float64
	ProfitP90    float64
	ProfitMin    float64
	ProfitMax    float64
	ProfitStddev float64

	// MaxDrawdown is the worst peak-to-trough on cumulative profit.
	MaxDrawdown            float64
	MaxConsecutiveFailures int

	FirstExecution int64 // unix seconds
	LastExecution  int64
}

// computeFromResults calculates all statistics from a slice of results.
// Results are sorted by Timestamp ASC, Nonce ASC before computing
// order-dependent statistics (MaxDrawdown, MaxConsecutiveFailures).
func computeFromResults(strategyID uint64, results []*domain.ExecutionResult) *ExecutionStats {
	stats := &ExecutionStats{
		StrategyID:     strategyID,
		FailuresByKind: make(map[domain.ErrorKind]int),
		TotalProfitUSD: decimal.Zero,
	}
	n := len(results)
	if n == 0 {
		return stats
	}

	sorted := make([]*domain.ExecutionResult, n)
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].Nonce < sorted[j].Nonce
	})

	profits := make([]float64, n)
	for i, r := range sorted {
		stats.TotalGasUsed += r.GasUsed
		if r.Succeeded() {
			stats.Successes++
			stats.TotalProfitUSD = stats.TotalProfitUSD.Add(r.ProfitUSD)
			profits[i] = r.ProfitUSD.InexactFloat64()
		} else {
			stats.Failures++
			stats.FailuresByKind[r.FailureKind]++
		}
	}

	ordered := make([]float64, n)
	copy(ordered, profits)
	sort.Float64s(ordered)
	mean := computeMean(profits)

	stats.Attempts = n
	stats.SuccessRate = float64(stats.Successes) / float64(n)
	stats.ProfitMean = mean
	stats.ProfitMedian = computePercentile(ordered, 0.50)
	stats.ProfitP10 = computePercentile(ordered, 0.10)
	stats.ProfitP90 = computePercentile(ordered, 0.90)
	stats.ProfitMin = ordered[0]
	stats.ProfitMax = ordered[n-1]
	stats.ProfitStddev = computeStddev(profits, mean)
	stats.MaxDrawdown = computeMaxDrawdown(profits)
	stats.MaxConsecutiveFailures = computeMaxConsecutiveFailures(sorted)
	stats.FirstExecution = sorted[0].Timestamp
	stats.LastExecution = sorted[n-1].Timestamp
	return stats
}

func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative values.
// Values must be in chronological order.
func computeMaxDrawdown(values []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0
	for _, v := range values {
		cumulative += v
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveFailures finds the longest streak of failed attempts.
func computeMaxConsecutiveFailures(results []*domain.ExecutionResult) int {
	maxStreak := 0
	streak := 0
	for _, r := range results {
		if r.Succeeded() {
			streak = 0
			continue
		}
		streak++
		if streak > maxStreak {
			maxStreak = streak
		}
	}
	return maxStreak
}
