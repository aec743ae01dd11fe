package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Flash Loan Execution Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Strategies: %d | Active: %d\n\n", r.StrategyCount, r.Summary.ActiveStrategies))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Attempts | %d |\n", r.Summary.TotalAttempts))
	sb.WriteString(fmt.Sprintf("| Successful Attempts | %d |\n", r.Summary.TotalSuccesses))
	sb.WriteString(fmt.Sprintf("| Total Profit (USD) | %s |\n", r.Summary.TotalProfitUSD))
	sb.WriteString(fmt.Sprintf("| First Execution | %s |\n", formatUnix(r.Summary.DateRangeStart)))
	sb.WriteString(fmt.Sprintf("| Last Execution | %s |\n", formatUnix(r.Summary.DateRangeEnd)))
	sb.WriteString("\n")

	// Strategy Metrics
	sb.WriteString("## Strategy Metrics\n\n")
	if len(r.StrategyMetrics) > 0 {
		sb.WriteString("| ID | Name | Type | Active | Attempts | SuccessRate | Profit (USD) | Mean | Median | P10 | P90 | MaxDD | MaxFail |\n")
		sb.WriteString("|----|------|------|--------|----------|-------------|--------------|------|--------|-----|-----|-------|---------|\n")
		for _, m := range r.StrategyMetrics {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %t | %d | %.4f | %s | %.4f | %.4f | %.4f | %.4f | %.4f | %d |\n",
				m.StrategyID, escapeCell(m.Name), m.Type, m.Active,
				m.Attempts, m.SuccessRate, m.TotalProfitUSD,
				m.ProfitMean, m.ProfitMedian, m.ProfitP10, m.ProfitP90,
				m.MaxDrawdown, m.MaxConsecutiveFailures))
		}
	} else {
		sb.WriteString("No strategies registered.\n")
	}
	sb.WriteString("\n")

	// Failures
	sb.WriteString("## Failures by Kind\n\n")
	if len(r.FailureBreakdown) > 0 {
		sb.WriteString("| Kind | Count |\n")
		sb.WriteString("|------|-------|\n")
		for _, f := range r.FailureBreakdown {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", f.Kind, f.Count))
		}
	} else {
		sb.WriteString("No failed executions.\n")
	}
	sb.WriteString("\n")

	// Executions
	sb.WriteString("## Executions\n\n")
	if len(r.Executions) > 0 {
		sb.WriteString("| Strategy | Nonce | Status | Kind | Profit (USD) | Gas | Time |\n")
		sb.WriteString("|----------|-------|--------|------|--------------|-----|------|\n")
		for _, e := range r.Executions {
			sb.WriteString(fmt.Sprintf("| %d | %d | %s | %s | %s | %d | %s |\n",
				e.StrategyID, e.Nonce, e.Status, e.FailureKind, e.ProfitUSD, e.GasUsed, formatUnix(e.Timestamp)))
		}
	} else {
		sb.WriteString("No executions recorded.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
