package reporting

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// RenderCSV renders strategy metrics as CSV string.
func RenderCSV(rows []StrategyMetricRow) string {
	var sb strings.Builder

	sb.WriteString("strategy_id,name,type,active,attempts,successes,success_rate,total_profit_usd,")
	sb.WriteString("profit_mean,profit_median,profit_p10,profit_p90,profit_stddev,")
	sb.WriteString("max_drawdown,max_consecutive_failures\n")

	w := csv.NewWriter(&sb)
	for _, m := range rows {
		_ = w.Write([]string{
			strconv.FormatUint(m.StrategyID, 10),
			m.Name,
			m.Type,
			strconv.FormatBool(m.Active),
			strconv.Itoa(m.Attempts),
			strconv.Itoa(m.Successes),
			fmt.Sprintf("%.6f", m.SuccessRate),
			m.TotalProfitUSD,
			fmt.Sprintf("%.6f", m.ProfitMean),
			fmt.Sprintf("%.6f", m.ProfitMedian),
			fmt.Sprintf("%.6f", m.ProfitP10),
			fmt.Sprintf("%.6f", m.ProfitP90),
			fmt.Sprintf("%.6f", m.ProfitStddev),
			fmt.Sprintf("%.6f", m.MaxDrawdown),
			strconv.Itoa(m.MaxConsecutiveFailures),
		})
	}
	w.Flush()

	return sb.String()
}

// RenderExecutionsCSV renders execution history as CSV string. Error
// messages are quoted when they contain separators.
func RenderExecutionsCSV(rows []ExecutionRow) string {
	var sb strings.Builder

	sb.WriteString("id,strategy_id,executor,nonce,status,failure_kind,profit_usd,gas_used,timestamp,error\n")

	w := csv.NewWriter(&sb)
	for _, r := range rows {
		_ = w.Write([]string{
			r.ID,
			strconv.FormatUint(r.StrategyID, 10),
			r.Executor,
			strconv.FormatUint(r.Nonce, 10),
			r.Status,
			r.FailureKind,
			r.ProfitUSD,
			strconv.FormatUint(r.GasUsed, 10),
			strconv.FormatInt(r.Timestamp, 10),
			r.Error,
		})
	}
	w.Flush()

	return sb.String()
}
