package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/storage/memory"
)

var executor = common.HexToAddress("0x000000000000000000000000000000000000e000")

func setupTestData(t *testing.T) (*memory.StrategyStore, *memory.ExecutionStore) {
	t.Helper()
	ctx := context.Background()
	strategies := memory.NewStrategyStore()
	executions := memory.NewExecutionStore()

	for _, s := range []*domain.Strategy{
		{ID: 2, Name: "liquidator", Type: domain.StrategyTypeLiquidation, Active: true, Deadline: 2_000_000_000},
		{ID: 1, Name: "arb | v2-v3", Type: domain.StrategyTypeArbitrage, Active: true, Deadline: 2_000_000_000},
		{ID: 3, Name: "idle", Type: domain.StrategyTypeCustom, Active: false, Deadline: 2_000_000_000},
	} {
		if err := strategies.Insert(ctx, s); err != nil {
			t.Fatalf("insert strategy: %v", err)
		}
	}

	results := []*domain.ExecutionResult{
		{ID: "0x01", StrategyID: 1, Executor: executor, Nonce: 1, Status: domain.ExecutionSuccess, ProfitUSD: decimal.RequireFromString("1.25"), GasUsed: 200_000, Timestamp: 1_700_000_100},
		{ID: "0x02", StrategyID: 1, Executor: executor, Nonce: 2, Status: domain.ExecutionFailed, FailureKind: domain.KindProfitShortfall, Error: "below min profit, 3 bps < 10 bps", GasUsed: 150_000, Timestamp: 1_700_000_200},
		{ID: "0x03", StrategyID: 2, Executor: executor, Nonce: 3, Status: domain.ExecutionSuccess, ProfitUSD: decimal.RequireFromString("4.75"), GasUsed: 300_000, Timestamp: 1_700_000_050},
		{ID: "0x04", StrategyID: 2, Executor: executor, Nonce: 4, Status: domain.ExecutionFailed, FailureKind: domain.KindVenue, GasUsed: 100_000, Timestamp: 1_700_000_300},
	}
	for _, r := range results {
		if err := executions.Insert(ctx, r); err != nil {
			t.Fatalf("insert execution: %v", err)
		}
	}
	return strategies, executions
}

func TestGenerate_Deterministic(t *testing.T) {
	ctx := context.Background()
	fixedTime := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	var first string
	for run := 0; run < 5; run++ {
		strategies, executions := setupTestData(t)
		report, err := NewGenerator(strategies, executions).
			WithClock(func() time.Time { return fixedTime }).
			Generate(ctx)
		if err != nil {
			t.Fatalf("Run %d: Generate failed: %v", run, err)
		}
		md := RenderMarkdown(report)
		if run == 0 {
			first = md
			continue
		}
		if md != first {
			t.Errorf("Run %d: markdown differs from first run", run)
		}
	}
}

func TestGenerate_Summary(t *testing.T) {
	strategies, executions := setupTestData(t)
	report, err := NewGenerator(strategies, executions).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if report.StrategyCount != 3 || report.Summary.ActiveStrategies != 2 {
		t.Errorf("unexpected counts: %d strategies, %d active", report.StrategyCount, report.Summary.ActiveStrategies)
	}
	if report.Summary.TotalAttempts != 4 || report.Summary.TotalSuccesses != 2 {
		t.Errorf("unexpected attempts: %+v", report.Summary)
	}
	if report.Summary.TotalProfitUSD != "6.00" {
		t.Errorf("expected total profit 6.00, got %s", report.Summary.TotalProfitUSD)
	}
	if report.Summary.DateRangeStart != 1_700_000_050 || report.Summary.DateRangeEnd != 1_700_000_300 {
		t.Errorf("unexpected date range %d..%d", report.Summary.DateRangeStart, report.Summary.DateRangeEnd)
	}

	if len(report.StrategyMetrics) != 3 {
		t.Fatalf("expected 3 metric rows, got %d", len(report.StrategyMetrics))
	}
	for i, want := range []uint64{1, 2, 3} {
		if report.StrategyMetrics[i].StrategyID != want {
			t.Errorf("row %d: expected strategy %d, got %d", i, want, report.StrategyMetrics[i].StrategyID)
		}
	}
	if report.StrategyMetrics[2].Attempts != 0 || report.StrategyMetrics[2].TotalProfitUSD != "0.00" {
		t.Errorf("never-executed strategy should have empty metrics: %+v", report.StrategyMetrics[2])
	}

	wantFailures := []FailureRow{
		{Kind: string(domain.KindProfitShortfall), Count: 1},
		{Kind: string(domain.KindVenue), Count: 1},
	}
	if len(report.FailureBreakdown) != len(wantFailures) {
		t.Fatalf("unexpected failure breakdown: %+v", report.FailureBreakdown)
	}
	for _, w := range wantFailures {
		found := false
		for _, f := range report.FailureBreakdown {
			if f == w {
				found = true
			}
		}
		if !found {
			t.Errorf("missing failure row %+v", w)
		}
	}

	// chronological across strategies
	wantOrder := []uint64{3, 1, 2, 4}
	for i, e := range report.Executions {
		if e.Nonce != wantOrder[i] {
			t.Errorf("execution %d: expected nonce %d, got %d", i, wantOrder[i], e.Nonce)
		}
	}
}

func TestRenderMarkdown_Format(t *testing.T) {
	strategies, executions := setupTestData(t)
	report, err := NewGenerator(strategies, executions).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(report)

	requiredSections := []string{
		"# Flash Loan Execution Report",
		"## Summary",
		"## Strategy Metrics",
		"## Failures by Kind",
		"## Executions",
	}
	for _, section := range requiredSections {
		if !strings.Contains(md, section) {
			t.Errorf("Markdown missing section: %s", section)
		}
	}
	if !strings.Contains(md, `arb \| v2-v3`) {
		t.Error("pipe in strategy name should be escaped")
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	report, err := NewGenerator(memory.NewStrategyStore(), memory.NewExecutionStore()).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	md := RenderMarkdown(report)
	for _, s := range []string{"No strategies registered.", "No failed executions.", "No executions recorded."} {
		if !strings.Contains(md, s) {
			t.Errorf("Markdown missing %q", s)
		}
	}
}

func TestRenderCSV_DeterministicOrder(t *testing.T) {
	rows := []StrategyMetricRow{
		{StrategyID: 7, Name: "b", TotalProfitUSD: "0.00"},
		{StrategyID: 2, Name: "a", TotalProfitUSD: "1.00"},
	}
	sortStrategyMetrics(rows)

	lines := strings.Split(RenderCSV(rows), "\n")
	if len(lines) < 3 {
		t.Fatalf("Expected at least 3 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "strategy_id,name,type") {
		t.Error("CSV header is incorrect")
	}
	if !strings.HasPrefix(lines[1], "2,a,") || !strings.HasPrefix(lines[2], "7,b,") {
		t.Errorf("unexpected row order: %q, %q", lines[1], lines[2])
	}
}

func TestRenderExecutionsCSV_QuotesErrors(t *testing.T) {
	out := RenderExecutionsCSV([]ExecutionRow{{
		ID: "0x02", StrategyID: 1, Nonce: 2, Status: "FAILED",
		Error: "below min profit, 3 bps < 10 bps",
	}})
	if !strings.Contains(out, `"below min profit, 3 bps < 10 bps"`) {
		t.Errorf("error column should be quoted: %s", out)
	}
}
