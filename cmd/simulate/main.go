// Command simulate runs a YAML scenario against an in-process environment
// and writes a markdown report plus CSV exports of the results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"flashloan-executor/internal/config"
	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/logging"
	"flashloan-executor/internal/reporting"
	"flashloan-executor/internal/sandbox"
)

func main() {
	cfgPath := flag.String("config", "config/config.yaml", "YAML file with environment and scenario sections")
	outputDir := flag.String("output-dir", "reports", "Output directory for generated files")
	fixedClock := flag.Bool("fixed-clock", false, "Use a fixed clock for reproducible output")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, false)
	if err != nil {
		fail("load config", err)
	}
	if err := cfg.Validate(); err != nil {
		fail("validate config", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fail("create logger", err)
	}
	defer logger.Sync()

	scenario, err := sandbox.LoadScenario(*cfgPath)
	if err != nil {
		fail("load scenario", err)
	}

	now := time.Now
	if *fixedClock {
		fixed := time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC)
		now = func() time.Time { return fixed }
	}

	ctx := context.Background()
	env, err := sandbox.Build(cfg, sandbox.Deps{Now: now, Logger: logger})
	if err != nil {
		fail("build environment", err)
	}

	outcomes, err := env.Run(ctx, scenario, logger)
	if err != nil {
		fail("run scenario", err)
	}
	for _, o := range outcomes {
		printOutcome(o)
	}

	report, err := reporting.NewGenerator(env.Strategies, env.Executions).WithClock(now).Generate(ctx)
	if err != nil {
		fail("generate report", err)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fail("create output dir", err)
	}
	files := map[string]string{
		"REPORT.md":      reporting.RenderMarkdown(report),
		"strategies.csv": reporting.RenderCSV(report.StrategyMetrics),
		"executions.csv": reporting.RenderExecutionsCSV(report.Executions),
	}
	for name, content := range files {
		path := filepath.Join(*outputDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			fail("write "+name, err)
		}
		logger.Info("wrote report file", zap.String("path", path))
	}
}

func printOutcome(o sandbox.RunOutcome) {
	switch {
	case o.Err != nil:
		fmt.Printf("%-20s #%d attempt %d: %s: %v\n", o.Strategy, o.StrategyID, o.Attempt, domain.KindOf(o.Err), o.Err)
	case o.Result != nil:
		fmt.Printf("%-20s #%d attempt %d: %s profit $%s gas %d\n",
			o.Strategy, o.StrategyID, o.Attempt, o.Result.Status, o.Result.ProfitUSD.StringFixed(2), o.Result.GasUsed)
	}
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", what, err)
	os.Exit(1)
}
