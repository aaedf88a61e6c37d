package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/infill/internal/logger"
	"github.com/samcharles93/infill/internal/template"
)

func benchmarkCmd() *cli.Command {
	var (
		warmupRuns   int64
		benchRuns    int64
		templatePath string
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "template",
			Aliases:     []string{"t"},
			Usage:       "template document to fill on every run",
			Required:    true,
			Destination: &templatePath,
		},
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       3,
			Destination: &benchRuns,
		},
	)

	return &cli.Command{
		Name:    "benchmark",
		Aliases: []string{"bench"},
		Usage:   "Time repeated fills of a template",
		Flags:   flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, LoadConfig())

			doc, err := template.LoadDocument(templatePath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load template: %v", err), 1)
			}

			loadStart := time.Now()
			h, err := loadHandle(ctx, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = h.Close(context.Background()) }()
			loadDuration := time.Since(loadStart)

			tpl, err := doc.Compile(doc.Context(h, template.WithLogger(log)))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: compile template: %v", err), 1)
			}

			fmt.Println("=== Infill Benchmark ===")
			fmt.Printf("Template: %s (%d segments)\n", templatePath, len(doc.Segments))
			fmt.Printf("CPUs:     %d\n", runtime.NumCPU())
			fmt.Printf("Load:     %s\n", loadDuration.Round(time.Millisecond))
			fmt.Printf("Warmup:   %d runs\n", warmupRuns)
			fmt.Printf("Runs:     %d\n", benchRuns)
			fmt.Println()

			for i := range int(warmupRuns) {
				log.Info("warmup run", "run", i+1)
				if _, err := tpl.Collect(ctx, nil); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			type runResult struct {
				Tokens   int64
				Duration time.Duration
				TPS      float64
			}
			results := make([]runResult, 0, benchRuns)
			for i := range int(benchRuns) {
				log.Info("benchmark run", "run", i+1)
				before := h.TotalTokenCount()
				start := time.Now()
				if _, err := tpl.Collect(ctx, nil); err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
				}
				r := runResult{Tokens: h.TotalTokenCount() - before, Duration: time.Since(start)}
				if secs := r.Duration.Seconds(); secs > 0 {
					r.TPS = float64(r.Tokens) / secs
				}
				results = append(results, r)
			}
			if len(results) == 0 {
				return nil
			}

			fmt.Println("=== Results ===")
			fmt.Printf("%-6s %10s %10s %8s\n", "Run", "tps", "Duration", "Tokens")
			var sumTPS float64
			for i, r := range results {
				fmt.Printf("%-6d %10.2f %10s %8d\n", i+1, r.TPS, r.Duration.Round(time.Millisecond), r.Tokens)
				sumTPS += r.TPS
			}
			fmt.Printf("\n%-6s %10.2f\n", "Avg", sumTPS/float64(len(results)))

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))
			return nil
		},
	}
}
