package main

import (
	"context"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/infill/internal/inference"
	"github.com/samcharles93/infill/internal/template"
)

func TestSamplingOverridesDocument(t *testing.T) {
	var got sampling
	cmd := &cli.Command{
		Name: "run",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "temp"},
			&cli.Float64Flag{Name: "top-p"},
			&cli.Int64Flag{Name: "top-k"},
			&cli.Float64Flag{Name: "min-p"},
			&cli.Float64Flag{Name: "repeat-penalty"},
			&cli.Int64Flag{Name: "repeat-last-n"},
			&cli.Int64Flag{Name: "max-tokens"},
			&cli.Int64Flag{Name: "seed"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			got = samplingFlags(cmd)
			applyRunConfig(cmd, Config{TopK: inference.Ptr(int64(99)), MinP: inference.Ptr(0.05)}, &got, new(string))
			return nil
		},
	}
	args := []string{"run", "--top-k", "20", "--repeat-penalty", "1.3", "--repeat-last-n", "16"}
	if err := cmd.Run(context.Background(), args); err != nil {
		t.Fatalf("run: %v", err)
	}

	doc := &template.Document{Options: template.DocOptions{
		TopK: inference.Ptr(5),
		TopP: inference.Ptr(float32(0.8)),
	}}
	got.apply(doc)
	opts := doc.GenOptions()
	if *opts.TopK != 20 {
		t.Fatalf("top_k: flag should beat config and document, got %d", *opts.TopK)
	}
	if opts.MinP == nil || *opts.MinP != 0.05 {
		t.Fatalf("min_p: config should fill an unset flag, got %v", opts.MinP)
	}
	if *opts.RepeatPenalty != 1.3 || *opts.RepeatLastN != 16 {
		t.Fatalf("repeat: got %v over %v", *opts.RepeatPenalty, *opts.RepeatLastN)
	}
	if *opts.TopP != 0.8 || opts.Temperature != nil || opts.Seed != nil {
		t.Fatalf("unset flags should leave the document alone: %+v", opts)
	}
}
