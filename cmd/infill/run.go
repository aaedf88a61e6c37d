package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/infill/internal/inference"
	"github.com/samcharles93/infill/internal/logger"
	"github.com/samcharles93/infill/internal/registry"
	"github.com/samcharles93/infill/internal/template"
)

// sampling holds run overrides. Nil fields leave the template's options
// alone.
type sampling struct {
	temp          *float64
	topP          *float64
	topK          *int64
	minP          *float64
	repeatPenalty *float64
	repeatLastN   *int64
	maxTokens     *int64
	seed          *int64
}

func (s sampling) apply(doc *template.Document) {
	if s.temp != nil {
		doc.Options.Temperature = inference.Ptr(float32(*s.temp))
	}
	if s.topP != nil {
		doc.Options.TopP = inference.Ptr(float32(*s.topP))
	}
	if s.topK != nil {
		doc.Options.TopK = inference.Ptr(int(*s.topK))
	}
	if s.minP != nil {
		doc.Options.MinP = inference.Ptr(float32(*s.minP))
	}
	if s.repeatPenalty != nil {
		doc.Options.RepeatPenalty = inference.Ptr(float32(*s.repeatPenalty))
	}
	if s.repeatLastN != nil {
		doc.Options.RepeatLastN = inference.Ptr(int(*s.repeatLastN))
	}
	if s.maxTokens != nil {
		doc.Options.MaxTokens = inference.Ptr(int(*s.maxTokens))
	}
	if s.seed != nil {
		doc.Options.Seed = s.seed
	}
}

func samplingFlags(cmd *cli.Command) sampling {
	var s sampling
	if cmd.IsSet("temp") {
		s.temp = inference.Ptr(cmd.Float64("temp"))
	}
	if cmd.IsSet("top-p") {
		s.topP = inference.Ptr(cmd.Float64("top-p"))
	}
	if cmd.IsSet("top-k") {
		s.topK = inference.Ptr(cmd.Int64("top-k"))
	}
	if cmd.IsSet("min-p") {
		s.minP = inference.Ptr(cmd.Float64("min-p"))
	}
	if cmd.IsSet("repeat-penalty") {
		s.repeatPenalty = inference.Ptr(cmd.Float64("repeat-penalty"))
	}
	if cmd.IsSet("repeat-last-n") {
		s.repeatLastN = inference.Ptr(cmd.Int64("repeat-last-n"))
	}
	if cmd.IsSet("max-tokens") {
		s.maxTokens = inference.Ptr(cmd.Int64("max-tokens"))
	}
	if cmd.IsSet("seed") {
		s.seed = inference.Ptr(cmd.Int64("seed"))
	}
	return s
}

func runCmd() *cli.Command {
	var (
		templatePath string
		system       string
		streamMode   string
		showRefs     bool
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "template",
			Aliases:     []string{"t"},
			Usage:       "template document (.yaml, .toml or .json)",
			Required:    true,
			Destination: &templatePath,
		},
		&cli.StringFlag{
			Name:        "system",
			Aliases:     []string{"sys"},
			Usage:       "override the template's system prompt",
			Destination: &system,
		},
		&cli.Float64Flag{
			Name:    "temp",
			Aliases: []string{"temperature"},
			Usage:   "sampling temperature for every hole",
		},
		&cli.Float64Flag{
			Name:    "top-p",
			Aliases: []string{"top_p"},
			Usage:   "top_p sampling parameter for every hole",
		},
		&cli.Int64Flag{
			Name:    "top-k",
			Aliases: []string{"top_k"},
			Usage:   "top_k sampling parameter for every hole (0 disables)",
		},
		&cli.Float64Flag{
			Name:    "min-p",
			Aliases: []string{"min_p"},
			Usage:   "min_p sampling parameter for every hole",
		},
		&cli.Float64Flag{
			Name:  "repeat-penalty",
			Usage: "penalty for tokens a hole already produced (1 disables)",
		},
		&cli.Int64Flag{
			Name:  "repeat-last-n",
			Usage: "how many recent tokens the repeat penalty covers",
		},
		&cli.Int64Flag{
			Name:    "max-tokens",
			Aliases: []string{"n"},
			Usage:   "maximum characters generated per hole",
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "sampling seed",
		},
		&cli.BoolFlag{
			Name:        "refs",
			Usage:       "print the recorded refs as JSON after the completion",
			Destination: &showRefs,
		},
		&cli.StringFlag{
			Name:        "stream-mode",
			Usage:       "output mode (styled, plain, quiet)",
			Value:       string(StreamStyled),
			Destination: &streamMode,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Fill a template document",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg := LoadConfig()
			applyModelConfig(cmd, cfg)
			overrides := samplingFlags(cmd)
			applyRunConfig(cmd, cfg, &overrides, &streamMode)

			mode, err := parseStreamMode(streamMode)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			doc, err := template.LoadDocument(templatePath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load template: %v", err), 1)
			}
			if system != "" {
				doc.System = system
			}
			overrides.apply(doc)

			h, err := loadHandle(ctx, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = h.Close(context.Background()) }()

			tpl, err := doc.Compile(doc.Context(h, template.WithLogger(log)))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: compile template: %v", err), 1)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			w := NewPartialWriter(mode, os.Stdout, os.Stderr, isTerminal(os.Stdout), terminalWidth(os.Stdout))
			res, err := tpl.CollectRefs(ctx, w.Partial)
			if err != nil {
				_ = w.Finish(res, false)
				if errors.Is(err, inference.ErrCancelled) {
					return cli.Exit("cancelled", 130)
				}
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := w.Finish(res, showRefs); err != nil {
				return err
			}
			w.Stats(h.LastStats(), h.TotalTokenCount())
			return nil
		},
	}
}

// loadHandle builds a handle from the shared model flags.
func loadHandle(ctx context.Context, log logger.Logger) (*inference.Handle, error) {
	tok, err := resolveTokenizer(tokenizerPath, modelsPath, os.Stdin, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("resolve tokenizer: %w", err)
	}
	return registry.ToyLoader(log)(ctx, modelSpec(tok))
}

func modelSpec(tok string) registry.Spec {
	return registry.Spec{
		Tokenizer:       tok,
		TokenizerFormat: tokenizerFormat,
		PromptFormat:    promptFormat,
		Weights:         strings.TrimSpace(weightsPath),
		Hidden:          int(hidden),
		Seed:            modelSeed,
	}
}
