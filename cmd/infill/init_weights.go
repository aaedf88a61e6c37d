package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/infill/internal/logger"
	"github.com/samcharles93/infill/internal/tokenizer"
	"github.com/samcharles93/infill/internal/toy"
)

// initWeightsCmd pins a seeded toy model to a file so later runs reuse it
// without the --hidden and --model-seed flags.
func initWeightsCmd() *cli.Command {
	var out string
	var force bool
	return &cli.Command{
		Name:  "init-weights",
		Usage: "Write seeded toy model weights sized to a tokenizer",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .safetensors path",
				Required:    true,
				Destination: &out,
			},
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "overwrite an existing file",
				Destination: &force,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, LoadConfig())

			path, err := resolveTokenizer(tokenizerPath, modelsPath, os.Stdin, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			format, err := tokenizer.ParseFormat(tokenizerFormat)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			tok, err := tokenizer.Load(strings.TrimSpace(path), format)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load tokenizer: %v", err), 1)
			}
			vocab := tokenizer.VocabSize(tok)
			if vocab <= 0 {
				return cli.Exit("error: tokenizer does not report a vocabulary size", 1)
			}
			if !force {
				if _, err := os.Stat(out); err == nil {
					return cli.Exit(fmt.Sprintf("error: %s exists (use --force)", out), 1)
				}
			}

			m, err := toy.New(vocab, int(hidden), modelSeed)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := m.SaveFile(out); err != nil {
				return cli.Exit(fmt.Sprintf("error: write weights: %v", err), 1)
			}
			log.Info("wrote toy weights", "path", out, "vocab", vocab, "hidden", hidden, "seed", modelSeed)
			return nil
		},
	}
}
