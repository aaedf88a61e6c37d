package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/infill/internal/api"
	"github.com/samcharles93/infill/internal/logger"
	"github.com/samcharles93/infill/internal/tokenizer"
)

func listModelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "list-models",
		Aliases: []string{"ls", "models"},
		Usage:   "List tokenizers in the models directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "models-path",
				Aliases:     []string{"path"},
				Usage:       "directory of tokenizers to choose from",
				Destination: &modelsPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, LoadConfig())

			dir := strings.TrimSpace(modelsPath)
			if dir == "" {
				dir = strings.TrimSpace(os.Getenv(envInfillModelsDir))
			}
			if dir == "" {
				return cli.Exit("error: --models-path is required unless INFILL_MODELS_DIR is set", 1)
			}

			models, err := api.DiscoverModels(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(models) == 0 {
				log.Info("no tokenizers found", "path", dir)
				return nil
			}

			fmt.Printf("Tokenizers in %s:\n\n", dir)
			for _, m := range models {
				name := filepath.Base(m)
				tok, err := tokenizer.Load(m, tokenizer.FormatAuto)
				if err != nil {
					log.Debug("tokenizer not loadable", "path", m, "error", err)
					fmt.Printf("  %-40s %10s\n", name, "unreadable")
					continue
				}
				fmt.Printf("  %-40s %10s\n", name, formatVocab(tokenizer.VocabSize(tok)))
			}
			fmt.Printf("\n%d tokenizer(s) found\n", len(models))
			return nil
		},
	}
}

func formatVocab(n int) string {
	switch {
	case n <= 0:
		return "?"
	case n >= 1000:
		return fmt.Sprintf("%.1fk vocab", float64(n)/1000)
	default:
		return fmt.Sprintf("%d vocab", n)
	}
}
