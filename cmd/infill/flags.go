package main

import "github.com/urfave/cli/v3"

var (
	tokenizerPath   string
	tokenizerFormat string
	promptFormat    string
	modelsPath      string
	weightsPath     string
	hidden          int64
	modelSeed       int64
	logLevel        string
	logFormat       string
	debug           bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "tokenizer",
			Aliases:     []string{"tok"},
			Usage:       "tokenizer.json, tokenizer.model, model directory or tiktoken encoding name",
			Destination: &tokenizerPath,
		},
		&cli.StringFlag{
			Name:        "tokenizer-format",
			Usage:       "tokenizer format (auto, hf, sentencepiece, tiktoken)",
			Value:       "auto",
			Destination: &tokenizerFormat,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "directory of tokenizers to choose from",
			Destination: &modelsPath,
		},
		&cli.StringFlag{
			Name:        "prompt-format",
			Usage:       "prompt format (llama2, chatml, raw)",
			Value:       "llama2",
			Destination: &promptFormat,
		},
		&cli.StringFlag{
			Name:        "weights",
			Usage:       "toy model weights (.safetensors) written by init-weights",
			Destination: &weightsPath,
		},
		&cli.Int64Flag{
			Name:        "hidden",
			Usage:       "hidden size of the toy model",
			Value:       32,
			Destination: &hidden,
		},
		&cli.Int64Flag{
			Name:        "model-seed",
			Usage:       "seed for the toy model weights",
			Destination: &modelSeed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
