package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/infill/internal/logger"
	"github.com/samcharles93/infill/internal/tokenizer"
)

func tokenizeCmd() *cli.Command {
	var (
		text    string
		asJSON  bool
		pieces  bool
		withBOS bool
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "text",
			Usage:       "text to tokenize (reads stdin when empty)",
			Destination: &text,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print ids as a JSON array",
			Destination: &asJSON,
		},
		&cli.BoolFlag{
			Name:        "pieces",
			Usage:       "print the surface text of every token",
			Destination: &pieces,
		},
		&cli.BoolFlag{
			Name:        "bos",
			Usage:       "encode as a prompt, adding BOS when the tokenizer asks for it",
			Destination: &withBOS,
		},
	)

	return &cli.Command{
		Name:  "tokenize",
		Usage: "Print the token ids of text",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, LoadConfig())

			if text == "" && !stdinIsTTY() {
				b, err := io.ReadAll(os.Stdin)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: read stdin: %v", err), 1)
				}
				text = string(b)
			}

			path, err := resolveTokenizer(tokenizerPath, modelsPath, os.Stdin, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: resolve tokenizer: %v", err), 1)
			}
			format, err := tokenizer.ParseFormat(tokenizerFormat)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			tok, err := tokenizer.Load(path, format)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load tokenizer: %v", err), 1)
			}
			log.Debug("tokenizer loaded", "path", path, "vocab", tokenizer.VocabSize(tok))

			var ids []int
			if withBOS {
				ids, err = tokenizer.EncodePrompt(tok, text)
			} else {
				ids, err = tok.Encode(text)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: encode: %v", err), 1)
			}
			return printTokens(os.Stdout, tok, ids, asJSON, pieces)
		},
	}
}

func printTokens(w io.Writer, tok tokenizer.Tokenizer, ids []int, asJSON, pieces bool) error {
	if asJSON {
		if ids == nil {
			ids = []int{}
		}
		b, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	}
	if pieces {
		for _, id := range ids {
			if _, err := fmt.Fprintf(w, "%8d  %q\n", id, tokenizer.TokenText(tok, id)); err != nil {
				return err
			}
		}
		return nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}
