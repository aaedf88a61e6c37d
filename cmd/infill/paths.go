package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samcharles93/infill/internal/api"
)

const envInfillModelsDir = "INFILL_MODELS_DIR"

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = func() bool { return isTerminal(os.Stdin) }

func resolveTokenizer(tokFlag, modelsDir string, stdin io.Reader, stderr io.Writer) (string, error) {
	tokFlag = strings.TrimSpace(tokFlag)
	if tokFlag != "" {
		return tokFlag, nil
	}

	dir := strings.TrimSpace(modelsDir)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envInfillModelsDir))
	}
	if dir == "" {
		return "", fmt.Errorf("--tokenizer or --models-path is required unless %s is set", envInfillModelsDir)
	}

	found, err := api.DiscoverModels(dir)
	if err != nil {
		return "", err
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no tokenizers found in %s", dir)
	case 1:
		_, _ = fmt.Fprintf(stderr, "using tokenizer %s\n", found[0])
		return found[0], nil
	default:
		if !stdinIsTTY() {
			return "", fmt.Errorf(
				"multiple tokenizers found in %s but stdin is not interactive; set --tokenizer",
				dir,
			)
		}
		return selectInteractively(dir, found, stdin, stderr)
	}
}

func selectInteractively(dir string, options []string, stdin io.Reader, stderr io.Writer) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("no tokenizers available in %s", dir)
	}

	_, _ = fmt.Fprintf(stderr, "select a tokenizer from %s\n", dir)
	for i, m := range options {
		_, _ = fmt.Fprintf(stderr, "%d. %s\n", i+1, displayName(dir, m))
	}

	reader := bufio.NewReader(stdin)
	for {
		_, _ = fmt.Fprintf(stderr, "enter selection [1-%d]: ", len(options))
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if errors.Is(err, io.EOF) {
				return "", errors.New("no selection provided on stdin; set --tokenizer")
			}
			continue
		}

		idx, convErr := strconv.Atoi(line)
		if convErr != nil || idx < 1 || idx > len(options) {
			_, _ = fmt.Fprintf(stderr, "invalid selection %q\n", line)
			if errors.Is(err, io.EOF) {
				return "", errors.New("invalid selection provided on stdin; set --tokenizer")
			}
			continue
		}
		return options[idx-1], nil
	}
}

func displayName(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return filepath.Base(path)
	}
	return rel
}
