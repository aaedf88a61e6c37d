package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"

	"github.com/samcharles93/infill/internal/inference"
	"github.com/samcharles93/infill/internal/template"
)

type StreamMode string

const (
	StreamStyled StreamMode = "styled"
	StreamPlain  StreamMode = "plain"
	StreamQuiet  StreamMode = "quiet"
)

func parseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return StreamStyled, nil
	case StreamStyled, StreamPlain, StreamQuiet:
		return m, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q (want styled, plain or quiet)", s)
	}
}

// retractMark stands in for retracted text that cannot be erased.
const retractMark = "↺"

type partialStyles struct {
	header lipgloss.Style
	lit    lipgloss.Style
	gen    lipgloss.Style
	ungen  lipgloss.Style
}

func newPartialStyles(w io.Writer) partialStyles {
	r := lipgloss.NewRenderer(w)
	return partialStyles{
		header: r.NewStyle().Foreground(lipgloss.Color("8")),
		lit:    r.NewStyle(),
		gen:    r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		ungen:  r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// PartialWriter renders collect partials as they arrive. Generated text is
// highlighted in styled mode; a retraction erases the retracted text when
// out is a terminal and the text sits on the current line, and prints a
// marker otherwise.
type PartialWriter struct {
	mode   StreamMode
	out    io.Writer
	meta   io.Writer
	styles partialStyles

	terminal bool
	width    int

	// gens holds the gen partials of the hole being generated.
	gens []string
	col  int
}

func NewPartialWriter(mode StreamMode, out, meta io.Writer, terminal bool, width int) *PartialWriter {
	return &PartialWriter{
		mode:     mode,
		out:      out,
		meta:     meta,
		styles:   newPartialStyles(out),
		terminal: terminal,
		width:    width,
	}
}

func (w *PartialWriter) Partial(p inference.Partial) {
	switch p.Type {
	case inference.PartialTemplate:
		if w.mode == StreamStyled {
			meta := newPartialStyles(w.meta).header
			if p.System != "" {
				_, _ = fmt.Fprintln(w.meta, meta.Render("system: "+p.System))
			}
			_, _ = fmt.Fprintln(w.meta, meta.Render("template: "+oneLine(p.Content)))
		}
	case inference.PartialLit:
		w.gens = w.gens[:0]
		w.write(w.styles.lit, p.Content)
	case inference.PartialGen:
		w.gens = append(w.gens, p.Content)
		w.write(w.styles.gen, p.Content)
	case inference.PartialUngen:
		w.retract(p.TokenCount)
	}
}

func (w *PartialWriter) retract(count int) {
	n := min(count, len(w.gens))
	text := strings.Join(w.gens[len(w.gens)-n:], "")
	w.gens = w.gens[:len(w.gens)-n]
	if w.mode == StreamQuiet || text == "" {
		return
	}
	cols := lipgloss.Width(text)
	fits := w.width == 0 || w.col <= w.width
	if w.mode == StreamStyled && w.terminal && fits && cols <= w.col && !strings.Contains(text, "\n") {
		_, _ = fmt.Fprintf(w.out, "\x1b[%dD\x1b[K", cols)
		w.col -= cols
		return
	}
	w.write(w.styles.ungen, retractMark)
}

// write renders s line by line; lipgloss pads multi-line blocks to a
// common width otherwise.
func (w *PartialWriter) write(style lipgloss.Style, s string) {
	if s == "" || w.mode == StreamQuiet {
		return
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if i > 0 {
			_, _ = io.WriteString(w.out, "\n")
			w.col = 0
		}
		if line == "" {
			continue
		}
		if w.mode == StreamStyled {
			_, _ = io.WriteString(w.out, style.Render(line))
		} else {
			_, _ = io.WriteString(w.out, line)
		}
		w.col += lipgloss.Width(line)
	}
}

// Finish prints what streaming did not: the completion in quiet mode, the
// refs when asked, and a trailing newline.
func (w *PartialWriter) Finish(res template.Result, refs bool) error {
	if w.mode == StreamQuiet {
		_, _ = io.WriteString(w.out, res.Completion)
		w.col = len(res.Completion)
		if i := strings.LastIndexByte(res.Completion, '\n'); i >= 0 {
			w.col = len(res.Completion) - i - 1
		}
	}
	if w.col > 0 {
		_, _ = io.WriteString(w.out, "\n")
		w.col = 0
	}
	if !refs {
		return nil
	}
	b, err := json.MarshalIndent(res.Refs, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w.out, "%s\n", b)
	return err
}

func (w *PartialWriter) Stats(s inference.Stats, total int64) {
	if w.mode != StreamStyled {
		return
	}
	meta := newPartialStyles(w.meta).header
	_, _ = fmt.Fprintln(w.meta, meta.Render(fmt.Sprintf(
		"%d tokens generated, last hole %.1f tok/s", total, s.TPS)))
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", `\n`)
}
