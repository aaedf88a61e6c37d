package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/infill/internal/version"
)

type versionReport struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	Go        string `json:"go"`
	Platform  string `json:"platform"`
}

func versionCmd() *cli.Command {
	var asJSON bool
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return printVersion(os.Stdout, version.Resolve(), asJSON)
		},
	}
}

func printVersion(w io.Writer, info version.Info, asJSON bool) error {
	r := versionReport{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildTime: info.BuildTime,
		Modified:  info.Modified,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if asJSON {
		return json.NewEncoder(w).Encode(r)
	}
	_, _ = fmt.Fprintf(w, "version:    %s\n", r.Version)
	if r.Commit != "" {
		commit := r.Commit
		if r.Modified {
			commit += " (modified)"
		}
		_, _ = fmt.Fprintf(w, "commit:     %s\n", commit)
	}
	if r.BuildTime != "" {
		_, _ = fmt.Fprintf(w, "build time: %s\n", r.BuildTime)
	}
	_, _ = fmt.Fprintf(w, "go:         %s %s\n", r.Go, r.Platform)
	return nil
}
