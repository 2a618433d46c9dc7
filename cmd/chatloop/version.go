package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/chatloop/internal/backend"
	"github.com/samcharles93/chatloop/internal/version"
)

type versionReport struct {
	version.Info
	Backends []string `json:"backends"`
}

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information and the backends compiled in",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return printVersion(os.Stdout, versionReport{
				Info:     version.Resolve(),
				Backends: backend.Available(),
			}, cmd.Bool("json"))
		},
	}
}

func printVersion(w io.Writer, r versionReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintf(w, "chatloop %s\n", r.Version)
	if r.Commit != "" {
		dirty := ""
		if r.Modified {
			dirty = " (modified)"
		}
		fmt.Fprintf(w, "  commit   %s%s\n", r.Commit, dirty)
	}
	if r.BuildTime != "" {
		fmt.Fprintf(w, "  built    %s\n", r.BuildTime)
	}
	_, err := fmt.Fprintf(w, "  backends %s\n", strings.Join(r.Backends, ", "))
	return err
}
