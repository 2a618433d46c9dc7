package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/chatloop/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "chatloop",
		Usage:   "Chat with a local language model",
		Version: version.String(),
		Flags:   chatFlags(),
		Action:  runChat,
		Commands: []*cli.Command{
			chatCmd(),
			inspectCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
