package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/samcharles93/chatloop/internal/gguf"
)

func inspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the header and metadata of a GGUF model",
		ArgsUsage: "<model.gguf>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "path to .gguf file"},
			&cli.BoolFlag{Name: "tensors", Usage: "list the tensor directory"},
			&cli.BoolFlag{Name: "all", Usage: "show every metadata key, including tokenizer arrays"},
			&cli.Int64Flag{Name: "array-limit", Usage: "array elements shown per value", Value: 8},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.String("model")
			if path == "" {
				path = c.Args().First()
			}
			if path == "" {
				return cli.Exit("error: a model path is required", 1)
			}
			f, err := gguf.Open(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return printInspect(os.Stdout, f, inspectOptions{
				tensors:    c.Bool("tensors"),
				all:        c.Bool("all"),
				arrayLimit: int(c.Int64("array-limit")),
				width:      terminalWidth(),
			})
		},
	}
}

type inspectOptions struct {
	tensors    bool
	all        bool
	arrayLimit int
	width      int
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 0
}

func newTable(w io.Writer, width int) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if width > 0 {
		t.SetAllowedRowLength(width)
	}
	return t
}

func printInspect(w io.Writer, f *gguf.File, opts inspectOptions) error {
	summary := newTable(w, opts.width)
	summary.SetTitle(f.Name())
	summary.AppendRows([]table.Row{
		{"path", f.Path},
		{"gguf version", f.Header.Version},
		{"architecture", f.Architecture()},
		{"context length", f.ContextLength()},
		{"tokenizer", f.TokenizerModel()},
		{"metadata keys", f.Header.KVCount},
		{"tensors", f.Header.TensorCount},
	})
	summary.Render()

	meta := newTable(w, opts.width)
	meta.AppendHeader(table.Row{"key", "type", "value"})
	for _, k := range f.Keys() {
		if !opts.all && strings.HasPrefix(k, "tokenizer.ggml.") && f.KV[k].Type == gguf.TypeArray {
			continue
		}
		v := f.KV[k]
		meta.AppendRow(table.Row{k, v.Type, gguf.FormatValue(v, opts.arrayLimit)})
	}
	meta.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 80, WidthMaxEnforcer: text.WrapSoft}})
	meta.Render()

	if !opts.tensors {
		return nil
	}
	tensors := newTable(w, opts.width)
	tensors.AppendHeader(table.Row{"name", "type", "shape", "elements"})
	for _, ti := range f.Tensors {
		tensors.AppendRow(table.Row{ti.Name, ti.Type, fmt.Sprint(ti.Dims), ti.Elements()})
	}
	tensors.Render()
	return nil
}
