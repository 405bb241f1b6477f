package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/starford/marginalia/internal"
	"github.com/starford/marginalia/internal/links"
	"github.com/starford/marginalia/internal/mcpserver"
	"github.com/starford/marginalia/internal/workspace"
)

// openSession loads the config and builds a session logging to stderr.
func openSession(cmd *cli.Command) (*internal.Config, *workspace.Session, func() error, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := internal.NewLogger(cfg.App.LogLevel, os.Stderr)
	backend, closeBackend, err := internal.OpenBackend(cfg.Storage)
	if err != nil {
		return nil, nil, nil, err
	}
	idx, err := internal.OpenIndex(cfg.Search)
	if err != nil {
		_ = closeBackend()
		return nil, nil, nil, err
	}
	closeFn := func() error {
		return errors.Join(idx.Close(), closeBackend())
	}
	sess := internal.NewSession(cfg, backend, logger, workspace.WithSearchIndex(idx))
	return cfg, sess, closeFn, nil
}

func runMCP(_ context.Context, cmd *cli.Command) error {
	cfg, sess, closeFn, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	return mcpserver.New(sess, cfg.Library.Path).ServeStdio()
}

func runLinks(_ context.Context, cmd *cli.Command) error {
	_, sess, closeFn, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	broken := sess.BrokenLinks()
	writeBrokenReport(os.Stdout, broken)
	if len(broken) > 0 {
		return cli.Exit("", 2)
	}
	return nil
}

func writeBrokenReport(w io.Writer, broken []links.BrokenLink) {
	ok := color.New(color.FgGreen)
	head := color.New(color.Bold)
	bad := color.New(color.FgRed)
	dim := color.New(color.Faint)

	if len(broken) == 0 {
		_, _ = ok.Fprintln(w, "no broken links")
		return
	}

	owner := ""
	for _, b := range broken {
		if b.Owner != owner {
			owner = b.Owner
			_, _ = head.Fprintln(w, owner)
		}
		target := b.Key.ID
		switch {
		case b.Key.Coarse():
			target = b.Key.FilePath
		case b.Key.FilePath != b.Owner:
			target = b.Key.FilePath + "#" + b.Key.ID
		}
		_, _ = fmt.Fprintf(w, "  %s %s %s\n", b.SourceID, dim.Sprint("->"), bad.Sprint(target))
	}
	_, _ = bad.Fprintf(w, "%d broken link(s)\n", len(broken))
}

func runExport(_ context.Context, cmd *cli.Command) error {
	doc := cmd.Args().First()
	if doc == "" {
		return errors.New("export: document path is required")
	}
	width, height := int(cmd.Int("width")), int(cmd.Int("height"))
	if width <= 0 || height <= 0 {
		return fmt.Errorf("export: invalid size %dx%d", width, height)
	}

	_, sess, closeFn, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	sess.Open(doc)
	sess.FitTransform(float64(width), float64(height))

	f, err := os.Create(cmd.String("out"))
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := sess.RenderPNG(f, width, height); err != nil {
		_ = f.Close()
		return fmt.Errorf("export: %w", err)
	}
	return f.Close()
}
