package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/marginalia/internal"
	pkgconfig "github.com/starford/marginalia/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "marginalia",
		Usage:   "Document annotator with highlights, notes, cross-document links and a link graph",
		Version: version,
		Action:  run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (.yaml or .toml)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: run,
			},
			{
				Name:   "mcp",
				Usage:  "Serve annotation tools over MCP on stdio",
				Action: runMCP,
			},
			{
				Name:   "links",
				Usage:  "Report links whose target annotation no longer exists",
				Action: runLinks,
			},
			{
				Name:      "export",
				Usage:     "Render a document's link graph to PNG",
				ArgsUsage: "<document path>",
				Action:    runExport,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file",
						Value:   "graph.png",
					},
					&cli.IntFlag{
						Name:  "width",
						Usage: "Image width in pixels",
						Value: 1200,
					},
					&cli.IntFlag{
						Name:  "height",
						Usage: "Image height in pixels",
						Value: 800,
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
