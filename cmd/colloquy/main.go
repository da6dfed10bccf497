// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/poiesic/colloquy"
	"github.com/poiesic/colloquy/config"
	"github.com/poiesic/colloquy/core"
	"github.com/poiesic/colloquy/index"
	"github.com/poiesic/colloquy/ingestion"
	"github.com/poiesic/colloquy/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	sessionFlag := &cli.StringFlag{
		Name:    "session",
		Aliases: []string{"s"},
		Usage:   "Session id",
	}
	return &cli.App{
		Name:  "colloquy",
		Usage: "Conversational assistant over your documents and datasets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"COLLOQUY_CONFIG"},
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load environment variables from these files (default ./.env)",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return config.LoadDotEnv(c.StringSlice("env-file")...)
		},
		Commands: []*cli.Command{
			{
				Name:   "chat",
				Usage:  "Chat in the terminal; /upload <file> attaches a PDF or CSV",
				Action: chatCommand,
				Flags:  []cli.Flag{sessionFlag},
			},
			{
				Name:      "ingest",
				Usage:     "Ingest files into a session's index",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "session",
						Aliases:  []string{"s"},
						Usage:    "Session id",
						Required: true,
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides server.addr)",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search a session's index without generating an answer",
				ArgsUsage: "QUERY...",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "session",
						Aliases:  []string{"s"},
						Usage:    "Session id",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of chunks to return (0 uses index.search_k)",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed every chunk of a session's index with the configured embedding model",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "session",
						Aliases:  []string{"s"},
						Usage:    "Session id",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func chatCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tracker := index.NewProgressTracker(os.Stderr, 10)
	assistant, err := colloquy.New(cfg, colloquy.WithProgress(tracker.Func()))
	if err != nil {
		return err
	}
	defer assistant.Close()

	sessionID, err := assistant.NewSession(ctx, c.String("session"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Session %s (%s). Type sair, exit or quit to leave.\n", sessionID, assistant.Mode(sessionID))

	return newConsole(assistant, sessionID, c.App.Writer).Run(ctx, os.Stdin)
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}
	ctx := c.Context

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tracker := index.NewProgressTracker(os.Stderr, 10)
	assistant, err := colloquy.New(cfg, colloquy.WithProgress(tracker.Func()))
	if err != nil {
		return err
	}
	defer assistant.Close()

	sessionID := c.String("session")
	for _, path := range c.Args().Slice() {
		report, err := ingestFile(ctx, assistant, sessionID, path)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, describeReport(report))
	}
	return nil
}

func ingestFile(ctx context.Context, assistant *colloquy.Assistant, sessionID, path string) (*colloquy.IngestReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return assistant.IngestAndAttach(ctx, sessionID, filepath.Base(path), f)
}

func describeReport(r *colloquy.IngestReport) string {
	if r.Kind == ingestion.KindDataset {
		return fmt.Sprintf("%s: dataset with %d rows (%s)", r.Filename, r.Rows, strings.Join(r.Columns, ", "))
	}
	return fmt.Sprintf("%s: %d pages, %d chunks added, %d chunks indexed", r.Filename, r.Documents, r.Chunks, r.IndexSize)
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	assistant, err := colloquy.New(cfg, colloquy.WithMonitor(metrics.NewPrometheusMonitor(reg)))
	if err != nil {
		return err
	}
	defer assistant.Close()

	return serve(ctx, cfg.Server.Addr, newRouter(assistant, reg, cfg.Upload.MaxBytes))
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("a query is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	assistant, err := colloquy.New(cfg)
	if err != nil {
		return err
	}
	defer assistant.Close()

	results, err := assistant.Search(c.Context, c.String("session"), strings.Join(c.Args().Slice(), " "), c.Int("k"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Fprintf(c.App.Writer, "%d: [%s p.%s] '%s' [%0.3f]\n", i, hit.Chunk.Source(),
			hit.Chunk.Metadata[core.MetadataPage], hit.Chunk.Content, hit.Score)
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tracker := index.NewProgressTracker(os.Stderr, c.Int("report-interval"))
	assistant, err := colloquy.New(cfg, colloquy.WithProgress(tracker.Func()))
	if err != nil {
		return err
	}
	defer assistant.Close()

	sessionID := c.String("session")
	fmt.Fprintf(os.Stderr, "Data directory: %s\n", cfg.DataDir)
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	n, err := assistant.Reembed(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reindexing failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Re-embedded %d chunks of session %s\n", n, sessionID)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
