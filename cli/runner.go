// Command execution for CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/richinex/delphi/analysis"
	"github.com/richinex/delphi/artifact"
	"github.com/richinex/delphi/config"
	"github.com/richinex/delphi/extraction"
	"github.com/richinex/delphi/fetch"
	"github.com/richinex/delphi/format"
	"github.com/richinex/delphi/llm"
	"github.com/richinex/delphi/orchestrate"
	"github.com/richinex/delphi/server"
)

// Options holds CLI execution options layered on top of the environment
// settings.
type Options struct {
	Provider      string
	Model         string
	MaxIterations int
	Verbose       bool
}

type pipeline struct {
	settings     config.Settings
	logger       *slog.Logger
	store        *artifact.Store
	orchestrator *orchestrate.Orchestrator
}

func buildPipeline(opts Options, jsonLogs bool) (*pipeline, error) {
	settings := config.Load()
	if opts.Provider != "" {
		settings.Provider = opts.Provider
	}
	if opts.Model != "" {
		settings.Model = opts.Model
	}
	if opts.MaxIterations > 0 {
		settings.MaxIterations = opts.MaxIterations
	}
	if opts.Verbose {
		settings.LogLevel = slog.LevelDebug
	}
	logger := settings.NewLogger()
	if jsonLogs {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: settings.LogLevel}))
	}

	provider, err := settings.BuildProvider()
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(provider)

	store, err := artifact.NewStore(settings.ArtifactDir)
	if err != nil {
		return nil, err
	}

	orchestrator := orchestrate.New(
		client,
		fetch.NewHTTPFetcher(settings.FetchTimeout),
		extraction.NewEngine(client, logger),
		analysis.NewEngine(client, store, logger),
		format.NewFormatter(client, store, logger),
		orchestrate.Options{MaxIterations: settings.MaxIterations, Logger: logger},
	)
	return &pipeline{settings: settings, logger: logger, store: store, orchestrator: orchestrator}, nil
}

// Ask answers one question from the command line. File arguments are
// loaded and passed to the run as uploads.
func Ask(ctx context.Context, question string, filePaths []string, opts Options) error {
	p, err := buildPipeline(opts, false)
	if err != nil {
		return err
	}

	uploads := make(map[string][]byte, len(filePaths))
	for _, path := range filePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		uploads[filepath.Base(path)] = data
	}
	files, err := p.store.SaveUploads(uploads)
	if err != nil {
		return err
	}

	result, err := p.orchestrator.Run(ctx, question, files)
	if err != nil {
		return err
	}

	if s, ok := result.(string); ok {
		fmt.Println(s)
		return nil
	}
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

// Serve runs the HTTP server until it fails. Server mode logs JSON;
// the interactive commands use the text handler.
func Serve(opts Options) error {
	p, err := buildPipeline(opts, true)
	if err != nil {
		return err
	}
	srv := server.New(p.orchestrator, p.store, p.logger, p.settings.MaxUploadBytes)

	p.logger.Info("listening", "addr", p.settings.ListenAddr)
	return http.ListenAndServe(p.settings.ListenAddr, srv.Handler())
}

// ArtifactsList prints every stored artifact, newest first.
func ArtifactsList() error {
	settings := config.Load()
	store, err := artifact.NewStore(settings.ArtifactDir)
	if err != nil {
		return err
	}
	refs, err := store.List()
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		fmt.Println("no artifacts stored")
		return nil
	}
	for _, ref := range refs {
		fmt.Printf("%-10s %s\n", ref.Category, ref.Name)
	}
	return nil
}

// ArtifactsSweep deletes artifacts older than maxAge (the configured
// retention age when zero).
func ArtifactsSweep(maxAge time.Duration) error {
	settings := config.Load()
	if maxAge <= 0 {
		maxAge = settings.ArtifactMaxAge
	}
	store, err := artifact.NewStore(settings.ArtifactDir)
	if err != nil {
		return err
	}
	removed, err := store.Sweep(maxAge)
	fmt.Printf("removed %d artifacts older than %s\n", removed, maxAge)
	return err
}
