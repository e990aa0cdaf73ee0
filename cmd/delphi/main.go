// Package main provides the delphi CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/richinex/delphi/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider string
	model    string
	maxIter  int
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "delphi",
		Short: "Answer natural-language data questions",
		Long: `Delphi chains a text generation model with data tooling to answer
natural-language questions: it decides what to do next (fetch a page,
analyze data, format an answer), executes that step, and repeats until it
can produce a final answer.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Model identifier (provider default when empty)")
	rootCmd.PersistentFlags().IntVarP(&maxIter, "max-iter", "m", 0, "Maximum orchestrator iterations")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(artifactsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider:      provider,
		Model:         model,
		MaxIterations: maxIter,
		Verbose:       verbose,
	}
}

func askCmd() *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question",
		Long: `Answer a single natural-language data question.

Auxiliary data files (CSV, JSON) can be attached with --file and are made
available to the analysis step.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ask(context.Background(), args[0], files, options())
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Data file to attach (repeatable)")

	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(options())
		},
	}
}

func artifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Manage stored artifacts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ArtifactsList()
		},
	})

	var maxAge time.Duration
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Delete artifacts older than the retention age",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ArtifactsSweep(maxAge)
		},
	}
	sweep.Flags().DurationVar(&maxAge, "max-age", 0, "Retention age (configured default when zero)")
	cmd.AddCommand(sweep)

	return cmd
}
