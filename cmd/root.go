// Package cmd provides the CLI commands for olc.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/olc-dev/olc/internal/app"
	"github.com/olc-dev/olc/internal/config"
	"github.com/olc-dev/olc/internal/debug"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "olc",
		Short: "Chat with local Ollama models",
		Long: `olc is an interactive terminal client for local Ollama models.

Conversations stay within a configurable token budget through automatic
summarization, and can be saved, tagged, and reloaded. Saved sessions are
masked for secrets and optionally encrypted at rest.`,
		RunE: runChat,
	}

	cmd.Flags().Bool("debug", false, "Enable debug logging")
	cmd.Flags().String("model", "", "Model to chat with (overrides the configured default)")
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newKeygenCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	debugMode, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return fmt.Errorf("getting debug flag: %w", err)
	}
	if debugMode || cfg.Debug {
		logPath := cfg.LogPath()
		if debugErr := debug.Enable(logPath); debugErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to enable debug logging: %v\n", debugErr)
		} else {
			defer debug.Disable()
			fmt.Fprintf(os.Stderr, "Debug: %s\n", logPath)
		}
	}

	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.DefaultModel = model
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	return a.Run(context.Background())
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
