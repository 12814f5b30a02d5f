package cmd

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zjrosen/reactor/internal/demo"
	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/ui/inspector"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Watch a live library tree in the terminal",
	Long: `Mount the demo library on an event loop and show its activity stream
and log. Keys add books, create members and toggle diagnostics flags; flag
changes are saved to the config file.`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().Bool("typo", false, "add a subscriber with a misspelled event name")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	if cfgErr != nil {
		return cfgErr
	}

	cleanup, err := initLogging(io.Discard)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var opts []demo.Option
	if typo, _ := cmd.Flags().GetBool("typo"); typo {
		opts = append(opts, demo.WithTypo())
	}
	s, err := startSession(ctx, cfg, configPath(), true, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	// Subscribe before mounting so the first registrations are shown.
	model := inspector.New(ctx, inspector.Config{
		Activity: s.tree.Activity(),
		Logs:     log.NewListener(ctx),
		Driver:   s,
	})
	if err := s.Mount(); err != nil {
		return fmt.Errorf("mounting library: %w", err)
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running inspector: %w", err)
	}
	return nil
}
