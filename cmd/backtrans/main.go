package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"codeberg.org/snonux/backtrans/internal/cli"
	"codeberg.org/snonux/backtrans/internal/processor"
)

func main() {
	// Create flags instance
	flags := cli.NewFlags()

	// Create root command
	rootCmd := cli.CreateRootCommand(flags)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	// Set up command initialization
	cobra.OnInitialize(func() {
		cli.InitConfig(flags.CfgFile)
	})

	// Set the run function
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, args, flags)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Execute command
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", processor.ErrorMessage(err))
		stop()
		os.Exit(1)
	}
}

func runCommand(cmd *cobra.Command, args []string, flags *cli.Flags) error {
	logger := cli.NewLogger(os.Stderr, flags.Verbose)
	if flags.ServeAddr != "" && !flags.Verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	slog.SetDefault(logger)

	settings, err := cli.LoadSettings()
	if err != nil {
		return err
	}

	// Create processor
	proc, err := processor.NewProcessor(flags, settings, processor.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := proc.Close(); err != nil {
			logger.Warn("Failed to close stores", "error", err)
		}
	}()

	ctx := cmd.Context()

	switch {
	case flags.ClearCache:
		return proc.ClearCache()
	case flags.Stats:
		return proc.PrintStats()
	case flags.SearchCache != "":
		return proc.SearchCache(flags.SearchCache)
	case flags.ListHistory || flags.SearchHistory != "":
		return proc.ListHistory(ctx)
	case settings.ServeAddr != "":
		return proc.Serve(ctx)
	case flags.BatchFile != "":
		return proc.ProcessBatch(ctx)
	case len(args) > 0:
		text := args[0]
		if text == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			text = strings.TrimSpace(string(data))
		}
		return proc.ProcessText(ctx, text)
	default:
		return errors.New("no input: pass a text, - for stdin, --batch, --stats or --serve (see --help)")
	}
}
