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

	"github.com/specialistvlad/graphjob/internal/app"
	"github.com/specialistvlad/graphjob/internal/cli"
	"github.com/specialistvlad/graphjob/internal/executor"
	"github.com/specialistvlad/graphjob/internal/hcl_adapter"
)

// main is the entrypoint for the graphjob application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	graphApp, err := app.NewApp(outW, appConfig, hcl_adapter.NewLoader())
	if err != nil {
		return err
	}
	summary, err := graphApp.Run(ctx)
	if err != nil {
		return err
	}
	return checkSummary(summary)
}

// checkSummary maps a run with failed steps to ExitStepsFailed.
func checkSummary(summary *executor.Summary) error {
	failed := summary.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &cli.ExitError{
		Code:    cli.ExitStepsFailed,
		Message: fmt.Sprintf("%d step(s) failed: %s", len(failed), strings.Join(failed, ", ")),
	}
}
