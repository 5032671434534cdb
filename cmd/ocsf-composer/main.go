package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mosajjal/ocsf-composer/pkg/app"
	"github.com/mosajjal/ocsf-composer/pkg/composer"
	"github.com/mosajjal/ocsf-composer/pkg/config"
	"github.com/mosajjal/ocsf-composer/pkg/logging"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 on success, 1 when the run fell
// short, 2 when it could not start
func run() int {
	args := config.MustParse()
	runID := uuid.New().String()
	logging.Init(args.LogLevel, args.LogPretty, runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, args, runID)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialise")
		return 2
	}
	defer a.Close()

	var report *composer.RunReport
	if args.Input != "" {
		report, err = a.IngestFile(ctx, args.Input)
	} else {
		report, err = a.Generate(ctx)
	}
	if err != nil {
		log.Error().Err(err).Msg("run aborted")
		return 2
	}

	if err := writeReport(args.Report, report); err != nil {
		log.Error().Err(err).Msg("failed to write report")
	}
	if err := report.Err(); err != nil {
		log.Warn().Err(err).Msg("run finished with errors")
	}
	if report.Status != composer.StatusSuccess {
		return 1
	}
	return 0
}

func writeReport(path string, report *composer.RunReport) error {
	if path == "" || path == "-" {
		return report.WriteJSON(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := report.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
