// Command backfill promotes legacy document keys of every intake into
// section records. It reads the server configuration.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/intakekeeper/internal/logging"
	"github.com/dmitrijs2005/intakekeeper/internal/server"
	"github.com/dmitrijs2005/intakekeeper/internal/server/config"
	"github.com/dmitrijs2005/intakekeeper/internal/server/services"
)

const batchSize = 200

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	deps, app, err := server.NewDeps(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	report, err := services.NewBackfill(deps).Run(ctx, batchSize)
	if err != nil {
		logger.Error(ctx, "backfill failed", "error", err)
		return
	}

	logger.Info(ctx, "backfill done",
		"intakes", report.Intakes,
		"sections", report.Sections,
		"statuses", report.Statuses,
		"skipped", report.Skipped)
}
