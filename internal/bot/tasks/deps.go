// Package tasks implements the scheduled background tasks: database
// maintenance and the daily outcome report.
package tasks

import (
	"log/slog"

	"github.com/edgard/ownerscout/internal/config"
	"github.com/edgard/ownerscout/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
}
