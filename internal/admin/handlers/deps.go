package handlers

import (
	"log/slog"

	"github.com/edgard/ownerscout/internal/config"
	"github.com/edgard/ownerscout/internal/database"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Store  database.Store
}
