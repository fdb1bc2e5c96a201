// Package admin implements the operator-facing side: the internal HTTP API
// receiving owner notifications from the aggregator, and the Telegram command
// handlers for managing channels and the opening question.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/ownerscout/internal/notify"
)

const (
	shutdownTimeout = 5 * time.Second
	previewRunes    = 1000
)

// alertSender is the slice of *bot.Bot the API needs.
type alertSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// API is the internal HTTP server receiving owner notifications and relaying
// them to the operator chat.
type API struct {
	server *http.Server
	bot    alertSender
	chatID int64
	logger *slog.Logger
}

// NewAPI creates the notification receiver listening on addr and alerting the
// given operator chat.
func NewAPI(addr string, b alertSender, chatID int64, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	api := &API{
		bot:    b,
		chatID: chatID,
		logger: logger.With("component", "admin_api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /notify_owner", api.handleNotifyOwner)

	api.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return api
}

// Addr returns the configured listen address.
func (a *API) Addr() string {
	return a.server.Addr
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin api server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down admin API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin api shutdown failed: %w", err)
	}
	return <-errCh
}

// Handler exposes the API's HTTP handler.
func (a *API) Handler() http.Handler {
	return a.server.Handler
}

func (a *API) handleNotifyOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var n notify.OwnerNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		a.logger.WarnContext(ctx, "Rejecting malformed owner notification", "error", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	a.logger.InfoContext(ctx, "Owner notification received", "author_id", n.AuthorID)

	if a.chatID == 0 {
		a.logger.WarnContext(ctx, "No operator chat configured, dropping alert", "author_id", n.AuthorID)
		writeStatus(w, http.StatusOK)
		return
	}

	_, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: a.chatID,
		Text:   renderOwnerAlert(n),
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to deliver owner alert", "author_id", n.AuthorID, "error", err)
		http.Error(w, "failed to deliver alert", http.StatusInternalServerError)
		return
	}

	writeStatus(w, http.StatusOK)
}

func writeStatus(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// renderOwnerAlert formats the operator alert. The post text is truncated so
// a long ad cannot blow past the message size limit.
func renderOwnerAlert(n notify.OwnerNotification) string {
	author := fmt.Sprintf("id %d", n.AuthorID)
	if n.Username != nil && *n.Username != "" {
		author = "@" + *n.Username
	}

	text := fmt.Sprintf("Найден собственник!\n\nАвтор: %s\nСтатус: %s\n\nОбъявление:\n%s",
		author, n.OwnerStatus, truncateRunes(n.MessageText, previewRunes))

	if n.OriginalLink != nil && *n.OriginalLink != "" {
		text += "\n\nСсылка: " + *n.OriginalLink
	}
	return text
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
