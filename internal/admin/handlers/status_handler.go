package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/ownerscout/internal/database"
)

// NewStatusHandler returns a handler for /status: per-outcome post counts for
// the last 24 hours.
func NewStatusHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "status")
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID

		since := time.Now().UTC().Add(-24 * time.Hour)
		counts, err := deps.Store.CountPostsByStatusSince(ctx, since)
		if err != nil {
			log.ErrorContext(ctx, "Failed to count posts", "error", err)
			reply(ctx, b, log, chatID, "Не удалось собрать статистику.")
			return
		}
		if len(counts) == 0 {
			reply(ctx, b, log, chatID, "За последние 24 часа постов не было.")
			return
		}

		statuses := make([]database.OwnerStatus, 0, len(counts))
		for status := range counts {
			statuses = append(statuses, status)
		}
		sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

		var sb strings.Builder
		sb.WriteString("Посты за последние 24 часа:\n")
		total := 0
		for _, status := range statuses {
			fmt.Fprintf(&sb, "%s: %d\n", status, counts[status])
			total += counts[status]
		}
		fmt.Fprintf(&sb, "\nВсего: %d", total)
		reply(ctx, b, log, chatID, sb.String())
	}
}
