package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewChannelsHandler returns a handler listing all known channels.
func NewChannelsHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "channels")
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID

		channels, err := deps.Store.ListChannels(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Failed to list channels", "error", err)
			reply(ctx, b, log, chatID, "Не удалось получить список каналов.")
			return
		}
		if len(channels) == 0 {
			reply(ctx, b, log, chatID, "Каналы пока не добавлены. Используйте /channel_add <id>.")
			return
		}

		var sb strings.Builder
		sb.WriteString("Отслеживаемые каналы:\n")
		for _, ch := range channels {
			marker := "🔴"
			if ch.IsActive {
				marker = "🟢"
			}
			fmt.Fprintf(&sb, "%s %d — %s\n", marker, ch.TelegramID, ch.Title)
		}
		reply(ctx, b, log, chatID, sb.String())
	}
}

// NewChannelAddHandler returns a handler for /channel_add <id> [title].
func NewChannelAddHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "channel_add")
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID

		id, rest, err := parseChannelArg(update.Message.Text)
		if err != nil {
			reply(ctx, b, log, chatID, "Использование: /channel_add <id> [название]")
			return
		}
		title := rest
		if title == "" {
			title = strconv.FormatInt(id, 10)
		}

		if err := deps.Store.UpsertChannel(ctx, id, title); err != nil {
			log.ErrorContext(ctx, "Failed to add channel", "telegram_id", id, "error", err)
			reply(ctx, b, log, chatID, "Не удалось добавить канал.")
			return
		}

		log.InfoContext(ctx, "Channel added", "telegram_id", id, "title", title)
		reply(ctx, b, log, chatID, fmt.Sprintf("Канал %d (%s) добавлен и включён.", id, title))
	}
}

// NewChannelToggleHandler returns a handler for /channel_toggle <id>.
func NewChannelToggleHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "channel_toggle")
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID

		id, _, err := parseChannelArg(update.Message.Text)
		if err != nil {
			reply(ctx, b, log, chatID, "Использование: /channel_toggle <id>")
			return
		}

		active, err := deps.Store.IsChannelActive(ctx, id)
		if err != nil {
			log.ErrorContext(ctx, "Failed to look up channel", "telegram_id", id, "error", err)
			reply(ctx, b, log, chatID, "Не удалось проверить состояние канала.")
			return
		}

		found, err := deps.Store.SetChannelActive(ctx, id, !active)
		if err != nil {
			log.ErrorContext(ctx, "Failed to toggle channel", "telegram_id", id, "error", err)
			reply(ctx, b, log, chatID, "Не удалось переключить канал.")
			return
		}
		if !found {
			reply(ctx, b, log, chatID, fmt.Sprintf("Канал %d не найден. Сначала добавьте его: /channel_add %d", id, id))
			return
		}

		state := "выключен"
		if !active {
			state = "включён"
		}
		log.InfoContext(ctx, "Channel toggled", "telegram_id", id, "active", !active)
		reply(ctx, b, log, chatID, fmt.Sprintf("Канал %d %s.", id, state))
	}
}

// parseChannelArg extracts the channel ID and any trailing text from a
// command like "/channel_add -1001234567890 My Channel".
func parseChannelArg(text string) (int64, string, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return 0, "", fmt.Errorf("missing channel id")
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid channel id %q: %w", fields[1], err)
	}
	return id, strings.Join(fields[2:], " "), nil
}
