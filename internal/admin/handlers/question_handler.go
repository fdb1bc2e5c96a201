package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/ownerscout/internal/database"
)

// NewQuestionHandler returns a handler for /question: without arguments it
// shows the current opening question, with arguments it stores a new one.
// The aggregator reads the stored override at send time, so changes take
// effect without a restart.
func NewQuestionHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "question")
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID

		_, args, _ := strings.Cut(strings.TrimSpace(update.Message.Text), " ")
		args = strings.TrimSpace(args)

		if args == "" {
			current, err := deps.Store.GetSetting(ctx, database.SettingInitialQuestion)
			if err != nil {
				log.ErrorContext(ctx, "Failed to load question setting", "error", err)
				reply(ctx, b, log, chatID, "Не удалось получить текст вопроса.")
				return
			}
			if current == "" {
				current = deps.Config.Dialog.QuestionText
			}
			reply(ctx, b, log, chatID, "Текущий вопрос:\n\n"+current)
			return
		}

		err := deps.Store.UpsertSetting(ctx, database.SettingInitialQuestion, args,
			"Opening question sent to post authors")
		if err != nil {
			log.ErrorContext(ctx, "Failed to store question setting", "error", err)
			reply(ctx, b, log, chatID, "Не удалось сохранить текст вопроса.")
			return
		}

		log.InfoContext(ctx, "Opening question updated", "length", len(args))
		reply(ctx, b, log, chatID, "Вопрос обновлён:\n\n"+args)
	}
}

// reply sends a plain text response, logging failures.
func reply(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
	}
}
