package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/ownerscout/internal/pipeline"
)

// messageSender is the slice of *bot.Bot the sender needs.
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// BotSender implements pipeline.Sender on top of the Bot API, translating the
// transport's error types into the pipeline's send outcome taxonomy.
type BotSender struct {
	bot    messageSender
	logger *slog.Logger
}

// NewBotSender creates the outbound send primitive.
func NewBotSender(b messageSender, logger *slog.Logger) *BotSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotSender{
		bot:    b,
		logger: logger.With("component", "sender"),
	}
}

// SendDirectMessage sends one private message and classifies the outcome.
func (s *BotSender) SendDirectMessage(ctx context.Context, userID int64, text string) pipeline.SendResult {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: userID,
		Text:   text,
	})
	if err == nil {
		return pipeline.SendResult{Outcome: pipeline.SendOK}
	}

	switch {
	case errors.Is(err, bot.ErrorForbidden):
		// Blocked bot, closed DMs, or privacy restrictions all surface as 403.
		return pipeline.SendResult{Outcome: pipeline.SendRecipientUnreachable, Err: err}

	case bot.IsTooManyRequestsError(err):
		result := pipeline.SendResult{Outcome: pipeline.SendFloodGuard, Err: err}
		var tooMany *bot.TooManyRequestsError
		if errors.As(err, &tooMany) && tooMany.RetryAfter > 0 {
			result.RetryAfter = time.Duration(tooMany.RetryAfter) * time.Second
		}
		return result

	default:
		return pipeline.SendResult{Outcome: pipeline.SendOtherError, Err: err}
	}
}
