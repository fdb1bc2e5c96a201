package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/ownerscout/internal/pipeline"
)

// NewRouter returns the catch-all update handler for the aggregator: channel
// posts go to the intake pipeline, private messages to the reply pipeline,
// everything else is dropped.
func NewRouter(intake *pipeline.Intake, replies *pipeline.Replies, logger *slog.Logger) bot.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "router")

	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		switch {
		case update.ChannelPost != nil:
			ev := channelPostEvent(update.ChannelPost)
			if err := intake.HandleChannelPost(ctx, ev); err != nil {
				log.ErrorContext(ctx, "Channel post processing failed",
					"channel_id", ev.ChannelID, "message_id", ev.MessageID, "error", err)
			}

		case update.Message != nil && update.Message.Chat.Type == models.ChatTypePrivate:
			msg := update.Message
			if msg.From == nil || msg.From.IsBot {
				return
			}
			ev := pipeline.PrivateReplyEvent{SenderID: msg.From.ID, Text: messageText(msg)}
			if err := replies.HandlePrivateReply(ctx, ev); err != nil {
				log.ErrorContext(ctx, "Private reply processing failed",
					"user_id", ev.SenderID, "error", err)
			}

		default:
			log.DebugContext(ctx, "Dropping unhandled update", "update_id", update.ID)
		}
	}
}

// channelPostEvent flattens a channel post into the pipeline's event shape.
// Channel posts carry an author only when the channel signs messages with the
// poster's account; an absent author is a normal, recorded outcome.
func channelPostEvent(msg *models.Message) pipeline.ChannelPostEvent {
	ev := pipeline.ChannelPostEvent{
		ChannelID:   msg.Chat.ID,
		MessageID:   msg.ID,
		Text:        messageText(msg),
		Link:        PostLink(msg.Chat.Username, msg.Chat.ID, msg.ID),
		FromChannel: msg.Chat.Type == models.ChatTypeChannel,
	}
	if msg.From != nil && !msg.From.IsBot {
		ev.AuthorID = msg.From.ID
		ev.AuthorUsername = msg.From.Username
		ev.AuthorFirstName = msg.From.FirstName
		ev.AuthorLastName = msg.From.LastName
	}
	return ev
}

// messageText prefers the text body, falling back to the caption for media
// posts with an attached description.
func messageText(msg *models.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

// PostLink builds the public permalink for a channel message. Public channels
// link by username; private channels use the t.me/c form with the internal
// chat ID, which is the Bot API ID without its -100 prefix.
func PostLink(channelUsername string, channelID int64, messageID int) string {
	if channelUsername != "" {
		return fmt.Sprintf("https://t.me/%s/%d", channelUsername, messageID)
	}
	// Bot API channel IDs are the internal ID with a literal -100 prefix.
	internal := strings.TrimPrefix(strconv.FormatInt(channelID, 10), "-100")
	return fmt.Sprintf("https://t.me/c/%s/%d", internal, messageID)
}
