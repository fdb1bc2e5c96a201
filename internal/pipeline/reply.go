package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgard/ownerscout/internal/database"
	"github.com/edgard/ownerscout/internal/dialog"
	"github.com/edgard/ownerscout/internal/filter"
	"github.com/edgard/ownerscout/internal/notify"
)

// Replies is the private-reply pipeline: classification, pending-post
// resolution, and owner notification.
type Replies struct {
	store    database.Store
	filter   *filter.Filter
	notifier notify.Notifier
	locks    *UserLocks
	logger   *slog.Logger
}

// NewReplies wires the private-reply pipeline.
func NewReplies(store database.Store, f *filter.Filter, notifier notify.Notifier,
	locks *UserLocks, logger *slog.Logger,
) *Replies {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replies{
		store:    store,
		filter:   f,
		notifier: notifier,
		locks:    locks,
		logger:   logger.With("component", "replies"),
	}
}

// HandlePrivateReply processes one private message from a solicited author.
// Messages from unknown senders, or from users not currently awaiting a
// reply, are ignored.
func (p *Replies) HandlePrivateReply(ctx context.Context, ev PrivateReplyEvent) error {
	log := p.logger.With("user_id", ev.SenderID)

	unlock := p.locks.Lock(ev.SenderID)
	defer unlock()

	user, err := p.store.GetUser(ctx, ev.SenderID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", ev.SenderID, err)
	}
	if user == nil {
		log.DebugContext(ctx, "Private message from unknown sender, ignoring")
		return nil
	}

	class := p.filter.ClassifyReply(ev.Text)
	event := replyEvent(class)

	next, ok := dialog.Next(user.DialogState, event)
	if !ok {
		log.DebugContext(ctx, "Reply outside an active dialog, ignoring",
			"dialog_state", user.DialogState, "classification", class)
		return nil
	}

	if class == filter.ReplyAmbiguous {
		log.InfoContext(ctx, "Reply could not be classified, flagging for review")
		if err := p.store.SetDialogState(ctx, ev.SenderID, next); err != nil {
			return fmt.Errorf("failed to flag ambiguous reply: %w", err)
		}
		return nil
	}

	status := database.StatusAgent
	if class == filter.ReplyOwner {
		status = database.StatusOwner
	}

	resolved, err := p.store.ResolveUserReply(ctx, ev.SenderID, class == filter.ReplyOwner, status)
	if err != nil {
		return fmt.Errorf("failed to resolve reply: %w", err)
	}
	log.InfoContext(ctx, "Reply classified",
		"classification", class, "posts_resolved", len(resolved))

	if status != database.StatusOwner {
		return nil
	}

	// Notification is best-effort: the OWNER outcome is already committed and
	// a notifier outage must not undo it.
	for _, post := range resolved {
		n := notify.OwnerNotification{
			MessageText: post.MessageText,
			AuthorID:    ev.SenderID,
		}
		if post.AuthorUsername.Valid {
			n.Username = &post.AuthorUsername.String
		}
		if post.OriginalLink.Valid {
			n.OriginalLink = &post.OriginalLink.String
		}
		if err := p.notifier.NotifyOwner(ctx, n); err != nil {
			log.ErrorContext(ctx, "Failed to deliver owner notification",
				"post_id", post.ID, "error", err)
		}
	}
	return nil
}

func replyEvent(class filter.ReplyClass) dialog.Event {
	switch class {
	case filter.ReplyOwner:
		return dialog.EventReplyOwner
	case filter.ReplyAgent:
		return dialog.EventReplyAgent
	default:
		return dialog.EventReplyAmbiguous
	}
}
