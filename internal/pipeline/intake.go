package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/edgard/ownerscout/internal/database"
	"github.com/edgard/ownerscout/internal/dialog"
	"github.com/edgard/ownerscout/internal/filter"
)

// IntakeConfig carries the flood-recovery tuning for the intake pipeline.
type IntakeConfig struct {
	// QuestionText is the opening question sent to authors, used when no
	// runtime override is stored in settings.
	QuestionText string
	// FloodCooldownMin/Max bound the randomized pause after an unspecified
	// flood-guard rejection.
	FloodCooldownMin time.Duration
	FloodCooldownMax time.Duration
	// FloodWaitMargin is added on top of a server-specified flood wait.
	FloodWaitMargin time.Duration
}

// Intake is the channel-post pipeline: dedupe, relevance filtering, pending
// post creation, and the rate-limited opening question.
type Intake struct {
	store   database.Store
	filter  *filter.Filter
	limiter Limiter
	sender  Sender
	locks   *UserLocks
	logger  *slog.Logger
	cfg     IntakeConfig
}

// NewIntake wires the channel-post pipeline.
func NewIntake(store database.Store, f *filter.Filter, limiter Limiter, sender Sender,
	locks *UserLocks, logger *slog.Logger, cfg IntakeConfig,
) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		store:   store,
		filter:  f,
		limiter: limiter,
		sender:  sender,
		locks:   locks,
		logger:  logger.With("component", "intake"),
		cfg:     cfg,
	}
}

// HandleChannelPost processes one observed channel message end to end. Every
// accepted post leaves exactly one post record behind; re-delivery of an
// already-recorded message is a silent no-op.
func (p *Intake) HandleChannelPost(ctx context.Context, ev ChannelPostEvent) error {
	log := p.logger.With("channel_id", ev.ChannelID, "message_id", ev.MessageID)

	if !ev.FromChannel {
		log.DebugContext(ctx, "Ignoring non-channel message")
		return nil
	}

	active, err := p.store.IsChannelActive(ctx, ev.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to check channel activity: %w", err)
	}
	if !active {
		log.DebugContext(ctx, "Ignoring post from inactive or unknown channel")
		return nil
	}

	existing, err := p.store.GetPost(ctx, ev.ChannelID, ev.MessageID)
	if err != nil {
		return fmt.Errorf("failed to check for existing post: %w", err)
	}
	if existing != nil {
		log.DebugContext(ctx, "Post already recorded, skipping")
		return nil
	}

	if !p.filter.IsPostRelevant(ev.Text) {
		log.DebugContext(ctx, "Post not relevant")
		return p.store.InsertPost(ctx, p.terminalPost(ev, false, database.StatusNotRelevant))
	}

	if ev.AuthorID == 0 {
		log.InfoContext(ctx, "Relevant post has no resolvable author")
		return p.store.InsertPost(ctx, p.terminalPost(ev, true, database.StatusNoAuthorID))
	}

	unlock := p.locks.Lock(ev.AuthorID)
	defer unlock()

	user, err := p.store.GetUser(ctx, ev.AuthorID)
	if err != nil {
		return fmt.Errorf("failed to load author %d: %w", ev.AuthorID, err)
	}
	if user != nil && user.IsOwnerConfirmed {
		log.InfoContext(ctx, "Author already confirmed as owner", "author_id", ev.AuthorID)
		return p.store.InsertPost(ctx, p.terminalPost(ev, true, database.StatusAlreadyOwner))
	}

	currentState := database.StateNone
	if user != nil {
		currentState = user.DialogState
	}
	nextState, ok := dialog.Next(currentState, dialog.EventQuestionQueued)
	if !ok {
		// Unreachable with the current table; record and bail rather than
		// send an unsolicited question.
		log.WarnContext(ctx, "Cannot queue question from current dialog state",
			"author_id", ev.AuthorID, "dialog_state", currentState)
		return nil
	}

	now := time.Now().UTC()
	post := p.terminalPost(ev, true, database.StatusUnknown)
	post.IsProcessed = false
	post.LastDialogAttempt = sql.NullTime{Time: now, Valid: true}

	pendingUser := p.userRecord(ev, user, nextState)
	if err := p.store.CreatePendingPost(ctx, post, pendingUser); err != nil {
		return fmt.Errorf("failed to commit pending post: %w", err)
	}

	return p.sendQuestion(ctx, log, post, ev.AuthorID)
}

// sendQuestion acquires a pacing slot, attempts the DM, and finalizes the
// post/user pair according to the outcome.
func (p *Intake) sendQuestion(ctx context.Context, log *slog.Logger, post *database.Post, authorID int64) error {
	if err := p.limiter.AcquireSlot(ctx); err != nil {
		// Shutdown while queued. The pending UNKNOWN record survives and is
		// surfaced by the daily report.
		return fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	res := p.sender.SendDirectMessage(ctx, authorID, p.questionText(ctx))

	switch res.Outcome {
	case SendOK:
		p.limiter.RecordSent()
		log.InfoContext(ctx, "Opening question sent", "author_id", authorID)
		return p.finalize(ctx, post, authorID, database.StatusQuestionSent, dialog.EventSendSucceeded)

	case SendRecipientUnreachable:
		log.InfoContext(ctx, "Author unreachable for DM", "author_id", authorID, "error", res.Err)
		return p.finalize(ctx, post, authorID, database.StatusDMFailedBlocked, dialog.EventSendFailed)

	case SendFloodGuard:
		if res.RetryAfter > 0 {
			wait := res.RetryAfter + p.cfg.FloodWaitMargin
			log.WarnContext(ctx, "Flood wait imposed, pausing sends",
				"author_id", authorID, "wait", wait)
			err := p.finalize(ctx, post, authorID, database.StatusDMFailedFloodWait, dialog.EventSendFailed)
			p.limiter.Suspend(wait)
			return err
		}
		wait := p.floodCooldown()
		log.WarnContext(ctx, "Flood guard triggered, pausing sends",
			"author_id", authorID, "wait", wait, "error", res.Err)
		err := p.finalize(ctx, post, authorID, database.StatusDMFailedFlood, dialog.EventSendFailed)
		p.limiter.Suspend(wait)
		return err

	default:
		log.ErrorContext(ctx, "DM send failed", "author_id", authorID, "error", res.Err)
		return p.finalize(ctx, post, authorID, database.StatusDMFailedGeneric, dialog.EventSendFailed)
	}
}

func (p *Intake) finalize(ctx context.Context, post *database.Post, authorID int64,
	status database.OwnerStatus, event dialog.Event,
) error {
	state, ok := dialog.Next(database.StateQuestionSent, event)
	if !ok {
		return fmt.Errorf("no dialog transition for send outcome %v", event)
	}
	if err := p.store.FinalizeSendAttempt(ctx, post.ID, authorID, status, state); err != nil {
		return fmt.Errorf("failed to finalize send attempt: %w", err)
	}
	return nil
}

// questionText returns the stored question override when one is set, falling
// back to the configured default.
func (p *Intake) questionText(ctx context.Context) string {
	text, err := p.store.GetSetting(ctx, database.SettingInitialQuestion)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to load question override, using default", "error", err)
		return p.cfg.QuestionText
	}
	if text == "" {
		return p.cfg.QuestionText
	}
	return text
}

func (p *Intake) floodCooldown() time.Duration {
	minC, maxC := p.cfg.FloodCooldownMin, p.cfg.FloodCooldownMax
	if maxC <= minC {
		return minC
	}
	return minC + rand.N(maxC-minC)
}

// terminalPost builds a processed post record for outcomes that end at intake.
func (p *Intake) terminalPost(ev ChannelPostEvent, relevant bool, status database.OwnerStatus) *database.Post {
	post := &database.Post{
		ChannelID:   ev.ChannelID,
		MessageID:   ev.MessageID,
		MessageText: ev.Text,
		IsRelevant:  relevant,
		IsProcessed: true,
		OwnerStatus: status,
		ProcessedAt: time.Now().UTC(),
	}
	if ev.AuthorID != 0 {
		post.AuthorTelegramID = sql.NullInt64{Int64: ev.AuthorID, Valid: true}
	}
	if ev.AuthorUsername != "" {
		post.AuthorUsername = sql.NullString{String: ev.AuthorUsername, Valid: true}
	}
	if ev.Link != "" {
		post.OriginalLink = sql.NullString{String: ev.Link, Valid: true}
	}
	return post
}

// userRecord merges the event's author fields over the existing user record,
// carrying the computed dialog state.
func (p *Intake) userRecord(ev ChannelPostEvent, existing *database.User, state database.DialogState) *database.User {
	user := &database.User{
		TelegramID:  ev.AuthorID,
		DialogState: state,
	}
	if existing != nil {
		*user = *existing
		user.DialogState = state
	}
	if ev.AuthorUsername != "" {
		user.Username = sql.NullString{String: ev.AuthorUsername, Valid: true}
	}
	if ev.AuthorFirstName != "" {
		user.FirstName = sql.NullString{String: ev.AuthorFirstName, Valid: true}
	}
	if ev.AuthorLastName != "" {
		user.LastName = sql.NullString{String: ev.AuthorLastName, Valid: true}
	}
	return user
}
