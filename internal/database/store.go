package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the data access interface for channels, posts, users, and
// settings. Every method that represents a state transition is atomic with
// respect to concurrent readers: a post is never observable without its
// linked user.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// IsChannelActive reports whether a channel is known and actively monitored.
	IsChannelActive(ctx context.Context, telegramID int64) (bool, error)

	// ListChannels returns all channels, active or not.
	ListChannels(ctx context.Context) ([]Channel, error)

	// UpsertChannel creates a channel or updates its title, activating it.
	UpsertChannel(ctx context.Context, telegramID int64, title string) error

	// SetChannelActive flips the monitoring flag. Returns false if the channel
	// does not exist.
	SetChannelActive(ctx context.Context, telegramID int64, active bool) (bool, error)

	// GetPost retrieves a post by its (channel, message) identity.
	// Returns nil, nil if not found.
	GetPost(ctx context.Context, channelID int64, messageID int) (*Post, error)

	// InsertPost inserts a single post record. Used for terminal outcomes that
	// involve no user state change (NOT_RELEVANT, NO_AUTHOR_ID, ALREADY_OWNER).
	InsertPost(ctx context.Context, post *Post) error

	// CreatePendingPost atomically upserts the author's user record (with the
	// dialog state the caller computed) and inserts the pending post linked to
	// it. Committed before any send attempt so a crash leaves a recoverable
	// record instead of a silent loss.
	CreatePendingPost(ctx context.Context, post *Post, user *User) error

	// FinalizeSendAttempt atomically records the outcome of one DM send:
	// the post's status and the author's dialog state change together.
	FinalizeSendAttempt(ctx context.Context, postID, authorID int64, status OwnerStatus, state DialogState) error

	// GetUser retrieves a user by Telegram ID. Returns nil, nil if not found.
	GetUser(ctx context.Context, telegramID int64) (*User, error)

	// SetDialogState updates only the user's dialog state.
	SetDialogState(ctx context.Context, telegramID int64, state DialogState) error

	// ResolveUserReply atomically records a definitive reply classification:
	// the user's owner-confirmed flag and dialog state, plus every pending
	// (QUESTION_SENT or UNKNOWN) post by that author flipped to the given
	// status and marked processed. Returns the resolved posts.
	ResolveUserReply(ctx context.Context, telegramID int64, ownerConfirmed bool, status OwnerStatus) ([]Post, error)

	// GetSetting returns the value for a settings key, or "" if unset.
	GetSetting(ctx context.Context, key string) (string, error)

	// UpsertSetting creates or replaces a settings value.
	UpsertSetting(ctx context.Context, key, value, description string) error

	// CountPostsByStatusSince returns per-status post counts observed since
	// the given time.
	CountPostsByStatusSince(ctx context.Context, since time.Time) (map[OwnerStatus]int, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore implements Store using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by the given sqlx.DB.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) IsChannelActive(ctx context.Context, telegramID int64) (bool, error) {
	var active bool
	err := s.db.GetContext(ctx, &active,
		`SELECT is_active FROM channels WHERE telegram_id = ?`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up channel %d: %w", telegramID, err)
	}
	return active, nil
}

func (s *sqlxStore) ListChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	err := s.db.SelectContext(ctx, &channels,
		`SELECT id, telegram_id, title, is_active, created_at FROM channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

func (s *sqlxStore) UpsertChannel(ctx context.Context, telegramID int64, title string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO channels (telegram_id, title, is_active, created_at)
        VALUES (?, ?, 1, ?)
        ON CONFLICT (telegram_id) DO UPDATE SET title = excluded.title, is_active = 1`,
		telegramID, title, now)
	if err != nil {
		return fmt.Errorf("failed to upsert channel %d: %w", telegramID, err)
	}
	s.logger.DebugContext(ctx, "Channel upserted", "telegram_id", telegramID, "title", title)
	return nil
}

func (s *sqlxStore) SetChannelActive(ctx context.Context, telegramID int64, active bool) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE channels SET is_active = ? WHERE telegram_id = ?`, active, telegramID)
	if err != nil {
		return false, fmt.Errorf("failed to update channel %d: %w", telegramID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check channel update result: %w", err)
	}
	return affected > 0, nil
}

func (s *sqlxStore) GetPost(ctx context.Context, channelID int64, messageID int) (*Post, error) {
	var post Post
	err := s.db.GetContext(ctx, &post, `
        SELECT id, channel_id, message_id, author_telegram_id, author_username,
               message_text, original_link, is_relevant, is_processed,
               owner_status, processed_at, last_dialog_attempt
        FROM posts WHERE channel_id = ? AND message_id = ?`,
		channelID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post (channel %d, message %d): %w", channelID, messageID, err)
	}
	return &post, nil
}

func (s *sqlxStore) InsertPost(ctx context.Context, post *Post) error {
	if post == nil {
		return errors.New("cannot insert nil post")
	}
	if !post.OwnerStatus.Valid() {
		return fmt.Errorf("refusing to persist invalid owner status %q", post.OwnerStatus)
	}
	if post.ProcessedAt.IsZero() {
		post.ProcessedAt = time.Now().UTC()
	}

	result, err := s.db.NamedExecContext(ctx, `
        INSERT INTO posts (channel_id, message_id, author_telegram_id, author_username,
                           message_text, original_link, is_relevant, is_processed,
                           owner_status, processed_at, last_dialog_attempt)
        VALUES (:channel_id, :message_id, :author_telegram_id, :author_username,
                :message_text, :original_link, :is_relevant, :is_processed,
                :owner_status, :processed_at, :last_dialog_attempt)`, post)
	if err != nil {
		return fmt.Errorf("failed to insert post (channel %d, message %d): %w",
			post.ChannelID, post.MessageID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		post.ID = id
	}

	s.logger.DebugContext(ctx, "Post saved",
		"channel_id", post.ChannelID, "message_id", post.MessageID, "status", post.OwnerStatus)
	return nil
}

func (s *sqlxStore) CreatePendingPost(ctx context.Context, post *Post, user *User) error {
	if post == nil || user == nil {
		return errors.New("cannot create pending post with nil post or user")
	}
	if !post.OwnerStatus.Valid() {
		return fmt.Errorf("refusing to persist invalid owner status %q", post.OwnerStatus)
	}
	if !user.DialogState.Valid() {
		return fmt.Errorf("refusing to persist invalid dialog state %q", user.DialogState)
	}

	now := time.Now().UTC()
	if post.ProcessedAt.IsZero() {
		post.ProcessedAt = now
	}
	user.UpdatedAt = now
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	_, err = tx.NamedExecContext(ctx, `
        INSERT INTO users (telegram_id, username, first_name, last_name,
                           is_owner_confirmed, dialog_state, created_at, updated_at)
        VALUES (:telegram_id, :username, :first_name, :last_name,
                :is_owner_confirmed, :dialog_state, :created_at, :updated_at)
        ON CONFLICT (telegram_id) DO UPDATE SET
            username = excluded.username,
            first_name = excluded.first_name,
            last_name = excluded.last_name,
            dialog_state = excluded.dialog_state,
            updated_at = excluded.updated_at`, user)
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", user.TelegramID, err)
	}

	result, err := tx.NamedExecContext(ctx, `
        INSERT INTO posts (channel_id, message_id, author_telegram_id, author_username,
                           message_text, original_link, is_relevant, is_processed,
                           owner_status, processed_at, last_dialog_attempt)
        VALUES (:channel_id, :message_id, :author_telegram_id, :author_username,
                :message_text, :original_link, :is_relevant, :is_processed,
                :owner_status, :processed_at, :last_dialog_attempt)`, post)
	if err != nil {
		return fmt.Errorf("failed to insert pending post (channel %d, message %d): %w",
			post.ChannelID, post.MessageID, err)
	}

	// The caller finalizes the send outcome by this ID; it must be captured
	// before the post leaves the store.
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read pending post id: %w", err)
	}
	post.ID = id

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pending post: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Pending post committed",
		"channel_id", post.ChannelID, "message_id", post.MessageID, "user_id", user.TelegramID)
	return nil
}

func (s *sqlxStore) FinalizeSendAttempt(ctx context.Context, postID, authorID int64, status OwnerStatus, state DialogState) error {
	if !status.Valid() {
		return fmt.Errorf("refusing to persist invalid owner status %q", status)
	}
	if !state.Valid() {
		return fmt.Errorf("refusing to persist invalid dialog state %q", state)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`UPDATE posts SET owner_status = ? WHERE id = ?`, status, postID); err != nil {
		return fmt.Errorf("failed to update post %d status: %w", postID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET dialog_state = ?, updated_at = ? WHERE telegram_id = ?`,
		state, now, authorID); err != nil {
		return fmt.Errorf("failed to update user %d dialog state: %w", authorID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit send outcome: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Send attempt finalized",
		"post_id", postID, "user_id", authorID, "status", status, "dialog_state", state)
	return nil
}

func (s *sqlxStore) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, `
        SELECT id, telegram_id, username, first_name, last_name,
               is_owner_confirmed, dialog_state, created_at, updated_at
        FROM users WHERE telegram_id = ?`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", telegramID, err)
	}
	return &user, nil
}

func (s *sqlxStore) SetDialogState(ctx context.Context, telegramID int64, state DialogState) error {
	if !state.Valid() {
		return fmt.Errorf("refusing to persist invalid dialog state %q", state)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET dialog_state = ?, updated_at = ? WHERE telegram_id = ?`,
		state, time.Now().UTC(), telegramID)
	if err != nil {
		return fmt.Errorf("failed to set dialog state for user %d: %w", telegramID, err)
	}
	return nil
}

func (s *sqlxStore) ResolveUserReply(ctx context.Context, telegramID int64, ownerConfirmed bool, status OwnerStatus) ([]Post, error) {
	if status != StatusOwner && status != StatusAgent {
		return nil, fmt.Errorf("reply resolution requires OWNER or AGENT, got %q", status)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `
        UPDATE users SET is_owner_confirmed = ?, dialog_state = ?, updated_at = ?
        WHERE telegram_id = ?`,
		ownerConfirmed, StateReplied, now, telegramID); err != nil {
		return nil, fmt.Errorf("failed to update user %d: %w", telegramID, err)
	}

	var pending []Post
	if err := tx.SelectContext(ctx, &pending, `
        SELECT id, channel_id, message_id, author_telegram_id, author_username,
               message_text, original_link, is_relevant, is_processed,
               owner_status, processed_at, last_dialog_attempt
        FROM posts
        WHERE author_telegram_id = ? AND owner_status IN (?, ?)
        ORDER BY id`,
		telegramID, StatusQuestionSent, StatusUnknown); err != nil {
		return nil, fmt.Errorf("failed to select pending posts for user %d: %w", telegramID, err)
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE posts SET is_processed = 1, owner_status = ?
        WHERE author_telegram_id = ? AND owner_status IN (?, ?)`,
		status, telegramID, StatusQuestionSent, StatusUnknown); err != nil {
		return nil, fmt.Errorf("failed to resolve pending posts for user %d: %w", telegramID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reply resolution: %w", err)
	}
	tx = nil

	for i := range pending {
		pending[i].IsProcessed = true
		pending[i].OwnerStatus = status
	}

	s.logger.InfoContext(ctx, "Reply resolved",
		"user_id", telegramID, "status", status, "posts_resolved", len(pending))
	return pending, nil
}

func (s *sqlxStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *sqlxStore) UpsertSetting(ctx context.Context, key, value, description string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO settings (key, value, description, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, description, now)
	if err != nil {
		return fmt.Errorf("failed to upsert setting %q: %w", key, err)
	}
	return nil
}

func (s *sqlxStore) CountPostsByStatusSince(ctx context.Context, since time.Time) (map[OwnerStatus]int, error) {
	rows := []struct {
		OwnerStatus OwnerStatus `db:"owner_status"`
		Count       int         `db:"count"`
	}{}
	err := s.db.SelectContext(ctx, &rows, `
        SELECT owner_status, COUNT(*) AS count
        FROM posts WHERE processed_at >= ?
        GROUP BY owner_status`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count posts by status: %w", err)
	}

	counts := make(map[OwnerStatus]int, len(rows))
	for _, r := range rows {
		counts[r.OwnerStatus] = r.Count
	}
	return counts, nil
}

// RunSQLMaintenance executes VACUUM. SQLite requires it to run outside a
// transaction.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}
	s.logger.InfoContext(ctx, "Database maintenance completed")
	return nil
}
