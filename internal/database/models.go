package database

import (
	"database/sql"
	"time"
)

// OwnerStatus is the outcome classification tag on a Post. All values are
// terminal except StatusQuestionSent, which transitions to StatusOwner or
// StatusAgent once the author's reply is classified.
type OwnerStatus string

const (
	StatusUnknown           OwnerStatus = "UNKNOWN"
	StatusNotRelevant       OwnerStatus = "NOT_RELEVANT"
	StatusNoAuthorID        OwnerStatus = "NO_AUTHOR_ID"
	StatusAlreadyOwner      OwnerStatus = "ALREADY_OWNER"
	StatusQuestionSent      OwnerStatus = "QUESTION_SENT"
	StatusDMFailedBlocked   OwnerStatus = "DM_FAILED_BLOCKED"
	StatusDMFailedFlood     OwnerStatus = "DM_FAILED_FLOOD"
	StatusDMFailedFloodWait OwnerStatus = "DM_FAILED_FLOOD_WAIT"
	StatusDMFailedGeneric   OwnerStatus = "DM_FAILED_GENERIC"
	StatusOwner             OwnerStatus = "OWNER"
	StatusAgent             OwnerStatus = "AGENT"
)

// Valid reports whether s is a known outcome status. The store refuses to
// persist anything else.
func (s OwnerStatus) Valid() bool {
	switch s {
	case StatusUnknown, StatusNotRelevant, StatusNoAuthorID, StatusAlreadyOwner,
		StatusQuestionSent, StatusDMFailedBlocked, StatusDMFailedFlood,
		StatusDMFailedFloodWait, StatusDMFailedGeneric, StatusOwner, StatusAgent:
		return true
	}
	return false
}

// DialogState is the dialog-progress tag on a User.
type DialogState string

const (
	StateNone            DialogState = "NONE"
	StateQuestionSent    DialogState = "QUESTION_SENT"
	StateWaitingForReply DialogState = "WAITING_FOR_REPLY"
	StateReplied         DialogState = "REPLIED"
	StateUnknownReply    DialogState = "UNKNOWN_REPLY"
	StateDMFailed        DialogState = "DM_FAILED"
)

// Valid reports whether s is a known dialog state.
func (s DialogState) Valid() bool {
	switch s {
	case StateNone, StateQuestionSent, StateWaitingForReply, StateReplied,
		StateUnknownReply, StateDMFailed:
		return true
	}
	return false
}

// Channel is a monitored Telegram channel. Only active channels are monitored;
// the aggregator treats this table as read-only.
type Channel struct {
	ID         int64     `db:"id"`
	TelegramID int64     `db:"telegram_id"`
	Title      string    `db:"title"`
	IsActive   bool      `db:"is_active"`
	CreatedAt  time.Time `db:"created_at"`
}

// Post is one observed channel message and the outcome of evaluating it.
// The (ChannelID, MessageID) pair is unique: a post is processed at most once.
type Post struct {
	ID                int64          `db:"id"`
	ChannelID         int64          `db:"channel_id"`
	MessageID         int            `db:"message_id"`
	AuthorTelegramID  sql.NullInt64  `db:"author_telegram_id"`
	AuthorUsername    sql.NullString `db:"author_username"`
	MessageText       string         `db:"message_text"`
	OriginalLink      sql.NullString `db:"original_link"`
	IsRelevant        bool           `db:"is_relevant"`
	IsProcessed       bool           `db:"is_processed"`
	OwnerStatus       OwnerStatus    `db:"owner_status"`
	ProcessedAt       time.Time      `db:"processed_at"`
	LastDialogAttempt sql.NullTime   `db:"last_dialog_attempt"`
}

// User is one observed post author and their dialog/ownership state.
type User struct {
	ID               int64          `db:"id"`
	TelegramID       int64          `db:"telegram_id"`
	Username         sql.NullString `db:"username"`
	FirstName        sql.NullString `db:"first_name"`
	LastName         sql.NullString `db:"last_name"`
	IsOwnerConfirmed bool           `db:"is_owner_confirmed"`
	DialogState      DialogState    `db:"dialog_state"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// Setting is a key/value configuration override with an audit timestamp.
type Setting struct {
	Key         string         `db:"key"`
	Value       string         `db:"value"`
	Description sql.NullString `db:"description"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// SettingInitialQuestion is the settings key holding the opening-question text
// override read by the intake pipeline at send time.
const SettingInitialQuestion = "initial_question_text"
