// Package pipeline implements the message-intake-to-outcome core: channel
// posts flow through relevance filtering, dialog state tracking, and the
// rate-limited opening question; private replies flow through classification
// and pending-post resolution.
package pipeline

import (
	"context"
	"time"
)

// ChannelPostEvent is one observed channel message.
type ChannelPostEvent struct {
	ChannelID       int64
	MessageID       int
	AuthorID        int64 // 0 when the platform did not expose an author
	AuthorUsername  string
	AuthorFirstName string
	AuthorLastName  string
	Text            string
	Link            string
	FromChannel     bool
}

// PrivateReplyEvent is one private message received by the monitoring account.
type PrivateReplyEvent struct {
	SenderID int64
	Text     string
}

// SendOutcome is the failure taxonomy of the outbound send primitive. The
// transport's own error types are mapped into it at the adapter boundary.
type SendOutcome int

const (
	// SendOK means the message was delivered.
	SendOK SendOutcome = iota
	// SendRecipientUnreachable covers blocked, forbidden, and
	// privacy-restricted recipients.
	SendRecipientUnreachable
	// SendFloodGuard means the platform's abuse guard fired. RetryAfter on
	// the result carries the server-specified wait, when one was given.
	SendFloodGuard
	// SendOtherError is any other send failure.
	SendOtherError
)

// SendResult is the outcome of one direct-message send attempt.
type SendResult struct {
	Outcome    SendOutcome
	RetryAfter time.Duration // server-specified flood wait; 0 when unspecified
	Err        error
}

// Sender is the outbound send primitive.
type Sender interface {
	SendDirectMessage(ctx context.Context, userID int64, text string) SendResult
}

// Limiter is the shared outbound throttle. A single instance serves every
// pipeline goroutine.
type Limiter interface {
	AcquireSlot(ctx context.Context) error
	RecordSent()
	Suspend(d time.Duration)
}
