// Package dialog defines the per-user dialog state machine as an explicit
// transition table, so both pipelines consult one lookup instead of scattered
// conditionals.
package dialog

import "github.com/edgard/ownerscout/internal/database"

// Event is something that happens to a user's dialog.
type Event int

const (
	// EventQuestionQueued fires when the intake pipeline commits a pending
	// post and is about to attempt the opening question.
	EventQuestionQueued Event = iota
	// EventSendSucceeded fires when the opening question was delivered.
	EventSendSucceeded
	// EventSendFailed fires on any DM send failure.
	EventSendFailed
	// EventReplyOwner fires when a reply classifies as owner.
	EventReplyOwner
	// EventReplyAgent fires when a reply classifies as agent.
	EventReplyAgent
	// EventReplyAmbiguous fires when a reply matches neither set exclusively.
	EventReplyAmbiguous
)

// String returns the event name for logging.
func (e Event) String() string {
	switch e {
	case EventQuestionQueued:
		return "question_queued"
	case EventSendSucceeded:
		return "send_succeeded"
	case EventSendFailed:
		return "send_failed"
	case EventReplyOwner:
		return "reply_owner"
	case EventReplyAgent:
		return "reply_agent"
	case EventReplyAmbiguous:
		return "reply_ambiguous"
	default:
		return "unknown"
	}
}

// questionQueued lists the states from which a user may be (re-)solicited.
// Any non-owner-confirmed user can get a fresh question; the owner-confirmed
// guard lives in the intake pipeline, not here.
var questionQueued = map[database.DialogState]database.DialogState{
	database.StateNone:            database.StateQuestionSent,
	database.StateQuestionSent:    database.StateQuestionSent,
	database.StateWaitingForReply: database.StateQuestionSent,
	database.StateReplied:         database.StateQuestionSent,
	database.StateUnknownReply:    database.StateQuestionSent,
	database.StateDMFailed:        database.StateQuestionSent,
}

// transitions maps {current state, event} to the next state. Absent entries
// are invalid transitions: the event must be ignored.
var transitions = map[database.DialogState]map[Event]database.DialogState{
	database.StateQuestionSent: {
		EventSendSucceeded: database.StateWaitingForReply,
		EventSendFailed:    database.StateDMFailed,
	},
	database.StateWaitingForReply: {
		EventReplyOwner:     database.StateReplied,
		EventReplyAgent:     database.StateReplied,
		EventReplyAmbiguous: database.StateUnknownReply,
	},
}

// Next returns the state reached from the current state by the given event,
// and whether the transition is valid. Reply events are only valid while the
// user is in WAITING_FOR_REPLY, which doubles as the "not a reply we
// solicited" guard. A user flagged UNKNOWN_REPLY stays flagged; clarification
// rounds are an operator concern, not an automatic follow-up.
func Next(current database.DialogState, event Event) (database.DialogState, bool) {
	if event == EventQuestionQueued {
		next, ok := questionQueued[current]
		return next, ok
	}
	next, ok := transitions[current][event]
	return next, ok
}
