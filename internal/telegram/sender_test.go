package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/ownerscout/internal/pipeline"
)

type stubSender struct {
	err    error
	params *bot.SendMessageParams
}

func (s *stubSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	return &models.Message{ID: 1}, nil
}

func TestSendDirectMessageOutcomeMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name           string
		err            error
		wantOutcome    pipeline.SendOutcome
		wantRetryAfter time.Duration
	}{
		{
			name:        "delivered",
			wantOutcome: pipeline.SendOK,
		},
		{
			name:        "forbidden means unreachable",
			err:         bot.ErrorForbidden,
			wantOutcome: pipeline.SendRecipientUnreachable,
		},
		{
			name:           "too many requests carries the server wait",
			err:            &bot.TooManyRequestsError{Message: "retry later", RetryAfter: 30},
			wantOutcome:    pipeline.SendFloodGuard,
			wantRetryAfter: 30 * time.Second,
		},
		{
			name:        "anything else is a generic failure",
			err:         errors.New("connection reset"),
			wantOutcome: pipeline.SendOtherError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubSender{err: tc.err}
			s := NewBotSender(stub, nil)

			res := s.SendDirectMessage(context.Background(), 777, "Вы собственник?")
			if res.Outcome != tc.wantOutcome {
				t.Errorf("outcome = %v, want %v", res.Outcome, tc.wantOutcome)
			}
			if res.RetryAfter != tc.wantRetryAfter {
				t.Errorf("retry after = %v, want %v", res.RetryAfter, tc.wantRetryAfter)
			}
			if tc.err != nil && res.Err == nil {
				t.Error("failed send must carry the underlying error")
			}
			if stub.params == nil {
				t.Fatal("SendMessage was not called")
			}
			if got, ok := stub.params.ChatID.(int64); !ok || got != 777 {
				t.Errorf("chat id = %v, want 777", stub.params.ChatID)
			}
		})
	}
}

func TestPostLink(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		username  string
		channelID int64
		messageID int
		want      string
	}{
		{
			name:      "public channel links by username",
			username:  "flats_msk",
			channelID: -1001234567890,
			messageID: 42,
			want:      "https://t.me/flats_msk/42",
		},
		{
			name:      "private channel links by internal id",
			channelID: -1001234567890,
			messageID: 42,
			want:      "https://t.me/c/1234567890/42",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := PostLink(tc.username, tc.channelID, tc.messageID)
			if got != tc.want {
				t.Errorf("PostLink() = %q, want %q", got, tc.want)
			}
		})
	}
}
