package pipeline_test

import (
	"context"
	"sync"
	"time"

	"github.com/edgard/ownerscout/internal/database"
	"github.com/edgard/ownerscout/internal/notify"
	"github.com/edgard/ownerscout/internal/pipeline"
)

// fakeStore is an in-memory database.Store for pipeline tests.
type fakeStore struct {
	mu             sync.Mutex
	activeChannels map[int64]bool
	posts          []*database.Post
	users          map[int64]*database.User
	settings       map[string]string
	nextPostID     int64

	finalizeCalls []finalizeCall
	resolveCalls  []resolveCall
	stateCalls    []database.DialogState
}

type finalizeCall struct {
	postID   int64
	authorID int64
	status   database.OwnerStatus
	state    database.DialogState
}

type resolveCall struct {
	telegramID     int64
	ownerConfirmed bool
	status         database.OwnerStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		activeChannels: make(map[int64]bool),
		users:          make(map[int64]*database.User),
		settings:       make(map[string]string),
	}
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) IsChannelActive(_ context.Context, telegramID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeChannels[telegramID], nil
}

func (s *fakeStore) ListChannels(context.Context) ([]database.Channel, error) { return nil, nil }

func (s *fakeStore) UpsertChannel(_ context.Context, telegramID int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeChannels[telegramID] = true
	return nil
}

func (s *fakeStore) SetChannelActive(_ context.Context, telegramID int64, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activeChannels[telegramID]; !ok {
		return false, nil
	}
	s.activeChannels[telegramID] = active
	return true, nil
}

func (s *fakeStore) GetPost(_ context.Context, channelID int64, messageID int) (*database.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.ChannelID == channelID && p.MessageID == messageID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) InsertPost(_ context.Context, post *database.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPostID++
	post.ID = s.nextPostID
	s.posts = append(s.posts, post)
	return nil
}

func (s *fakeStore) CreatePendingPost(_ context.Context, post *database.Post, user *database.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPostID++
	post.ID = s.nextPostID
	s.posts = append(s.posts, post)
	s.users[user.TelegramID] = user
	return nil
}

func (s *fakeStore) FinalizeSendAttempt(_ context.Context, postID, authorID int64,
	status database.OwnerStatus, state database.DialogState,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizeCalls = append(s.finalizeCalls, finalizeCall{postID, authorID, status, state})
	for _, p := range s.posts {
		if p.ID == postID {
			p.OwnerStatus = status
		}
	}
	if u, ok := s.users[authorID]; ok {
		u.DialogState = state
	}
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, telegramID int64) (*database.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) SetDialogState(_ context.Context, telegramID int64, state database.DialogState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateCalls = append(s.stateCalls, state)
	if u, ok := s.users[telegramID]; ok {
		u.DialogState = state
	}
	return nil
}

func (s *fakeStore) ResolveUserReply(_ context.Context, telegramID int64,
	ownerConfirmed bool, status database.OwnerStatus,
) ([]database.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveCalls = append(s.resolveCalls, resolveCall{telegramID, ownerConfirmed, status})
	if u, ok := s.users[telegramID]; ok {
		u.IsOwnerConfirmed = ownerConfirmed
		u.DialogState = database.StateReplied
	}
	var resolved []database.Post
	for _, p := range s.posts {
		if p.AuthorTelegramID.Valid && p.AuthorTelegramID.Int64 == telegramID &&
			(p.OwnerStatus == database.StatusQuestionSent || p.OwnerStatus == database.StatusUnknown) {
			p.OwnerStatus = status
			p.IsProcessed = true
			resolved = append(resolved, *p)
		}
	}
	return resolved, nil
}

func (s *fakeStore) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[key], nil
}

func (s *fakeStore) UpsertSetting(_ context.Context, key, value, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *fakeStore) CountPostsByStatusSince(context.Context, time.Time) (map[database.OwnerStatus]int, error) {
	return nil, nil
}

func (s *fakeStore) RunSQLMaintenance(context.Context) error { return nil }

// postCount returns how many posts were recorded.
func (s *fakeStore) postCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

func (s *fakeStore) lastPost() *database.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.posts) == 0 {
		return nil
	}
	return s.posts[len(s.posts)-1]
}

// fakeSender returns a scripted result and records the texts it was asked to
// send.
type fakeSender struct {
	mu     sync.Mutex
	result pipeline.SendResult
	sends  []string
}

func (f *fakeSender) SendDirectMessage(_ context.Context, _ int64, text string) pipeline.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, text)
	return f.result
}

func (f *fakeSender) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

// fakeLimiter records pacing interactions without sleeping.
type fakeLimiter struct {
	mu         sync.Mutex
	acquires   int
	recorded   int
	suspends   []time.Duration
	acquireErr error
}

func (f *fakeLimiter) AcquireSlot(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	return f.acquireErr
}

func (f *fakeLimiter) RecordSent() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded++
}

func (f *fakeLimiter) Suspend(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suspends = append(f.suspends, d)
}

// fakeNotifier records notifications and optionally fails.
type fakeNotifier struct {
	mu            sync.Mutex
	notifications []notify.OwnerNotification
	err           error
}

func (f *fakeNotifier) NotifyOwner(_ context.Context, n notify.OwnerNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return f.err
}
