package database_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/edgard/ownerscout/internal/database"
)

// newTestStore opens a fresh in-memory database with migrations applied.
func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func pendingPost(channelID int64, messageID int, authorID int64) *database.Post {
	return &database.Post{
		ChannelID:        channelID,
		MessageID:        messageID,
		AuthorTelegramID: sql.NullInt64{Int64: authorID, Valid: true},
		MessageText:      "Продам квартиру",
		IsRelevant:       true,
		OwnerStatus:      database.StatusUnknown,
	}
}

func pendingUser(authorID int64) *database.User {
	return &database.User{
		TelegramID:  authorID,
		Username:    sql.NullString{String: "seller42", Valid: true},
		DialogState: database.StateQuestionSent,
	}
}

func TestChannelLifecycle(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	active, err := store.IsChannelActive(ctx, -100500)
	if err != nil {
		t.Fatalf("IsChannelActive: %v", err)
	}
	if active {
		t.Error("unknown channel reported active")
	}

	if err := store.UpsertChannel(ctx, -100500, "Flats"); err != nil {
		t.Fatalf("UpsertChannel: %v", err)
	}
	if active, _ = store.IsChannelActive(ctx, -100500); !active {
		t.Error("freshly added channel should be active")
	}

	found, err := store.SetChannelActive(ctx, -100500, false)
	if err != nil || !found {
		t.Fatalf("SetChannelActive = %v, %v, want true, nil", found, err)
	}
	if active, _ = store.IsChannelActive(ctx, -100500); active {
		t.Error("deactivated channel reported active")
	}

	if found, _ = store.SetChannelActive(ctx, -999, true); found {
		t.Error("toggling a missing channel reported found")
	}

	channels, err := store.ListChannels(ctx)
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(channels) != 1 || channels[0].Title != "Flats" {
		t.Errorf("channels = %+v, want single Flats entry", channels)
	}
}

func TestPostIdentityIsUnique(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	post := pendingPost(-100500, 42, 777)
	post.OwnerStatus = database.StatusNotRelevant
	post.IsProcessed = true
	if err := store.InsertPost(ctx, post); err != nil {
		t.Fatalf("InsertPost: %v", err)
	}

	dup := pendingPost(-100500, 42, 777)
	dup.OwnerStatus = database.StatusNotRelevant
	dup.IsProcessed = true
	err := store.InsertPost(ctx, dup)
	if err == nil {
		t.Fatal("inserting the same (channel, message) twice must fail")
	}
	if !strings.Contains(err.Error(), "UNIQUE") && !strings.Contains(err.Error(), "unique") {
		t.Errorf("error %q does not look like a uniqueness violation", err)
	}

	got, err := store.GetPost(ctx, -100500, 42)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got == nil || got.ID != post.ID {
		t.Errorf("GetPost = %+v, want the original row", got)
	}
}

func TestInsertPostRejectsInvalidStatus(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	post := pendingPost(-100500, 42, 777)
	post.OwnerStatus = "BOGUS"
	if err := store.InsertPost(context.Background(), post); err == nil {
		t.Error("InsertPost accepted an invalid owner status")
	}
}

func TestCreatePendingPostLinksUser(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	created := pendingPost(-100500, 42, 777)
	if err := store.CreatePendingPost(ctx, created, pendingUser(777)); err != nil {
		t.Fatalf("CreatePendingPost: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("CreatePendingPost left post.ID unset; send outcomes would finalize against no row")
	}

	user, err := store.GetUser(ctx, 777)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user == nil {
		t.Fatal("user was not created with the pending post")
	}
	if user.DialogState != database.StateQuestionSent {
		t.Errorf("dialog state = %q, want %q", user.DialogState, database.StateQuestionSent)
	}

	post, err := store.GetPost(ctx, -100500, 42)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if post == nil || post.OwnerStatus != database.StatusUnknown || post.IsProcessed {
		t.Errorf("post = %+v, want unprocessed UNKNOWN record", post)
	}
	if post.ID != created.ID {
		t.Errorf("returned post.ID = %d, want the stored row id %d", created.ID, post.ID)
	}

	// Re-solicitation of the same author updates the user in place,
	// including the display name fields.
	u2 := pendingUser(777)
	u2.Username = sql.NullString{String: "renamed", Valid: true}
	u2.FirstName = sql.NullString{String: "Анна", Valid: true}
	u2.LastName = sql.NullString{String: "Петрова", Valid: true}
	if err := store.CreatePendingPost(ctx, pendingPost(-100500, 43, 777), u2); err != nil {
		t.Fatalf("second CreatePendingPost: %v", err)
	}
	user, _ = store.GetUser(ctx, 777)
	if user.Username.String != "renamed" {
		t.Errorf("username = %q, want updated to renamed", user.Username.String)
	}
	if user.FirstName.String != "Анна" || user.LastName.String != "Петрова" {
		t.Errorf("name = %q %q, want updated to Анна Петрова",
			user.FirstName.String, user.LastName.String)
	}
}

func TestFinalizeSendAttempt(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	post := pendingPost(-100500, 42, 777)
	if err := store.CreatePendingPost(ctx, post, pendingUser(777)); err != nil {
		t.Fatalf("CreatePendingPost: %v", err)
	}

	err := store.FinalizeSendAttempt(ctx, post.ID, 777,
		database.StatusQuestionSent, database.StateWaitingForReply)
	if err != nil {
		t.Fatalf("FinalizeSendAttempt: %v", err)
	}

	got, _ := store.GetPost(ctx, -100500, 42)
	if got.OwnerStatus != database.StatusQuestionSent {
		t.Errorf("post status = %q, want %q", got.OwnerStatus, database.StatusQuestionSent)
	}
	user, _ := store.GetUser(ctx, 777)
	if user.DialogState != database.StateWaitingForReply {
		t.Errorf("dialog state = %q, want %q", user.DialogState, database.StateWaitingForReply)
	}
}

func TestResolveUserReplyFlipsAllPendingPosts(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	// Two pending posts by the same author, one mid-send and one sent.
	first := pendingPost(-100500, 42, 777)
	if err := store.CreatePendingPost(ctx, first, pendingUser(777)); err != nil {
		t.Fatalf("CreatePendingPost: %v", err)
	}
	second := pendingPost(-100500, 43, 777)
	if err := store.CreatePendingPost(ctx, second, pendingUser(777)); err != nil {
		t.Fatalf("CreatePendingPost: %v", err)
	}
	if err := store.FinalizeSendAttempt(ctx, second.ID, 777,
		database.StatusQuestionSent, database.StateWaitingForReply); err != nil {
		t.Fatalf("FinalizeSendAttempt: %v", err)
	}

	// An unrelated author's post must stay untouched.
	other := pendingPost(-100500, 44, 888)
	if err := store.CreatePendingPost(ctx, other, &database.User{
		TelegramID:  888,
		DialogState: database.StateQuestionSent,
	}); err != nil {
		t.Fatalf("CreatePendingPost: %v", err)
	}

	resolved, err := store.ResolveUserReply(ctx, 777, true, database.StatusOwner)
	if err != nil {
		t.Fatalf("ResolveUserReply: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("resolved %d posts, want 2", len(resolved))
	}
	for _, p := range resolved {
		if p.OwnerStatus != database.StatusOwner || !p.IsProcessed {
			t.Errorf("resolved post %d = %q/%v, want processed OWNER", p.ID, p.OwnerStatus, p.IsProcessed)
		}
	}

	user, _ := store.GetUser(ctx, 777)
	if !user.IsOwnerConfirmed || user.DialogState != database.StateReplied {
		t.Errorf("user = confirmed %v state %q, want confirmed REPLIED", user.IsOwnerConfirmed, user.DialogState)
	}

	untouched, _ := store.GetPost(ctx, -100500, 44)
	if untouched.OwnerStatus != database.StatusUnknown {
		t.Errorf("unrelated post status = %q, want untouched UNKNOWN", untouched.OwnerStatus)
	}
}

func TestResolveUserReplyRejectsNonTerminalStatus(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.ResolveUserReply(context.Background(), 777, false, database.StatusUnknown)
	if err == nil {
		t.Error("ResolveUserReply accepted a non-reply status")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetSetting(ctx, database.SettingInitialQuestion)
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if got != "" {
		t.Errorf("unset setting = %q, want empty", got)
	}

	if err := store.UpsertSetting(ctx, database.SettingInitialQuestion, "Вы собственник?", "opening question"); err != nil {
		t.Fatalf("UpsertSetting: %v", err)
	}
	if err := store.UpsertSetting(ctx, database.SettingInitialQuestion, "Вы продаёте напрямую?", ""); err != nil {
		t.Fatalf("second UpsertSetting: %v", err)
	}

	got, _ = store.GetSetting(ctx, database.SettingInitialQuestion)
	if got != "Вы продаёте напрямую?" {
		t.Errorf("setting = %q, want the replaced value", got)
	}
}

func TestCountPostsByStatusSince(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	old := pendingPost(-100500, 1, 777)
	old.OwnerStatus = database.StatusNotRelevant
	old.IsProcessed = true
	old.ProcessedAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := store.InsertPost(ctx, old); err != nil {
		t.Fatalf("InsertPost: %v", err)
	}

	for i, status := range []database.OwnerStatus{
		database.StatusNotRelevant, database.StatusOwner, database.StatusOwner,
	} {
		p := pendingPost(-100500, 10+i, 777)
		p.OwnerStatus = status
		p.IsProcessed = true
		if err := store.InsertPost(ctx, p); err != nil {
			t.Fatalf("InsertPost: %v", err)
		}
	}

	counts, err := store.CountPostsByStatusSince(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountPostsByStatusSince: %v", err)
	}
	if counts[database.StatusOwner] != 2 {
		t.Errorf("OWNER count = %d, want 2", counts[database.StatusOwner])
	}
	if counts[database.StatusNotRelevant] != 1 {
		t.Errorf("NOT_RELEVANT count = %d, want 1 (old post excluded)", counts[database.StatusNotRelevant])
	}
}
