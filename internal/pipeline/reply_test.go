package pipeline_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/edgard/ownerscout/internal/database"
	"github.com/edgard/ownerscout/internal/pipeline"
)

func newReplies(store *fakeStore, notifier *fakeNotifier) *pipeline.Replies {
	return pipeline.NewReplies(store, newTestFilter(), notifier,
		pipeline.NewUserLocks(), discardLogger())
}

func waitingUserWithPendingPost(store *fakeStore, userID int64) {
	store.users[userID] = &database.User{
		TelegramID:  userID,
		Username:    sql.NullString{String: "seller42", Valid: true},
		DialogState: database.StateWaitingForReply,
	}
	store.posts = append(store.posts, &database.Post{
		ID:               1,
		ChannelID:        -100500,
		MessageID:        42,
		AuthorTelegramID: sql.NullInt64{Int64: userID, Valid: true},
		AuthorUsername:   sql.NullString{String: "seller42", Valid: true},
		MessageText:      "Продам квартиру",
		OriginalLink:     sql.NullString{String: "https://t.me/c/500/42", Valid: true},
		IsRelevant:       true,
		OwnerStatus:      database.StatusQuestionSent,
	})
	store.nextPostID = 1
}

func TestReplyFromUnknownSenderIsIgnored(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	notifier := &fakeNotifier{}
	replies := newReplies(store, notifier)

	err := replies.HandlePrivateReply(context.Background(),
		pipeline.PrivateReplyEvent{SenderID: 999, Text: "да, я собственник"})
	if err != nil {
		t.Fatalf("HandlePrivateReply returned error: %v", err)
	}
	if len(store.resolveCalls) != 0 || len(notifier.notifications) != 0 {
		t.Error("reply from unknown sender must not resolve or notify")
	}
}

func TestReplyOutsideActiveDialogIsIgnored(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.users[777] = &database.User{TelegramID: 777, DialogState: database.StateReplied}
	notifier := &fakeNotifier{}
	replies := newReplies(store, notifier)

	err := replies.HandlePrivateReply(context.Background(),
		pipeline.PrivateReplyEvent{SenderID: 777, Text: "я собственник"})
	if err != nil {
		t.Fatalf("HandlePrivateReply returned error: %v", err)
	}
	if len(store.resolveCalls) != 0 {
		t.Error("reply after resolution must not re-resolve")
	}
}

func TestOwnerReplyResolvesAndNotifies(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	waitingUserWithPendingPost(store, 777)
	notifier := &fakeNotifier{}
	replies := newReplies(store, notifier)

	err := replies.HandlePrivateReply(context.Background(),
		pipeline.PrivateReplyEvent{SenderID: 777, Text: "Да, собственник"})
	if err != nil {
		t.Fatalf("HandlePrivateReply returned error: %v", err)
	}

	if len(store.resolveCalls) != 1 {
		t.Fatalf("resolve calls = %d, want 1", len(store.resolveCalls))
	}
	rc := store.resolveCalls[0]
	if !rc.ownerConfirmed || rc.status != database.StatusOwner {
		t.Errorf("resolve call = %+v, want owner-confirmed OWNER", rc)
	}

	if len(notifier.notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.notifications))
	}
	n := notifier.notifications[0]
	if n.AuthorID != 777 {
		t.Errorf("notification author_id = %d, want 777", n.AuthorID)
	}
	if n.MessageText != "Продам квартиру" {
		t.Errorf("notification text = %q, want original post text", n.MessageText)
	}
	if n.Username == nil || *n.Username != "seller42" {
		t.Errorf("notification username = %v, want seller42", n.Username)
	}
	if n.OriginalLink == nil || *n.OriginalLink != "https://t.me/c/500/42" {
		t.Errorf("notification link = %v, want post permalink", n.OriginalLink)
	}
}

func TestAgentReplyResolvesWithoutNotification(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	waitingUserWithPendingPost(store, 777)
	notifier := &fakeNotifier{}
	replies := newReplies(store, notifier)

	err := replies.HandlePrivateReply(context.Background(),
		pipeline.PrivateReplyEvent{SenderID: 777, Text: "Я агент, работаю с этим объектом"})
	if err != nil {
		t.Fatalf("HandlePrivateReply returned error: %v", err)
	}

	if len(store.resolveCalls) != 1 {
		t.Fatalf("resolve calls = %d, want 1", len(store.resolveCalls))
	}
	rc := store.resolveCalls[0]
	if rc.ownerConfirmed || rc.status != database.StatusAgent {
		t.Errorf("resolve call = %+v, want non-confirmed AGENT", rc)
	}
	if len(notifier.notifications) != 0 {
		t.Errorf("notifications = %d, want 0 for agent reply", len(notifier.notifications))
	}
}

func TestAmbiguousReplyFlagsWithoutResolving(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	waitingUserWithPendingPost(store, 777)
	notifier := &fakeNotifier{}
	replies := newReplies(store, notifier)

	err := replies.HandlePrivateReply(context.Background(),
		pipeline.PrivateReplyEvent{SenderID: 777, Text: "кто спрашивает?"})
	if err != nil {
		t.Fatalf("HandlePrivateReply returned error: %v", err)
	}

	if len(store.resolveCalls) != 0 {
		t.Error("ambiguous reply must not resolve pending posts")
	}
	if len(store.stateCalls) != 1 || store.stateCalls[0] != database.StateUnknownReply {
		t.Errorf("state calls = %v, want single transition to UNKNOWN_REPLY", store.stateCalls)
	}
	post := store.lastPost()
	if post.OwnerStatus != database.StatusQuestionSent {
		t.Errorf("post status = %q, want pending %q", post.OwnerStatus, database.StatusQuestionSent)
	}
}

func TestNotifierFailureDoesNotFailReply(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	waitingUserWithPendingPost(store, 777)
	notifier := &fakeNotifier{err: errors.New("receiver down")}
	replies := newReplies(store, notifier)

	err := replies.HandlePrivateReply(context.Background(),
		pipeline.PrivateReplyEvent{SenderID: 777, Text: "собственник"})
	if err != nil {
		t.Fatalf("HandlePrivateReply returned error despite committed outcome: %v", err)
	}

	user, _ := store.GetUser(context.Background(), 777)
	if !user.IsOwnerConfirmed {
		t.Error("owner confirmation must survive a notifier outage")
	}
	post := store.lastPost()
	if post.OwnerStatus != database.StatusOwner {
		t.Errorf("post status = %q, want OWNER despite notifier failure", post.OwnerStatus)
	}
}
