package services

import (
	"context"
	"errors"
	"testing"

	routechat_errors "routechat/pkg/errors"

	"github.com/google/uuid"
)

func TestFindOrCreateDeduplicatesByParticipantSet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u1 := uuid.New()
	u2 := uuid.New()

	first, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u1, u2})
	if err != nil {
		t.Fatalf("first FindOrCreate: %v", err)
	}

	// Same set in reverse order, with a duplicate thrown in.
	second, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u2, u1, u2})
	if err != nil {
		t.Fatalf("second FindOrCreate: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one conversation, got %s and %s", first.ID, second.ID)
	}

	// A set sharing one member is a different conversation.
	u3 := uuid.New()
	third, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u1, u3})
	if err != nil {
		t.Fatalf("third FindOrCreate: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("overlapping set collapsed into an existing conversation")
	}
}

func TestFindOrCreateRejectsDegenerateSets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u1 := uuid.New()

	cases := [][]uuid.UUID{
		nil,
		{u1},
		{u1, u1},
		{u1, uuid.Nil},
	}
	for _, ids := range cases {
		if _, err := env.directory.FindOrCreate(ctx, ids); !errors.Is(err, routechat_errors.ErrInvalidParticipantSet) {
			t.Fatalf("ids %v: expected ErrInvalidParticipantSet, got %v", ids, err)
		}
	}
}

func TestUnreadCounters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u1 := uuid.New()
	u2 := uuid.New()
	conv, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u1, u2})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := env.directory.IncrementUnread(ctx, conv.ID, u1); err != nil {
			t.Fatalf("IncrementUnread: %v", err)
		}
	}

	counts := unreadByUser(t, env, conv.ID)
	if counts[u1] != 0 {
		t.Fatalf("sender unread = %d, want 0", counts[u1])
	}
	if counts[u2] != 3 {
		t.Fatalf("recipient unread = %d, want 3", counts[u2])
	}

	if err := env.directory.ResetUnread(ctx, conv.ID, u2); err != nil {
		t.Fatalf("ResetUnread: %v", err)
	}
	counts = unreadByUser(t, env, conv.ID)
	if counts[u2] != 0 {
		t.Fatalf("unread after reset = %d, want 0", counts[u2])
	}
}

func TestListForUserOrdersByLastMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u1 := uuid.New()

	older, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u1, uuid.New()})
	if err != nil {
		t.Fatalf("FindOrCreate older: %v", err)
	}
	newer, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u1, uuid.New()})
	if err != nil {
		t.Fatalf("FindOrCreate newer: %v", err)
	}
	empty, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u1, uuid.New()})
	if err != nil {
		t.Fatalf("FindOrCreate empty: %v", err)
	}

	if _, err := env.stream.Append(ctx, AppendInput{ConversationID: older.ID, SenderID: u1, Content: "first"}); err != nil {
		t.Fatalf("append older: %v", err)
	}
	if _, err := env.stream.Append(ctx, AppendInput{ConversationID: newer.ID, SenderID: u1, Content: "second"}); err != nil {
		t.Fatalf("append newer: %v", err)
	}

	list, err := env.directory.ListForUser(ctx, u1)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d conversations, want 3", len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID || list[2].ID != empty.ID {
		t.Fatalf("unexpected order: %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestDeleteConversationRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u1 := uuid.New()
	u2 := uuid.New()
	conv, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u1, u2})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	if err := env.directory.Delete(ctx, conv.ID, uuid.New()); !errors.Is(err, routechat_errors.ErrForbidden) {
		t.Fatalf("outsider delete: expected ErrForbidden, got %v", err)
	}

	if _, err := env.stream.Append(ctx, AppendInput{ConversationID: conv.ID, SenderID: u1, Content: "bye"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := env.directory.Delete(ctx, conv.ID, u1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := env.directory.GetByID(ctx, conv.ID); !errors.Is(err, routechat_errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	msgs, err := env.stream.repo.ListByConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("messages survived conversation delete: %d", len(msgs))
	}
}

func unreadByUser(t *testing.T, env *testEnv, conversationID uuid.UUID) map[uuid.UUID]int64 {
	t.Helper()
	conv, err := env.directory.GetByID(context.Background(), conversationID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	counts := make(map[uuid.UUID]int64, len(conv.Participants))
	for _, p := range conv.Participants {
		counts[p.UserID] = p.UnreadCount
	}
	return counts
}
