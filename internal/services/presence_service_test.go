package services

import (
	"context"
	"errors"
	"testing"

	"routechat/internal/domain/message"
	routechat_errors "routechat/pkg/errors"

	"github.com/google/uuid"
)

func TestMarkConversationOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u1 := uuid.New()
	u2 := uuid.New()
	conv, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u1, u2})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := env.stream.Append(ctx, AppendInput{ConversationID: conv.ID, SenderID: u1, Content: "hi"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// One message in the other direction stays untouched by u2's open.
	own, err := env.stream.Append(ctx, AppendInput{ConversationID: conv.ID, SenderID: u2, Content: "mine"})
	if err != nil {
		t.Fatalf("Append own: %v", err)
	}

	if err := env.presence.MarkConversationOpen(ctx, u2, conv.ID); err != nil {
		t.Fatalf("MarkConversationOpen: %v", err)
	}

	msgs, err := env.stream.ListByConversation(ctx, conv.ID, u2)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	for _, m := range msgs {
		if m.ID == own.ID {
			if m.Status != message.StatusSent {
				t.Fatalf("own message status = %q, want SENT", m.Status)
			}
			continue
		}
		if m.Status != message.StatusRead {
			t.Fatalf("message %s status = %q, want READ", m.ID, m.Status)
		}
	}

	counts := unreadByUser(t, env, conv.ID)
	if counts[u2] != 0 {
		t.Fatalf("unread after open = %d, want 0", counts[u2])
	}

	// Re-opening an already open conversation changes nothing and succeeds.
	if err := env.presence.MarkConversationOpen(ctx, u2, conv.ID); err != nil {
		t.Fatalf("second MarkConversationOpen: %v", err)
	}
}

func TestMarkConversationOpenWalksBatches(t *testing.T) {
	env := newTestEnv(t)
	env.presence.batchSize = 3
	ctx := context.Background()

	u1 := uuid.New()
	u2 := uuid.New()
	conv, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u1, u2})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	// More unread messages than one batch holds.
	for i := 0; i < 10; i++ {
		if _, err := env.stream.Append(ctx, AppendInput{ConversationID: conv.ID, SenderID: u1, Content: "backlog"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if err := env.presence.MarkConversationOpen(ctx, u2, conv.ID); err != nil {
		t.Fatalf("MarkConversationOpen: %v", err)
	}

	msgs, err := env.stream.ListByConversation(ctx, conv.ID, u2)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	for _, m := range msgs {
		if m.Status != message.StatusRead {
			t.Fatalf("message %s status = %q after batched open", m.ID, m.Status)
		}
	}
}

func TestMarkConversationOpenRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	conv, err := env.directory.FindOrCreate(ctx, []uuid.UUID{uuid.New(), uuid.New()})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	if err := env.presence.MarkConversationOpen(ctx, uuid.New(), conv.ID); !errors.Is(err, routechat_errors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
