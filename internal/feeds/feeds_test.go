package feeds

import (
	"context"
	"errors"
	"testing"
	"time"

	"routechat/internal/domain/call"
	"routechat/internal/domain/conversation"
	"routechat/internal/domain/message"
	"routechat/internal/repository"
	"routechat/internal/services"
	routechat_errors "routechat/pkg/errors"
	"routechat/pkg/events"
	"routechat/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type feedEnv struct {
	directory *services.ConversationService
	stream    *services.MessageService
	feeds     *Feeds
}

func newFeedEnv(t *testing.T) *feedEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&conversation.Conversation{},
		&conversation.Participant{},
		&conversation.ConversationSequence{},
		&message.Message{},
		&message.Attachment{},
		&call.Call{},
		&call.CallParticipant{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	broker := events.NewMemoryBroker()
	log := logger.NewNop()
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	directory := services.NewConversationService(db, conversationRepo, messageRepo, broker, log)
	stream := services.NewMessageService(db, messageRepo, directory, broker, nil, log)

	return &feedEnv{
		directory: directory,
		stream:    stream,
		feeds:     New(broker, directory, stream, log),
	}
}

func waitForMessages(t *testing.T, feed *MessagesFeed, want int) MessagesUpdate {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case update, ok := <-feed.Updates():
			if !ok {
				t.Fatal("feed closed while waiting for snapshot")
			}
			if len(update.Messages) == want {
				return update
			}
		case <-deadline:
			t.Fatalf("no snapshot with %d messages arrived", want)
		}
	}
}

func TestMessagesFeedDeliversAppends(t *testing.T) {
	env := newFeedEnv(t)
	ctx := context.Background()

	u1 := uuid.New()
	u2 := uuid.New()
	conv, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u1, u2})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	feed, err := env.feeds.Messages(ctx, conv.ID, u2)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	defer feed.Close()

	// The initial snapshot arrives without any event.
	initial := waitForMessages(t, feed, 0)
	if initial.Stale {
		t.Fatal("initial snapshot marked stale on a healthy stream")
	}

	if _, err := env.stream.Append(ctx, services.AppendInput{ConversationID: conv.ID, SenderID: u1, Content: "ping"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	update := waitForMessages(t, feed, 1)
	if update.Messages[0].Content.String != "ping" {
		t.Fatalf("snapshot content = %q, want ping", update.Messages[0].Content.String)
	}
}

func TestMessagesFeedRequiresMembership(t *testing.T) {
	env := newFeedEnv(t)
	ctx := context.Background()

	conv, err := env.directory.FindOrCreate(ctx, []uuid.UUID{uuid.New(), uuid.New()})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	if _, err := env.feeds.Messages(ctx, conv.ID, uuid.New()); !errors.Is(err, routechat_errors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestClosingOneFeedLeavesOthersLive(t *testing.T) {
	env := newFeedEnv(t)
	ctx := context.Background()

	u1 := uuid.New()
	u2 := uuid.New()
	conv, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u1, u2})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	first, err := env.feeds.Messages(ctx, conv.ID, u1)
	if err != nil {
		t.Fatalf("first feed: %v", err)
	}
	second, err := env.feeds.Messages(ctx, conv.ID, u2)
	if err != nil {
		t.Fatalf("second feed: %v", err)
	}
	defer second.Close()

	waitForMessages(t, first, 0)
	waitForMessages(t, second, 0)

	first.Close()

	if _, err := env.stream.Append(ctx, services.AppendInput{ConversationID: conv.ID, SenderID: u1, Content: "still here"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	update := waitForMessages(t, second, 1)
	if update.Messages[0].Content.String != "still here" {
		t.Fatalf("surviving feed snapshot = %q", update.Messages[0].Content.String)
	}
}

func TestConversationListFeedTracksNewConversations(t *testing.T) {
	env := newFeedEnv(t)
	ctx := context.Background()

	u1 := uuid.New()

	feed, err := env.feeds.ConversationList(ctx, u1)
	if err != nil {
		t.Fatalf("ConversationList: %v", err)
	}
	defer feed.Close()

	deadline := time.After(2 * time.Second)
	select {
	case update := <-feed.Updates():
		if len(update.Conversations) != 0 {
			t.Fatalf("initial list has %d conversations", len(update.Conversations))
		}
	case <-deadline:
		t.Fatal("no initial snapshot")
	}

	conv, err := env.directory.FindOrCreate(ctx, []uuid.UUID{u1, uuid.New()})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if _, err := env.stream.Append(ctx, services.AppendInput{ConversationID: conv.ID, SenderID: u1, Content: "hello"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	deadline = time.After(2 * time.Second)
	for {
		select {
		case update, ok := <-feed.Updates():
			if !ok {
				t.Fatal("feed closed")
			}
			if len(update.Conversations) == 1 && update.Conversations[0].LastMessage.String == "hello" {
				return
			}
		case <-deadline:
			t.Fatal("list snapshot never reflected the new conversation")
		}
	}
}
