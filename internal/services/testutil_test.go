package services

import (
	"testing"
	"time"

	"routechat/internal/domain/call"
	"routechat/internal/domain/conversation"
	"routechat/internal/domain/message"
	"routechat/internal/repository"
	"routechat/pkg/events"
	"routechat/pkg/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Every pooled connection of an in-memory sqlite database is its own
	// database; pin to one connection so all queries see the same data.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

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

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type testEnv struct {
	db        *gorm.DB
	broker    *events.MemoryBroker
	directory *ConversationService
	stream    *MessageService
	presence  *PresenceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	broker := events.NewMemoryBroker()
	log := logger.NewNop()

	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	directory := NewConversationService(db, conversationRepo, messageRepo, broker, log)
	stream := NewMessageService(db, messageRepo, directory, broker, nil, log)
	presence := NewPresenceService(directory, messageRepo, broker, log, 0)

	return &testEnv{
		db:        db,
		broker:    broker,
		directory: directory,
		stream:    stream,
		presence:  presence,
	}
}

func newCallEnv(t *testing.T, ringTimeout time.Duration) (*CallService, *testEnv) {
	t.Helper()

	env := newTestEnv(t)
	callRepo := repository.NewCallRepository(env.db)

	svc := NewCallService(callRepo, nil, env.broker, nil, logger.NewNop(), ringTimeout)
	t.Cleanup(svc.Stop)
	return svc, env
}
