package services

import (
	"context"
	"io"

	"routechat/pkg/logger"

	"github.com/google/uuid"
)

// IdentityProvider resolves a user id to presentation data. The core stores
// only ids plus name snapshots taken at message creation time, so a later
// change to the identity record never rewrites history.
type IdentityProvider interface {
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

// Notifier is the out-of-band push collaborator. Delivery is fire-and-forget:
// failures are logged by the caller and never block the mutation that
// triggered them.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) error
}

// ObjectStorage is the attachment binary store. S3 in production, a fake in
// tests.
type ObjectStorage interface {
	Put(ctx context.Context, key, contentType string, size int64, body io.Reader) error
	FileURL(key string) string
}

// NoopIdentity satisfies IdentityProvider when no directory is wired.
type NoopIdentity struct{}

func (NoopIdentity) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	return "", nil
}

// LogNotifier writes notifications to the log instead of a push gateway.
type LogNotifier struct {
	Log *logger.Logger
}

func (n LogNotifier) Notify(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) error {
	if n.Log != nil {
		n.Log.Infof("notify user=%s title=%q body=%q", userID, title, body)
	}
	return nil
}

// dispatchNotify sends without blocking the caller and logs failures.
func dispatchNotify(notifier Notifier, log *logger.Logger, userID uuid.UUID, title, body string, data map[string]string) {
	if notifier == nil {
		return
	}
	go func() {
		if err := notifier.Notify(context.Background(), userID, title, body, data); err != nil && log != nil {
			log.Warnf("notification dispatch failed for user %s: %v", userID, err)
		}
	}()
}
