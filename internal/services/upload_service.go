package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"routechat/internal/domain/message"
	routechat_errors "routechat/pkg/errors"
	"routechat/pkg/logger"

	"github.com/google/uuid"
)

// UploadService turns raw file bytes into attachment descriptors. Storage
// failures surface as ErrUploadFailed so a caller can tell them apart from
// validation errors.
type UploadService struct {
	storage  ObjectStorage
	maxBytes int64
	log      *logger.Logger
}

func NewUploadService(storage ObjectStorage, maxBytes int64, log *logger.Logger) *UploadService {
	if maxBytes <= 0 {
		maxBytes = 100 << 20
	}
	return &UploadService{storage: storage, maxBytes: maxBytes, log: log}
}

// UploadInput describes one file to store. Size must be the exact byte count
// of Body.
type UploadInput struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Upload validates the file, stores the bytes and returns the attachment
// descriptor. The size limit is enforced before any bytes move.
func (s *UploadService) Upload(ctx context.Context, input UploadInput) (message.Attachment, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || input.Body == nil || input.Size <= 0 {
		return message.Attachment{}, routechat_errors.ErrInvalidInput
	}
	if input.Size > s.maxBytes {
		return message.Attachment{}, routechat_errors.ErrFileTooLarge
	}
	if s.storage == nil {
		return message.Attachment{}, routechat_errors.ErrUploadFailed
	}

	id := uuid.New()
	key := "uploads/" + id.String() + strings.ToLower(filepath.Ext(name))

	if err := s.storage.Put(ctx, key, input.ContentType, input.Size, input.Body); err != nil {
		if s.log != nil {
			s.log.Errorf("object store put failed for %q: %v", name, err)
		}
		return message.Attachment{}, fmt.Errorf("%w: %v", routechat_errors.ErrUploadFailed, err)
	}

	return message.Attachment{
		ID:        id,
		Name:      name,
		MimeType:  input.ContentType,
		SizeBytes: input.Size,
		URL:       s.storage.FileURL(key),
		CreatedAt: time.Now(),
	}, nil
}
