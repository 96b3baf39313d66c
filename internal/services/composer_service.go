package services

import (
	"context"
	"io"
	"sync"

	"routechat/internal/domain/message"
	"routechat/pkg/logger"

	"github.com/google/uuid"
)

// ComposerService assembles outgoing messages: it uploads the attached files
// concurrently, waits for all of them, then hands one append to the stream.
type ComposerService struct {
	uploader *UploadService
	stream   *MessageService
	identity IdentityProvider
	log      *logger.Logger
}

func NewComposerService(uploader *UploadService, stream *MessageService, identity IdentityProvider, log *logger.Logger) *ComposerService {
	if identity == nil {
		identity = NoopIdentity{}
	}
	return &ComposerService{uploader: uploader, stream: stream, identity: identity, log: log}
}

// File is one attachment to send with a message.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SendInput describes one composed message.
type SendInput struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        string
	Files          []File
	ReplyToID      uuid.NullUUID
}

// Send uploads every file, joins on all uploads, and appends the message.
// Uploads run concurrently but the append happens only after the last one
// completes, so a message never references a half-uploaded file. Any upload
// failure aborts the whole send.
func (s *ComposerService) Send(ctx context.Context, input SendInput) (message.Message, error) {
	attachments := make([]message.Attachment, len(input.Files))
	errs := make([]error, len(input.Files))

	var wg sync.WaitGroup
	for i, f := range input.Files {
		wg.Add(1)
		go func(i int, f File) {
			defer wg.Done()
			attachments[i], errs[i] = s.uploader.Upload(ctx, UploadInput{
				Name:        f.Name,
				ContentType: f.ContentType,
				Size:        f.Size,
				Body:        f.Body,
			})
		}(i, f)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return message.Message{}, err
		}
	}

	senderName, err := s.identity.DisplayName(ctx, input.SenderID)
	if err != nil {
		if s.log != nil {
			s.log.Warnf("display name lookup failed for user %s: %v", input.SenderID, err)
		}
		senderName = ""
	}

	return s.stream.Append(ctx, AppendInput{
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		SenderName:     senderName,
		Content:        input.Content,
		Attachments:    attachments,
		ReplyToID:      input.ReplyToID,
	})
}
