package sink

import (
	"context"

	"research-chat/backend/conversation/models"
	"research-chat/backend/conversation/repository"
	"research-chat/backend/pkg/errors"
)

// LocalName is the name reported by the embedded store sink
const LocalName = "local"

// LocalSink appends messages to the chat_messages table
type LocalSink struct {
	repo repository.MessageRepository
}

func NewLocalSink(repo repository.MessageRepository) *LocalSink {
	return &LocalSink{repo: repo}
}

func (s *LocalSink) Name() string { return LocalName }

func (s *LocalSink) Write(ctx context.Context, message models.ChatMessage) error {
	row := message
	row.ID = 0
	if err := s.repo.Create(ctx, &row); err != nil {
		return errors.NewStorageError("insert message", err)
	}
	return nil
}

func (s *LocalSink) Read(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	messages, err := s.repo.GetByConversation(ctx, conversationID)
	if err != nil {
		return nil, errors.NewStorageError("read conversation", err)
	}
	return messages, nil
}

func (s *LocalSink) ReadSession(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	messages, err := s.repo.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, errors.NewStorageError("read session", err)
	}
	return messages, nil
}

func (s *LocalSink) Stats(ctx context.Context) (models.Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return models.Stats{}, errors.NewStorageError("compute stats", err)
	}
	return stats, nil
}

func (s *LocalSink) Each(ctx context.Context, fn func(models.ChatMessage) error) error {
	return s.repo.Each(ctx, fn)
}

func (s *LocalSink) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return errors.NewStorageError("ping", err)
	}
	return nil
}
