package repository

import (
	"context"
	"fmt"

	"research-chat/backend/conversation/models"

	"gorm.io/gorm"
)

type MessageRepository interface {
	Create(ctx context.Context, message *models.ChatMessage) error
	GetByConversation(ctx context.Context, conversationID string) ([]models.ChatMessage, error)
	GetBySession(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	Stats(ctx context.Context) (models.Stats, error)
	Each(ctx context.Context, fn func(models.ChatMessage) error) error
	Ping(ctx context.Context) error
}

type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository wraps db. SQLite handles are narrowed to one
// connection so appends from concurrent requests are serialized.
func NewGormMessageRepository(db *gorm.DB) (*GormMessageRepository, error) {
	if db.Dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return &GormMessageRepository{db: db}, nil
}

func (r *GormMessageRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *GormMessageRepository) GetByConversation(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	messages := []models.ChatMessage{}
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

func (r *GormMessageRepository) GetBySession(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	messages := []models.ChatMessage{}
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

func (r *GormMessageRepository) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.ChatMessage{}).Count(&stats.TotalMessages).Error; err != nil {
		return stats, err
	}
	if stats.TotalMessages == 0 {
		return stats, nil
	}
	if err := db.Model(&models.ChatMessage{}).Distinct("session_id").Count(&stats.UniqueSessions).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.ChatMessage{}).Distinct("conversation_id").Count(&stats.UniqueConversations).Error; err != nil {
		return stats, err
	}

	var first, last []models.ChatMessage
	if err := db.Order("created_at ASC").Order("id ASC").Limit(1).Find(&first).Error; err != nil {
		return stats, err
	}
	if err := db.Order("created_at DESC").Order("id DESC").Limit(1).Find(&last).Error; err != nil {
		return stats, err
	}
	if len(first) == 1 {
		t := first[0].CreatedAt
		stats.EarliestMessage = &t
	}
	if len(last) == 1 {
		t := last[0].CreatedAt
		stats.LatestMessage = &t
	}
	return stats, nil
}

// Each streams every row in created_at order
func (r *GormMessageRepository) Each(ctx context.Context, fn func(models.ChatMessage) error) error {
	rows, err := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Order("created_at ASC").
		Order("id ASC").
		Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var message models.ChatMessage
		if err := r.db.ScanRows(rows, &message); err != nil {
			return err
		}
		if err := fn(message); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *GormMessageRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
