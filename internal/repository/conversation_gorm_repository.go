package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"gorm.io/gorm"
)

// conversationRow 定义了 conversations 表的 ORM 模型。
type conversationRow struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)"`
	Platform      string    `gorm:"type:varchar(32);not null"`
	Link          string    `gorm:"type:varchar(512);uniqueIndex;not null"`
	Title         string    `gorm:"type:varchar(255)"`
	MessageCount  int       `gorm:"not null;default:0"`
	LastMessageAt time.Time `gorm:"precision:3"`
	// 时间戳由协调器维护，关闭 GORM 的自动填充
	CreatedAt time.Time `gorm:"autoCreateTime:false;precision:3"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;precision:3"`
}

func (conversationRow) TableName() string {
	return "conversations"
}

// messageRow 定义了 conversation_messages 表的 ORM 模型，(conversation_id, position) 为主键。
type messageRow struct {
	ConversationID string    `gorm:"primaryKey;type:varchar(64)"`
	Position       int       `gorm:"primaryKey;autoIncrement:false"`
	MessageID      string    `gorm:"type:varchar(64);not null"`
	Sender         string    `gorm:"type:varchar(16);not null"`
	Content        string    `gorm:"type:longtext;not null"`
	Thinking       string    `gorm:"type:longtext"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false;precision:3"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false;precision:3"`
}

func (messageRow) TableName() string {
	return "conversation_messages"
}

// AutoMigrate 创建或更新对话相关的表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&conversationRow{}, &messageRow{})
}

type gormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository 创建一个基于 GORM (MySQL) 的 ConversationRepository 实例。
func NewGormConversationRepository(db *gorm.DB) ConversationRepository {
	return &gormConversationRepository{db: db}
}

// Get 读取对话及其全部消息。
func (r *gormConversationRepository) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var row conversationRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, translateGormError(err)
	}
	return r.load(ctx, row)
}

// FindByLink 根据链接查找对话。
func (r *gormConversationRepository) FindByLink(ctx context.Context, link string) (*model.Conversation, error) {
	var row conversationRow
	err := r.db.WithContext(ctx).Where("link = ?", link).First(&row).Error
	if err != nil {
		return nil, translateGormError(err)
	}
	return r.load(ctx, row)
}

// Put 在一个事务中替换对话元数据和全部消息。
func (r *gormConversationRepository) Put(ctx context.Context, conv *model.Conversation) error {
	row := conversationRow{
		ID:            conv.ID,
		Platform:      conv.Platform,
		Link:          conv.Link,
		Title:         conv.Title,
		MessageCount:  conv.MessageCount,
		LastMessageAt: conv.LastMessageAt,
		CreatedAt:     conv.CreatedAt,
		UpdatedAt:     conv.UpdatedAt,
	}
	msgs := make([]messageRow, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		msgs = append(msgs, messageRow{
			ConversationID: conv.ID,
			Position:       m.Position,
			MessageID:      m.ID,
			Sender:         string(m.Sender),
			Content:        m.Content,
			Thinking:       m.Thinking,
			CreatedAt:      m.CreatedAt,
			UpdatedAt:      m.UpdatedAt,
		})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&messageRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear messages: %w", err)
		}
		if len(msgs) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(msgs, 200).Error; err != nil {
			return fmt.Errorf("failed to insert messages: %w", err)
		}
		return nil
	})
}

func (r *gormConversationRepository) load(ctx context.Context, row conversationRow) (*model.Conversation, error) {
	var rows []messageRow
	if err := r.db.WithContext(ctx).Where("conversation_id = ?", row.ID).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	conv := &model.Conversation{
		ID:            row.ID,
		Platform:      row.Platform,
		Link:          row.Link,
		Title:         row.Title,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		MessageCount:  row.MessageCount,
		LastMessageAt: row.LastMessageAt,
		Messages:      make([]model.Message, 0, len(rows)),
	}
	for _, m := range rows {
		conv.Messages = append(conv.Messages, model.Message{
			ID:        m.MessageID,
			Sender:    model.Sender(m.Sender),
			Content:   m.Content,
			Thinking:  m.Thinking,
			Position:  m.Position,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		})
	}
	return conv, nil
}

func translateGormError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to query conversation: %w", err)
}
