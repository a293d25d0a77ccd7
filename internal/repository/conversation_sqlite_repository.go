package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
)

//go:embed schema.sql
var sqliteSchema string

type sqliteConversationRepository struct {
	db *sql.DB
}

// NewSQLiteConversationRepository 创建一个基于 SQLite 的 ConversationRepository，并确保表结构存在。
// 时间戳以 UTC 毫秒存储。
func NewSQLiteConversationRepository(db *sql.DB) (ConversationRepository, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &sqliteConversationRepository{db: db}, nil
}

const selectConversation = `
	SELECT id, platform, link, title, message_count, last_message_at, created_at, updated_at
	FROM conversations`

// Get 读取对话及其全部消息。
func (r *sqliteConversationRepository) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return r.queryOne(ctx, selectConversation+" WHERE id = ?", id)
}

// FindByLink 根据链接查找对话。
func (r *sqliteConversationRepository) FindByLink(ctx context.Context, link string) (*model.Conversation, error) {
	return r.queryOne(ctx, selectConversation+" WHERE link = ?", link)
}

func (r *sqliteConversationRepository) queryOne(ctx context.Context, query string, arg string) (*model.Conversation, error) {
	var conv model.Conversation
	var lastMessageAt, createdAt, updatedAt int64
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&conv.ID, &conv.Platform, &conv.Link, &conv.Title, &conv.MessageCount,
		&lastMessageAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	conv.LastMessageAt = fromMillis(lastMessageAt)
	conv.CreatedAt = fromMillis(createdAt)
	conv.UpdatedAt = fromMillis(updatedAt)

	rows, err := r.db.QueryContext(ctx, `
		SELECT position, message_id, sender, content, thinking, created_at, updated_at
		FROM conversation_messages
		WHERE conversation_id = ?
		ORDER BY position ASC`, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	conv.Messages = []model.Message{}
	for rows.Next() {
		var m model.Message
		var sender string
		var created, updated int64
		if err := rows.Scan(&m.Position, &m.ID, &sender, &m.Content, &m.Thinking, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Sender = model.Sender(sender)
		m.CreatedAt = fromMillis(created)
		m.UpdatedAt = fromMillis(updated)
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return &conv, nil
}

// Put 在一个事务中替换对话元数据和全部消息。
func (r *sqliteConversationRepository) Put(ctx context.Context, conv *model.Conversation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, platform, link, title, message_count, last_message_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			platform = excluded.platform,
			link = excluded.link,
			title = excluded.title,
			message_count = excluded.message_count,
			last_message_at = excluded.last_message_at,
			updated_at = excluded.updated_at`,
		conv.ID, conv.Platform, conv.Link, conv.Title, conv.MessageCount,
		toMillis(conv.LastMessageAt), toMillis(conv.CreatedAt), toMillis(conv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM conversation_messages WHERE conversation_id = ?", conv.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversation_messages
			(conversation_id, position, message_id, sender, content, thinking, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range conv.Messages {
		if _, err := stmt.ExecContext(ctx, conv.ID, m.Position, m.ID, string(m.Sender), m.Content, m.Thinking,
			toMillis(m.CreatedAt), toMillis(m.UpdatedAt)); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", m.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversation: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
