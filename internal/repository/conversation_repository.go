// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/go-redis/redis/v8"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = model.ErrConversationNotFound

// ConversationRepository 定义了对话记录的持久化操作。所有操作都是整条记录级别的。
type ConversationRepository interface {
	Get(ctx context.Context, id string) (*model.Conversation, error)
	Put(ctx context.Context, conv *model.Conversation) error
	FindByLink(ctx context.Context, link string) (*model.Conversation, error)
}

type redisConversationRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewConversationRepository 创建一个基于 Redis 的 ConversationRepository 实例。
// ttl 为 0 表示记录不过期。
func NewConversationRepository(redisClient *redis.Client, ttl time.Duration) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, ttl: ttl}
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}

func linkKey(link string) string {
	return fmt.Sprintf("conversation:link:%s", link)
}

// Get 从 Redis 读取整条对话记录。
func (r *redisConversationRepository) Get(ctx context.Context, id string) (*model.Conversation, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	var conv model.Conversation
	if err := json.Unmarshal([]byte(jsonData), &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// Put 在一个 MULTI 事务中写入记录和链接索引。
func (r *redisConversationRepository) Put(ctx context.Context, conv *model.Conversation) error {
	jsonData, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, conversationKey(conv.ID), jsonData, r.ttl)
		if conv.Link != "" {
			pipe.Set(ctx, linkKey(conv.Link), conv.ID, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set conversation: %w", err)
	}
	return nil
}

// FindByLink 通过链接索引查找对话。
func (r *redisConversationRepository) FindByLink(ctx context.Context, link string) (*model.Conversation, error) {
	id, err := r.redisClient.Get(ctx, linkKey(link)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation by link: %w", err)
	}
	conv, err := r.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// 索引残留但记录已过期
		return nil, ErrNotFound
	}
	return conv, err
}
