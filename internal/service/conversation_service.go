// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/repository"
	"github.com/anzchy/chat-memo-pro-sub000/internal/source"
)

// ConversationService 定义了对话查询的业务逻辑接口。
type ConversationService interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	FindByLink(ctx context.Context, link string) (*model.Conversation, error)
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// GetConversation 按 ID 获取完整的对话记录。
func (s *conversationService) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return s.repo.Get(ctx, id)
}

// FindByLink 按页面链接获取对话，链接会先做规范化。
func (s *conversationService) FindByLink(ctx context.Context, link string) (*model.Conversation, error) {
	return s.repo.FindByLink(ctx, source.CanonicalLink(link))
}
