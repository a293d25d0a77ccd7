package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/reconcile"
	"github.com/anzchy/chat-memo-pro-sub000/internal/repository"
	"github.com/anzchy/chat-memo-pro-sub000/internal/source"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Extractor 在每次调用时重新从最新的页面快照中提取消息。
type Extractor func() (source.Info, []model.RawTurn)

// Indexer 在对话写入成功后更新检索索引。
type Indexer interface {
	IndexConversation(ctx context.Context, conv *model.Conversation) error
}

// RetryPolicy 描述创建对话时空提取结果的重试策略：最多尝试 Attempts 次，第 n 次失败后等待 n*Backoff。
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// CaptureService 定义了抓取同步的业务逻辑接口。
type CaptureService interface {
	// EnsureConversation 返回会话对应的对话，不存在时用提取结果创建。
	// 提取结果始终为空时返回 nil 且不报错。created 表示本次调用新建了记录。
	EnsureConversation(ctx context.Context, key model.SessionKey, knownID string, extract Extractor) (conv *model.Conversation, created bool, err error)
	Reconcile(ctx context.Context, conversationID string, captured []model.RawTurn) (*reconcile.Result, error)
	// ForgetSession 清除该会话键上尚未完成的创建句柄。
	ForgetSession(key model.SessionKey)
}

type captureService struct {
	repo       repository.ConversationRepository
	reconciler *reconcile.Reconciler
	indexer    Indexer
	retry      RetryPolicy
	creation   singleflight.Group
}

type creation struct {
	conv    *model.Conversation
	created bool
}

// NewCaptureService 创建一个新的 CaptureService。indexer 可以为 nil。
func NewCaptureService(repo repository.ConversationRepository, reconciler *reconcile.Reconciler, indexer Indexer, retry RetryPolicy) CaptureService {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &captureService{
		repo:       repo,
		reconciler: reconciler,
		indexer:    indexer,
		retry:      retry,
	}
}

// EnsureConversation 同一会话键上的并发调用共享同一次创建的结果。
func (s *captureService) EnsureConversation(ctx context.Context, key model.SessionKey, knownID string, extract Extractor) (*model.Conversation, bool, error) {
	v, err, shared := s.creation.Do(key.String(), func() (interface{}, error) {
		return s.ensure(ctx, key, knownID, extract)
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		log.Debugf("[CaptureService] 会话 %s 复用进行中的创建结果", key)
	}
	c := v.(creation)
	return c.conv.Clone(), c.created, nil
}

func (s *captureService) ensure(ctx context.Context, key model.SessionKey, knownID string, extract Extractor) (creation, error) {
	if knownID != "" {
		conv, err := s.repo.Get(ctx, knownID)
		if err == nil {
			return creation{conv: conv}, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return creation{}, err
		}
	}
	if key.Link != "" {
		conv, err := s.repo.FindByLink(ctx, key.Link)
		if err == nil {
			return creation{conv: conv}, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return creation{}, err
		}
	}

	info, turns, err := s.extractWithRetry(ctx, key, extract)
	if err != nil {
		return creation{}, err
	}
	if len(turns) == 0 {
		log.Infof("[CaptureService] 会话 %s 多次提取均为空, 不创建对话", key)
		return creation{}, nil
	}

	id := knownID
	if id == "" {
		id = uuid.NewString()
	}
	conv := &model.Conversation{
		ID:       id,
		Platform: key.Platform,
		Link:     key.Link,
		Title:    info.Title,
	}
	res, err := s.reconciler.Create(ctx, conv, turns)
	if err != nil {
		return creation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	log.Infof("[CaptureService] 新建对话 %s, 会话 %s, 消息数 %d", id, key, len(res.Conversation.Messages))
	s.index(ctx, res.Conversation)
	return creation{conv: res.Conversation, created: true}, nil
}

// extractWithRetry 提取结果为空时按线性退避重试。
func (s *captureService) extractWithRetry(ctx context.Context, key model.SessionKey, extract Extractor) (source.Info, []model.RawTurn, error) {
	for attempt := 1; ; attempt++ {
		info, turns := extract()
		if len(turns) > 0 || attempt >= s.retry.Attempts {
			return info, turns, nil
		}
		wait := time.Duration(attempt) * s.retry.Backoff
		log.Debugf("[CaptureService] 会话 %s 第 %d 次提取为空, %s 后重试", key, attempt, wait)
		select {
		case <-ctx.Done():
			return source.Info{}, nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Reconcile 协调已存在的对话，写入成功后更新索引。
func (s *captureService) Reconcile(ctx context.Context, conversationID string, captured []model.RawTurn) (*reconcile.Result, error) {
	res, err := s.reconciler.Reconcile(ctx, conversationID, captured)
	if err != nil {
		return res, err
	}
	if !res.Skipped {
		s.index(ctx, res.Conversation)
	}
	return res, nil
}

func (s *captureService) ForgetSession(key model.SessionKey) {
	s.creation.Forget(key.String())
}

func (s *captureService) index(ctx context.Context, conv *model.Conversation) {
	if s.indexer == nil || conv == nil {
		return
	}
	if err := s.indexer.IndexConversation(ctx, conv); err != nil {
		log.Warnf("[CaptureService] 索引对话 %s 失败: %v", conv.ID, err)
	}
}
