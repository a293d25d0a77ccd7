package session

import (
	"context"
	"sync"
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/source"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/log"
)

// Settings 是 Hub 在构造时接收的运行参数，生命周期与 Hub 一致。
type Settings struct {
	Debounce time.Duration
	// IdleTimeout 之后，没有连接持有且没有新通知的会话会被回收。为 0 时不回收。
	IdleTimeout time.Duration
	Registry    *source.Registry
}

// Hub 按会话键管理所有 Session。
type Hub struct {
	settings Settings
	runner   Runner

	mu       sync.Mutex
	sessions map[string]*Session
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub 创建一个 Hub。IdleTimeout 大于 0 时启动后台回收。
func NewHub(settings Settings, runner Runner) *Hub {
	if settings.Registry == nil {
		settings.Registry = source.DefaultRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		settings: settings,
		runner:   runner,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	if settings.IdleTimeout > 0 {
		go h.sweepLoop(ctx)
	}
	return h
}

// Resolve 根据页面 URL 计算会话键。
func (h *Hub) Resolve(pageURL string) (model.SessionKey, source.Strategy, error) {
	strategy, err := h.settings.Registry.Resolve(pageURL)
	if err != nil {
		return model.SessionKey{}, nil, err
	}
	return model.SessionKey{Platform: strategy.Name(), Link: source.CanonicalLink(pageURL)}, strategy, nil
}

func (h *Hub) open(pageURL, knownID string, hold bool) (*Session, error) {
	key, strategy, err := h.Resolve(pageURL)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[key.String()]
	if !ok {
		s = newSession(key, strategy, h.runner, h.settings.Debounce, knownID)
		s.start(h.ctx)
		h.sessions[key.String()] = s
		log.Infof("[Hub] 会话 %s 已建立", key)
	} else if knownID != "" {
		s.mu.Lock()
		if s.knownID == "" && s.conversationID == "" {
			s.knownID = knownID
		}
		s.mu.Unlock()
	}
	if hold {
		s.mu.Lock()
		s.refs++
		s.mu.Unlock()
	}
	return s, nil
}

// Open 建立（或复用）页面对应的会话并持有一个引用，使用完毕后调用 Release。
func (h *Hub) Open(pageURL, knownID string) (*Session, error) {
	return h.open(pageURL, knownID, true)
}

// Release 释放 Open 持有的引用，最后一个引用释放时关闭会话。
// 会话已被 Close 或替换时不做任何事。
func (h *Hub) Release(s *Session) {
	k := s.key.String()
	h.mu.Lock()
	cur, ok := h.sessions[k]
	if ok && cur != s {
		ok = false
	}
	if ok {
		s.mu.Lock()
		s.refs--
		ok = s.refs <= 0
		s.mu.Unlock()
	}
	if ok {
		delete(h.sessions, k)
	}
	h.mu.Unlock()
	if ok {
		h.teardown(s)
	}
}

// Submit 记录一次页面快照并通知会话，用于 HTTP 与 Kafka 上报。
func (h *Hub) Submit(_ context.Context, event model.CaptureEvent) error {
	s, err := h.open(event.Page.URL, event.ConversationID, false)
	if err != nil {
		return err
	}
	if err := s.Update(event.Page); err != nil {
		return err
	}
	s.Notify()
	return nil
}

// Get 返回已存在的会话。
func (h *Hub) Get(key model.SessionKey) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[key.String()]
	return s, ok
}

// Close 关闭会话，不论是否仍被持有。
func (h *Hub) Close(key model.SessionKey) {
	h.mu.Lock()
	s, ok := h.sessions[key.String()]
	if ok {
		delete(h.sessions, key.String())
	}
	h.mu.Unlock()
	if ok {
		h.teardown(s)
	}
}

// teardown 停止会话，并清除它在创建锁上的残留句柄。
func (h *Hub) teardown(s *Session) {
	s.stop()
	h.runner.ForgetSession(s.key)
	log.Infof("[Hub] 会话 %s 已关闭", s.key)
}

// Sweep 回收在 now 之前闲置超过 IdleTimeout 且无人持有的会话，返回回收数量。
func (h *Hub) Sweep(now time.Time) int {
	var idle []*Session
	h.mu.Lock()
	for k, s := range h.sessions {
		s.mu.Lock()
		if s.refs <= 0 && now.Sub(s.lastActive) >= h.settings.IdleTimeout {
			idle = append(idle, s)
			delete(h.sessions, k)
		}
		s.mu.Unlock()
	}
	h.mu.Unlock()

	for _, s := range idle {
		h.teardown(s)
	}
	return len(idle)
}

func (h *Hub) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(h.settings.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := h.Sweep(now); n > 0 {
				log.Infof("[Hub] 回收了 %d 个闲置会话", n)
			}
		}
	}
}

// Shutdown 关闭所有会话并等待进行中的同步结束。
func (h *Hub) Shutdown() {
	h.cancel()
	h.mu.Lock()
	all := make([]*Session, 0, len(h.sessions))
	for k, s := range h.sessions {
		all = append(all, s)
		delete(h.sessions, k)
	}
	h.mu.Unlock()
	for _, s := range all {
		h.teardown(s)
	}
}
