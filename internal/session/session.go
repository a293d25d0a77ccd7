package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/reconcile"
	"github.com/anzchy/chat-memo-pro-sub000/internal/service"
	"github.com/anzchy/chat-memo-pro-sub000/internal/source"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/log"
)

// ErrForeignPage 表示快照来自另一个对话页面，不能写入当前会话。
var ErrForeignPage = errors.New("snapshot page does not belong to this session")

// Runner 是会话驱动的同步能力，由 service.CaptureService 实现。
type Runner interface {
	EnsureConversation(ctx context.Context, key model.SessionKey, knownID string, extract service.Extractor) (*model.Conversation, bool, error)
	Reconcile(ctx context.Context, conversationID string, captured []model.RawTurn) (*reconcile.Result, error)
	ForgetSession(key model.SessionKey)
}

// Outcome 描述一次触发的处理结果。
type Outcome struct {
	Key            model.SessionKey
	ConversationID string
	Created        bool
	// Unchanged 表示提取结果与上次成功同步时一致，未调用协调器。
	Unchanged bool
	Result    *reconcile.Result
	Err       error
}

// Session 是一个会话键（平台 + 链接）上的同步状态。
type Session struct {
	key       model.SessionKey
	strategy  source.Strategy
	runner    Runner
	debouncer *Debouncer

	mu             sync.Mutex
	page           model.Page
	hasPage        bool
	knownID        string
	conversationID string
	lastDigest     uint32
	hasDigest      bool
	lastActive     time.Time
	refs           int
	subscribers    map[int]chan Outcome
	nextSub        int

	inProgress atomic.Bool
	triggers   sync.WaitGroup
	cancel     context.CancelFunc
	done       chan struct{}
}

func newSession(key model.SessionKey, strategy source.Strategy, runner Runner, debounce time.Duration, knownID string) *Session {
	return &Session{
		key:         key,
		strategy:    strategy,
		runner:      runner,
		debouncer:   NewDebouncer(debounce),
		knownID:     knownID,
		lastActive:  time.Now(),
		subscribers: make(map[int]chan Outcome),
		done:        make(chan struct{}),
	}
}

// Key 返回会话键。
func (s *Session) Key() model.SessionKey { return s.key }

// ConversationID 返回已关联的对话 ID，尚未创建时为空。
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Update 记录最新的页面快照。快照链接规范化后必须与会话键一致。
func (s *Session) Update(page model.Page) error {
	if link := source.CanonicalLink(page.URL); link != s.key.Link {
		return fmt.Errorf("%w: %s", ErrForeignPage, link)
	}
	s.mu.Lock()
	s.page = page
	s.hasPage = true
	s.lastActive = time.Now()
	s.mu.Unlock()
	return nil
}

// Notify 投递一次「内容可能已变化」通知。
func (s *Session) Notify() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
	s.debouncer.Notify()
}

// Subscribe 订阅处理结果，返回的函数用于取消订阅。订阅者处理不及时时结果会被丢弃。
func (s *Session) Subscribe() (<-chan Outcome, func()) {
	ch := make(chan Outcome, 8)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Session) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.debouncer.Run(ctx)
	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.debouncer.C():
			s.triggers.Add(1)
			go func() {
				defer s.triggers.Done()
				// 写入一旦发出就不随会话关闭而取消
				s.Trigger(context.WithoutCancel(ctx))
			}()
		}
	}
}

// stop 停止调度并等待进行中的触发完成。
func (s *Session) stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.triggers.Wait()
}

// Trigger 执行一次「重新提取并协调」。已有触发在进行时直接丢弃并返回 false。
func (s *Session) Trigger(ctx context.Context) bool {
	if !s.inProgress.CompareAndSwap(false, true) {
		log.Debugf("[Session] 会话 %s 正在同步, 丢弃本次触发", s.key)
		return false
	}
	defer s.inProgress.Store(false)

	if out, ok := s.sync(ctx); ok {
		s.publish(out)
	}
	return true
}

func (s *Session) snapshot() (model.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page, s.hasPage
}

func (s *Session) extract() (source.Info, []model.RawTurn) {
	page, _ := s.snapshot()
	return s.strategy.ExtractInfo(page), s.strategy.ExtractMessages(page)
}

func (s *Session) sync(ctx context.Context) (Outcome, bool) {
	if _, ok := s.snapshot(); !ok {
		return Outcome{}, false
	}
	out := Outcome{Key: s.key}

	s.mu.Lock()
	id, knownID := s.conversationID, s.knownID
	s.mu.Unlock()

	if id == "" {
		conv, created, err := s.runner.EnsureConversation(ctx, s.key, knownID, s.extract)
		if err != nil {
			out.Err = err
			return out, true
		}
		if conv == nil {
			return out, true
		}
		s.mu.Lock()
		s.conversationID = conv.ID
		s.hasDigest = false
		s.mu.Unlock()
		out.ConversationID = conv.ID
		if created {
			out.Created = true
			return out, true
		}
		id = conv.ID
	}
	out.ConversationID = id

	_, turns := s.extract()
	digest := reconcile.Digest(turns)
	s.mu.Lock()
	unchanged := s.hasDigest && s.lastDigest == digest
	s.mu.Unlock()
	if unchanged {
		out.Unchanged = true
		return out, true
	}

	res, err := s.runner.Reconcile(ctx, id, turns)
	out.Result = res
	out.Err = err
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case errors.Is(err, reconcile.ErrConversationNotFound):
		// 记录已被删除，下次触发重新创建并沿用原 ID
		log.Warnf("[Session] 会话 %s 的对话 %s 已不存在, 将重新创建", s.key, id)
		s.conversationID = ""
		s.knownID = id
		s.hasDigest = false
	case err == nil:
		s.lastDigest = digest
		s.hasDigest = true
	}
	return out, true
}

func (s *Session) publish(out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- out:
		default:
		}
	}
}
