package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
)

var (
	storedAt = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)
)

func clock() time.Time { return fixedNow }

func senderAt(i int) model.Sender {
	if i%2 == 0 {
		return model.SenderUser
	}
	return model.SenderAssistant
}

// storedMessages 生成位置连续的已存储消息 m<from>..m<to-1>。
func storedMessages(from, to int) []model.Message {
	out := make([]model.Message, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, model.Message{
			ID:        model.MessageID(senderAt(i), i-from),
			Sender:    senderAt(i),
			Content:   fmt.Sprintf("message m%d", i),
			Position:  i - from,
			CreatedAt: storedAt,
			UpdatedAt: storedAt,
		})
	}
	return out
}

// capturedTurns 生成提取器输出 m<from>..m<to-1>，位置从 0 开始编号。
func capturedTurns(from, to int) []model.RawTurn {
	out := make([]model.RawTurn, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, model.RawTurn{
			Sender:   senderAt(i),
			Content:  fmt.Sprintf("message m%d", i),
			Position: i - from,
		})
	}
	return out
}

func summarize(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = fmt.Sprintf("%d %s %s", m.Position, m.Sender, m.Content)
	}
	return out
}

type memStore struct {
	convs  map[string]*model.Conversation
	puts   int
	putErr error
}

func newMemStore(convs ...*model.Conversation) *memStore {
	s := &memStore{convs: map[string]*model.Conversation{}}
	for _, c := range convs {
		s.convs[c.ID] = c.Clone()
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*model.Conversation, error) {
	c, ok := s.convs[id]
	if !ok {
		return nil, model.ErrConversationNotFound
	}
	return c.Clone(), nil
}

func (s *memStore) Put(_ context.Context, conv *model.Conversation) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.puts++
	s.convs[conv.ID] = conv.Clone()
	return nil
}

type recordingArchiver struct {
	archived []*model.Conversation
}

func (a *recordingArchiver) Archive(_ context.Context, prev *model.Conversation) error {
	a.archived = append(a.archived, prev)
	return nil
}

func conversationWith(msgs []model.Message) *model.Conversation {
	return &model.Conversation{
		ID:           "conv-1",
		Platform:     "chatgpt",
		Link:         "https://chatgpt.com/c/abc",
		CreatedAt:    storedAt,
		UpdatedAt:    storedAt,
		MessageCount: len(msgs),
		Messages:     msgs,
	}
}

func assertStrictlyIncreasing(msgs []model.Message) error {
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Position <= msgs[i-1].Position {
			return fmt.Errorf("position %d at index %d not greater than %d", msgs[i].Position, i, msgs[i-1].Position)
		}
	}
	return nil
}
