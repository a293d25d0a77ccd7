// Package reconcile 实现抓取消息列表与已存储消息列表之间的增量协调。
package reconcile

import (
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
)

// Normalizer 将原始抓取消息规范化为 Message。
// 时钟通过 Now 注入，Normalize 本身无副作用。
type Normalizer struct {
	Now func() time.Time
}

// NewNormalizer 创建一个使用系统时钟的 Normalizer。
func NewNormalizer() Normalizer {
	return Normalizer{Now: time.Now}
}

func (n Normalizer) now() time.Time {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	// 截断到毫秒，保证经过存储往返后仍然相等
	return now().UTC().Truncate(time.Millisecond)
}

// Normalize 将 RawTurn 转换为 Message。
func (n Normalizer) Normalize(turn model.RawTurn) model.Message {
	msg := model.Message{
		ID:       turn.ID,
		Sender:   turn.Sender,
		Content:  turn.Content,
		Thinking: turn.Thinking,
		Position: turn.Position,
	}
	if turn.CreatedAt != nil {
		msg.CreatedAt = *turn.CreatedAt
	}
	if turn.UpdatedAt != nil {
		msg.UpdatedAt = *turn.UpdatedAt
	}
	return n.NormalizeMessage(msg)
}

// NormalizeMessage 补齐缺省字段。对已规范化的消息重复调用结果不变。
func (n Normalizer) NormalizeMessage(msg model.Message) model.Message {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = n.now()
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}
	if msg.ID == "" {
		msg.ID = model.MessageID(msg.Sender, msg.Position)
	}
	return msg
}

// NormalizeAll 规范化整个列表，并把位置重写为 offset+i，同时重新计算派生 ID。
func (n Normalizer) NormalizeAll(turns []model.RawTurn, offset int) []model.Message {
	out := make([]model.Message, 0, len(turns))
	for i, turn := range turns {
		msg := n.Normalize(turn)
		out = append(out, reposition(msg, offset+i))
	}
	return out
}

// reposition 修正位置；位置改变时派生 ID 随之重算。
func reposition(msg model.Message, position int) model.Message {
	msg.Position = position
	msg.ID = model.MessageID(msg.Sender, position)
	return msg
}
