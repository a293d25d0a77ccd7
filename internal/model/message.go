package model

import (
	"fmt"
	"time"
)

// Sender 表示消息发送方。
type Sender string

const (
	SenderUser      Sender = "user"      // 主用户
	SenderAssistant Sender = "assistant" // 对话另一方
)

// Valid 判断发送方是否为已知取值。
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

// Message 代表对话中的单条消息。
// ID 由发送方和位置推导，位置变化时会重新生成，不能作为内容身份。
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Thinking  string    `json:"thinking,omitempty"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MessageID 根据发送方和位置计算派生 ID。
func MessageID(sender Sender, position int) string {
	return fmt.Sprintf("msg_%s_%d", sender, position)
}

// RawTurn 是提取器产出的原始消息，尚未规范化。
type RawTurn struct {
	ID        string     `json:"id,omitempty" yaml:"id,omitempty"`
	Sender    Sender     `json:"sender" yaml:"sender"`
	Content   string     `json:"content" yaml:"content"`
	Thinking  string     `json:"thinking,omitempty" yaml:"thinking,omitempty"`
	Position  int        `json:"position" yaml:"position"`
	CreatedAt *time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}
