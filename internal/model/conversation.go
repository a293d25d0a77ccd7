// Package model 包含了应用的数据模型定义。
package model

import (
	"errors"
	"fmt"
	"time"
)

// SessionKey 标识一次抓取会话：来源平台 + 规范化链接。
type SessionKey struct {
	Platform string `json:"platform"`
	Link     string `json:"link"`
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s|%s", k.Platform, k.Link)
}

// IsZero 判断会话键是否为空。
func (k SessionKey) IsZero() bool {
	return k.Platform == "" && k.Link == ""
}

// Conversation 代表一条持久化的对话记录，每次写入都整体替换。
type Conversation struct {
	ID            string    `json:"id"`
	Platform      string    `json:"platform"`
	Link          string    `json:"link"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	MessageCount  int       `json:"messageCount"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	Messages      []Message `json:"messages"`
}

// Key 返回对话所属的会话键。
func (c *Conversation) Key() SessionKey {
	return SessionKey{Platform: c.Platform, Link: c.Link}
}

// Clone 深拷贝对话，缓存与协调器之间不共享消息切片。
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}

// ErrConversationNotFound 表示存储中不存在对应的对话记录。
var ErrConversationNotFound = errors.New("conversation not found")
