package model

import (
	"strings"
	"time"
)

// SearchResponseDTO 定义了返回给客户端的检索结果结构。
type SearchResponseDTO struct {
	ConversationID string    `json:"conversationId"`
	Platform       string    `json:"platform"`
	Link           string    `json:"link"`
	Title          string    `json:"title"`
	Snippet        string    `json:"snippet"`
	Score          float64   `json:"score"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// EsDocument 定义了存储在 Elasticsearch 中的对话文档结构，一个对话对应一个文档。
type EsDocument struct {
	ConversationID string    `json:"conversation_id"`
	Platform       string    `json:"platform"`
	Link           string    `json:"link"`
	Title          string    `json:"title"`
	TextContent    string    `json:"text_content"`
	MessageCount   int       `json:"message_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewEsDocument 将对话拍平为检索文档，消息正文按位置顺序以空行拼接。
func NewEsDocument(conv *Conversation) EsDocument {
	parts := make([]string, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return EsDocument{
		ConversationID: conv.ID,
		Platform:       conv.Platform,
		Link:           conv.Link,
		Title:          conv.Title,
		TextContent:    strings.Join(parts, "\n\n"),
		MessageCount:   conv.MessageCount,
		UpdatedAt:      conv.UpdatedAt,
	}
}
