package service

import (
	"context"
	"testing"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Hello,   World! ", "hello world"},
		{"如何 使用 Go？", "如何 使用 go"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeQuery(tt.in), tt.in)
	}
}

func TestBuildSearchQuery(t *testing.T) {
	q := buildSearchQuery("golang channels", 5)
	assert.Equal(t, 5, q["size"])

	boolQuery := q["query"].(map[string]interface{})["bool"].(map[string]interface{})
	multi := boolQuery["must"].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, "golang channels", multi["query"])
	assert.Equal(t, []string{"title^2", "text_content"}, multi["fields"])
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "短文本", snippet("短文本", 10))
	assert.Equal(t, "你好...", snippet("你好世界", 2))
}

func TestSearchConversations_EmptyQueryShortCircuits(t *testing.T) {
	svc := NewSearchService(nil, "chat_conversations")
	res, err := svc.SearchConversations(context.Background(), " ?! ", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestConversationService_FindByLinkCanonicalizes(t *testing.T) {
	repo := newMemRepo()
	repo.convs["c1"] = &model.Conversation{ID: "c1", Link: "https://chatgpt.com/c/abc"}
	svc := NewConversationService(repo)

	conv, err := svc.FindByLink(context.Background(), "https://chatgpt.com/c/abc/?model=gpt#x")
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)

	_, err = svc.GetConversation(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrConversationNotFound)
}
