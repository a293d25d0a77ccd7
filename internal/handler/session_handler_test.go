package handler

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/reconcile"
	"github.com/anzchy/chat-memo-pro-sub000/internal/repository"
	"github.com/anzchy/chat-memo-pro-sub000/internal/service"
	"github.com/anzchy/chat-memo-pro-sub000/internal/session"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/database"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/token"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const claudeLink = "https://claude.ai/chat/0f9e-77"

func claudePage(texts ...string) *model.Page {
	page := &model.Page{URL: claudeLink, Title: "Greeting - Claude"}
	for i, text := range texts {
		node := model.Node{Kind: "div", Text: text, Attrs: map[string]string{}}
		if i%2 == 0 {
			node.Attrs["data-testid"] = "user-message"
		} else {
			node.Attrs["data-is-streaming"] = "false"
		}
		page.Nodes = append(page.Nodes, node)
	}
	return page
}

type wsHarness struct {
	conn *websocket.Conn
	repo repository.ConversationRepository
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "ws.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo, err := repository.NewSQLiteConversationRepository(db)
	require.NoError(t, err)

	capture := service.NewCaptureService(repo, reconcile.NewReconciler(repo), nil, service.RetryPolicy{Attempts: 1})
	hub := session.NewHub(session.Settings{Debounce: 10 * time.Millisecond}, capture)
	t.Cleanup(hub.Shutdown)

	jwtManager := token.NewJWTManager("k", 1)
	r := gin.New()
	r.GET("/ws/:token", NewSessionHandler(hub, jwtManager).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	tok, err := jwtManager.GenerateToken("ext")
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsHarness{conn: conn, repo: repo}
}

func (h *wsHarness) send(t *testing.T, f clientFrame) {
	t.Helper()
	require.NoError(t, h.conn.WriteJSON(f))
}

func (h *wsHarness) next(t *testing.T) serverFrame {
	t.Helper()
	require.NoError(t, h.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f serverFrame
	require.NoError(t, h.conn.ReadJSON(&f))
	return f
}

func TestSessionHandler_CaptureFlow(t *testing.T) {
	h := newWSHarness(t)

	h.send(t, clientFrame{Type: frameSession, Platform: "claude", Link: claudeLink})
	ack := h.next(t)
	require.Equal(t, frameSession, ack.Type)
	assert.Equal(t, "claude", ack.Platform)
	assert.Equal(t, claudeLink, ack.Link)

	h.send(t, clientFrame{Type: frameSnapshot, Page: claudePage("hello", "hi there")})
	h.send(t, clientFrame{Type: frameChanged})
	created := h.next(t)
	require.Equal(t, frameResult, created.Type)
	require.True(t, created.Success, created.Message)
	assert.True(t, created.Created)
	require.NotEmpty(t, created.ConversationID)

	h.send(t, clientFrame{Type: frameSnapshot, Page: claudePage("hello", "hi there", "how are you?")})
	h.send(t, clientFrame{Type: frameChanged})
	diff := h.next(t)
	require.True(t, diff.Success, diff.Message)
	assert.Equal(t, string(reconcile.ModeStandardDiff), diff.Mode)
	assert.Equal(t, 1, diff.Added)

	h.send(t, clientFrame{Type: frameChanged})
	same := h.next(t)
	assert.True(t, same.Unchanged)

	conv, err := h.repo.Get(context.Background(), created.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "Greeting", conv.Title)
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, "how are you?", conv.Messages[2].Content)
}

func TestSessionHandler_RejectsBadFrames(t *testing.T) {
	h := newWSHarness(t)

	h.send(t, clientFrame{Type: frameChanged})
	assert.Equal(t, frameError, h.next(t).Type)

	h.send(t, clientFrame{Type: frameSession, Link: "https://example.com/x"})
	assert.Equal(t, frameError, h.next(t).Type)

	h.send(t, clientFrame{Type: frameSession, Platform: "gemini", Link: claudeLink})
	assert.Equal(t, frameError, h.next(t).Type)

	h.send(t, clientFrame{Type: "bogus"})
	assert.Equal(t, frameError, h.next(t).Type)
}

func TestSessionHandler_ForeignSnapshotDoesNotOverwriteConversation(t *testing.T) {
	h := newWSHarness(t)

	h.send(t, clientFrame{Type: frameSession, Platform: "claude", Link: claudeLink})
	require.Equal(t, frameSession, h.next(t).Type)

	h.send(t, clientFrame{Type: frameSnapshot, Page: claudePage("original question", "original answer")})
	h.send(t, clientFrame{Type: frameChanged})
	created := h.next(t)
	require.True(t, created.Success, created.Message)
	require.True(t, created.Created)

	foreign := claudePage("unrelated q", "unrelated a")
	foreign.URL = "https://claude.ai/chat/other-999"
	h.send(t, clientFrame{Type: frameSnapshot, Page: foreign})
	assert.Equal(t, frameError, h.next(t).Type)

	h.send(t, clientFrame{Type: frameChanged})
	after := h.next(t)
	require.Equal(t, frameResult, after.Type)
	assert.False(t, after.FullOverwrite)

	conv, err := h.repo.Get(context.Background(), created.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, claudeLink, conv.Link)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "original question", conv.Messages[0].Content)
	assert.Equal(t, "original answer", conv.Messages[1].Content)
}
