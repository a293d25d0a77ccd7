package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anzchy/chat-memo-pro-sub000/internal/config"
	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/reconcile"
	"github.com/anzchy/chat-memo-pro-sub000/internal/service"
	"github.com/anzchy/chat-memo-pro-sub000/internal/session"
	"github.com/anzchy/chat-memo-pro-sub000/internal/source"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/hash"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/token"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type fakeSubmitter struct {
	events []model.CaptureEvent
	err    error
}

func (f *fakeSubmitter) Submit(_ context.Context, event model.CaptureEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func TestCaptureHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	okBody := `{"conversationId":"c1","page":{"url":"https://chatgpt.com/c/abc","title":"t","nodes":[]}}`

	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed", `{`, nil, http.StatusBadRequest},
		{"missing url", `{"page":{}}`, nil, http.StatusBadRequest},
		{"unsupported", okBody, source.ErrUnsupportedURL, http.StatusBadRequest},
		{"internal", okBody, errors.New("boom"), http.StatusInternalServerError},
		{"accepted", okBody, nil, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{err: tt.err}
			r := gin.New()
			r.POST("/capture", NewCaptureHandler(sub).Capture)

			w := serve(r, http.MethodPost, "/capture", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.status, decode(t, w).Code)
			if tt.status == http.StatusAccepted {
				require.Len(t, sub.events, 1)
				assert.Equal(t, "c1", sub.events[0].ConversationID)
			}
		})
	}
}

type fakeConversationService struct {
	convs map[string]*model.Conversation
	err   error
}

func (f *fakeConversationService) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	if conv, ok := f.convs[id]; ok {
		return conv, nil
	}
	return nil, model.ErrConversationNotFound
}

func (f *fakeConversationService) FindByLink(_ context.Context, link string) (*model.Conversation, error) {
	for _, conv := range f.convs {
		if conv.Link == link {
			return conv, nil
		}
	}
	return nil, model.ErrConversationNotFound
}

func TestConversationHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeConversationService{convs: map[string]*model.Conversation{
		"c1": {ID: "c1", Link: "https://claude.ai/chat/1", Title: "hello"},
	}}
	h := NewConversationHandler(svc)
	r := gin.New()
	r.GET("/conversations", h.FindByLink)
	r.GET("/conversations/:id", h.GetConversation)

	w := serve(r, http.MethodGet, "/conversations/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &conv))
	assert.Equal(t, "hello", conv.Title)

	w = serve(r, http.MethodGet, "/conversations/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, http.MethodGet, "/conversations?link=https://claude.ai/chat/1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodGet, "/conversations", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.err = errors.New("db down")
	w = serve(r, http.MethodGet, "/conversations/c1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuthHandler_IssueToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secretHash, err := hash.HashPassword("ext-secret")
	require.NoError(t, err)
	jwtManager := token.NewJWTManager("k", 1)
	clients := service.NewClientService([]config.ClientConfig{{ID: "ext", SecretHash: secretHash}}, jwtManager)
	r := gin.New()
	r.POST("/token", NewAuthHandler(clients).IssueToken)

	w := serve(r, http.MethodPost, "/token", `{"clientId":"ext","clientSecret":"ext-secret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	claims, err := jwtManager.VerifyToken(data.Token)
	require.NoError(t, err)
	assert.Equal(t, "ext", claims.ClientID)

	w = serve(r, http.MethodPost, "/token", `{"clientId":"ext","clientSecret":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodPost, "/token", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResultFrame(t *testing.T) {
	key := model.SessionKey{Platform: "claude", Link: "https://claude.ai/chat/1"}
	f := resultFrame(session.Outcome{
		Key:            key,
		ConversationID: "c1",
		Result:         &reconcile.Result{Success: true, Mode: reconcile.ModePartialDiff, Added: 2, Updated: 1},
	})
	assert.Equal(t, frameResult, f.Type)
	assert.Equal(t, "claude", f.Platform)
	assert.True(t, f.Success)
	assert.Equal(t, "partial_diff", f.Mode)
	assert.Equal(t, 2, f.Added)
	assert.Equal(t, 1, f.Updated)

	f = resultFrame(session.Outcome{Key: key, Err: errors.New("persist failed")})
	assert.False(t, f.Success)
	assert.Equal(t, "persist failed", f.Message)
}
