package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/session"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/log"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/token"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 浏览器扩展的 Origin 不固定
		},
	}

	errPlatformMismatch = errors.New("platform 与链接不匹配")
)

// 客户端帧类型
const (
	frameSession  = "session"
	frameSnapshot = "snapshot"
	frameChanged  = "changed"
	frameResult   = "result"
	frameError    = "error"
)

// clientFrame 是抓取客户端发来的一帧。
type clientFrame struct {
	Type           string      `json:"type"`
	Platform       string      `json:"platform,omitempty"`
	Link           string      `json:"link,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
	Page           *model.Page `json:"page,omitempty"`
}

// serverFrame 是推送给客户端的一帧。
type serverFrame struct {
	Type           string `json:"type"`
	Platform       string `json:"platform,omitempty"`
	Link           string `json:"link,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Created        bool   `json:"created,omitempty"`
	Unchanged      bool   `json:"unchanged,omitempty"`
	Success        bool   `json:"success"`
	Mode           string `json:"mode,omitempty"`
	FullOverwrite  bool   `json:"fullOverwrite,omitempty"`
	Added          int    `json:"added"`
	Updated        int    `json:"updated"`
	Removed        int    `json:"removed"`
	Message        string `json:"message,omitempty"`
}

// resultFrame 把一次同步结果转换为推送帧。
func resultFrame(out session.Outcome) serverFrame {
	f := serverFrame{
		Type:           frameResult,
		Platform:       out.Key.Platform,
		Link:           out.Key.Link,
		ConversationID: out.ConversationID,
		Created:        out.Created,
		Unchanged:      out.Unchanged,
		Success:        out.Err == nil,
	}
	if out.Result != nil {
		f.Mode = string(out.Result.Mode)
		f.FullOverwrite = out.Result.FullOverwrite
		f.Added = out.Result.Added
		f.Updated = out.Result.Updated
		f.Removed = out.Result.Removed
	}
	if out.Err != nil {
		f.Message = out.Err.Error()
	}
	return f
}

// SessionHandler 负责处理抓取客户端的 WebSocket 连接。
type SessionHandler struct {
	hub        *session.Hub
	jwtManager *token.JWTManager
}

// NewSessionHandler 创建一个新的 SessionHandler。
func NewSessionHandler(hub *session.Hub, jwtManager *token.JWTManager) *SessionHandler {
	return &SessionHandler{hub: hub, jwtManager: jwtManager}
}

// wsConn 串行化对同一连接的写入。
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) send(f serverFrame) {
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
	}
}

// binding 是连接当前绑定的会话及其结果转发协程。
type binding struct {
	sess   *session.Session
	cancel func()
	stop   chan struct{}
	done   chan struct{}
}

func (b *binding) forward(ws *wsConn, outcomes <-chan session.Outcome) {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		case out := <-outcomes:
			ws.send(resultFrame(out))
		}
	}
}

func (b *binding) close() {
	b.cancel()
	close(b.stop)
	<-b.done
}

// Handle 处理一个传入的 WebSocket 连接。
func (h *SessionHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	ws := &wsConn{conn: conn}

	log.Infof("WebSocket 连接已建立，客户端: %s", claims.ClientID)

	var current *binding
	defer func() {
		if current != nil {
			current.close()
			h.hub.Release(current.sess)
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Infof("WebSocket 连接关闭，客户端: %s, %v", claims.ClientID, err)
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			ws.send(serverFrame{Type: frameError, Message: "无效的消息格式"})
			continue
		}

		switch frame.Type {
		case frameSession:
			next, err := h.bind(ws, frame)
			if err != nil {
				ws.send(serverFrame{Type: frameError, Message: err.Error()})
				continue
			}
			// 会话键变化时释放旧会话，Hub 会同时清除它的创建句柄
			if current != nil {
				current.close()
				h.hub.Release(current.sess)
			}
			current = next
			key := current.sess.Key()
			ws.send(serverFrame{Type: frameSession, Platform: key.Platform, Link: key.Link, ConversationID: current.sess.ConversationID(), Success: true})
		case frameSnapshot:
			if current == nil || frame.Page == nil {
				ws.send(serverFrame{Type: frameError, Message: "尚未建立会话或快照为空"})
				continue
			}
			if err := current.sess.Update(*frame.Page); err != nil {
				ws.send(serverFrame{Type: frameError, Message: "快照页面与当前会话不一致，请先发送 session 帧"})
				continue
			}
		case frameChanged:
			if current == nil {
				ws.send(serverFrame{Type: frameError, Message: "尚未建立会话"})
				continue
			}
			current.sess.Notify()
		default:
			ws.send(serverFrame{Type: frameError, Message: "未知的消息类型: " + frame.Type})
		}
	}
}

func (h *SessionHandler) bind(ws *wsConn, frame clientFrame) (*binding, error) {
	sess, err := h.hub.Open(frame.Link, frame.ConversationID)
	if err != nil {
		return nil, err
	}
	if frame.Platform != "" && frame.Platform != sess.Key().Platform {
		h.hub.Release(sess)
		return nil, errPlatformMismatch
	}
	outcomes, cancel := sess.Subscribe()
	b := &binding{sess: sess, cancel: cancel, stop: make(chan struct{}), done: make(chan struct{})}
	go b.forward(ws, outcomes)
	return b, nil
}
