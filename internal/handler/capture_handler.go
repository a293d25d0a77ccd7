package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/source"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/log"
	"github.com/gin-gonic/gin"
)

// CaptureSubmitter 接收页面快照，由 session.Hub 实现。
type CaptureSubmitter interface {
	Submit(ctx context.Context, event model.CaptureEvent) error
}

// CaptureHandler 处理通过 HTTP 上报的页面快照。
type CaptureHandler struct {
	submitter CaptureSubmitter
}

// NewCaptureHandler 创建一个新的 CaptureHandler。
func NewCaptureHandler(submitter CaptureSubmitter) *CaptureHandler {
	return &CaptureHandler{submitter: submitter}
}

// Capture 记录快照并通知对应会话，同步在静默窗口之后异步进行，因此返回 202。
func (h *CaptureHandler) Capture(c *gin.Context) {
	var event model.CaptureEvent
	if err := c.ShouldBindJSON(&event); err != nil || event.Page.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的快照数据", "data": nil})
		return
	}

	if err := h.submitter.Submit(c.Request.Context(), event); err != nil {
		if errors.Is(err, source.ErrUnsupportedURL) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "不支持的页面地址", "data": nil})
			return
		}
		log.Errorf("[CaptureHandler] 提交快照失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "提交快照失败", "data": nil})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "accepted", "data": nil})
}
