package handler

import (
	"errors"
	"net/http"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/service"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/log"
	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetConversation 按 ID 返回完整对话。
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conv, err := h.service.GetConversation(c.Request.Context(), c.Param("id"))
	respondConversation(c, conv, err)
}

// FindByLink 按页面链接返回对话。
func (h *ConversationHandler) FindByLink(c *gin.Context) {
	link := c.Query("link")
	if link == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "link 参数不能为空", "data": nil})
		return
	}
	conv, err := h.service.FindByLink(c.Request.Context(), link)
	respondConversation(c, conv, err)
}

func respondConversation(c *gin.Context, conv *model.Conversation, err error) {
	if errors.Is(err, model.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "对话不存在", "data": nil})
		return
	}
	if err != nil {
		log.Errorf("[ConversationHandler] 查询对话失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve conversation",
			"data":    nil,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    conv,
	})
}
