// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/anzchy/chat-memo-pro-sub000/internal/service"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/log"
	"github.com/gin-gonic/gin"
)

// AuthHandler 负责为抓取客户端签发 token。
type AuthHandler struct {
	clientService service.ClientService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(clientService service.ClientService) *AuthHandler {
	return &AuthHandler{clientService: clientService}
}

// TokenRequest 定义了签发 token API 的请求体结构。
type TokenRequest struct {
	ClientID     string `json:"clientId" binding:"required"`
	ClientSecret string `json:"clientSecret" binding:"required"`
}

// IssueToken 校验客户端密钥并返回 access token。
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("IssueToken: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：clientId 和 clientSecret 不能为空",
			"data":    nil,
		})
		return
	}

	accessToken, err := h.clientService.Login(req.ClientID, req.ClientSecret)
	if err != nil {
		log.Warnf("IssueToken: client '%s' 认证失败, error: %v", req.ClientID, err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "客户端 ID 或密钥错误",
			"data":    nil,
		})
		return
	}

	log.Infof("Client '%s' 获取 token 成功", req.ClientID)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"token": accessToken},
	})
}
