package service

import (
	"errors"

	"github.com/anzchy/chat-memo-pro-sub000/internal/config"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/hash"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/token"
)

// ErrInvalidCredentials 表示客户端 ID 或密钥不正确。
var ErrInvalidCredentials = errors.New("invalid credentials")

// ClientService 负责抓取客户端的认证。
type ClientService interface {
	Login(clientID, secret string) (accessToken string, err error)
}

type clientService struct {
	clients    map[string]string
	jwtManager *token.JWTManager
}

// NewClientService 用配置中的客户端列表创建 ClientService，未配置哈希的客户端无法登录。
func NewClientService(clients []config.ClientConfig, jwtManager *token.JWTManager) ClientService {
	m := make(map[string]string, len(clients))
	for _, c := range clients {
		if c.SecretHash != "" {
			m[c.ID] = c.SecretHash
		}
	}
	return &clientService{clients: m, jwtManager: jwtManager}
}

// Login 校验客户端密钥并签发 access token。
func (s *clientService) Login(clientID, secret string) (string, error) {
	secretHash, ok := s.clients[clientID]
	if !ok || !hash.CheckPasswordHash(secret, secretHash) {
		return "", ErrInvalidCredentials
	}
	return s.jwtManager.GenerateToken(clientID)
}
