// Package source 定义了从页面快照中提取对话消息的平台策略。
// 协调引擎只依赖 Strategy 接口，与具体平台无关。
package source

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
)

// ErrUnsupportedURL 表示没有平台策略能够处理该链接。
var ErrUnsupportedURL = errors.New("unsupported conversation url")

// Info 是从页面快照中提取的对话元信息。
type Info struct {
	Platform       string
	Link           string
	ConversationID string
	Title          string
}

// Strategy 是平台消息来源的能力契约。
type Strategy interface {
	Name() string
	ValidateURL(rawURL string) bool
	ExtractInfo(page model.Page) Info
	ExtractMessages(page model.Page) []model.RawTurn
	IsMessageElement(node model.Node) bool
}

// Registry 是 URL 模式到平台策略的分发表。
type Registry struct {
	entries []entry
}

type entry struct {
	pattern  *regexp.Regexp
	strategy Strategy
}

// NewRegistry 创建一个空的分发表。
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry 返回包含所有内置平台的分发表。
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(chatGPTPattern, ChatGPT{})
	r.Register(claudePattern, Claude{})
	r.Register(geminiPattern, Gemini{})
	r.Register(deepSeekPattern, DeepSeek{})
	return r
}

// Register 追加一条分发规则，先注册的规则优先匹配。
func (r *Registry) Register(pattern *regexp.Regexp, s Strategy) {
	r.entries = append(r.entries, entry{pattern: pattern, strategy: s})
}

// Resolve 根据链接选择平台策略。
func (r *Registry) Resolve(rawURL string) (Strategy, error) {
	for _, e := range r.entries {
		if e.pattern.MatchString(rawURL) {
			return e.strategy, nil
		}
	}
	return nil, ErrUnsupportedURL
}

// CanonicalLink 去掉查询参数和片段，作为会话链接。
func CanonicalLink(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/")
}

// lastPathSegment 返回链接路径的最后一段，通常是平台侧的对话 ID。
func lastPathSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
}

// extractInfo 是各平台共用的元信息提取逻辑，titleSuffix 为页面标题中的平台后缀。
func extractInfo(platform string, page model.Page, titleSuffix string) Info {
	title := strings.TrimSpace(page.Title)
	title = strings.TrimSpace(strings.TrimSuffix(title, titleSuffix))
	return Info{
		Platform:       platform,
		Link:           CanonicalLink(page.URL),
		ConversationID: lastPathSegment(page.URL),
		Title:          title,
	}
}

// extractTurns 依次遍历消息节点，sender 返回 false 的节点被跳过。
// 内容与思考过程都为空的节点（尚未渲染的占位）也被跳过。
func extractTurns(page model.Page, sender func(model.Node) (model.Sender, bool)) []model.RawTurn {
	var turns []model.RawTurn
	for _, node := range page.Nodes {
		s, ok := sender(node)
		if !ok {
			continue
		}
		content := strings.TrimSpace(node.Text)
		thinking := strings.TrimSpace(node.Thinking)
		if content == "" && thinking == "" {
			continue
		}
		turns = append(turns, model.RawTurn{
			Sender:   s,
			Content:  content,
			Thinking: thinking,
			Position: len(turns),
		})
	}
	return turns
}
