package source

import (
	"regexp"
	"strings"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
)

var (
	chatGPTPattern  = regexp.MustCompile(`^https://(chatgpt\.com|chat\.openai\.com)/(g/[^/]+/)?c/[\w-]+`)
	claudePattern   = regexp.MustCompile(`^https://claude\.ai/chat/[\w-]+`)
	geminiPattern   = regexp.MustCompile(`^https://gemini\.google\.com/(u/\d+/)?app/[\w]+`)
	deepSeekPattern = regexp.MustCompile(`^https://chat\.deepseek\.com/(a/)?chat/s/[\w-]+`)
)

// ChatGPT 通过 data-message-author-role 属性识别消息。
type ChatGPT struct{}

func (ChatGPT) Name() string                   { return "chatgpt" }
func (ChatGPT) ValidateURL(rawURL string) bool { return chatGPTPattern.MatchString(rawURL) }

func (s ChatGPT) ExtractInfo(page model.Page) Info {
	return extractInfo(s.Name(), page, "| ChatGPT")
}

func (s ChatGPT) IsMessageElement(node model.Node) bool {
	_, ok := s.sender(node)
	return ok
}

func (s ChatGPT) ExtractMessages(page model.Page) []model.RawTurn {
	return extractTurns(page, s.sender)
}

func (ChatGPT) sender(node model.Node) (model.Sender, bool) {
	switch node.Attr("data-message-author-role") {
	case "user":
		return model.SenderUser, true
	case "assistant":
		return model.SenderAssistant, true
	}
	return "", false
}

// Claude 通过 data-testid 识别用户消息，通过 data-is-streaming 识别回复。
type Claude struct{}

func (Claude) Name() string                   { return "claude" }
func (Claude) ValidateURL(rawURL string) bool { return claudePattern.MatchString(rawURL) }

func (s Claude) ExtractInfo(page model.Page) Info {
	return extractInfo(s.Name(), page, "- Claude")
}

func (s Claude) IsMessageElement(node model.Node) bool {
	_, ok := s.sender(node)
	return ok
}

func (s Claude) ExtractMessages(page model.Page) []model.RawTurn {
	return extractTurns(page, s.sender)
}

func (Claude) sender(node model.Node) (model.Sender, bool) {
	if node.Attr("data-testid") == "user-message" {
		return model.SenderUser, true
	}
	if _, ok := node.Attrs["data-is-streaming"]; ok {
		return model.SenderAssistant, true
	}
	return "", false
}

// Gemini 的消息是自定义元素 user-query / model-response。
type Gemini struct{}

func (Gemini) Name() string                   { return "gemini" }
func (Gemini) ValidateURL(rawURL string) bool { return geminiPattern.MatchString(rawURL) }

func (s Gemini) ExtractInfo(page model.Page) Info {
	return extractInfo(s.Name(), page, "- Gemini")
}

func (s Gemini) IsMessageElement(node model.Node) bool {
	_, ok := s.sender(node)
	return ok
}

func (s Gemini) ExtractMessages(page model.Page) []model.RawTurn {
	return extractTurns(page, s.sender)
}

func (Gemini) sender(node model.Node) (model.Sender, bool) {
	switch strings.ToLower(node.Kind) {
	case "user-query":
		return model.SenderUser, true
	case "model-response":
		return model.SenderAssistant, true
	}
	return "", false
}

// DeepSeek 的消息节点带 ds-message 样式，发送方由 data-role 给出。
type DeepSeek struct{}

func (DeepSeek) Name() string                   { return "deepseek" }
func (DeepSeek) ValidateURL(rawURL string) bool { return deepSeekPattern.MatchString(rawURL) }

func (s DeepSeek) ExtractInfo(page model.Page) Info {
	return extractInfo(s.Name(), page, "- DeepSeek")
}

func (s DeepSeek) IsMessageElement(node model.Node) bool {
	_, ok := s.sender(node)
	return ok
}

func (s DeepSeek) ExtractMessages(page model.Page) []model.RawTurn {
	return extractTurns(page, s.sender)
}

func (DeepSeek) sender(node model.Node) (model.Sender, bool) {
	if !strings.Contains(node.Attr("class"), "ds-message") {
		return "", false
	}
	switch node.Attr("data-role") {
	case "user":
		return model.SenderUser, true
	case "assistant":
		return model.SenderAssistant, true
	}
	return "", false
}
