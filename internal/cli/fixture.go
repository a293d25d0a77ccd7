package cli

import (
	"fmt"
	"os"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/source"
	"gopkg.in/yaml.v3"
)

// CaptureFile 是 memoctl 读取的抓取文件。
// 提供 page 时按平台策略提取消息；否则直接使用 turns，此时 platform 与 link 必填。
type CaptureFile struct {
	ConversationID string          `yaml:"conversation_id,omitempty"`
	Platform       string          `yaml:"platform,omitempty"`
	Link           string          `yaml:"link,omitempty"`
	Title          string          `yaml:"title,omitempty"`
	Page           *model.Page     `yaml:"page,omitempty"`
	Turns          []model.RawTurn `yaml:"turns,omitempty"`
}

// LoadCaptureFile 读取并校验抓取文件。
func LoadCaptureFile(path string) (*CaptureFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture file: %w", err)
	}
	var f CaptureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse capture file %s: %w", path, err)
	}
	if f.Page == nil && (f.Platform == "" || f.Link == "") {
		return nil, fmt.Errorf("capture file %s: either page or platform+link is required", path)
	}
	return &f, nil
}

// Resolve 计算会话键、页面信息与消息列表。
func (f *CaptureFile) Resolve(registry *source.Registry) (model.SessionKey, source.Info, []model.RawTurn, error) {
	if f.Page == nil {
		key := model.SessionKey{Platform: f.Platform, Link: source.CanonicalLink(f.Link)}
		info := source.Info{Platform: f.Platform, Link: key.Link, Title: f.Title}
		return key, info, f.Turns, nil
	}
	strategy, err := registry.Resolve(f.Page.URL)
	if err != nil {
		return model.SessionKey{}, source.Info{}, nil, err
	}
	info := strategy.ExtractInfo(*f.Page)
	if f.Title != "" {
		info.Title = f.Title
	}
	key := model.SessionKey{Platform: strategy.Name(), Link: info.Link}
	return key, info, strategy.ExtractMessages(*f.Page), nil
}

// Event 把抓取文件转换为 Kafka 快照事件，只有包含 page 的文件可以发布。
func (f *CaptureFile) Event() (model.CaptureEvent, error) {
	if f.Page == nil {
		return model.CaptureEvent{}, fmt.Errorf("only capture files with a page can be published")
	}
	return model.CaptureEvent{ConversationID: f.ConversationID, Page: *f.Page}, nil
}
