package model

// Node 是抓取客户端上报的页面渲染节点。
type Node struct {
	Kind     string            `json:"kind" yaml:"kind"`
	Attrs    map[string]string `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Text     string            `json:"text" yaml:"text"`
	Thinking string            `json:"thinking,omitempty" yaml:"thinking,omitempty"`
}

// Attr 读取节点属性，不存在时返回空字符串。
func (n Node) Attr(name string) string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs[name]
}

// Page 是一次页面快照，节点按渲染顺序排列。
type Page struct {
	URL   string `json:"url" yaml:"url"`
	Title string `json:"title" yaml:"title"`
	Nodes []Node `json:"nodes" yaml:"nodes"`
}

// CaptureEvent 是通过 HTTP 或 Kafka 投递的一次抓取事件。
type CaptureEvent struct {
	ConversationID string `json:"conversationId,omitempty" yaml:"conversationId,omitempty"`
	Page           Page   `json:"page" yaml:"page"`
}
