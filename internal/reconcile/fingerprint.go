package reconcile

import (
	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
)

// FingerprintLength 是参与指纹计算的内容前缀长度（按字符计）。
const FingerprintLength = 100

// Fingerprint 返回消息的匹配身份：发送方 + ":" + 内容前 100 个字符。
// 同一发送方前缀相同的两条长消息无法区分，这是已知限制。
func Fingerprint(msg model.Message) string {
	return string(msg.Sender) + ":" + prefix(msg.Content, FingerprintLength)
}

// Fingerprints 按顺序计算一组消息的指纹。
func Fingerprints(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = Fingerprint(m)
	}
	return out
}

func prefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Digest 对抓取结果做加法/移位散列（h = h<<5 - h + c，32 位），覆盖发送方、内容和思考过程。
// 仅用于快速判断抓取结果是否与上次相同，不具备抗碰撞能力。
func Digest(turns []model.RawTurn) uint32 {
	var h uint32
	mix := func(s string) {
		for _, c := range s {
			h = h<<5 - h + uint32(c)
		}
		// 分隔符，避免相邻字段拼接产生歧义
		h = h<<5 - h + 0x1f
	}
	for _, t := range turns {
		mix(string(t.Sender))
		mix(t.Content)
		mix(t.Thinking)
	}
	return h
}
