package reconcile

import (
	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
)

// MaxAnchorWindow 是锚点检测考虑的最大窗口。连续 6 条指纹一致即视为足够可信。
const MaxAnchorWindow = 6

// AnchorResult 是锚点检测结果。
type AnchorResult struct {
	Found    bool `json:"found"`
	Position int  `json:"position"` // 在已存储列表中的起始下标
	Size     int  `json:"size"`     // 命中的窗口大小
}

// FindAnchor 查找抓取列表头部在已存储列表中的位置。
// 窗口从 min(6, len(captured)) 递减到 1，大窗口优先；同一窗口取存储列表中最靠前的位置。
// 未找到是正常结果，由调用方走整体覆盖。
func FindAnchor(captured, stored []model.Message) AnchorResult {
	if len(captured) == 0 || len(stored) == 0 {
		return AnchorResult{}
	}
	window := min(MaxAnchorWindow, len(captured))

	capturedFP := Fingerprints(captured[:window])
	storedFP := Fingerprints(stored)

	for size := window; size >= 1; size-- {
		head := capturedFP[:size]
		for i := 0; i+size <= len(storedFP); i++ {
			if windowEqual(head, storedFP[i:i+size]) {
				return AnchorResult{Found: true, Position: i, Size: size}
			}
		}
	}
	return AnchorResult{}
}

func windowEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
