package reconcile

import (
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
)

// DiffResult 是一次差异计算的结果，各集合内部顺序无意义。
type DiffResult struct {
	New       []model.Message
	Updated   []model.Message
	Removed   []model.Message
	Unchanged []model.Message
}

// Empty 表示没有任何新增、更新或删除。
func (d DiffResult) Empty() bool {
	return len(d.New) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Merged 返回合并后的操作区：未变化 + 更新 + 新增，按位置排序。
func (d DiffResult) Merged() []model.Message {
	out := make([]model.Message, 0, len(d.Unchanged)+len(d.Updated)+len(d.New))
	out = append(out, d.Unchanged...)
	out = append(out, d.Updated...)
	out = append(out, d.New...)
	sortByPosition(out)
	return out
}

// Diff 比较已做位置修正的抓取列表与存储列表的某个子区间。
// 优先按派生 ID 匹配（要求发送方一致），否则回退到第一个未匹配的同指纹存储消息。
func Diff(captured, storedRange []model.Message, now time.Time) DiffResult {
	var result DiffResult

	byID := make(map[string]int, len(storedRange))
	byFP := make(map[string][]int, len(storedRange))
	for i, s := range storedRange {
		if _, dup := byID[s.ID]; !dup {
			byID[s.ID] = i
		}
		fp := Fingerprint(s)
		byFP[fp] = append(byFP[fp], i)
	}
	matched := make([]bool, len(storedRange))

	for _, c := range captured {
		idx := -1
		if i, ok := byID[c.ID]; ok && !matched[i] && storedRange[i].Sender == c.Sender {
			idx = i
		} else {
			for _, i := range byFP[Fingerprint(c)] {
				if !matched[i] {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			result.New = append(result.New, c)
			continue
		}
		matched[idx] = true
		stored := storedRange[idx]
		if changed(stored, c) {
			updated := c
			updated.ID = model.MessageID(c.Sender, c.Position)
			updated.CreatedAt = stored.CreatedAt
			updated.UpdatedAt = now
			result.Updated = append(result.Updated, updated)
			continue
		}
		result.Unchanged = append(result.Unchanged, stored)
	}

	for i, s := range storedRange {
		if !matched[i] {
			result.Removed = append(result.Removed, s)
		}
	}
	return result
}

func changed(stored, captured model.Message) bool {
	return stored.Content != captured.Content ||
		stored.Thinking != captured.Thinking ||
		stored.Position != captured.Position
}
