package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/log"
)

// ErrConversationNotFound 表示要协调的对话不存在。
var ErrConversationNotFound = model.ErrConversationNotFound

// Mode 标识一次协调走的分支。
type Mode string

const (
	ModeFullSave      Mode = "full_save"
	ModeNoOp          Mode = "no_op"
	ModeStandardDiff  Mode = "standard_diff"
	ModePartialDiff   Mode = "partial_diff"
	ModeFullOverwrite Mode = "full_overwrite"
)

// titleLength 是从首条用户消息生成标题时保留的字符数。
const titleLength = 80

// Store 是协调器依赖的持久化接口，读写均为整条记录。
type Store interface {
	Get(ctx context.Context, id string) (*model.Conversation, error)
	Put(ctx context.Context, conv *model.Conversation) error
}

// Archiver 在整体覆盖之前保存被替换的旧记录。
type Archiver interface {
	Archive(ctx context.Context, previous *model.Conversation) error
}

// Result 是一次协调调用的结果。
type Result struct {
	Success        bool                `json:"success"`
	Conversation   *model.Conversation `json:"conversation,omitempty"`
	Mode           Mode                `json:"mode"`
	AnchorFound    bool                `json:"anchorFound"`
	AnchorPosition int                 `json:"anchorPosition"`
	AnchorSize     int                 `json:"anchorSize"`
	FullOverwrite  bool                `json:"fullOverwrite,omitempty"`
	Skipped        bool                `json:"skipped,omitempty"`
	Added          int                 `json:"added"`
	Updated        int                 `json:"updated"`
	Removed        int                 `json:"removed"`
}

// Reconciler 驱动协调流程：锚点检测、差异计算、合并与一次原子写入。
type Reconciler struct {
	store      Store
	archiver   Archiver
	normalizer Normalizer
}

// Option 配置 Reconciler。
type Option func(*Reconciler)

// WithArchiver 设置整体覆盖前的归档器。
func WithArchiver(a Archiver) Option {
	return func(r *Reconciler) { r.archiver = a }
}

// WithClock 替换时钟，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.normalizer = Normalizer{Now: now} }
}

// NewReconciler 创建一个新的 Reconciler。
func NewReconciler(store Store, opts ...Option) *Reconciler {
	r := &Reconciler{store: store, normalizer: NewNormalizer()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile 将抓取到的消息列表合并进已存储的对话。
// 要么整体替换，要么写入「保护区 + 合并后的操作区」，始终只有一次写入。
func (r *Reconciler) Reconcile(ctx context.Context, conversationID string, captured []model.RawTurn) (*Result, error) {
	stored, err := r.store.Get(ctx, conversationID)
	if err != nil {
		return &Result{}, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if stored == nil {
		return &Result{}, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	conv := stored.Clone()

	if len(captured) == 0 {
		return &Result{Success: true, Conversation: conv, Mode: ModeNoOp, Skipped: true}, nil
	}

	if len(conv.Messages) == 0 {
		msgs := r.normalizer.NormalizeAll(captured, 0)
		res := &Result{Mode: ModeFullSave, Added: len(msgs)}
		return r.commit(ctx, conv, msgs, res)
	}

	// 先按下标规范化，用于锚点检测；检测只依赖指纹，与位置无关
	probe := r.normalizer.NormalizeAll(captured, 0)
	anchor := FindAnchor(probe, conv.Messages)
	if !anchor.Found {
		return r.overwrite(ctx, conv, probe)
	}

	res := &Result{
		AnchorFound:    true,
		AnchorPosition: anchor.Position,
		AnchorSize:     anchor.Size,
		Mode:           ModeStandardDiff,
	}
	protected := conv.Messages[:anchor.Position]
	operation := conv.Messages[anchor.Position:]
	if anchor.Position > 0 {
		res.Mode = ModePartialDiff
	}

	corrected := make([]model.Message, len(probe))
	for i, m := range probe {
		corrected[i] = reposition(m, anchor.Position+i)
	}

	diff := Diff(corrected, operation, r.normalizer.now())
	res.Added, res.Updated, res.Removed = len(diff.New), len(diff.Updated), len(diff.Removed)
	if diff.Empty() {
		res.Success = true
		res.Skipped = true
		res.Conversation = conv
		log.Debugf("[Reconciler] 对话 %s 无变化, mode=%s, anchor=%d/%d", conv.ID, res.Mode, anchor.Position, anchor.Size)
		return res, nil
	}

	merged := make([]model.Message, 0, len(protected)+len(corrected))
	merged = append(merged, protected...)
	merged = append(merged, diff.Merged()...)
	return r.commit(ctx, conv, merged, res)
}

// Create 持久化一条新对话，抓取列表整体作为新增消息，只写入一次。
func (r *Reconciler) Create(ctx context.Context, conv *model.Conversation, captured []model.RawTurn) (*Result, error) {
	conv = conv.Clone()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = r.normalizer.now()
	}
	msgs := r.normalizer.NormalizeAll(captured, 0)
	res := &Result{Mode: ModeFullSave, Added: len(msgs)}
	return r.commit(ctx, conv, msgs, res)
}

// overwrite 找不到锚点时，以抓取结果整体替换已存储列表。
func (r *Reconciler) overwrite(ctx context.Context, conv *model.Conversation, msgs []model.Message) (*Result, error) {
	if r.archiver != nil {
		if err := r.archiver.Archive(ctx, conv.Clone()); err != nil {
			log.Warnf("[Reconciler] 归档对话 %s 失败, 继续覆盖: %v", conv.ID, err)
		}
	}
	res := &Result{
		Mode:          ModeFullOverwrite,
		FullOverwrite: true,
		Added:         len(msgs),
		Removed:       len(conv.Messages),
	}
	log.Infof("[Reconciler] 对话 %s 未找到锚点, 整体覆盖 %d -> %d 条消息", conv.ID, len(conv.Messages), len(msgs))
	return r.commit(ctx, conv, msgs, res)
}

// commit 排序、重算元数据并写入。只有存在变化时才会调用。
func (r *Reconciler) commit(ctx context.Context, conv *model.Conversation, msgs []model.Message, res *Result) (*Result, error) {
	sortByPosition(msgs)
	conv.Messages = msgs
	refreshMetadata(conv)
	conv.UpdatedAt = r.normalizer.now()

	if err := r.store.Put(ctx, conv); err != nil {
		res.Success = false
		return res, fmt.Errorf("persist conversation %s: %w", conv.ID, err)
	}
	res.Success = true
	res.Conversation = conv
	log.Infow("[Reconciler] 对话已写入",
		"conversationId", conv.ID,
		"mode", res.Mode,
		"added", res.Added,
		"updated", res.Updated,
		"removed", res.Removed,
		"messages", len(conv.Messages),
	)
	return res, nil
}

// refreshMetadata 重新计算消息数、最后消息时间，以及缺失时的标题。
func refreshMetadata(conv *model.Conversation) {
	conv.MessageCount = len(conv.Messages)
	if n := len(conv.Messages); n > 0 {
		conv.LastMessageAt = conv.Messages[n-1].UpdatedAt
	}
	if conv.Title == "" {
		conv.Title = TitleFrom(conv.Messages)
	}
}

// TitleFrom 用首条用户消息生成标题。
func TitleFrom(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Sender != model.SenderUser || m.Content == "" {
			continue
		}
		if utf8.RuneCountInString(m.Content) <= titleLength {
			return m.Content
		}
		return prefix(m.Content, titleLength) + "..."
	}
	return ""
}

func sortByPosition(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Position < msgs[j].Position })
}
