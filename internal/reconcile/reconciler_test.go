package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(store Store, opts ...Option) *Reconciler {
	return NewReconciler(store, append([]Option{WithClock(clock)}, opts...)...)
}

func TestReconcile_FullSaveOnEmptyStored(t *testing.T) {
	store := newMemStore(conversationWith(nil))
	r := newTestReconciler(store)

	res, err := r.Reconcile(context.Background(), "conv-1", capturedTurns(0, 5))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ModeFullSave, res.Mode)
	assert.Equal(t, 5, res.Added)
	assert.Equal(t, 1, store.puts)

	saved := store.convs["conv-1"]
	assert.Len(t, saved.Messages, 5)
	assert.Equal(t, 5, saved.MessageCount)
	assert.Equal(t, "message m0", saved.Title)
	assert.Equal(t, fixedNow, saved.UpdatedAt)
	assert.Equal(t, fixedNow, saved.LastMessageAt)
}

func TestReconcile_NoOpOnEmptyCapture(t *testing.T) {
	store := newMemStore(conversationWith(storedMessages(0, 3)))
	r := newTestReconciler(store)

	res, err := r.Reconcile(context.Background(), "conv-1", nil)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Skipped)
	assert.Equal(t, ModeNoOp, res.Mode)
	assert.Len(t, res.Conversation.Messages, 3)
	assert.Zero(t, store.puts)
}

func TestReconcile_EmptyCaptureOnEmptyStoredIsNoOp(t *testing.T) {
	store := newMemStore(conversationWith(nil))
	r := newTestReconciler(store)

	res, err := r.Reconcile(context.Background(), "conv-1", nil)

	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, ModeNoOp, res.Mode)
	assert.Zero(t, store.puts)
}

func TestReconcile_PartialDiffExample(t *testing.T) {
	store := newMemStore(conversationWith(storedMessages(0, 8)))
	before := store.convs["conv-1"].Clone()
	r := newTestReconciler(store)

	res, err := r.Reconcile(context.Background(), "conv-1", capturedTurns(2, 10))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ModePartialDiff, res.Mode)
	assert.True(t, res.AnchorFound)
	assert.Equal(t, 2, res.AnchorPosition)
	assert.Equal(t, 6, res.AnchorSize)
	assert.Equal(t, 2, res.Added)
	assert.Zero(t, res.Updated)
	assert.Zero(t, res.Removed)

	after := store.convs["conv-1"]
	require.Len(t, after.Messages, 10)
	assert.Equal(t, before.Messages[:2], after.Messages[:2], "protected zone untouched")
	assert.NoError(t, assertStrictlyIncreasing(after.Messages))
	assert.Equal(t, 10, after.MessageCount)

	g := goldie.New(t)
	g.AssertJson(t, "partial_diff_example", summarize(after.Messages))
}

func TestReconcile_FullOverwriteExample(t *testing.T) {
	store := newMemStore(conversationWith(storedMessages(0, 3)))
	archiver := &recordingArchiver{}
	r := newTestReconciler(store, WithArchiver(archiver))

	res, err := r.Reconcile(context.Background(), "conv-1", capturedTurns(30, 33))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.FullOverwrite)
	assert.False(t, res.AnchorFound)
	assert.Equal(t, ModeFullOverwrite, res.Mode)

	after := store.convs["conv-1"]
	require.Len(t, after.Messages, 3)
	assert.Equal(t, []string{
		"0 user message m30",
		"1 assistant message m31",
		"2 user message m32",
	}, summarize(after.Messages))

	require.Len(t, archiver.archived, 1)
	assert.Len(t, archiver.archived[0].Messages, 3)
	assert.Equal(t, "message m0", archiver.archived[0].Messages[0].Content)
}

func TestReconcile_Idempotent(t *testing.T) {
	store := newMemStore(conversationWith(storedMessages(0, 8)))
	r := newTestReconciler(store)
	captured := capturedTurns(2, 10)

	first, err := r.Reconcile(context.Background(), "conv-1", captured)
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, store.puts)
	writtenAt := store.convs["conv-1"].UpdatedAt

	second, err := r.Reconcile(context.Background(), "conv-1", captured)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.Skipped)
	assert.Equal(t, 1, store.puts, "no write for an unchanged capture")
	assert.Equal(t, writtenAt, store.convs["conv-1"].UpdatedAt)
}

func TestReconcile_StandardDiffTailEdit(t *testing.T) {
	store := newMemStore(conversationWith(storedMessages(0, 4)))
	r := newTestReconciler(store)
	captured := capturedTurns(0, 4)
	captured[3].Content = "message m3 with more tokens"

	res, err := r.Reconcile(context.Background(), "conv-1", captured)

	require.NoError(t, err)
	assert.Equal(t, ModeStandardDiff, res.Mode)
	assert.Equal(t, 0, res.AnchorPosition)
	assert.Equal(t, 1, res.Updated)

	last := store.convs["conv-1"].Messages[3]
	assert.Equal(t, "message m3 with more tokens", last.Content)
	assert.Equal(t, storedAt, last.CreatedAt)
	assert.Equal(t, fixedNow, last.UpdatedAt)
}

func TestReconcile_RemovesVanishedTail(t *testing.T) {
	store := newMemStore(conversationWith(storedMessages(0, 5)))
	r := newTestReconciler(store)

	res, err := r.Reconcile(context.Background(), "conv-1", capturedTurns(0, 4))

	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Len(t, store.convs["conv-1"].Messages, 4)
	assert.Equal(t, 4, store.convs["conv-1"].MessageCount)
}

func TestReconcile_KeepsExistingTitle(t *testing.T) {
	conv := conversationWith(nil)
	conv.Title = "Trip planning"
	store := newMemStore(conv)
	r := newTestReconciler(store)

	_, err := r.Reconcile(context.Background(), "conv-1", capturedTurns(0, 2))

	require.NoError(t, err)
	assert.Equal(t, "Trip planning", store.convs["conv-1"].Title)
}

func TestReconcile_OverwriteIffNoWindowMatches(t *testing.T) {
	tests := []struct {
		name           string
		stored         []model.Message
		captured       []model.RawTurn
		wantOverwrite  bool
		wantMode       Mode
		wantAnchorPos  int
		wantAnchorSize int
	}{
		{"disjoint", storedMessages(0, 4), capturedTurns(10, 14), true, ModeFullOverwrite, 0, 0},
		{"single overlap at tail", storedMessages(0, 4), capturedTurns(3, 9), false, ModePartialDiff, 3, 1},
		{"overlap beyond window", storedMessages(0, 10), capturedTurns(0, 10), false, ModeStandardDiff, 0, 6},
		{"short capture matches whole window", storedMessages(0, 8), capturedTurns(4, 7), false, ModePartialDiff, 4, 3},
		{"one message", storedMessages(0, 1), capturedTurns(1, 2), true, ModeFullOverwrite, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(conversationWith(tt.stored))
			r := newTestReconciler(store)

			res, err := r.Reconcile(context.Background(), "conv-1", tt.captured)

			require.NoError(t, err)
			assert.Equal(t, tt.wantOverwrite, res.FullOverwrite)
			assert.Equal(t, !tt.wantOverwrite, res.AnchorFound)
			assert.Equal(t, tt.wantMode, res.Mode)
			assert.Equal(t, tt.wantAnchorPos, res.AnchorPosition)
			assert.Equal(t, tt.wantAnchorSize, res.AnchorSize)
			assert.NoError(t, assertStrictlyIncreasing(store.convs["conv-1"].Messages))
		})
	}
}

func TestReconcile_CreationCompleteness(t *testing.T) {
	for _, n := range []int{1, 6, 13} {
		store := newMemStore(conversationWith(nil))
		r := newTestReconciler(store)

		_, err := r.Reconcile(context.Background(), "conv-1", capturedTurns(0, n))

		require.NoError(t, err)
		assert.Len(t, store.convs["conv-1"].Messages, n)
	}
}

func TestReconcile_NotFound(t *testing.T) {
	r := newTestReconciler(newMemStore())

	_, err := r.Reconcile(context.Background(), "missing", capturedTurns(0, 1))

	assert.True(t, errors.Is(err, ErrConversationNotFound))
}

func TestReconcile_PersistFailure(t *testing.T) {
	store := newMemStore(conversationWith(nil))
	store.putErr = errors.New("disk full")
	r := newTestReconciler(store)

	res, err := r.Reconcile(context.Background(), "conv-1", capturedTurns(0, 2))

	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, store.convs["conv-1"].Messages, "nothing written on failure")
}

func TestTitleFrom(t *testing.T) {
	long := make([]rune, titleLength+5)
	for i := range long {
		long[i] = 'a'
	}
	msgs := []model.Message{
		{Sender: model.SenderAssistant, Content: "greeting"},
		{Sender: model.SenderUser, Content: string(long)},
	}

	title := TitleFrom(msgs)

	assert.Equal(t, string(long[:titleLength])+"...", title)
	assert.Empty(t, TitleFrom(nil))
}

func TestCreate_SingleWrite(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)
	conv := &model.Conversation{ID: "new", Platform: "gemini", Link: "https://gemini.google.com/app/1"}

	res, err := r.Create(context.Background(), conv, capturedTurns(0, 3))

	require.NoError(t, err)
	assert.Equal(t, ModeFullSave, res.Mode)
	assert.Equal(t, 1, store.puts)
	saved := store.convs["new"]
	assert.Len(t, saved.Messages, 3)
	assert.Equal(t, fixedNow, saved.CreatedAt)
	assert.Equal(t, "message m0", saved.Title)
	assert.Empty(t, conv.Messages, "caller's record is not mutated")
}
