package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepository struct {
	convs  map[string]*model.Conversation
	gets   int
	putErr error
}

func (r *countingRepository) Get(_ context.Context, id string) (*model.Conversation, error) {
	r.gets++
	c, ok := r.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (r *countingRepository) Put(_ context.Context, conv *model.Conversation) error {
	if r.putErr != nil {
		return r.putErr
	}
	r.convs[conv.ID] = conv.Clone()
	return nil
}

func (r *countingRepository) FindByLink(_ context.Context, link string) (*model.Conversation, error) {
	for _, c := range r.convs {
		if c.Link == link {
			return c.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func newCached(next ConversationRepository) *CachedRepository {
	return NewCachedRepository(next, cache.New[string, *model.Conversation](10, time.Minute))
}

func TestCachedRepository_ReadThrough(t *testing.T) {
	next := &countingRepository{convs: map[string]*model.Conversation{"c-1": sampleConversation()}}
	repo := newCached(next)

	_, err := repo.Get(context.Background(), "c-1")
	require.NoError(t, err)
	_, err = repo.Get(context.Background(), "c-1")
	require.NoError(t, err)

	assert.Equal(t, 1, next.gets)
}

func TestCachedRepository_ReturnsCopies(t *testing.T) {
	next := &countingRepository{convs: map[string]*model.Conversation{"c-1": sampleConversation()}}
	repo := newCached(next)

	first, err := repo.Get(context.Background(), "c-1")
	require.NoError(t, err)
	first.Messages[0].Content = "mutated"

	second, err := repo.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", second.Messages[0].Content)
}

func TestCachedRepository_WriteThrough(t *testing.T) {
	next := &countingRepository{convs: map[string]*model.Conversation{}}
	repo := newCached(next)

	require.NoError(t, repo.Put(context.Background(), sampleConversation()))
	_, err := repo.Get(context.Background(), "c-1")

	require.NoError(t, err)
	assert.Zero(t, next.gets, "served from cache after write")
	assert.Contains(t, next.convs, "c-1")
}

func TestCachedRepository_FailedPutInvalidates(t *testing.T) {
	next := &countingRepository{convs: map[string]*model.Conversation{"c-1": sampleConversation()}}
	repo := newCached(next)
	_, err := repo.Get(context.Background(), "c-1")
	require.NoError(t, err)

	next.putErr = errors.New("write failed")
	changed := sampleConversation()
	changed.Title = "changed"
	require.Error(t, repo.Put(context.Background(), changed))

	got, err := repo.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, 2, next.gets)
}

func TestCachedRepository_FindByLinkFillsCache(t *testing.T) {
	next := &countingRepository{convs: map[string]*model.Conversation{"c-1": sampleConversation()}}
	repo := newCached(next)

	got, err := repo.FindByLink(context.Background(), "https://claude.ai/chat/123")
	require.NoError(t, err)
	assert.Equal(t, "c-1", got.ID)

	_, err = repo.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Zero(t, next.gets)
}
