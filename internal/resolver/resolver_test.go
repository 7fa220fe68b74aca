package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/pkg/util"
)

type stubSearcher struct {
	ids   map[int]int64
	calls int
}

func (s *stubSearcher) SearchUserID(_ context.Context, sourceID int) (int64, error) {
	s.calls++
	return s.ids[sourceID], nil
}

func TestResolverUserID_CachesPositiveResolution(t *testing.T) {
	search := &stubSearcher{ids: map[int]int64{777: 111}}
	r := New(search, NewMemoryCache(), zap.NewNop())

	id, err := r.UserID(context.Background(), 777)
	require.NoError(t, err)
	assert.Equal(t, int64(111), id)

	id, err = r.UserID(context.Background(), 777)
	require.NoError(t, err)
	assert.Equal(t, int64(111), id)

	// The second lookup came from the cache.
	assert.Equal(t, 1, search.calls)
}

func TestResolverUserID_MissIsNotCached(t *testing.T) {
	search := &stubSearcher{ids: map[int]int64{}}
	r := New(search, NewMemoryCache(), zap.NewNop())

	_, err := r.UserID(context.Background(), 777)
	require.Error(t, err)
	assert.True(t, util.IsUnresolvedReference(err))

	// The user may have been posted between lookups, so a miss re-checks.
	search.ids[777] = 111
	id, err := r.UserID(context.Background(), 777)
	require.NoError(t, err)
	assert.Equal(t, int64(111), id)
	assert.Equal(t, 2, search.calls)
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	_, ok := cache.Get(ctx, 1)
	assert.False(t, ok)

	cache.Set(ctx, 1, 100)
	id, ok := cache.Get(ctx, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(100), id)
}
