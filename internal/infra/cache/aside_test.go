package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/infra/cache"
	"github.com/strand-chat/strand/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type account struct {
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

func TestGetOrLoadDecodesHitsIntoType(t *testing.T) {
	client := testutil.GetCache(t)
	aside := cache.NewAsidePattern(client)

	var outcomes []bool
	aside.Observe(func(hit bool) { outcomes = append(outcomes, hit) })

	ctx := context.Background()
	key := "test:aside:" + uuid.NewString()

	loaded, err := cache.GetOrLoad(ctx, aside, key, time.Minute, func() (*account, error) {
		return &account{Name: "ada", Admin: true}, nil
	})
	require.NoError(t, err)
	require.Equal(t, &account{Name: "ada", Admin: true}, loaded)

	// The second read must be served from redis with the concrete type
	// intact; reaching the loader again means the hit was unusable.
	hit, err := cache.GetOrLoad(ctx, aside, key, time.Minute, func() (*account, error) {
		t.Fatal("loader must not run on a cache hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, &account{Name: "ada", Admin: true}, hit)

	assert.Equal(t, []bool{false, true}, outcomes)
	hits, misses, _ := aside.Stats().Snapshot()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestGetOrLoadDoesNotCacheNilResults(t *testing.T) {
	client := testutil.GetCache(t)
	aside := cache.NewAsidePattern(client)

	ctx := context.Background()
	key := "test:aside:" + uuid.NewString()

	calls := 0
	loader := func() (*account, error) {
		calls++
		return nil, nil
	}

	for i := 0; i < 2; i++ {
		got, err := cache.GetOrLoad(ctx, aside, key, time.Minute, loader)
		require.NoError(t, err)
		assert.Nil(t, got)
	}

	assert.Equal(t, 2, calls, "nil results are not stored, each read loads")
}
