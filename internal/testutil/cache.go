package testutil

import (
	"sync"
	"testing"

	"github.com/strand-chat/strand/internal/infra/cache"
)

var (
	cacheOnce   sync.Once
	sharedCache *cache.Cache
	cacheErr    error
)

// GetCache returns a shared redis client, skipping the test when redis is
// unreachable. Tests should scope their keys so they do not need a flush.
func GetCache(t *testing.T) *cache.Cache {
	t.Helper()

	cacheOnce.Do(func() {
		sharedCache, cacheErr = cache.New(
			envOr("REDIS_HOST", "localhost"),
			envIntOr("REDIS_PORT", 6379),
			envOr("REDIS_PASSWORD", ""),
			envIntOr("REDIS_DB", 0),
		)
	})
	if cacheErr != nil {
		t.Skipf("redis not available: %v", cacheErr)
	}
	return sharedCache
}
