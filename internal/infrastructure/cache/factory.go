package cache

import (
	"errors"

	"github.com/archivus/docflow/internal/domain/services"
)

// MemoryURL selects the in-process store instead of a Redis server.
const MemoryURL = "memory"

var errClosed = errors.New("cache: closed")

// CreateCacheService builds the store named by url: a redis:// or rediss://
// URL, or MemoryURL.
func CreateCacheService(url string) (services.CacheService, error) {
	if url == "" {
		return nil, errors.New("cache url is required")
	}
	if url == MemoryURL {
		return NewMemoryCacheService(), nil
	}
	return NewRedisCacheService(url)
}
