package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/archivus/docflow/internal/domain/services"
)

// MemoryCacheService keeps lists in process memory. It backs single-process
// deployments and tests; events do not survive a restart.
type MemoryCacheService struct {
	mu     sync.Mutex
	lists  map[string][]string
	closed bool
}

// NewMemoryCacheService returns an empty in-memory store.
func NewMemoryCacheService() *MemoryCacheService {
	return &MemoryCacheService{lists: make(map[string][]string)}
}

func (c *MemoryCacheService) LPush(ctx context.Context, key string, values ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	for _, v := range values {
		// Redis LPUSH puts each value at the head in argument order.
		c.lists[key] = append([]string{stringify(v)}, c.lists[key]...)
	}
	return nil
}

func (c *MemoryCacheService) RPop(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", errClosed
	}
	list := c.lists[key]
	if len(list) == 0 {
		return "", services.ErrCacheMiss
	}
	last := list[len(list)-1]
	c.lists[key] = list[:len(list)-1]
	return last, nil
}

func (c *MemoryCacheService) LLen(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.lists[key])), nil
}

func (c *MemoryCacheService) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	return nil
}

func (c *MemoryCacheService) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}
