package storage

import (
	"container/list"
	"context"
	"sync"
)

// CachingAdapter wraps an Adapter with a bounded, write-through LRU read
// cache. Useful in front of BoltAdapter when the same blob or document key
// is read repeatedly during a sync session.
type CachingAdapter struct {
	Adapter

	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	ll       *list.List
	items    map[string]*list.Element
}

type cacheEntry struct {
	key   string
	value []byte
}

// NewCachingAdapter wraps adapter with a cache capped at maxBytes of
// cached value data.
func NewCachingAdapter(adapter Adapter, maxBytes int64) *CachingAdapter {
	return &CachingAdapter{
		Adapter:  adapter,
		maxBytes: maxBytes,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *CachingAdapter) Read(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		v := el.Value.(*cacheEntry).value
		out := make([]byte, len(v))
		copy(out, v)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	v, err := c.Adapter.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	c.put(key, v)
	return v, nil
}

func (c *CachingAdapter) Write(ctx context.Context, key string, value []byte) error {
	if err := c.Adapter.Write(ctx, key, value); err != nil {
		return err
	}
	c.put(key, value)
	return nil
}

func (c *CachingAdapter) Delete(ctx context.Context, key string) error {
	if err := c.Adapter.Delete(ctx, key); err != nil {
		return err
	}
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
		c.curBytes -= int64(len(el.Value.(*cacheEntry).value))
	}
	c.mu.Unlock()
	return nil
}

func (c *CachingAdapter) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.curBytes -= int64(len(el.Value.(*cacheEntry).value))
		el.Value.(*cacheEntry).value = value
		c.ll.MoveToFront(el)
		c.curBytes += int64(len(value))
	} else {
		el := c.ll.PushFront(&cacheEntry{key: key, value: value})
		c.items[key] = el
		c.curBytes += int64(len(value))
	}

	for c.curBytes > c.maxBytes && c.ll.Len() > 0 {
		back := c.ll.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*cacheEntry)
		c.curBytes -= int64(len(entry.value))
		c.ll.Remove(back)
		delete(c.items, entry.key)
	}
}
