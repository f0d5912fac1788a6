package ocr

import (
	"context"
	"encoding/hex"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// CachingEngine memoizes results of a wrapped engine keyed by a BLAKE2b
// digest of the image and its recognition parameters. The oldest entry is
// evicted once size entries are held.
type CachingEngine struct {
	Engine

	mu    sync.Mutex
	size  int
	order []string
	items map[string]Result
}

// NewCachingEngine wraps engine with a cache of at most size results. A size
// below one disables caching.
func NewCachingEngine(engine Engine, size int) *CachingEngine {
	return &CachingEngine{Engine: engine, size: size, items: make(map[string]Result)}
}

func (c *CachingEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	if c.size < 1 {
		return c.Engine.Recognize(ctx, in)
	}
	key := CacheKey(in)
	c.mu.Lock()
	res, ok := c.items[key]
	c.mu.Unlock()
	if ok {
		res.InputID = in.ID
		return res, nil
	}

	res, err := c.Engine.Recognize(ctx, in)
	if err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		if len(c.order) >= c.size {
			delete(c.items, c.order[0])
			c.order = c.order[1:]
		}
		c.order = append(c.order, key)
	}
	c.items[key] = res
	return res, nil
}

// Len returns the number of cached results.
func (c *CachingEngine) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CacheKey digests everything that influences recognition of in.
func CacheKey(in Input) string {
	h, _ := blake2b.New256(nil)
	h.Write(in.Image)
	h.Write([]byte{0})
	for _, l := range in.Languages {
		h.Write([]byte(l))
		h.Write([]byte{0})
	}
	h.Write([]byte(strconv.Itoa(in.DPI)))
	if in.Region != nil {
		for _, v := range []float64{in.Region.X, in.Region.Y, in.Region.Width, in.Region.Height} {
			h.Write([]byte(strconv.FormatFloat(v, 'f', -1, 64)))
			h.Write([]byte{0})
		}
	}
	keys := make([]string, 0, len(in.Metadata))
	for k := range in.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k + "=" + in.Metadata[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
