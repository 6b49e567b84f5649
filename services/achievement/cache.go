package achievement

import (
	"strconv"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "achievement_program_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "achievement_program_cache_miss_total"})
)

// programCache holds compiled qualifier programs keyed by ordinal.
// Definitions are append-only so entries never need invalidation.
type programCache struct {
	mu    sync.RWMutex
	items map[int64]cel.Program
	group singleflight.Group
}

func newProgramCache() *programCache {
	return &programCache{
		items: make(map[int64]cel.Program),
	}
}

func (c *programCache) get(ordinal int64, build func() (cel.Program, error)) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.items[ordinal]
	c.mu.RUnlock()
	if ok {
		cacheHits.Inc()
		return prg, nil
	}

	cacheMiss.Inc()

	v, err, _ := c.group.Do(keyFor(ordinal), func() (any, error) {
		c.mu.RLock()
		prg, ok := c.items[ordinal]
		c.mu.RUnlock()
		if ok {
			return prg, nil
		}

		built, err := build()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.items[ordinal] = built
		c.mu.Unlock()

		return built, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(cel.Program), nil
}

func keyFor(ordinal int64) string {
	return strconv.FormatInt(ordinal, 10)
}
