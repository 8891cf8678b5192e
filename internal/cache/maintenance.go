package cache

import (
	"context"

	"github.com/flemzord/trekassist/internal/kvs"
)

// sweeper is implemented by stores that purge expired entries on demand.
type sweeper interface {
	Sweep() int
}

// Maintain purges expired entries, drops index entries whose keys are gone
// from the store, and logs per-cache stats. It is run periodically by the
// scheduler.
func (s *Service) Maintain(ctx context.Context) ([]TierStats, error) {
	swept := 0
	if sw, ok := s.store.(sweeper); ok {
		swept = sw.Sweep()
	}

	stale := 0
	if s.tracking() {
		for _, name := range Names {
			nc := s.tiers[name]
			for _, key := range nc.keys() {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				ttl, err := s.store.TTL(ctx, storeKey(name, key))
				if err != nil {
					return nil, err
				}
				if ttl == kvs.TTLNotFound {
					nc.forget(key)
					stale++
				}
			}
		}
	}

	stats := s.Stats()
	for _, st := range stats {
		s.logger.Info("cache stats",
			"cache", st.Name,
			"size", st.Size,
			"max_size", st.MaxSize,
			"hits", st.Hits,
			"misses", st.Misses,
			"hit_rate", st.HitRate,
		)
	}
	if swept > 0 || stale > 0 {
		s.logger.Debug("cache maintenance", "swept", swept, "stale_index", stale, "backend", s.store.Backend())
	}
	return stats, nil
}
