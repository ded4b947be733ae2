package repositories

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateWindowRedisRepository implements the keyed time-series store for the
// sliding-window limiter on a Redis sorted set: entry timestamps are both
// member and score, so range-by-score operations give window semantics for
// free.
type RateWindowRedisRepository struct {
	r redis.Cmdable
}

func NewRateWindowRedisRepository(r redis.Cmdable) *RateWindowRedisRepository {
	return &RateWindowRedisRepository{r: r}
}

// PruneBefore removes entries with score <= cutoff. The boundary entry is
// removed: an entry exactly one window old no longer counts.
func (repo *RateWindowRedisRepository) PruneBefore(ctx context.Context, key string, cutoff float64) (int64, error) {
	removed, err := repo.r.ZRemRangeByScore(ctx, key, "0", formatScore(cutoff)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune window %s: %w", key, err)
	}
	return removed, nil
}

// Count returns the number of entries currently recorded under key.
func (repo *RateWindowRedisRepository) Count(ctx context.Context, key string) (int64, error) {
	count, err := repo.r.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count window %s: %w", key, err)
	}
	return count, nil
}

// Add records one entry at the given score. The member is the score's
// string form, which keeps entries unique at sub-second resolution.
func (repo *RateWindowRedisRepository) Add(ctx context.Context, key string, at float64) error {
	if err := repo.r.ZAdd(ctx, key, &redis.Z{Score: at, Member: formatScore(at)}).Err(); err != nil {
		return fmt.Errorf("failed to record entry in window %s: %w", key, err)
	}
	return nil
}

// OldestAt returns the smallest score under key. ok=false when the window
// is empty.
func (repo *RateWindowRedisRepository) OldestAt(ctx context.Context, key string) (float64, bool, error) {
	entries, err := repo.r.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read oldest entry of window %s: %w", key, err)
	}
	if len(entries) == 0 {
		return 0, false, nil
	}
	return entries[0].Score, true, nil
}

// Expire sets the key's TTL so idle windows self-clean.
func (repo *RateWindowRedisRepository) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := repo.r.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("failed to expire window %s: %w", key, err)
	}
	return nil
}

// DeleteMatching removes every key matching the glob pattern.
func (repo *RateWindowRedisRepository) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	var cursor uint64
	for {
		keys, next, err := repo.r.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan keys for %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := repo.r.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete keys for %s: %w", pattern, err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// ScanKeys returns all keys matching the glob pattern, scanning in batches
// of count.
func (repo *RateWindowRedisRepository) ScanKeys(ctx context.Context, pattern string, count int64) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := repo.r.Scan(ctx, cursor, pattern, count).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys for %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Latency measures one PING round trip.
func (repo *RateWindowRedisRepository) Latency(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := repo.r.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("failed to ping store: %w", err)
	}
	return time.Since(start), nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
