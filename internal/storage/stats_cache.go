package storage

import (
	"context"
	"errors"
	"strconv"

	"randomchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	statsCacheKey = "stats:by_status"
	// statsVersionKey is bumped by every invalidation. A fill computed under an
	// older version is discarded.
	statsVersionKey = "stats:version"
)

// cachedCounts reads status counts from Redis. A miss or any Redis error falls back to the database.
func (s *Service) cachedCounts(ctx context.Context) (models.StatusCounts, bool) {
	if s.Redis == nil {
		return models.StatusCounts{}, false
	}

	vals, err := s.Redis.HGetAll(ctx, statsCacheKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("stats cache read failed", "error", err)
		}
		return models.StatusCounts{}, false
	}
	if len(vals) == 0 {
		return models.StatusCounts{}, false
	}

	var counts models.StatusCounts
	fields := map[string]*int64{
		"total":                        &counts.Total,
		string(models.StatusIdle):      &counts.Idle,
		string(models.StatusSearching): &counts.Searching,
		string(models.StatusChatting):  &counts.Chatting,
		string(models.StatusMuted):     &counts.Muted,
	}
	for name, dst := range fields {
		raw, ok := vals[name]
		if !ok {
			return models.StatusCounts{}, false
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.StatusCounts{}, false
		}
		*dst = n
	}
	return counts, true
}

// countsVersion reads the invalidation counter before a database read.
func (s *Service) countsVersion(ctx context.Context) (int64, bool) {
	if s.Redis == nil {
		return 0, false
	}
	v, err := s.Redis.Get(ctx, statsVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn("stats cache version read failed", "error", err)
		return 0, false
	}
	return v, true
}

// cacheCounts stores counts read under version, unless an invalidation has
// happened since.
func (s *Service) cacheCounts(ctx context.Context, counts models.StatusCounts, version int64) {
	if s.Redis == nil || s.StatsTTL <= 0 {
		return
	}

	err := s.Redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, statsVersionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, statsCacheKey, map[string]interface{}{
				"total":                        counts.Total,
				string(models.StatusIdle):      counts.Idle,
				string(models.StatusSearching): counts.Searching,
				string(models.StatusChatting):  counts.Chatting,
				string(models.StatusMuted):     counts.Muted,
			})
			pipe.Expire(ctx, statsCacheKey, s.StatsTTL)
			return nil
		})
		return err
	}, statsVersionKey)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		s.log.Debug("stats cache fill raced an invalidation, skipped")
	case err != nil:
		s.log.Warn("stats cache write failed", "error", err)
	}
}

// invalidateCounts drops the cached counts after any mutation.
func (s *Service) invalidateCounts(ctx context.Context) {
	if s.Redis == nil {
		return
	}
	pipe := s.Redis.TxPipeline()
	pipe.Incr(ctx, statsVersionKey)
	pipe.Del(ctx, statsCacheKey)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("stats cache invalidation failed", "error", err)
	}
}
