package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"autosniper/internal/valuation"
)

// RedisStore shares the valuation cache between processes. Results live
// under prefix+url; a sorted set indexes them by analysis time.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore. ttl <= 0 keeps entries forever.
func NewRedisStore(opt *redis.Options, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "autosniper:valuation:"
	}
	return &RedisStore{client: redis.NewClient(opt), prefix: prefix, ttl: ttl}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) key(url string) string {
	return s.prefix + urlKey(url)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "_index"
}

// Get loads a cached valuation by url.
func (s *RedisStore) Get(ctx context.Context, url string) (valuation.Result, bool, error) {
	b, err := s.client.Get(ctx, s.key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return valuation.Result{}, false, nil
	}
	if err != nil {
		return valuation.Result{}, false, fmt.Errorf("redis get: %w", err)
	}
	res, err := decodeResult(b)
	if err != nil {
		return valuation.Result{}, false, err
	}
	return res, true, nil
}

// Put stores the result and updates the time index atomically.
func (s *RedisStore) Put(ctx context.Context, res valuation.Result) error {
	payload, err := encodeResult(res)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(res.URL), payload, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(res.AnalyzedAt.Unix()),
			Member: urlKey(res.URL),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// indexPage is how many index members ListValuations reads per round trip.
const indexPage = 100

// ListValuations lists cached valuations newest first. Index members whose
// key has expired are removed while paging, so limit counts live entries.
func (s *RedisStore) ListValuations(ctx context.Context, limit int) ([]valuation.Result, error) {
	var results []valuation.Result
	var start int64
	for {
		members, err := s.client.ZRevRange(ctx, s.indexKey(), start, start+indexPage-1).Result()
		if err != nil {
			return nil, fmt.Errorf("redis index: %w", err)
		}
		if len(members) == 0 {
			return results, nil
		}

		keys := make([]string, len(members))
		for i, m := range members {
			keys[i] = s.key(m)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis mget: %w", err)
		}

		var expired []any
		full := false
		for i, v := range values {
			text, ok := v.(string)
			if !ok {
				expired = append(expired, members[i])
				continue
			}
			res, err := decodeResult([]byte(text))
			if err != nil {
				return nil, err
			}
			results = append(results, res)
			if limit > 0 && len(results) == limit {
				full = true
				break
			}
		}

		if len(expired) > 0 {
			if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
				return nil, fmt.Errorf("redis prune index: %w", err)
			}
		}
		if full || len(members) < indexPage {
			return results, nil
		}
		// pruned members no longer occupy ranks ahead of the next page
		start += int64(len(members) - len(expired))
	}
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ ValuationStore = (*RedisStore)(nil)
