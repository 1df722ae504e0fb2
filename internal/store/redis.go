package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	backend "github.com/redis/go-redis/v9"

	"batchd/pkg/types"
)

// farFuture scores index entries of results that never expire.
const farFuture = 4102444800

// Redis stores results as JSON strings plus a sorted-set index scored by
// expiry, so List can prune ids whose value has expired.
type Redis struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type RedisOption func(*Redis)

// WithTTL expires saved results after ttl; zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption { return func(s *Redis) { s.ttl = ttl } }

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption { return func(s *Redis) { s.prefix = prefix } }

// NewRedis connects to addr.
func NewRedis(addr string, opts ...RedisOption) *Redis {
	return NewRedisFromClient(backend.NewClient(&backend.Options{Addr: addr}), opts...)
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *Redis {
	s := &Redis{client: client, prefix: "batchd:run:"}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Redis) key(id string) string { return s.prefix + id }
func (s *Redis) indexKey() string     { return s.prefix + "index" }

func (s *Redis) Save(ctx context.Context, res types.RunResult) error {
	id := res.Status.RunID
	if err := validID(id); err != nil {
		return err
	}
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	score := float64(farFuture)
	if s.ttl > 0 {
		score = float64(time.Now().Add(s.ttl).Unix())
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(id), b, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save result to redis: %w", err)
	}
	return nil
}

func (s *Redis) Load(ctx context.Context, id string) (types.RunResult, error) {
	if err := validID(id); err != nil {
		return types.RunResult{}, err
	}
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return types.RunResult{}, ErrNotFound
		}
		return types.RunResult{}, fmt.Errorf("load result from redis: %w", err)
	}
	var res types.RunResult
	if err := json.Unmarshal(b, &res); err != nil {
		return types.RunResult{}, fmt.Errorf("unmarshal result %s: %w", id, err)
	}
	return res, nil
}

// List prunes expired index entries and returns the rest ordered by expiry,
// ties broken by id.
func (s *Redis) List(ctx context.Context) ([]string, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("prune expired results: %w", err)
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return ids, nil
}

func (s *Redis) Close() error { return s.client.Close() }
