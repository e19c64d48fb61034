package storage

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "pockets:v1:"

// Redis stores values as plain keys and streams as lists. The set of streams is
// tracked in a Redis set so recovery can enumerate owners without SCAN.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a Redis backend.
type RedisOption func(*Redis)

// WithRedisPrefix overrides the key namespace.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis builds a backend on top of an existing client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Redis) valueKey(key string) string     { return r.prefix + "kv:" + key }
func (r *Redis) streamKey(stream string) string { return r.prefix + "log:" + stream }
func (r *Redis) streamsKey() string             { return r.prefix + "streams" }

// Get fetches a value.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.valueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Put writes a value with SET, which is atomic for a single key.
func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.valueKey(key), value, 0).Err()
}

// Delete removes a value.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.valueKey(key)).Err()
}

// Append pushes the record and registers the stream in a single MULTI/EXEC.
func (r *Redis) Append(ctx context.Context, stream string, record []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, r.streamKey(stream), record)
		pipe.SAdd(ctx, r.streamsKey(), stream)
		return nil
	})
	return err
}

// Records reads the whole stream.
func (r *Redis) Records(ctx context.Context, stream string) ([][]byte, error) {
	values, err := r.client.LRange(ctx, r.streamKey(stream), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out, nil
}

// Streams lists registered streams.
func (r *Redis) Streams(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, r.streamsKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
