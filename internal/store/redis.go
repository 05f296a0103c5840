package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps the whole record table as a single JSON value, preserving
// the sheet's fetch-all/replace-all semantics.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to Redis at addr and stores records under key.
func NewRedisStore(addr, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	if key == "" {
		key = "gridview:restrictions"
	}
	return &RedisStore{client: client, key: key}, nil
}

func (r *RedisStore) FetchAll(ctx context.Context) (Table, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("redis GET failed: %w", err)
	}

	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("unmarshal table: %w", err)
	}
	return t, nil
}

func (r *RedisStore) ReplaceAll(ctx context.Context, t Table) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal table: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
