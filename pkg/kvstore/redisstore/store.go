// Package redisstore stores a kvstore namespace as one redis hash.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/certificate-processor/pkg/kvstore"
)

const maxUpdateRetries = 16

// ErrContention is returned when an Update keeps losing its WATCH race.
var ErrContention = errors.New("too much contention on key")

// Store maps each key to a field of the hash at Key.
type Store struct {
	client *redis.Client
	key    string
}

var _ kvstore.Store = (*Store)(nil)

// New shares client across namespaces; Close does not close it.
func New(client *redis.Client, key string) *Store {
	return &Store{client: client, key: key}
}

func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, error) {
	v, err := s.client.HGet(ctx, s.key, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", s.key, key, err)
	}
	return v, nil
}

func (s *Store) ReadAll(ctx context.Context) (map[string]json.RawMessage, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.key, err)
	}
	out := make(map[string]json.RawMessage, len(all))
	for k, v := range all {
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, key string, value json.RawMessage) error {
	if err := s.client.HSet(ctx, s.key, key, []byte(value)).Err(); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", s.key, key, err)
	}
	return nil
}

// Update uses WATCH/MULTI on the hash and retries when another writer
// touched it between the read and the write.
func (s *Store) Update(ctx context.Context, key string, fn kvstore.UpdateFunc) error {
	txf := func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, s.key, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if errors.Is(err, redis.Nil) {
			cur = nil
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.key, key, []byte(next))
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to update %s/%s: %w", s.key, key, ErrContention)
}

func (s *Store) ReplaceAll(ctx context.Context, entries map[string]json.RawMessage) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(entries) == 0 {
			return nil
		}
		values := make(map[string]interface{}, len(entries))
		for k, v := range entries {
			values[k] = []byte(v)
		}
		pipe.HSet(ctx, s.key, values)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
