package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"

	"shopauth/pkg/logging"
)

// RedisBackend stores values in one redis hash per profile and announces
// batches on a pub/sub channel, so contexts on different machines stay in
// sync.
type RedisBackend struct {
	client  *redis.Client
	hashKey string
	channel string
}

// NewRedisBackend creates a backend for profile on client.
func NewRedisBackend(client *redis.Client, profile string) *RedisBackend {
	return &RedisBackend{
		client:  client,
		hashKey: fmt.Sprintf("shopauth:%s:session", profile),
		channel: fmt.Sprintf("shopauth:%s:changes", profile),
	}
}

// Ping checks connectivity.
func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *RedisBackend) Load(ctx context.Context) (map[string]string, error) {
	values, err := r.client.HGetAll(ctx, r.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return values, nil
}

// maxTxAttempts bounds optimistic retries when another context modifies the
// hash between WATCH and EXEC.
const maxTxAttempts = 5

// Apply writes the batch and publishes the change in one MULTI/EXEC.
func (r *RedisBackend) Apply(ctx context.Context, set map[string]string, del []string, origin string) error {
	return r.ApplyIf(ctx, nil, set, del, origin)
}

// ApplyIf checks want under WATCH and then writes and publishes the batch in
// one MULTI/EXEC. The transaction is retried when the hash changed meanwhile.
func (r *RedisBackend) ApplyIf(ctx context.Context, want, set map[string]string, del []string, origin string) error {
	keys := make([]string, 0, len(set)+len(del))
	fields := make([]interface{}, 0, len(set)*2)
	for k, v := range set {
		fields = append(fields, k, v)
		keys = append(keys, k)
	}
	keys = append(keys, del...)
	if len(keys) == 0 {
		return nil
	}

	payload, err := json.Marshal(Event{Origin: origin, Keys: keys})
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		if len(want) > 0 {
			ok, err := r.matches(ctx, tx, want)
			if err != nil {
				return err
			}
			if !ok {
				return ErrPreconditionFailed
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(del) > 0 {
				pipe.HDel(ctx, r.hashKey, del...)
			}
			if len(fields) > 0 {
				pipe.HSet(ctx, r.hashKey, fields...)
			}
			pipe.Publish(ctx, r.channel, payload)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, r.hashKey)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrPreconditionFailed):
			return err
		case errors.Is(err, redis.TxFailedErr):
			logging.Debug("TokenStore", "Session changed during transaction, retrying (attempt %d)", attempt+1)
			continue
		default:
			return fmt.Errorf("apply session change: %w", err)
		}
	}
	return fmt.Errorf("apply session change: %w", redis.TxFailedErr)
}

func (r *RedisBackend) matches(ctx context.Context, tx *redis.Tx, want map[string]string) (bool, error) {
	names := slices.Sorted(maps.Keys(want))
	current, err := tx.HMGet(ctx, r.hashKey, names...).Result()
	if err != nil {
		return false, fmt.Errorf("check session precondition: %w", err)
	}
	for i, name := range names {
		got, ok := current[i].(string)
		if !ok || got != want[name] {
			return false, nil
		}
	}
	return true, nil
}

// Subscribe listens on the change channel. The subscription is confirmed
// before Subscribe returns, so no later batch can be missed.
func (r *RedisBackend) Subscribe(fn func(Event)) (func(), error) {
	ctx := context.Background()
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to session changes: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logging.Warn("TokenStore", "Ignoring malformed session change event: %v", err)
				continue
			}
			fn(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			pubsub.Close()
			<-done
		})
	}, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
