package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "warden:profile:"

	// rmwRetries bounds the optimistic WATCH loop before giving up.
	rmwRetries = 8
)

// RedisStore is a Store backed by Redis. Atomic read-modify-write uses
// WATCH-based optimistic transactions, so contention on the same user id
// retries while unrelated users proceed independently.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// OpenRedis connects to Redis at the given URI (redis://host:port/db).
func OpenRedis(uri string) (*RedisStore, error) {
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, now: time.Now}, nil
}

// SetClock overrides the store's clock. Test hook.
func (s *RedisStore) SetClock(now func() time.Time) { s.now = now }

func redisKey(userID string) string { return redisKeyPrefix + userID }

func decodeProfile(raw string) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// GetOrCreate returns the stored profile, creating a neutral one if absent.
func (s *RedisStore) GetOrCreate(ctx context.Context, userID string) (*Profile, error) {
	var out *Profile
	err := s.Update(ctx, userID, func(p *Profile) error {
		out = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies fn via an optimistic WATCH transaction with bounded retries.
func (s *RedisStore) Update(ctx context.Context, userID string, fn func(*Profile) error) error {
	key := redisKey(userID)

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		var p *Profile
		switch {
		case errors.Is(err, redis.Nil):
			p = New(userID, s.now().UTC())
		case err != nil:
			return fmt.Errorf("read profile %s: %w", userID, err)
		default:
			if p, err = decodeProfile(raw); err != nil {
				// Malformed document: recover by resetting to neutral
				// rather than wedging the identity forever.
				p = New(userID, s.now().UTC())
			}
		}

		if err := fn(p); err != nil {
			return err
		}
		p.ClampScores()

		doc, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode profile %s: %w", userID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			return nil
		})
		return err
	}

	for i := 0; i < rmwRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue // concurrent write, retry
		}
		return err
	}
	return fmt.Errorf("profile %s: update contention exceeded %d retries", userID, rmwRetries)
}

// Delete removes the profile key.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, redisKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete profile %s: %w", userID, err)
	}
	return nil
}

// ScanAll iterates profile keys with SCAN and visits each decoded profile.
// The snapshot is eventually consistent, which the sweeper tolerates.
func (s *RedisStore) ScanAll(ctx context.Context, fn func(*Profile) error) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Result()
		if errors.Is(err, redis.Nil) {
			continue // evicted mid-scan
		}
		if err != nil {
			return fmt.Errorf("scan profile %s: %w", iter.Val(), err)
		}
		p, err := decodeProfile(raw)
		if err != nil {
			continue // skip malformed documents
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Count returns the number of profile keys.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }
