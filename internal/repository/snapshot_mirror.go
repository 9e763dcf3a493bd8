package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultMirrorKey = "prices:snapshot"

// SnapshotMirror keeps a copy of the latest snapshot in a Redis hash so
// other processes can read prices without a database round trip.
type SnapshotMirror struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
}

func (m *SnapshotMirror) key() string {
	if m.Key == "" {
		return defaultMirrorKey
	}
	return m.Key
}

func (m *SnapshotMirror) loadedAtKey() string {
	return m.key() + ":loaded_at"
}

// Publish writes prices to a temporary hash and renames it over the live
// key, so readers see either the old or the new snapshot, never a mix.
func (m *SnapshotMirror) Publish(ctx context.Context, prices map[string]float64, loadedAt time.Time) error {
	if len(prices) == 0 {
		return nil
	}
	tmp := fmt.Sprintf("%s:tmp:%d", m.key(), loadedAt.UnixNano())

	values := make(map[string]interface{}, len(prices))
	for name, price := range prices {
		values[name] = strconv.FormatFloat(price, 'f', -1, 64)
	}

	_, err := m.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tmp)
		pipe.HSet(ctx, tmp, values)
		pipe.Rename(ctx, tmp, m.key())
		pipe.Set(ctx, m.loadedAtKey(), loadedAt.UTC().Format(time.RFC3339Nano), m.TTL)
		if m.TTL > 0 {
			pipe.Expire(ctx, m.key(), m.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror snapshot: %w", err)
	}
	return nil
}

// Price returns false without error when the name is not mirrored.
func (m *SnapshotMirror) Price(ctx context.Context, name string) (float64, bool, error) {
	p, err := m.Client.HGet(ctx, m.key(), name).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return p, true, nil
}

// LoadedAt returns when the mirrored snapshot was fetched, zero if none is.
func (m *SnapshotMirror) LoadedAt(ctx context.Context) (time.Time, error) {
	v, err := m.Client.Get(ctx, m.loadedAtKey()).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, v)
}

// Len reports how many prices are mirrored.
func (m *SnapshotMirror) Len(ctx context.Context) (int64, error) {
	return m.Client.HLen(ctx, m.key()).Result()
}
