// Package redis implements the Redis watermark store.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"raydium-swap-ingest/internal/storage"
)

// DefaultKeyPrefix namespaces watermark keys.
const DefaultKeyPrefix = "ingest:watermark"

// Hash fields of one watermark key.
const (
	fieldSlot      = "slot"
	fieldSignature = "signature"
	fieldUpdatedAt = "updated_at"
)

// WatermarkStore keeps one hash per stream at "<prefix>:<stream>".
type WatermarkStore struct {
	rdb    *redis.Client
	prefix string
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

// NewWatermarkStore creates a store. An empty prefix selects DefaultKeyPrefix.
func NewWatermarkStore(rdb *redis.Client, prefix string) *WatermarkStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &WatermarkStore{rdb: rdb, prefix: prefix}
}

var _ storage.WatermarkStore = (*WatermarkStore)(nil)

func (s *WatermarkStore) key(stream string) string {
	return fmt.Sprintf("%s:%s", s.prefix, stream)
}

// Get returns the watermark of a stream.
func (s *WatermarkStore) Get(ctx context.Context, stream string) (*storage.Watermark, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(stream)).Result()
	switch {
	case err == redis.Nil:
		return nil, storage.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("redis hgetall %s: %w", s.key(stream), err)
	case len(vals) == 0:
		return nil, storage.ErrNotFound
	}

	slot, err := strconv.ParseUint(vals[fieldSlot], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse watermark slot %q: %w", vals[fieldSlot], err)
	}
	w := &storage.Watermark{Slot: slot, Signature: vals[fieldSignature]}
	if ms, err := strconv.ParseInt(vals[fieldUpdatedAt], 10, 64); err == nil {
		w.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return w, nil
}

// Set saves the watermark of a stream.
func (s *WatermarkStore) Set(ctx context.Context, stream string, w *storage.Watermark) error {
	if w == nil || stream == "" {
		return storage.ErrInvalidInput
	}

	updated := w.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	err := s.rdb.HSet(ctx, s.key(stream),
		fieldSlot, strconv.FormatUint(w.Slot, 10),
		fieldSignature, w.Signature,
		fieldUpdatedAt, strconv.FormatInt(updated.UnixMilli(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("redis hset %s: %w", s.key(stream), err)
	}
	return nil
}
