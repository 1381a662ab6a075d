package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix = "skald:job:"

	// watchRetries bounds the optimistic-concurrency retry loop. Contention
	// on a single job id is rare (one writer per job), so a handful of
	// attempts is plenty.
	watchRetries = 8
)

// Redis is a Store backed by a Redis instance. Records are stored as JSON
// values keyed by job id; Update uses WATCH-based optimistic transactions
// for the atomic read-modify-write.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Store = (*Redis)(nil)

// NewRedis creates a Redis-backed store. A zero ttl keeps records forever.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// Ping verifies connectivity; used by the readiness probe.
func (s *Redis) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Create persists a new record. SET NX enforces id uniqueness.
func (s *Redis) Create(ctx context.Context, rec *Record) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return errEmptyID()
	}

	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt

	payload, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, recordKey(cp.ID), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job record: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// Get returns a snapshot of the record.
func (s *Redis) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.rdb.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse job record: %w", err)
	}
	return &rec, nil
}

// Update applies mutate inside a WATCH transaction so a concurrent writer
// forces a re-read instead of a lost update.
func (s *Redis) Update(ctx context.Context, id string, mutate func(*Record) error) (*Record, error) {
	key := recordKey(id)

	var committed *Record
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("get job record: %w", err)
		}

		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("parse job record: %w", err)
		}
		if rec.Status.Terminal() {
			return ErrTerminal
		}

		if err := mutate(&rec); err != nil {
			return err
		}
		rec.UpdatedAt = time.Now().UTC()

		payload, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("marshal job record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		committed = &rec
		return nil
	}

	for attempt := 0; attempt < watchRetries; attempt++ {
		err := s.rdb.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return committed, nil
	}
	return nil, fmt.Errorf("update job record %s: too much contention", id)
}

func recordKey(id string) string {
	return recordKeyPrefix + id
}
