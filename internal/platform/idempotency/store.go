package idempotency

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/sha3"
)

// Record is what is kept under an idempotency key. A record without a Status
// is still in flight.
type Record struct {
	Fingerprint string `json:"fp"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"ct,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (r Record) Completed() bool { return r.Status != 0 }

// Store keeps idempotency records in Redis.
type Store struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewStore(rdb redis.Cmdable, ttl time.Duration, prefix string) *Store {
	if prefix == "" {
		prefix = "idem"
	}
	return &Store{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (s *Store) Key(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, scope, key)
}

// Reserve claims key for a request with the given fingerprint. It returns
// true when the caller owns the key; otherwise the existing record.
func (s *Store) Reserve(ctx context.Context, key, fingerprint string) (Record, bool, error) {
	pending, err := json.Marshal(Record{Fingerprint: fingerprint})
	if err != nil {
		return Record{}, false, err
	}
	ok, err := s.rdb.SetNX(ctx, key, pending, s.ttl).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency reserve %s: %w", key, err)
	}
	if ok {
		return Record{Fingerprint: fingerprint}, true, nil
	}

	existing, err := s.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		ok, err = s.rdb.SetNX(ctx, key, pending, s.ttl).Result()
		if err != nil {
			return Record{}, false, fmt.Errorf("idempotency reserve %s: %w", key, err)
		}
		if ok {
			return Record{Fingerprint: fingerprint}, true, nil
		}
		existing, err = s.Get(ctx, key)
	}
	if err != nil {
		return Record{}, false, err
	}
	return existing, false, nil
}

// Get loads the record under key; redis.Nil when absent.
func (s *Store) Get(ctx context.Context, key string) (Record, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("idempotency get %s: %w", key, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("idempotency decode %s: %w", key, err)
	}
	return rec, nil
}

// Complete stores the final response for replay.
func (s *Store) Complete(ctx context.Context, key string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency complete %s: %w", key, err)
	}
	return nil
}

// Release drops a reservation so the request can be retried.
func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("idempotency release %s: %w", key, err)
	}
	return nil
}

// Fingerprint is a SHA3-256 digest of the request identity and body.
func Fingerprint(method, path string, body []byte) string {
	h := sha3.New256()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
