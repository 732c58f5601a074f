// Package idempotency replays responses of retried mutating requests that
// carry an Idempotency-Key header.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long records are retained.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState describes the outcome of reserving a key.
type ReservationState int

const (
	// ReservationNew means the caller owns the key and may proceed.
	ReservationNew ReservationState = iota
	// ReservationCompleted means a stored response should be replayed.
	ReservationCompleted
	// ReservationPending means another request is processing the key.
	ReservationPending
)

// ErrFingerprintMismatch is returned when a key is reused for a different
// request.
var ErrFingerprintMismatch = errors.New("idempotency key reused for a different request")

// Record is a stored reservation or response.
type Record struct {
	Status      Status
	Fingerprint string
	Code        int
	ContentType string
	Body        []byte
}

// Store persists reservations and responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string) (ReservationState, Record, error)
	Save(ctx context.Context, key string, rec Record) error
	Release(ctx context.Context, key string) error
}

// RedisStore is a Store on Redis. Reservation is a single SET NX, so two
// requests racing on one key cannot both proceed.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore. A non-positive ttl means DefaultTTL.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: "idempotency:", ttl: ttl}
}

func (s *RedisStore) redisKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return s.prefix + hex.EncodeToString(sum[:])
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string) (ReservationState, Record, error) {
	rk := s.redisKey(key)
	pending := Record{Status: StatusPending, Fingerprint: fingerprint}

	ok, err := s.client.SetNX(ctx, rk, encodeRecord(pending), s.ttl).Result()
	if err != nil {
		return 0, Record{}, errors.Wrap(err, "reserve key")
	}
	if ok {
		return ReservationNew, pending, nil
	}

	raw, err := s.client.Get(ctx, rk).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET.
			return ReservationPending, Record{}, nil
		}
		return 0, Record{}, errors.Wrap(err, "get record")
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return 0, Record{}, errors.Wrap(err, "decode record")
	}
	if rec.Fingerprint != fingerprint {
		return 0, Record{}, ErrFingerprintMismatch
	}
	if rec.Status == StatusCompleted {
		return ReservationCompleted, rec, nil
	}
	return ReservationPending, rec, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, rec Record) error {
	rec.Status = StatusCompleted
	if err := s.client.Set(ctx, s.redisKey(key), encodeRecord(rec), s.ttl).Err(); err != nil {
		return errors.Wrap(err, "save record")
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return errors.Wrap(err, "release key")
	}
	return nil
}

func encodeRecord(r Record) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(string(r.Status)) })
		e.Field("fingerprint", func(e *jx.Encoder) { e.Str(r.Fingerprint) })
		if r.Status == StatusCompleted {
			e.Field("code", func(e *jx.Encoder) { e.Int(r.Code) })
			e.Field("content_type", func(e *jx.Encoder) { e.Str(r.ContentType) })
			e.Field("body", func(e *jx.Encoder) { e.Base64(r.Body) })
		}
	})
	return e.Bytes()
}

func decodeRecord(data []byte) (Record, error) {
	var r Record
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			r.Status = Status(s)
			return err
		case "fingerprint":
			s, err := d.Str()
			r.Fingerprint = s
			return err
		case "code":
			n, err := d.Int()
			r.Code = n
			return err
		case "content_type":
			s, err := d.Str()
			r.ContentType = s
			return err
		case "body":
			b, err := d.Base64()
			r.Body = b
			return err
		default:
			return d.Skip()
		}
	})
	return r, err
}
