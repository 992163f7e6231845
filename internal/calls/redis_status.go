package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	callStatusKeyPrefix = "call_status:"
	callStatusTTL       = 24 * time.Hour
)

// redisStatusRecord is the wire form of a StatusRecord. Unlike the API view it
// carries the internal call id so eviction keeps working across replicas.
type redisStatusRecord struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
	CallID  string `json:"call_id,omitempty"`
}

// RedisStatusStore is a StatusStore shared through Redis, letting any replica
// answer status polls for calls dialed elsewhere.
type RedisStatusStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

// NewRedisStatusStore wraps a Redis client. Returns nil when the client is nil
// so callers can fall through to the in-memory store.
func NewRedisStatusStore(redisClient *redis.Client) *RedisStatusStore {
	if redisClient == nil {
		return nil
	}
	return &RedisStatusStore{
		redis:  redisClient,
		tracer: otel.Tracer("reminders.internal.calls.redis_status"),
		ttl:    callStatusTTL,
	}
}

// Track registers a freshly dialed call as {initiated, pending}.
func (s *RedisStatusStore) Track(ctx context.Context, callSID, callID string) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if callSID == "" {
		return errors.New("calls: redis status callSID required")
	}

	ctx, span := s.tracer.Start(ctx, "calls.redis_status.track")
	defer span.End()

	rec := redisStatusRecord{
		Status:  "initiated",
		Outcome: OutcomePending,
		CallID:  callID,
	}
	if err := s.set(ctx, callSID, rec); err != nil {
		span.RecordError(err)
		return fmt.Errorf("calls: track call status: %w", err)
	}
	return nil
}

// Update overwrites the record with the new status, keeping the tracked call
// id when one exists. Unknown SIDs are upserted.
func (s *RedisStatusStore) Update(ctx context.Context, callSID, status string) (StatusRecord, error) {
	if s == nil || s.redis == nil {
		return StatusRecord{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if callSID == "" {
		return StatusRecord{}, errors.New("calls: redis status callSID required")
	}

	ctx, span := s.tracer.Start(ctx, "calls.redis_status.update")
	defer span.End()

	prev, err := s.get(ctx, callSID)
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return StatusRecord{}, fmt.Errorf("calls: read call status: %w", err)
	}

	rec := redisStatusRecord{
		Status:  status,
		Outcome: OutcomeForStatus(status),
		CallID:  prev.CallID,
	}
	if err := s.set(ctx, callSID, rec); err != nil {
		span.RecordError(err)
		return StatusRecord{}, fmt.Errorf("calls: update call status: %w", err)
	}
	return StatusRecord{Status: rec.Status, Outcome: rec.Outcome, CallID: rec.CallID}, nil
}

// Get returns the current record, or ErrStatusNotFound.
func (s *RedisStatusStore) Get(ctx context.Context, callSID string) (StatusRecord, error) {
	if s == nil || s.redis == nil {
		return StatusRecord{}, ErrStatusNotFound
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := s.tracer.Start(ctx, "calls.redis_status.get")
	defer span.End()

	rec, err := s.get(ctx, callSID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return StatusRecord{}, ErrStatusNotFound
		}
		span.RecordError(err)
		return StatusRecord{}, fmt.Errorf("calls: get call status: %w", err)
	}
	return StatusRecord{Status: rec.Status, Outcome: rec.Outcome, CallID: rec.CallID}, nil
}

func (s *RedisStatusStore) get(ctx context.Context, callSID string) (redisStatusRecord, error) {
	raw, err := s.redis.Get(ctx, callStatusKey(callSID)).Result()
	if err != nil {
		return redisStatusRecord{}, err
	}
	var rec redisStatusRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return redisStatusRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func (s *RedisStatusStore) set(ctx context.Context, callSID string, rec redisStatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.redis.Set(ctx, callStatusKey(callSID), data, s.ttl).Err()
}

func callStatusKey(callSID string) string {
	return callStatusKeyPrefix + callSID
}

var _ StatusStore = (*RedisStatusStore)(nil)
