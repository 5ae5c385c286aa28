package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/camiloreynaga/yape-notifier-sub000/internal/metrics"
)

const (
	// IdempotencyTTL covers client-supplied Idempotency-Key headers. The
	// capture app retries failed uploads for up to a day before giving
	// up, so keys must outlive that retry horizon.
	IdempotencyTTL = 24 * time.Hour

	// processingTTL is the lock duration while an upload is in flight.
	processingTTL = 5 * time.Minute

	processingMarker = "processing"
)

// ErrUploadInFlight signals a concurrent retry of an upload that is
// still being processed.
var ErrUploadInFlight = errors.New("upload with this idempotency key is in flight")

// IngestResult is the cached response of a completed upload, replayed
// verbatim to retries carrying the same idempotency key.
type IngestResult struct {
	NotificationID string `json:"notification_id"`
	StatusCode     int    `json:"status_code"`
	Duplicate      bool   `json:"duplicate"`
	CreatedAt      int64  `json:"created_at"`
}

// IdempotencyService suppresses replays of retried uploads. Keys are
// scoped per device so two devices can reuse the same client key
// without colliding.
type IdempotencyService struct {
	client *Client
	logger *zap.Logger
}

// NewIdempotencyService creates a new idempotency service.
func NewIdempotencyService(client *Client, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{
		client: client,
		logger: logger,
	}
}

func (s *IdempotencyService) buildKey(deviceID, idempotencyKey string) string {
	return fmt.Sprintf("ingest:idem:%s:%s", deviceID, idempotencyKey)
}

// Check retrieves a cached result for an idempotency key.
// Returns (nil, nil) if the key doesn't exist, (result, nil) if found,
// or ErrUploadInFlight if the key is currently being processed.
func (s *IdempotencyService) Check(ctx context.Context, deviceID, idempotencyKey string) (*IngestResult, error) {
	key := s.buildKey(deviceID, idempotencyKey)

	val, err := s.client.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	if val == processingMarker {
		return nil, ErrUploadInFlight
	}

	var result IngestResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		s.logger.Error("failed to unmarshal cached ingest result", zap.Error(err))
		return nil, fmt.Errorf("invalid cached result: %w", err)
	}

	metrics.RecordIdempotencyHit()
	s.logger.Debug("idempotency cache hit",
		zap.String("device_id", deviceID),
		zap.String("notification_id", result.NotificationID),
	)

	return &result, nil
}

// Store saves the result of a successfully processed upload so retries
// get the original response instead of a second record.
func (s *IdempotencyService) Store(ctx context.Context, deviceID, idempotencyKey string, result *IngestResult) error {
	key := s.buildKey(deviceID, idempotencyKey)

	if result.CreatedAt == 0 {
		result.CreatedAt = time.Now().Unix()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := s.client.rdb.Set(ctx, key, data, IdempotencyTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Reserve acquires the processing lock with SET NX.
// Returns true if the lock was acquired, false if the key already exists.
func (s *IdempotencyService) Reserve(ctx context.Context, deviceID, idempotencyKey string) (bool, error) {
	key := s.buildKey(deviceID, idempotencyKey)

	set, err := s.client.rdb.SetNX(ctx, key, processingMarker, processingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	return set, nil
}

// CheckOrReserve checks for an existing result or reserves the key.
// Returns the cached result if found, nil if reserved successfully.
func (s *IdempotencyService) CheckOrReserve(ctx context.Context, deviceID, idempotencyKey string) (*IngestResult, error) {
	result, err := s.Check(ctx, deviceID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	reserved, err := s.Reserve(ctx, deviceID, idempotencyKey)
	if err != nil {
		return nil, err
	}

	if !reserved {
		return nil, ErrUploadInFlight
	}

	return nil, nil
}

// Release drops the processing lock after a failed upload so the
// device's retry can go through instead of waiting out the lock TTL.
func (s *IdempotencyService) Release(ctx context.Context, deviceID, idempotencyKey string) error {
	key := s.buildKey(deviceID, idempotencyKey)
	if err := s.client.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
