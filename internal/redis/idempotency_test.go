package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestIdempotencyService_NewUpload(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	result, err := svc.CheckOrReserve(ctx, "device-1", "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result for new upload, got: %+v", result)
	}
}

func TestIdempotencyService_ConcurrentRetry(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	// First upload reserves the key
	if _, err := svc.CheckOrReserve(ctx, "device-1", "key-1"); err != nil {
		t.Fatalf("first upload failed: %v", err)
	}

	// A retry arriving while the first is still processing
	if _, err := svc.CheckOrReserve(ctx, "device-1", "key-1"); err != ErrUploadInFlight {
		t.Fatalf("expected ErrUploadInFlight, got: %v", err)
	}
}

func TestIdempotencyService_RetryGetsCachedResult(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	stored := &IngestResult{
		NotificationID: "7f1c2a9e",
		StatusCode:     201,
		Duplicate:      true,
		CreatedAt:      time.Now().Unix(),
	}

	if err := svc.Store(ctx, "device-1", "key-1", stored); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	result, err := svc.Check(ctx, "device-1", "key-1")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected cached result")
	}
	if result.NotificationID != "7f1c2a9e" {
		t.Errorf("expected 7f1c2a9e, got %s", result.NotificationID)
	}
	if !result.Duplicate {
		t.Error("duplicate flag must survive the round trip")
	}
}

func TestIdempotencyService_DeviceIsolation(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	// Device A reserves a key
	if _, err := svc.CheckOrReserve(ctx, "device-A", "same-key"); err != nil {
		t.Fatalf("device A failed: %v", err)
	}

	// Device B can use the same key
	result, err := svc.CheckOrReserve(ctx, "device-B", "same-key")
	if err != nil {
		t.Fatalf("device B should succeed: %v", err)
	}
	if result != nil {
		t.Fatal("device B should get nil (new upload)")
	}
}

func TestIdempotencyService_ReserveThenStore(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	reserved, err := svc.Reserve(ctx, "device-1", "key-1")
	if err != nil || !reserved {
		t.Fatalf("reserve failed: %v, reserved: %v", err, reserved)
	}

	if err := svc.Store(ctx, "device-1", "key-1", &IngestResult{
		NotificationID: "9b3d",
		StatusCode:     201,
	}); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	cached, err := svc.Check(ctx, "device-1", "key-1")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if cached.NotificationID != "9b3d" {
		t.Errorf("expected 9b3d, got %s", cached.NotificationID)
	}
}

func TestIdempotencyService_ReleaseUnblocksRetry(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "device-1", "key-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// Upload fails, lock is released
	if err := svc.Release(ctx, "device-1", "key-1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	// Retry can now reserve again
	result, err := svc.CheckOrReserve(ctx, "device-1", "key-1")
	if err != nil {
		t.Fatalf("retry after release failed: %v", err)
	}
	if result != nil {
		t.Fatal("retry should get a fresh reservation, not a cached result")
	}
}
