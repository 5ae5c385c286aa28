package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MockStore records the query window and answers from a fixed set of
// stored events.
type MockStore struct {
	events []storedEvent

	lastFrom time.Time
	lastTo   time.Time

	shouldFail bool
}

type storedEvent struct {
	deviceID   uuid.UUID
	sourceApp  string
	body       string
	receivedAt time.Time
}

func (m *MockStore) HasDuplicate(ctx context.Context, deviceID uuid.UUID, sourceApp, body string, from, to time.Time) (bool, error) {
	if m.shouldFail {
		return false, errors.New("store unavailable")
	}
	m.lastFrom, m.lastTo = from, to
	for _, ev := range m.events {
		if ev.deviceID == deviceID && ev.sourceApp == sourceApp && ev.body == body &&
			!ev.receivedAt.Before(from) && !ev.receivedAt.After(to) {
			return true, nil
		}
	}
	return false, nil
}

func TestIsDuplicate_WithinWindow(t *testing.T) {
	deviceID := uuid.New()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	store := &MockStore{events: []storedEvent{
		{deviceID, "yape", "MARIA LOPEZ te envió un pago por S/ 120.50", base},
	}}
	d := NewDetector(store, 5*time.Second, zap.NewNop())

	dup, err := d.IsDuplicate(context.Background(), deviceID, "yape",
		"MARIA LOPEZ te envió un pago por S/ 120.50", base.Add(2*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup {
		t.Fatal("expected duplicate within 2 seconds")
	}
}

func TestIsDuplicate_OutsideWindow(t *testing.T) {
	deviceID := uuid.New()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	store := &MockStore{events: []storedEvent{
		{deviceID, "yape", "MARIA LOPEZ te envió un pago por S/ 120.50", base},
	}}
	d := NewDetector(store, 5*time.Second, zap.NewNop())

	dup, err := d.IsDuplicate(context.Background(), deviceID, "yape",
		"MARIA LOPEZ te envió un pago por S/ 120.50", base.Add(6*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup {
		t.Fatal("identical body outside the window must not be a duplicate")
	}
}

func TestIsDuplicate_WindowBoundariesInclusive(t *testing.T) {
	deviceID := uuid.New()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	store := &MockStore{events: []storedEvent{
		{deviceID, "yape", "body", base},
	}}
	d := NewDetector(store, 5*time.Second, zap.NewNop())

	// Exactly window distance away: still a duplicate.
	dup, err := d.IsDuplicate(context.Background(), deviceID, "yape", "body", base.Add(5*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup {
		t.Fatal("window is inclusive at the boundary")
	}
}

func TestIsDuplicate_ExactBodyMatchOnly(t *testing.T) {
	deviceID := uuid.New()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	store := &MockStore{events: []storedEvent{
		{deviceID, "yape", "MARIA te envió un pago por S/ 10.00", base},
	}}
	d := NewDetector(store, 5*time.Second, zap.NewNop())

	dup, err := d.IsDuplicate(context.Background(), deviceID, "yape",
		"MARIA te envió un pago por S/ 10.01", base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup {
		t.Fatal("body comparison must be exact, not fuzzy")
	}
}

func TestIsDuplicate_ScopedToDeviceAndApp(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	deviceA := uuid.New()

	store := &MockStore{events: []storedEvent{
		{deviceA, "yape", "body", base},
	}}
	d := NewDetector(store, 5*time.Second, zap.NewNop())
	ctx := context.Background()

	if dup, _ := d.IsDuplicate(ctx, uuid.New(), "yape", "body", base); dup {
		t.Fatal("other device must not match")
	}
	if dup, _ := d.IsDuplicate(ctx, deviceA, "plin", "body", base); dup {
		t.Fatal("other source app must not match")
	}
}

func TestIsDuplicate_QueriesSymmetricWindow(t *testing.T) {
	store := &MockStore{}
	d := NewDetector(store, 5*time.Second, zap.NewNop())

	target := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	if _, err := d.IsDuplicate(context.Background(), uuid.New(), "yape", "body", target); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := target.Sub(store.lastFrom); got != 5*time.Second {
		t.Errorf("lower bound offset = %s, want 5s", got)
	}
	if got := store.lastTo.Sub(target); got != 5*time.Second {
		t.Errorf("upper bound offset = %s, want 5s", got)
	}
}

func TestNewDetector_ZeroWindowUsesDefault(t *testing.T) {
	d := NewDetector(&MockStore{}, 0, zap.NewNop())
	if d.window != DefaultWindow {
		t.Errorf("window = %s, want %s", d.window, DefaultWindow)
	}
}

func TestIsDuplicate_StoreFailurePropagates(t *testing.T) {
	d := NewDetector(&MockStore{shouldFail: true}, 5*time.Second, zap.NewNop())

	_, err := d.IsDuplicate(context.Background(), uuid.New(), "yape", "body", time.Now())
	if err == nil {
		t.Fatal("expected store failure to propagate")
	}
}
