package instance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camiloreynaga/yape-notifier-sub000/internal/db"
)

var errStoreDown = errors.New("store unavailable")

// MockStore is a fake instance store for testing
type MockStore struct {
	tenants   map[uuid.UUID]uuid.UUID
	instances map[db.AppInstanceKey]*db.AppInstance

	shouldFail bool

	// loseCreateRace simulates a concurrent session inserting the row
	// first: the store returns that row and reports no creation.
	loseCreateRace bool
}

func NewMockStore() *MockStore {
	return &MockStore{
		tenants:   make(map[uuid.UUID]uuid.UUID),
		instances: make(map[db.AppInstanceKey]*db.AppInstance),
	}
}

func (m *MockStore) ResolveTenant(ctx context.Context, deviceID uuid.UUID) (uuid.UUID, error) {
	if m.shouldFail {
		return uuid.Nil, errStoreDown
	}
	tenantID, ok := m.tenants[deviceID]
	if !ok {
		return uuid.Nil, db.ErrDeviceNotLinked
	}
	return tenantID, nil
}

func (m *MockStore) FindOrCreateAppInstance(ctx context.Context, key db.AppInstanceKey, label *string) (*db.AppInstance, bool, error) {
	if m.shouldFail {
		return nil, false, errStoreDown
	}
	if inst, ok := m.instances[key]; ok {
		return inst, false, nil
	}
	inst := &db.AppInstance{
		ID:            uuid.New(),
		TenantID:      key.TenantID,
		DeviceID:      key.DeviceID,
		PackageName:   key.PackageName,
		AndroidUserID: key.AndroidUserID,
		Label:         label,
		CreatedAt:     time.Now(),
	}
	m.instances[key] = inst
	if m.loseCreateRace {
		return inst, false, nil
	}
	return inst, true, nil
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestResolve_CreatesInstanceOnFirstSight(t *testing.T) {
	store := NewMockStore()
	deviceID := uuid.New()
	tenantID := uuid.New()
	store.tenants[deviceID] = tenantID

	r := NewResolver(store, zap.NewNop())

	res, err := r.Resolve(context.Background(), deviceID, "com.bcp.innovacxion.yapeapp", intPtr(10), strPtr("caja 1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TenantID == nil || *res.TenantID != tenantID {
		t.Fatal("expected tenant to be resolved")
	}
	if res.Instance == nil {
		t.Fatal("expected instance to be created")
	}
	if res.Instance.Label == nil || *res.Instance.Label != "caja 1" {
		t.Errorf("expected proposed label on first creation, got %v", res.Instance.Label)
	}
}

func TestResolve_IdempotentOnIdentityKey(t *testing.T) {
	store := NewMockStore()
	deviceID := uuid.New()
	store.tenants[deviceID] = uuid.New()

	r := NewResolver(store, zap.NewNop())
	ctx := context.Background()

	first, err := r.Resolve(ctx, deviceID, "com.bcp.innovacxion.yapeapp", intPtr(10), strPtr("caja 1"))
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}

	// Second call with a different proposed label: same instance, label
	// from the first creation wins.
	second, err := r.Resolve(ctx, deviceID, "com.bcp.innovacxion.yapeapp", intPtr(10), strPtr("caja 2"))
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}

	if first.Instance.ID != second.Instance.ID {
		t.Fatal("expected the same instance for the same identity key")
	}
	if second.Instance.Label == nil || *second.Instance.Label != "caja 1" {
		t.Errorf("label must keep first-creation value, got %v", second.Instance.Label)
	}
}

func TestResolve_DistinctAndroidUsersAreDistinctInstances(t *testing.T) {
	store := NewMockStore()
	deviceID := uuid.New()
	store.tenants[deviceID] = uuid.New()

	r := NewResolver(store, zap.NewNop())
	ctx := context.Background()

	a, err := r.Resolve(ctx, deviceID, "com.bcp.innovacxion.yapeapp", intPtr(10), nil)
	if err != nil {
		t.Fatalf("resolve user 10 failed: %v", err)
	}
	b, err := r.Resolve(ctx, deviceID, "com.bcp.innovacxion.yapeapp", intPtr(11), nil)
	if err != nil {
		t.Fatalf("resolve user 11 failed: %v", err)
	}

	if a.Instance.ID == b.Instance.ID {
		t.Fatal("two android user ids must yield two distinct instances")
	}
}

func TestResolve_MissingAndroidUserIDSkipsInstance(t *testing.T) {
	store := NewMockStore()
	deviceID := uuid.New()
	tenantID := uuid.New()
	store.tenants[deviceID] = tenantID

	r := NewResolver(store, zap.NewNop())

	res, err := r.Resolve(context.Background(), deviceID, "com.bcp.innovacxion.yapeapp", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TenantID == nil {
		t.Fatal("tenant should still resolve")
	}
	if res.Instance != nil {
		t.Fatal("no instance without an android user id")
	}
	if len(store.instances) != 0 {
		t.Fatal("no instance row should be created")
	}
}

func TestResolve_UnlinkedDeviceIsTerminalNotError(t *testing.T) {
	store := NewMockStore()
	r := NewResolver(store, zap.NewNop())

	res, err := r.Resolve(context.Background(), uuid.New(), "com.bcp.innovacxion.yapeapp", intPtr(10), nil)
	if err != nil {
		t.Fatalf("unlinked device must not be an error, got: %v", err)
	}
	if res.TenantID != nil || res.Instance != nil {
		t.Fatal("expected empty resolution for unlinked device")
	}
}

func TestResolve_LostCreateRaceStillResolves(t *testing.T) {
	store := NewMockStore()
	deviceID := uuid.New()
	store.tenants[deviceID] = uuid.New()
	store.loseCreateRace = true

	r := NewResolver(store, zap.NewNop())

	res, err := r.Resolve(context.Background(), deviceID, "com.bcp.innovacxion.yapeapp", intPtr(10), strPtr("caja 1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Instance == nil {
		t.Fatal("expected the concurrently created instance to be returned")
	}
	if res.Instance.ID != store.instances[db.AppInstanceKey{
		TenantID:      *res.TenantID,
		DeviceID:      deviceID,
		PackageName:   "com.bcp.innovacxion.yapeapp",
		AndroidUserID: 10,
	}].ID {
		t.Fatal("expected the stored row, not a new one")
	}
}

func TestResolve_StoreFailurePropagates(t *testing.T) {
	store := NewMockStore()
	store.shouldFail = true

	r := NewResolver(store, zap.NewNop())

	_, err := r.Resolve(context.Background(), uuid.New(), "com.bcp.innovacxion.yapeapp", intPtr(10), nil)
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store failure to propagate, got: %v", err)
	}
}
