package license

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keyauthd/keyauthd/internal/domain"
	"github.com/keyauthd/keyauthd/internal/storage"
	"github.com/keyauthd/keyauthd/internal/storage/memory"
	"github.com/keyauthd/keyauthd/internal/validation"
)

// fixedService returns a fixed-mode engine over a fresh memory store with a
// controllable clock.
func fixedService(start time.Time) (*Service, *time.Time) {
	now := start
	svc := New(memory.New(), domain.PolicyFixed).WithClock(func() time.Time { return now })
	return svc, &now
}

func deviceService(start time.Time) (*Service, *time.Time) {
	now := start
	svc := New(memory.New(), domain.PolicyDevice).WithClock(func() time.Time { return now })
	return svc, &now
}

func rejectReason(t *testing.T, err error) domain.RejectReason {
	t.Helper()
	var verr *domain.VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected VerifyError, got %v", err)
	}
	return verr.Reason
}

func TestCreateRejectsBlankName(t *testing.T) {
	svc, _ := fixedService(time.Now())

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := svc.Create(context.Background(), name, 0, "")
		var verr *validation.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Create(%q): expected ValidationError, got %v", name, err)
		}
	}
}

func TestCreateTrimsName(t *testing.T) {
	svc, _ := fixedService(time.Now())

	record, err := svc.Create(context.Background(), "  Alice  ", 0, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if record.Name != "Alice" {
		t.Errorf("Expected trimmed name 'Alice', got %q", record.Name)
	}
}

func TestCreateKeyFormat(t *testing.T) {
	svc, _ := fixedService(time.Now())

	record, err := svc.Create(context.Background(), "client", 0, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(record.Key, "sk-") {
		t.Errorf("Expected sk- prefix, got %q", record.Key)
	}
	if len(record.Key) != len("sk-")+48 {
		t.Errorf("Expected 48 hex chars after prefix, got %d total", len(record.Key))
	}
	if !record.Active {
		t.Error("Expected new key to be active")
	}
	if record.Uses != 0 {
		t.Errorf("Expected 0 uses, got %d", record.Uses)
	}
}

func TestCreateKeysUnique(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 10k key generation in short mode")
	}
	svc, _ := fixedService(time.Now())

	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		record, err := svc.Create(context.Background(), "bulk", 0, "")
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		if seen[record.Key] {
			t.Fatalf("Duplicate key generated: %s", record.Key)
		}
		seen[record.Key] = true
	}
}

func TestCreateFixedExpiry(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := fixedService(start)

	record, err := svc.Create(context.Background(), "trial", 7, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	want := start.Add(7 * 24 * time.Hour)
	if record.ExpiresAt == nil || !record.ExpiresAt.Equal(want) {
		t.Errorf("Expected expiry %v, got %v", want, record.ExpiresAt)
	}

	// Zero or negative day counts mean no expiry.
	for _, days := range []int{0, -3} {
		record, err := svc.Create(context.Background(), "perpetual", days, "")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if record.ExpiresAt != nil {
			t.Errorf("Create(expiresInDays=%d): expected nil expiry, got %v", days, record.ExpiresAt)
		}
	}
}

func TestCreateDeviceModeRequiresValidType(t *testing.T) {
	svc, _ := deviceService(time.Now())

	for _, keyType := range []domain.KeyType{"", "year", "DAY"} {
		_, err := svc.Create(context.Background(), "client", 0, keyType)
		var verr *validation.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Create(type=%q): expected ValidationError, got %v", keyType, err)
		}
	}

	record, err := svc.Create(context.Background(), "client", 0, domain.KeyTypeWeek)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if record.Type != domain.KeyTypeWeek {
		t.Errorf("Expected type week, got %q", record.Type)
	}
	if record.ExpiresAt != nil {
		t.Error("Device-mode expiry must be deferred to activation")
	}
}

// collideStore forces CreateKey collisions a fixed number of times.
type collideStore struct {
	storage.Store
	remaining int
}

func (c *collideStore) CreateKey(ctx context.Context, record *domain.KeyRecord) error {
	if c.remaining > 0 {
		c.remaining--
		return domain.ErrDuplicateKey
	}
	return c.Store.CreateKey(ctx, record)
}

func TestCreateRetriesOnCollision(t *testing.T) {
	store := &collideStore{Store: memory.New(), remaining: 2}
	svc := New(store, domain.PolicyFixed)

	record, err := svc.Create(context.Background(), "client", 0, "")
	if err != nil {
		t.Fatalf("Expected collision retries to succeed, got %v", err)
	}
	if record.Key == "" {
		t.Error("Expected a key after retries")
	}
}

func TestCreateCollisionRetriesExhaust(t *testing.T) {
	store := &collideStore{Store: memory.New(), remaining: 1000}
	svc := New(store, domain.PolicyFixed)

	_, err := svc.Create(context.Background(), "client", 0, "")
	if !errors.Is(err, domain.ErrInternal) {
		t.Errorf("Expected ErrInternal after exhausted retries, got %v", err)
	}
}

func TestVerifyFixedMode(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, now := fixedService(start)

	record, err := svc.Create(context.Background(), "Alice", 1, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	user, err := svc.Verify(context.Background(), record.Key, "", "")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if user.Name != "Alice" || user.Uses != 1 {
		t.Errorf("Expected Alice/1, got %s/%d", user.Name, user.Uses)
	}

	user, err = svc.Verify(context.Background(), record.Key, "", "")
	if err != nil {
		t.Fatalf("Second verify failed: %v", err)
	}
	if user.Uses != 2 {
		t.Errorf("Expected uses 2, got %d", user.Uses)
	}

	// Cross the 1-day boundary.
	*now = start.Add(25 * time.Hour)
	_, err = svc.Verify(context.Background(), record.Key, "", "")
	if got := rejectReason(t, err); got != domain.RejectExpired {
		t.Errorf("Expected Expired, got %s", got)
	}
}

func TestVerifyMissingKey(t *testing.T) {
	svc, _ := fixedService(time.Now())

	_, err := svc.Verify(context.Background(), "", "", "")
	if got := rejectReason(t, err); got != domain.RejectMissingKey {
		t.Errorf("Expected MissingKey, got %s", got)
	}
}

func TestVerifyInvalidKey(t *testing.T) {
	svc, _ := fixedService(time.Now())

	_, err := svc.Verify(context.Background(), "sk-nope", "", "")
	if got := rejectReason(t, err); got != domain.RejectInvalidKey {
		t.Errorf("Expected InvalidKey, got %s", got)
	}
}

func TestVerifyAfterDelete(t *testing.T) {
	svc, _ := fixedService(time.Now())

	record, _ := svc.Create(context.Background(), "gone", 0, "")
	if err := svc.Delete(context.Background(), record.Key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// A deleted key is indistinguishable from one never issued.
	_, err := svc.Verify(context.Background(), record.Key, "", "")
	if got := rejectReason(t, err); got != domain.RejectInvalidKey {
		t.Errorf("Expected InvalidKey, got %s", got)
	}

	if err := svc.Delete(context.Background(), record.Key); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRevokeIsPermanentAndIdempotent(t *testing.T) {
	svc, _ := fixedService(time.Now())

	record, _ := svc.Create(context.Background(), "revokee", 0, "")

	if err := svc.Revoke(context.Background(), record.Key); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := svc.Revoke(context.Background(), record.Key); err != nil {
		t.Errorf("Second revoke should succeed, got %v", err)
	}

	_, err := svc.Verify(context.Background(), record.Key, "", "")
	if got := rejectReason(t, err); got != domain.RejectRevoked {
		t.Errorf("Expected Revoked, got %s", got)
	}

	if err := svc.Revoke(context.Background(), "sk-missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestVerifyDeviceModeMissingDeviceID(t *testing.T) {
	svc, _ := deviceService(time.Now())

	record, _ := svc.Create(context.Background(), "client", 0, domain.KeyTypeDay)

	_, err := svc.Verify(context.Background(), record.Key, "", "")
	if got := rejectReason(t, err); got != domain.RejectMissingDeviceID {
		t.Errorf("Expected MissingDeviceID, got %s", got)
	}

	// Missing deviceId is checked before lookup.
	_, err = svc.Verify(context.Background(), "sk-missing", "", "")
	if got := rejectReason(t, err); got != domain.RejectMissingDeviceID {
		t.Errorf("Expected MissingDeviceID before lookup, got %s", got)
	}
}

func TestVerifyActivationBindsDeviceAndClock(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, now := deviceService(start)

	record, _ := svc.Create(context.Background(), "client", 0, domain.KeyTypeWeek)

	activation := start.Add(3 * 24 * time.Hour)
	*now = activation
	user, err := svc.Verify(context.Background(), record.Key, "device-a", "Alice's Laptop")
	if err != nil {
		t.Fatalf("First verify failed: %v", err)
	}
	want := activation.Add(7 * 24 * time.Hour)
	if user.ExpiresAt == nil || !user.ExpiresAt.Equal(want) {
		t.Errorf("Expected expiry %v (activation + 1 week), got %v", want, user.ExpiresAt)
	}
	if user.DeviceName != "Alice's Laptop" {
		t.Errorf("Expected device name in result, got %q", user.DeviceName)
	}

	// Subsequent verifies must not move the expiry date.
	*now = activation.Add(time.Hour)
	user, err = svc.Verify(context.Background(), record.Key, "device-a", "")
	if err != nil {
		t.Fatalf("Second verify failed: %v", err)
	}
	if user.ExpiresAt == nil || !user.ExpiresAt.Equal(want) {
		t.Errorf("Expiry moved on re-verify: %v != %v", user.ExpiresAt, want)
	}
	if user.Uses != 2 {
		t.Errorf("Expected uses 2, got %d", user.Uses)
	}
}

func TestVerifyLifetimeNeverExpires(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, now := deviceService(start)

	record, _ := svc.Create(context.Background(), "forever", 0, domain.KeyTypeLifetime)

	user, err := svc.Verify(context.Background(), record.Key, "device-a", "")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if user.ExpiresAt != nil {
		t.Errorf("Lifetime key must have nil expiry, got %v", user.ExpiresAt)
	}

	*now = start.Add(10 * 365 * 24 * time.Hour)
	if _, err := svc.Verify(context.Background(), record.Key, "device-a", ""); err != nil {
		t.Errorf("Lifetime key rejected after 10 years: %v", err)
	}
}

func TestVerifyDeviceMismatch(t *testing.T) {
	svc, _ := deviceService(time.Now())

	record, _ := svc.Create(context.Background(), "client", 0, domain.KeyTypeMonth)

	if _, err := svc.Verify(context.Background(), record.Key, "device-a", "Laptop"); err != nil {
		t.Fatalf("First verify failed: %v", err)
	}

	_, err := svc.Verify(context.Background(), record.Key, "device-b", "Tablet")
	var verr *domain.VerifyError
	if !errors.As(err, &verr) || verr.Reason != domain.RejectDeviceMismatch {
		t.Fatalf("Expected DeviceMismatch, got %v", err)
	}
	if verr.BoundDeviceName != "Laptop" {
		t.Errorf("Expected bound device name 'Laptop', got %q", verr.BoundDeviceName)
	}

	// The bound device still verifies and the counter keeps moving.
	user, err := svc.Verify(context.Background(), record.Key, "device-a", "")
	if err != nil {
		t.Fatalf("Bound device rejected: %v", err)
	}
	if user.Uses != 2 {
		t.Errorf("Expected uses 2 (mismatch must not count), got %d", user.Uses)
	}
}

func TestVerifyDeviceMismatchBeatsExpired(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, now := deviceService(start)

	record, _ := svc.Create(context.Background(), "client", 0, domain.KeyTypeDay)
	if _, err := svc.Verify(context.Background(), record.Key, "device-a", ""); err != nil {
		t.Fatalf("Activation failed: %v", err)
	}

	// Expired AND on the wrong device: the mismatch wins.
	*now = start.Add(48 * time.Hour)
	_, err := svc.Verify(context.Background(), record.Key, "device-b", "")
	if got := rejectReason(t, err); got != domain.RejectDeviceMismatch {
		t.Errorf("Expected DeviceMismatch to take precedence, got %s", got)
	}

	// The right device now sees the expiry.
	_, err = svc.Verify(context.Background(), record.Key, "device-a", "")
	if got := rejectReason(t, err); got != domain.RejectExpired {
		t.Errorf("Expected Expired, got %s", got)
	}
}

func TestVerifyRevokedBeatsEverything(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, now := deviceService(start)

	record, _ := svc.Create(context.Background(), "client", 0, domain.KeyTypeDay)
	if _, err := svc.Verify(context.Background(), record.Key, "device-a", ""); err != nil {
		t.Fatalf("Activation failed: %v", err)
	}
	if err := svc.Revoke(context.Background(), record.Key); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	// Revoked, expired, and on the wrong device: revoked is reported.
	*now = start.Add(48 * time.Hour)
	_, err := svc.Verify(context.Background(), record.Key, "device-b", "")
	if got := rejectReason(t, err); got != domain.RejectRevoked {
		t.Errorf("Expected Revoked, got %s", got)
	}
}

func TestVerifyBlankDeviceNameDefaults(t *testing.T) {
	svc, _ := deviceService(time.Now())

	for _, deviceName := range []string{"", "   "} {
		record, _ := svc.Create(context.Background(), "client", 0, domain.KeyTypeDay)
		user, err := svc.Verify(context.Background(), record.Key, "device-a", deviceName)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if user.DeviceName != "Unknown Device" {
			t.Errorf("Verify(deviceName=%q): expected 'Unknown Device', got %q", deviceName, user.DeviceName)
		}
	}
}

func TestVerifyActivationRaceSameDevice(t *testing.T) {
	svc, _ := deviceService(time.Now())

	record, _ := svc.Create(context.Background(), "client", 0, domain.KeyTypeMonth)

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Verify(context.Background(), record.Key, "device-a", "Laptop")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Verify %d failed: %v", i, err)
		}
	}

	views, _ := svc.List(context.Background())
	if len(views) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(views))
	}
	if views[0].Uses != n {
		t.Errorf("Expected exactly %d uses, got %d", n, views[0].Uses)
	}
	if views[0].ActivatedAt == nil {
		t.Error("Expected key to be activated")
	}
}

func TestVerifyActivationRaceDistinctDevices(t *testing.T) {
	svc, _ := deviceService(time.Now())

	record, _ := svc.Create(context.Background(), "client", 0, domain.KeyTypeMonth)

	const n = 50
	var wg sync.WaitGroup
	users := make([]*domain.VerifyUser, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			deviceID := "device-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
			users[i], errs[i] = svc.Verify(context.Background(), record.Key, deviceID, "")
		}(i)
	}
	wg.Wait()

	// Exactly one caller wins the activation; the rest are evaluated
	// against the winner's bound device and rejected.
	successes := 0
	for i := range errs {
		if errs[i] == nil {
			successes++
			continue
		}
		var verr *domain.VerifyError
		if !errors.As(errs[i], &verr) || verr.Reason != domain.RejectDeviceMismatch {
			t.Errorf("Loser %d: expected DeviceMismatch, got %v", i, errs[i])
		}
	}
	if successes != 1 {
		t.Errorf("Expected exactly 1 activation winner, got %d", successes)
	}

	views, _ := svc.List(context.Background())
	if views[0].Uses != 1 {
		t.Errorf("Expected 1 use (rejections must not count), got %d", views[0].Uses)
	}
	if views[0].DeviceID == nil {
		t.Error("Expected a bound device")
	}
}

func TestListOrderAndStatus(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, now := deviceService(start)

	// Create four keys a minute apart, then drive each into a distinct state.
	keys := make([]*domain.KeyRecord, 4)
	for i := range keys {
		*now = start.Add(time.Duration(i) * time.Minute)
		record, err := svc.Create(context.Background(), "client", 0, domain.KeyTypeDay)
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		keys[i] = record
	}

	if err := svc.Revoke(context.Background(), keys[0].Key); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := svc.Verify(context.Background(), keys[1].Key, "device-a", ""); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if _, err := svc.Verify(context.Background(), keys[2].Key, "device-a", ""); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	// Advance past both activations' day window, then revoke keys[2] so it
	// is both expired and revoked.
	*now = start.Add(3*time.Minute + 25*time.Hour)
	if err := svc.Revoke(context.Background(), keys[2].Key); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	views, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(views) != 4 {
		t.Fatalf("Expected 4 keys, got %d", len(views))
	}

	// Newest first.
	for i := 0; i < len(views)-1; i++ {
		if views[i].CreatedAt.Before(views[i+1].CreatedAt) {
			t.Errorf("Listing out of order at %d", i)
		}
	}

	statuses := make(map[string]domain.KeyStatus)
	for _, view := range views {
		statuses[view.Key] = view.Status
	}
	if statuses[keys[0].Key] != domain.StatusRevoked {
		t.Errorf("keys[0]: expected revoked, got %s", statuses[keys[0].Key])
	}
	if statuses[keys[1].Key] != domain.StatusExpired {
		t.Errorf("keys[1]: expected expired, got %s", statuses[keys[1].Key])
	}
	if statuses[keys[2].Key] != domain.StatusRevoked {
		t.Errorf("keys[2]: expected revoked to beat expired, got %s", statuses[keys[2].Key])
	}
	if statuses[keys[3].Key] != domain.StatusUnused {
		t.Errorf("keys[3]: expected unused, got %s", statuses[keys[3].Key])
	}
}
