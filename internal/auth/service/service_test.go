package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/bookshelf/pkg/cryptox"
	"github.com/aussiebroadwan/bookshelf/pkg/jwtx"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const (
	testIssuer   = "bookshelf-auth"
	testPassword = "correct horse battery"
)

var testSecret = bytes.Repeat([]byte("k"), 32)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "service")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	clock    *fakeClock
	store    *sqlite.Store
	ring     *jwtx.SecretRing
	reader   *sdkmetric.ManualReader
	auth     *AuthService
	accounts *AccountService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	ring, err := jwtx.NewSecretRing(testSecret)
	require.NoError(t, err)

	clock := newFakeClock()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewMetrics(provider.Meter(MeterName))
	require.NoError(t, err)

	creds := &CredentialVerifier{}
	h := &harness{
		clock:  clock,
		store:  st,
		ring:   ring,
		reader: reader,
		auth: &AuthService{
			Store:    st,
			Sessions: NewSessionStore(st.Sessions(), DefaultStoreTimeout),
			Codec: &TokenCodec{
				Signer: jwtx.NewSigner(ring),
				Verifier: jwtx.NewVerifier(ring, jwtx.VerifyOptions{
					Issuer: testIssuer,
					Now:    clock.Now,
				}),
				Issuer: testIssuer,
			},
			Credentials: creds,
			Guard:       AccountGuard{Policy: DefaultLockoutPolicy()},
			Metrics:     metrics,
			AccessTTL:   15 * time.Minute,
			RefreshTTL:  24 * time.Hour,
			Now:         clock.Now,
		},
		accounts: &AccountService{Store: st, Credentials: creds, Now: clock.Now},
	}
	return h
}

func (h *harness) createAccount(t *testing.T, username string) domain.Account {
	t.Helper()
	acct, err := h.accounts.Create(context.Background(), NewAccount{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	return acct
}

func (h *harness) login(t *testing.T, identifier string) domain.LoginResult {
	t.Helper()
	res, err := h.auth.Login(context.Background(), identifier, testPassword, domain.SessionMetadata{
		IPAddress: "192.0.2.10",
		UserAgent: "test-agent",
		Device:    "laptop",
	})
	require.NoError(t, err)
	require.False(t, res.StepUpRequired)
	return res
}

func (h *harness) reload(t *testing.T, id string) domain.Account {
	t.Helper()
	acct, err := h.store.Accounts().GetAccountByID(context.Background(), id)
	require.NoError(t, err)
	return acct
}

// counter sums the data points of a monotonic counter whose attributes
// include every given key/value pair.
func (h *harness) counter(t *testing.T, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, h.reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if hasAttrs(dp.Attributes, attrs) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func hasAttrs(set attribute.Set, want []attribute.KeyValue) bool {
	for _, kv := range want {
		v, ok := set.Value(kv.Key)
		if !ok || v.Emit() != kv.Value.Emit() {
			return false
		}
	}
	return true
}

// observedStore records the deadline of every account call and can fail
// IsEmpty on demand.
type observedStore struct {
	store.Store
	accounts *observedAccounts
}

func newObservedStore(inner store.Store) *observedStore {
	return &observedStore{Store: inner, accounts: &observedAccounts{Accounts: inner.Accounts()}}
}

func (s *observedStore) Accounts() store.Accounts { return s.accounts }

type observedAccounts struct {
	store.Accounts

	mu        sync.Mutex
	deadlines []time.Duration // remaining time at call, -1 when unbounded
	emptyErr  error
}

func (a *observedAccounts) observe(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		a.deadlines = append(a.deadlines, time.Until(dl))
		return
	}
	a.deadlines = append(a.deadlines, -1)
}

func (a *observedAccounts) seen() []time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Duration(nil), a.deadlines...)
}

func (a *observedAccounts) CreateAccount(ctx context.Context, acct domain.Account) error {
	a.observe(ctx)
	return a.Accounts.CreateAccount(ctx, acct)
}

func (a *observedAccounts) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	a.observe(ctx)
	return a.Accounts.GetAccountByID(ctx, id)
}

func (a *observedAccounts) UpdateAccountState(ctx context.Context, id string, state domain.AccountState, now time.Time) error {
	a.observe(ctx)
	return a.Accounts.UpdateAccountState(ctx, id, state, now)
}

func (a *observedAccounts) ClearFailedLogins(ctx context.Context, id string, now time.Time) error {
	a.observe(ctx)
	return a.Accounts.ClearFailedLogins(ctx, id, now)
}

func (a *observedAccounts) SetTwoFactor(ctx context.Context, id string, enabled bool, now time.Time) error {
	a.observe(ctx)
	return a.Accounts.SetTwoFactor(ctx, id, enabled, now)
}

func (a *observedAccounts) SetEmailVerified(ctx context.Context, id string, verified bool, now time.Time) error {
	a.observe(ctx)
	return a.Accounts.SetEmailVerified(ctx, id, verified, now)
}

func (a *observedAccounts) IsEmpty(ctx context.Context) (bool, error) {
	a.observe(ctx)
	if a.emptyErr != nil {
		return false, a.emptyErr
	}
	return a.Accounts.IsEmpty(ctx)
}
