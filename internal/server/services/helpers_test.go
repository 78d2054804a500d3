package services

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/audit"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/passwords"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "test-secret"
	testPassword = "password123"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Record(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) ofType(typ string) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc   *AuthService
	store *memory.Store
	clock *clock
	codec *auth.Codec
	sink  *recordingSink
	logs  *bytes.Buffer
}

func defaultSettings() Settings {
	return Settings{
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   time.Hour,
		ClockSkewLeeway:   5 * time.Second,
		MinPasswordLength: 8,
	}
}

func newFixtureWith(t *testing.T, repos func(*memory.Store) repomanager.RepositoryManager, settings Settings, opts ...Option) *fixture {
	t.Helper()

	clk := newClock()
	store := memory.NewStore(memory.WithClock(clk.Now))
	codec, err := auth.NewCodec([]byte(testSecret), "HS256", auth.WithClock(clk.Now), auth.WithLeeway(settings.ClockSkewLeeway))
	require.NoError(t, err)
	hasher, err := passwords.NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)

	sink := &recordingSink{}
	logs := &bytes.Buffer{}
	base := []Option{
		WithClock(clk.Now),
		WithAuditSink(sink),
		WithLogger(logging.NewJSONLogger(logs, slog.LevelDebug)),
	}

	var rm repomanager.RepositoryManager = store
	if repos != nil {
		rm = repos(store)
	}
	svc, err := NewAuthService(rm, codec, hasher, settings, append(base, opts...)...)
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, clock: clk, codec: codec, sink: sink, logs: logs}
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWith(t, nil, defaultSettings(), opts...)
}

func (f *fixture) register(t *testing.T, email string) *models.TokenPair {
	t.Helper()
	pair, err := f.svc.Register(context.Background(), email, testPassword)
	require.NoError(t, err)
	return pair
}

func (f *fixture) userID(t *testing.T, email string) string {
	t.Helper()
	u, err := f.store.Users().FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return u.ID
}

// failingStore wraps the memory store and fails selected entry points.
type failingStore struct {
	*memory.Store
	txErr    error
	usersErr error
}

func (f *failingStore) WithTx(ctx context.Context, fn repomanager.TxFunc) error {
	if f.txErr != nil {
		return f.txErr
	}
	return f.Store.WithTx(ctx, fn)
}

func (f *failingStore) Users() users.Repository {
	if f.usersErr != nil {
		return failingUsers{err: f.usersErr}
	}
	return f.Store.Users()
}

type failingUsers struct{ err error }

func (u failingUsers) Create(context.Context, string, string) (*models.User, error) {
	return nil, u.err
}
func (u failingUsers) FindByEmail(context.Context, string) (*models.User, error) { return nil, u.err }
func (u failingUsers) FindByID(context.Context, string) (*models.User, error)    { return nil, u.err }
func (u failingUsers) UpdatePasswordHash(context.Context, string, string) error  { return u.err }
func (u failingUsers) LockByID(context.Context, string) error                    { return u.err }

type fakeThrottle struct {
	mu         sync.Mutex
	acquireErr error
	resetErr   error
	acquires   int
	resets     int
}

func (f *fakeThrottle) Acquire(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	return f.acquireErr
}

func (f *fakeThrottle) Reset(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resetErr
}
