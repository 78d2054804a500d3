// Package memory is an in-process RepositoryManager for development runs and
// tests. Transactions are serialized: WithTx holds the store lock for the whole
// unit of work and works on a copy that replaces the live state only on
// success, so a concurrent rotation observes the committed result of the one
// before it.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
)

type tokenRow struct {
	rec models.RefreshToken
	seq uint64
}

type state struct {
	users   map[string]models.User
	byEmail map[string]string
	tokens  map[string]tokenRow
	byHash  map[string]string
	seq     uint64
}

func newState() *state {
	return &state{
		users:   make(map[string]models.User),
		byEmail: make(map[string]string),
		tokens:  make(map[string]tokenRow),
		byHash:  make(map[string]string),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:   make(map[string]models.User, len(s.users)),
		byEmail: make(map[string]string, len(s.byEmail)),
		tokens:  make(map[string]tokenRow, len(s.tokens)),
		byHash:  make(map[string]string, len(s.byHash)),
		seq:     s.seq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.byEmail {
		c.byEmail[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.byHash {
		c.byHash[k] = v
	}
	return c
}

// access runs fn against some state, either under the store lock or directly
// inside an already locked transaction.
type access func(fn func(st *state) error) error

// Store implements repomanager.RepositoryManager in memory.
type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

type Option func(*Store)

// WithClock sets the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{data: newState(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ repomanager.RepositoryManager = (*Store)(nil)

func (s *Store) locked(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) Users() users.Repository {
	return &usersRepo{with: s.locked, now: s.now}
}

func (s *Store) RefreshTokens() refreshtokens.Repository {
	return &tokensRepo{with: s.locked, now: s.now}
}

type txRepos struct {
	st  *state
	now func() time.Time
}

func (t txRepos) direct(fn func(st *state) error) error { return fn(t.st) }

func (t txRepos) Users() users.Repository {
	return &usersRepo{with: t.direct, now: t.now}
}

func (t txRepos) RefreshTokens() refreshtokens.Repository {
	return &tokensRepo{with: t.direct, now: t.now}
}

// WithTx runs fn with exclusive access. fn must only use the repositories it
// is handed; calling the Store's own repositories from inside fn deadlocks.
func (s *Store) WithTx(ctx context.Context, fn repomanager.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.data.clone()
	if err := fn(ctx, txRepos{st: work, now: s.now}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// RunMigrations is a no-op; the schema is implicit.
func (s *Store) RunMigrations(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
