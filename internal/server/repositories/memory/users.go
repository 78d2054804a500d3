package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/google/uuid"
)

type usersRepo struct {
	with access
	now  func() time.Time
}

func (r *usersRepo) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	var out models.User
	err := r.with(func(st *state) error {
		if _, taken := st.byEmail[email]; taken {
			return common.ErrAlreadyExists
		}
		out = models.User{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: passwordHash,
			IsActive:     true,
			CreatedAt:    r.now(),
		}
		st.users[out.ID] = out
		st.byEmail[email] = out.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *usersRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var out models.User
	err := r.with(func(st *state) error {
		id, ok := st.byEmail[email]
		if !ok {
			return common.ErrorNotFound
		}
		out = st.users[id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *usersRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	var out models.User
	err := r.with(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return common.ErrorNotFound
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return r.with(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return common.ErrorNotFound
		}
		u.PasswordHash = passwordHash
		st.users[id] = u
		return nil
	})
}

// LockByID only checks that the user exists; transactions on the Store are
// already serialized.
func (r *usersRepo) LockByID(ctx context.Context, id string) error {
	return r.with(func(st *state) error {
		if _, ok := st.users[id]; !ok {
			return common.ErrorNotFound
		}
		return nil
	})
}

// SetActive flips the account flag. There is no HTTP surface for it; it
// exists for operators of a dev instance and for tests.
func (s *Store) SetActive(id string, active bool) error {
	return s.locked(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return common.ErrorNotFound
		}
		u.IsActive = active
		st.users[id] = u
		return nil
	})
}
