package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/google/uuid"
)

type tokensRepo struct {
	with access
	now  func() time.Time
}

func (r *tokensRepo) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	var out models.RefreshToken
	err := r.with(func(st *state) error {
		if _, ok := st.users[userID]; !ok {
			return common.ErrorNotFound
		}
		if _, dup := st.byHash[tokenHash]; dup {
			return common.ErrAlreadyExists
		}
		st.seq++
		out = models.RefreshToken{
			ID:        uuid.NewString(),
			UserID:    userID,
			TokenHash: tokenHash,
			ExpiresAt: expiresAt,
			CreatedAt: r.now(),
		}
		st.tokens[out.ID] = tokenRow{rec: out, seq: st.seq}
		st.byHash[tokenHash] = out.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByHash ignores forUpdate; transactions already run one at a time.
func (r *tokensRepo) FindByHash(ctx context.Context, tokenHash string, forUpdate bool) (*models.RefreshToken, error) {
	var out models.RefreshToken
	err := r.with(func(st *state) error {
		id, ok := st.byHash[tokenHash]
		if !ok {
			return common.ErrorNotFound
		}
		out = st.tokens[id].rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *tokensRepo) Revoke(ctx context.Context, id string) error {
	return r.with(func(st *state) error {
		row, ok := st.tokens[id]
		if !ok {
			return nil
		}
		row.rec.Revoked = true
		st.tokens[id] = row
		return nil
	})
}

func (r *tokensRepo) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.with(func(st *state) error {
		for id, row := range st.tokens {
			if row.rec.UserID != userID || row.rec.Revoked {
				continue
			}
			row.rec.Revoked = true
			st.tokens[id] = row
			n++
		}
		return nil
	})
	return n, err
}

func (r *tokensRepo) MostRecentForUser(ctx context.Context, userID string) (*models.RefreshToken, error) {
	var (
		out   models.RefreshToken
		found bool
		best  uint64
	)
	err := r.with(func(st *state) error {
		for _, row := range st.tokens {
			if row.rec.UserID != userID || row.seq < best {
				continue
			}
			out, best, found = row.rec, row.seq, true
		}
		if !found {
			return common.ErrorNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
