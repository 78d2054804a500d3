// Package session keeps the CLI's current token pair in a local SQLite
// database, so that consecutive authctl invocations share one session.
//
// The table holds at most one row: saving replaces it, clearing deletes it.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/session/migrations"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// ErrNoSession is returned by Load when nothing is stored.
var ErrNoSession = errors.New("not logged in")

type Session struct {
	ServerURL    string
	Email        string
	AccessToken  string
	RefreshToken string
	SavedAt      time.Time
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var gooseUpContext = goose.UpContext

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return gooseUpContext(ctx, db, ".")
}

// Open opens (creating if needed) the session database at dsn and applies
// migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Save(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (id, server_url, email, access_token, refresh_token, saved_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			server_url = excluded.server_url,
			email = excluded.email,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			saved_at = excluded.saved_at
	`, sess.ServerURL, sess.Email, sess.AccessToken, sess.RefreshToken, s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// UpdateTokens replaces the token pair of the stored session after a
// rotation.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE session SET access_token = ?, refresh_token = ?, saved_at = ? WHERE id = 1`,
		accessToken, refreshToken, s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n == 0 {
		return ErrNoSession
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (*Session, error) {
	var (
		sess    Session
		savedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT server_url, email, access_token, refresh_token, saved_at FROM session WHERE id = 1`,
	).Scan(&sess.ServerURL, &sess.Email, &sess.AccessToken, &sess.RefreshToken, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	sess.SavedAt = time.Unix(savedAt, 0)
	return &sess, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
