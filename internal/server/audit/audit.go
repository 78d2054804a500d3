// Package audit records security events such as refresh token reuse and
// password changes. Sinks are best effort: callers log a failed Record and
// carry on.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
)

const (
	EventRefreshTokenReuse = "refresh_token_reuse"
	EventSessionsRevoked   = "sessions_revoked"
	EventPasswordChanged   = "password_changed"
	EventLoginThrottled    = "login_throttled"
)

// Event is one security-relevant occurrence. It never carries token material.
type Event struct {
	Time     time.Time         `json:"time"`
	Type     string            `json:"type"`
	UserID   string            `json:"user_id,omitempty"`
	RecordID string            `json:"record_id,omitempty"`
	Detail   map[string]string `json:"detail,omitempty"`
}

type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Nop drops events.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// LogSink writes events to the structured log. Reuse is logged at Warn.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(l logging.Logger) *LogSink {
	return &LogSink{logger: l.With("module", "audit")}
}

func (s *LogSink) Record(ctx context.Context, e Event) error {
	args := []any{"event", e.Type, "user_id", e.UserID}
	if e.RecordID != "" {
		args = append(args, "record_id", e.RecordID)
	}
	for k, v := range e.Detail {
		args = append(args, k, v)
	}
	if e.Type == EventRefreshTokenReuse {
		s.logger.Warn(ctx, "security event", args...)
		return nil
	}
	s.logger.Info(ctx, "security event", args...)
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
