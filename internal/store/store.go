// Package store persists booking outcomes and dashboard users.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/db"
	"github.com/example/slotbook/internal/migrate"
	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrUserTaken = errors.New("username already exists")
)

const DefaultLimit = 50

type Filter struct {
	Account string
	Success *bool
	Limit   int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
}

type Store interface {
	// SaveOutcome inserts o, assigning an id if it has none.
	SaveOutcome(ctx context.Context, o *booking.Outcome) error
	// ListOutcomes returns outcomes newest first.
	ListOutcomes(ctx context.Context, f Filter) ([]booking.Outcome, error)
	GetOutcome(ctx context.Context, id string) (booking.Outcome, error)

	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)
	UserByName(ctx context.Context, username string) (User, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open picks a backend from the URL scheme: postgres:// and postgresql:// use pgx,
// sqlite:// (or a bare path) uses sqlite.
func Open(ctx context.Context, databaseURL string, log *slog.Logger) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		d, err := db.Open(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		if err := d.Ping(ctx); err != nil {
			d.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		if err := migrate.Up(ctx, d, log); err != nil {
			d.Close()
			return nil, err
		}
		return NewPostgres(d), nil
	default:
		return OpenSQLite(strings.TrimPrefix(databaseURL, "sqlite://"))
	}
}

func ensureID(o *booking.Outcome) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
}
