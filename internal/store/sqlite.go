package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/slotbook/internal/booking"
	sqlite3 "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one connection: keeps :memory: a single database and serialises writers
	db.SetMaxOpenConns(1)

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  username TEXT NOT NULL UNIQUE,
  password_bcrypt TEXT NOT NULL,
  created_at TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS outcomes (
  id TEXT PRIMARY KEY,
  account TEXT NOT NULL,
  success INTEGER NOT NULL,
  state TEXT NOT NULL,
  error_kind TEXT NOT NULL DEFAULT '',
  error_code TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT '',
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  basket_id TEXT NOT NULL DEFAULT '',
  activity TEXT NOT NULL DEFAULT '',
  screenshot TEXT NOT NULL DEFAULT ''
);`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_account_started ON outcomes(account, started_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLite) Close() error                   { return s.db.Close() }

func (s *SQLite) SaveOutcome(ctx context.Context, o *booking.Outcome) error {
	ensureID(o)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO outcomes (
  id, account, success, state, error_kind, error_code, error, started_at, finished_at, basket_id, activity, screenshot
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		o.ID, o.Account, o.Success, string(o.State), o.ErrorKind, o.ErrorCode, o.Error,
		formatTime(o.StartedAt), formatTime(o.FinishedAt), o.BasketID, o.Activity, o.Screenshot,
	)
	return err
}

const outcomeColumns = `id, account, success, state, error_kind, error_code, error, started_at, finished_at, basket_id, activity, screenshot`

func (s *SQLite) ListOutcomes(ctx context.Context, f Filter) ([]booking.Outcome, error) {
	var where []string
	var args []any
	if f.Account != "" {
		where = append(where, "account = ?")
		args = append(args, f.Account)
	}
	if f.Success != nil {
		where = append(where, "success = ?")
		args = append(args, *f.Success)
	}
	query := "SELECT " + outcomeColumns + " FROM outcomes"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, f.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Outcome
	for rows.Next() {
		o, err := scanSQLiteOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLite) GetOutcome(ctx context.Context, id string) (booking.Outcome, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+outcomeColumns+" FROM outcomes WHERE id = ?", id)
	o, err := scanSQLiteOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Outcome{}, ErrNotFound
	}
	return o, err
}

func (s *SQLite) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_bcrypt, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, formatTime(time.Now()))
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, ErrUserTaken
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLite) UserByName(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_bcrypt FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteOutcome(row scanner) (booking.Outcome, error) {
	var o booking.Outcome
	var state, started, finished string
	if err := row.Scan(&o.ID, &o.Account, &o.Success, &state, &o.ErrorKind, &o.ErrorCode, &o.Error,
		&started, &finished, &o.BasketID, &o.Activity, &o.Screenshot); err != nil {
		return booking.Outcome{}, err
	}
	o.State = booking.State(state)
	var err error
	if o.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return booking.Outcome{}, fmt.Errorf("outcome %s started_at: %w", o.ID, err)
	}
	if o.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return booking.Outcome{}, fmt.Errorf("outcome %s finished_at: %w", o.ID, err)
	}
	return o, nil
}

// Fixed-width UTC timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
