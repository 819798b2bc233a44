package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/db"
	"github.com/jackc/pgx/v5/pgconn"
)

type Postgres struct {
	db *db.DB
}

func NewPostgres(d *db.DB) *Postgres { return &Postgres{db: d} }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.Ping(ctx) }

func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}

func (p *Postgres) SaveOutcome(ctx context.Context, o *booking.Outcome) error {
	ensureID(o)
	return p.db.Exec(ctx, `
INSERT INTO outcomes(id,account,success,state,error_kind,error_code,error,started_at,finished_at,basket_id,activity,screenshot)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.Account, o.Success, string(o.State), o.ErrorKind, o.ErrorCode, o.Error,
		o.StartedAt, o.FinishedAt, o.BasketID, o.Activity, o.Screenshot,
	)
}

func (p *Postgres) ListOutcomes(ctx context.Context, f Filter) ([]booking.Outcome, error) {
	var where []string
	var args []any
	if f.Account != "" {
		args = append(args, f.Account)
		where = append(where, fmt.Sprintf("account=$%d", len(args)))
	}
	if f.Success != nil {
		args = append(args, *f.Success)
		where = append(where, fmt.Sprintf("success=$%d", len(args)))
	}
	query := "SELECT " + outcomeColumns + " FROM outcomes"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.limit())
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Outcome
	for rows.Next() {
		o, err := scanPostgresOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) GetOutcome(ctx context.Context, id string) (booking.Outcome, error) {
	o, err := scanPostgresOutcome(p.db.QueryRow(ctx, "SELECT "+outcomeColumns+" FROM outcomes WHERE id=$1", id))
	if err != nil {
		return booking.Outcome{}, notFound(err)
	}
	return o, nil
}

func (p *Postgres) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	var id int64
	err := p.db.QueryRow(ctx,
		`INSERT INTO users(username, password_bcrypt) VALUES ($1,$2) RETURNING id`,
		username, passwordHash).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return 0, ErrUserTaken
	}
	if err != nil {
		return 0, db.Wrap(err)
	}
	return id, nil
}

func (p *Postgres) UserByName(ctx context.Context, username string) (User, error) {
	var u User
	err := p.db.QueryRow(ctx, `SELECT id, username, password_bcrypt FROM users WHERE username=$1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if err != nil {
		return User{}, notFound(err)
	}
	return u, nil
}

func scanPostgresOutcome(row db.Row) (booking.Outcome, error) {
	var o booking.Outcome
	var state string
	err := row.Scan(&o.ID, &o.Account, &o.Success, &state, &o.ErrorKind, &o.ErrorCode, &o.Error,
		&o.StartedAt, &o.FinishedAt, &o.BasketID, &o.Activity, &o.Screenshot)
	o.State = booking.State(state)
	return o, err
}

func notFound(err error) error {
	if db.IsNotFound(err) {
		return ErrNotFound
	}
	return db.Wrap(err)
}
