package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/example/slotbook/internal/booker"
	"github.com/example/slotbook/internal/browser"
	"github.com/example/slotbook/internal/config"
	"github.com/example/slotbook/internal/lock"
	"github.com/example/slotbook/internal/logger"
	"github.com/example/slotbook/internal/secret"
	"github.com/example/slotbook/internal/store"
)

// app holds what every command that touches the booking config needs.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	closeLog io.Closer
}

func newApp() (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, closeLog: closer}, nil
}

func (a *app) Close() {
	_ = a.closeLog.Close()
}

func (a *app) box() (*secret.Box, error) {
	if len(a.cfg.CredEncKey) == 0 {
		return nil, nil
	}
	return secret.New(a.cfg.CredEncKey)
}

// bookingFile loads the INI config. --production switches to the secrets mount
// unless BOOKING_CONFIG points somewhere explicit.
func (a *app) bookingFile(production bool) (*config.File, error) {
	production = production || a.cfg.Production
	path := a.cfg.BookingConfigPath
	if production && path == config.DefaultBookingConfig {
		path = config.ProductionBookingConfig
	}
	box, err := a.box()
	if err != nil {
		return nil, err
	}
	a.log.Debug("loading booking config", "path", path, "production", production)
	return config.Load(path, box, production)
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, a.cfg.DatabaseURL, a.log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// locker uses redis when REDIS_ADDR is set; the returned func closes it.
func (a *app) locker(ctx context.Context) (lock.Locker, func(), error) {
	if a.cfg.RedisAddr == "" {
		return lock.NewLocal(), func() {}, nil
	}
	r, err := lock.Dial(ctx, a.cfg.RedisAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("redis %s: %w", a.cfg.RedisAddr, err)
	}
	return r, func() { _ = r.Close() }, nil
}

func (a *app) runner(g config.Global, accounts []config.Account, st store.Store, l lock.Locker) *booker.Runner {
	return &booker.Runner{
		Global:   g,
		Accounts: accounts,
		Drivers:  &browser.Factory{Global: g, Log: a.log},
		Outcomes: st,
		Locker:   l,
		LockTTL:  a.cfg.RunTimeout,
		Log:      a.log,
	}
}
