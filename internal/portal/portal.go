// Package portal drives the site's login page.
package portal

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/browser"
	"github.com/example/slotbook/internal/clock"
)

const (
	DefaultLoginURL = "https://sportsbookings.leeds.ac.uk/lhweb/identity/login"

	cookieText         = "Accept"
	cookiePollInterval = 250 * time.Millisecond
	cookieTimeout      = 10 * time.Second
)

var (
	cookieButton  = browser.Tag("button")
	usernameInput = browser.ID("xn-Username")
	passwordInput = browser.ID("xn-Password")
	loginButton   = browser.ID("login")
)

type Portal struct {
	Driver   browser.Driver
	Log      *slog.Logger
	LoginURL string
	Sleep    clock.Sleeper
}

func New(d browser.Driver, log *slog.Logger) *Portal {
	return &Portal{Driver: d, Log: log, LoginURL: DefaultLoginURL, Sleep: clock.Sleep}
}

// SignIn opens the login page, dismisses the cookie banner and submits the form.
func (p *Portal) SignIn(ctx context.Context, username, password string) error {
	if err := p.Driver.Navigate(ctx, p.LoginURL); err != nil {
		return err
	}
	if err := p.AcceptCookies(ctx); err != nil {
		return err
	}
	return p.Login(ctx, username, password)
}

// AcceptCookies waits for a button labelled "Accept" and clicks it. The banner
// renders asynchronously, so buttons are re-read every poll until cookieTimeout.
func (p *Portal) AcceptCookies(ctx context.Context) error {
	if _, err := p.Driver.WaitFor(ctx, cookieButton, browser.DefaultWait); err != nil {
		return err
	}
	polls := int(cookieTimeout / cookiePollInterval)
	for i := 0; i < polls; i++ {
		buttons, err := p.Driver.FindAll(ctx, cookieButton)
		if err != nil {
			return err
		}
		for _, b := range buttons {
			text, err := b.Text(ctx)
			if err != nil {
				continue
			}
			if strings.TrimSpace(text) == cookieText {
				p.Log.Debug("accepting cookies")
				return b.Click(ctx)
			}
		}
		if err := p.Sleep(ctx, cookiePollInterval); err != nil {
			return err
		}
	}
	return booking.TimedOut("accept cookies", "no \"Accept\" button after "+cookieTimeout.String())
}

func (p *Portal) Login(ctx context.Context, username, password string) error {
	user, err := p.Driver.WaitFor(ctx, usernameInput, browser.DefaultWait)
	if err != nil {
		return err
	}
	pass, err := p.Driver.WaitFor(ctx, passwordInput, browser.DefaultWait)
	if err != nil {
		return err
	}
	submit, err := p.Driver.WaitFor(ctx, loginButton, browser.DefaultWait)
	if err != nil {
		return err
	}
	if err := user.Type(ctx, username); err != nil {
		return err
	}
	if err := pass.Type(ctx, password); err != nil {
		return err
	}
	p.Log.Info("logging in", "username", username)
	return submit.Click(ctx)
}
