package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/slotbook/internal/config"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/playwright-community/playwright-go"
)

// Factory builds a ready Driver from the global config. It does not retry.
type Factory struct {
	Global config.Global
	Log    *slog.Logger
}

func (f *Factory) New(ctx context.Context) (Driver, error) {
	f.Log.Info("starting browser",
		"engine", f.Global.DriverEngine,
		"backend", f.Global.DriverBackend,
		"headless", f.Global.HeadlessMode)

	switch f.Global.DriverEngine {
	case config.EngineRod:
		return f.newRod(ctx)
	default:
		return f.newPlaywright()
	}
}

func (f *Factory) newPlaywright() (Driver, error) {
	pw, err := playwright.Run(&playwright.RunOptions{Browsers: []string{f.Global.Browser}})
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	bt := pw.Firefox
	if f.Global.Browser == "chromium" {
		bt = pw.Chromium
	}

	var b playwright.Browser
	if f.Global.DriverBackend == config.BackendLocal {
		b, err = bt.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(f.Global.HeadlessMode),
		})
	} else {
		// remote and docker both expose a playwright run-server websocket
		b, err = bt.Connect(f.Global.DriverURL)
	}
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch %s (%s): %w", f.Global.Browser, f.Global.DriverBackend, err)
	}

	page, err := b.NewPage()
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &playwrightDriver{pw: pw, browser: b, page: page}, nil
}

func (f *Factory) newRod(ctx context.Context) (Driver, error) {
	d := &rodDriver{}
	var controlURL string
	var err error

	switch f.Global.DriverBackend {
	case config.BackendLocal:
		d.launcher = launcher.New().Headless(f.Global.HeadlessMode)
		controlURL, err = d.launcher.Launch()
	case config.BackendDocker:
		// the container publishes the DevTools HTTP endpoint; resolve its websocket
		controlURL, err = launcher.ResolveURL(f.Global.DriverURL)
	default:
		controlURL = f.Global.DriverURL
	}
	if err != nil {
		return nil, fmt.Errorf("resolve browser (%s): %w", f.Global.DriverBackend, err)
	}

	d.browser = rod.New().Context(ctx).ControlURL(controlURL)
	if err := d.browser.Connect(); err != nil {
		if d.launcher != nil {
			d.launcher.Kill()
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	if f.Global.Stealth {
		d.page, err = stealth.Page(d.browser)
	} else {
		d.page, err = d.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	return d, nil
}

// Install downloads the playwright driver and the configured browser.
func Install(browserName string) error {
	return playwright.Install(&playwright.RunOptions{Browsers: []string{browserName}})
}
