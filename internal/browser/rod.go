package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/example/slotbook/internal/booking"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type rodDriver struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher // nil unless we started the browser
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return p.WaitLoad()
}

func (d *rodDriver) Find(ctx context.Context, loc Locator) (Element, error) {
	p := d.page.Context(ctx)
	var (
		has bool
		el  *rod.Element
		err error
	)
	if loc.By == ByXPath {
		has, el, err = p.HasX(loc.Value)
	} else {
		has, el, err = p.Has(loc.css())
	}
	if err != nil {
		return nil, booking.ElementError("find", loc.String(), err)
	}
	if !has {
		return nil, booking.ElementError("find", loc.String(), errors.New("not found"))
	}
	return &rodElement{el: el}, nil
}

func (d *rodDriver) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	p := d.page.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if loc.By == ByXPath {
		els, err = p.ElementsX(loc.Value)
	} else {
		els, err = p.Elements(loc.css())
	}
	if err != nil {
		return nil, booking.ElementError("find all", loc.String(), err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (d *rodDriver) WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	p := d.page.Context(ctx).Timeout(timeout)
	var (
		el  *rod.Element
		err error
	)
	if loc.By == ByXPath {
		el, err = p.ElementX(loc.Value)
	} else {
		el, err = p.Element(loc.css())
	}
	if err != nil {
		return nil, booking.ElementError("wait", loc.String(), err)
	}
	// drop the timeout so later actions on the element are not bound by it
	return &rodElement{el: el.CancelTimeout()}, nil
}

func (d *rodDriver) Eval(ctx context.Context, js string) (any, error) {
	res, err := d.page.Context(ctx).Eval(js)
	if err != nil {
		return nil, err
	}
	if res.Value.Nil() {
		return nil, nil
	}
	return res.Value.Val(), nil
}

func (d *rodDriver) Screenshot(ctx context.Context, path string) error {
	b, err := d.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// closeTimeout bounds teardown once it no longer follows the attempt context.
const closeTimeout = 10 * time.Second

// Close runs even after the attempt context is done, so the browser is
// detached from it first; otherwise a remote browser would be left open.
func (d *rodDriver) Close() error {
	b, cancel := detached(d.browser)
	defer cancel()
	err := b.Close()
	if d.launcher != nil {
		d.launcher.Kill()
	}
	return err
}

func detached(b *rod.Browser) (*rod.Browser, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(b.GetContext()), closeTimeout)
	return b.Context(ctx), cancel
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Type(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (e *rodElement) Select(ctx context.Context, label string) error {
	return e.el.Context(ctx).Select([]string{label}, true, rod.SelectorTypeText)
}
