package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/slotbook/internal/booking"
	"github.com/playwright-community/playwright-go"
)

type playwrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
}

func (d *playwrightDriver) selector(loc Locator) string {
	if loc.By == ByXPath {
		return "xpath=" + loc.Value
	}
	return loc.css()
}

func (d *playwrightDriver) Navigate(ctx context.Context, url string) error {
	if _, err := d.page.Goto(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (d *playwrightDriver) Find(ctx context.Context, loc Locator) (Element, error) {
	l := d.page.Locator(d.selector(loc)).First()
	n, err := l.Count()
	if err != nil {
		return nil, booking.ElementError("find", loc.String(), err)
	}
	if n == 0 {
		return nil, booking.ElementError("find", loc.String(), errors.New("not found"))
	}
	return &playwrightElement{loc: l}, nil
}

func (d *playwrightDriver) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	all, err := d.page.Locator(d.selector(loc)).All()
	if err != nil {
		return nil, booking.ElementError("find all", loc.String(), err)
	}
	out := make([]Element, 0, len(all))
	for _, l := range all {
		out = append(out, &playwrightElement{loc: l})
	}
	return out, nil
}

func (d *playwrightDriver) WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	l := d.page.Locator(d.selector(loc)).First()
	err := l.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, booking.ElementError("wait", loc.String(), err)
	}
	return &playwrightElement{loc: l}, nil
}

func (d *playwrightDriver) Eval(ctx context.Context, js string) (any, error) {
	return d.page.Evaluate(js)
}

func (d *playwrightDriver) Screenshot(ctx context.Context, path string) error {
	_, err := d.page.Screenshot(playwright.PageScreenshotOptions{Path: playwright.String(path)})
	return err
}

func (d *playwrightDriver) Close() error {
	var errs []error
	if d.browser != nil {
		errs = append(errs, d.browser.Close())
	}
	if d.pw != nil {
		errs = append(errs, d.pw.Stop())
	}
	return errors.Join(errs...)
}

type playwrightElement struct {
	loc playwright.Locator
}

func (e *playwrightElement) Click(ctx context.Context) error {
	return e.loc.Click()
}

func (e *playwrightElement) Type(ctx context.Context, text string) error {
	return e.loc.Fill(text)
}

func (e *playwrightElement) Text(ctx context.Context) (string, error) {
	return e.loc.InnerText()
}

func (e *playwrightElement) Attribute(ctx context.Context, name string) (string, error) {
	return e.loc.GetAttribute(name)
}

func (e *playwrightElement) Select(ctx context.Context, label string) error {
	_, err := e.loc.SelectOption(playwright.SelectOptionValues{Labels: playwright.StringSlice(label)})
	return err
}
