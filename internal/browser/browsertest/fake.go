// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/browser"
)

type Driver struct {
	mu sync.Mutex

	elements map[string][]*Element

	// EvalFunc answers Eval; nil returns (nil, nil).
	EvalFunc func(js string) (any, error)
	// NavigateFunc runs after a navigation is recorded.
	NavigateFunc func(url string) error

	Visited     []string
	Screenshots []string
	Closed      int
}

func NewDriver() *Driver {
	return &Driver{elements: map[string][]*Element{}}
}

// Add registers el under loc. Adding several elements under one locator builds a
// list for FindAll; Find and WaitFor return the first.
func (d *Driver) Add(loc browser.Locator, el *Element) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[loc.String()] = append(d.elements[loc.String()], el)
	return el
}

func (d *Driver) Remove(loc browser.Locator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.elements, loc.String())
}

func (d *Driver) lookup(loc browser.Locator) []*Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elements[loc.String()]
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	d.Visited = append(d.Visited, url)
	fn := d.NavigateFunc
	d.mu.Unlock()
	if fn != nil {
		return fn(url)
	}
	return nil
}

func (d *Driver) Find(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	els := d.lookup(loc)
	if len(els) == 0 {
		return nil, booking.ElementError("find", loc.String(), errors.New("not found"))
	}
	return els[0], nil
}

func (d *Driver) FindAll(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	els := d.lookup(loc)
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

func (d *Driver) WaitFor(ctx context.Context, loc browser.Locator, timeout time.Duration) (browser.Element, error) {
	els := d.lookup(loc)
	if len(els) == 0 {
		return nil, booking.ElementError("wait", loc.String(), errors.New("timeout"))
	}
	return els[0], nil
}

func (d *Driver) Eval(ctx context.Context, js string) (any, error) {
	if d.EvalFunc == nil {
		return nil, nil
	}
	return d.EvalFunc(js)
}

func (d *Driver) Screenshot(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Screenshots = append(d.Screenshots, path)
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed++
	return nil
}

type Element struct {
	mu sync.Mutex

	// Texts are returned by successive Text calls; the last one repeats.
	Texts   []string
	Attrs   map[string]string
	OnClick func()
	Err     error

	Clicks   int
	Typed    []string
	Selected []string
	reads    int
}

func NewElement(text ...string) *Element {
	return &Element{Texts: text}
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	if e.Err != nil {
		e.mu.Unlock()
		return e.Err
	}
	e.Clicks++
	fn := e.OnClick
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (e *Element) Type(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Typed = append(e.Typed, text)
	return e.Err
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Texts) == 0 {
		return "", e.Err
	}
	i := e.reads
	if i >= len(e.Texts) {
		i = len(e.Texts) - 1
	}
	e.reads++
	return e.Texts[i], e.Err
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Attrs[name], e.Err
}

func (e *Element) Select(ctx context.Context, label string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Selected = append(e.Selected, label)
	return e.Err
}

func (e *Element) ClickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Clicks
}
