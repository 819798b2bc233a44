package browser

import (
	"context"
	"fmt"
	"time"
)

type By int

const (
	ByID By = iota
	ByTag
	ByXPath
	ByCSS
)

// Locator is an engine-neutral element selector.
type Locator struct {
	By    By
	Value string
}

func ID(v string) Locator    { return Locator{By: ByID, Value: v} }
func Tag(v string) Locator   { return Locator{By: ByTag, Value: v} }
func XPath(v string) Locator { return Locator{By: ByXPath, Value: v} }
func CSS(v string) Locator   { return Locator{By: ByCSS, Value: v} }

func (l Locator) String() string {
	switch l.By {
	case ByID:
		return "id=" + l.Value
	case ByTag:
		return "tag=" + l.Value
	case ByXPath:
		return "xpath=" + l.Value
	default:
		return "css=" + l.Value
	}
}

// css renders ID, tag and CSS locators as a CSS selector.
func (l Locator) css() string {
	switch l.By {
	case ByID:
		return fmt.Sprintf("[id=%q]", l.Value)
	default:
		return l.Value
	}
}

// Driver is the automation surface a booking attempt drives. One Driver is owned
// by exactly one attempt and must be closed by it.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// Find returns the first element matching loc without waiting.
	Find(ctx context.Context, loc Locator) (Element, error)
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
	// WaitFor blocks until loc is present in the DOM or timeout elapses.
	WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	// Eval runs a JS function expression such as "() => document.title".
	Eval(ctx context.Context, js string) (any, error)
	Screenshot(ctx context.Context, path string) error
	Close() error
}

type Element interface {
	Click(ctx context.Context) error
	Type(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	// Select picks the option whose visible label is label.
	Select(ctx context.Context, label string) error
}

const DefaultWait = 10 * time.Second
