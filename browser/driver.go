// Package browser wraps a controllable browser session behind a small driver
// interface and a Page facade used by the catalog scraper.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no element matches a selector.
	ErrNotFound = errors.New("element not found")

	// ErrTimeout is returned when a bounded wait expires.
	ErrTimeout = errors.New("timed out waiting for page")

	// ErrUnsupportedSelector is returned for selector kinds the driver cannot evaluate in context.
	ErrUnsupportedSelector = errors.New("unsupported selector")
)

// Driver is the browser automation surface the scrapers consume.
// Lookups never wait: a missing element yields ErrNotFound (Find) or an empty slice (FindAll).
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	Find(ctx context.Context, sel Selector) (Element, error)
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
	ScrollToBottom(ctx context.Context) error
	PageHeight(ctx context.Context) (int64, error)
	ReadyState(ctx context.Context) (string, error)
	Click(ctx context.Context, el Element) error
	Quit() error
}

// Element is a located node of the current document.
type Element interface {
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	Find(ctx context.Context, sel Selector) (Element, error)
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
}

// Launcher starts a new browser session. A launch failure is fatal for the caller.
type Launcher func(ctx context.Context) (Driver, error)
