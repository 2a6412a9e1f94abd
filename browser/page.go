package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	readyStateComplete  = "complete"
	noTitle             = "No title found"
)

// Page is the facade the scrapers drive. It adds bounded waits, overlay
// dismissal and scroll-to-load on top of a Driver.
type Page struct {
	driver       Driver
	log          log.FieldLogger
	pollInterval time.Duration
}

// PageOption customizes a Page.
type PageOption func(*Page)

// WithPollInterval sets how often bounded waits re-check their condition.
func WithPollInterval(d time.Duration) PageOption {
	return func(p *Page) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

func NewPage(driver Driver, logger log.FieldLogger, opts ...PageOption) *Page {
	p := &Page{
		driver:       driver,
		log:          logger,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.log.WithField("url", url).Debug("Navigating")
	return p.driver.Navigate(ctx, url)
}

// Title returns the document title, or a placeholder when it cannot be read.
func (p *Page) Title(ctx context.Context) string {
	title, err := p.driver.Title(ctx)
	if err != nil || strings.TrimSpace(title) == "" {
		if err != nil {
			p.log.WithError(err).Warn("Could not read page title")
		}
		return noTitle
	}
	return title
}

func (p *Page) Find(ctx context.Context, sel Selector) (Element, error) {
	return p.driver.Find(ctx, sel)
}

func (p *Page) FindAll(ctx context.Context, sel Selector) ([]Element, error) {
	return p.driver.FindAll(ctx, sel)
}

func (p *Page) Click(ctx context.Context, el Element) error {
	return p.driver.Click(ctx, el)
}

// Quit releases the underlying browser session.
func (p *Page) Quit() error {
	return p.driver.Quit()
}

// WaitUntil polls cond until it reports true, returns an error, or timeout elapses.
func (p *Page) WaitUntil(ctx context.Context, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := cond(waitCtx)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case <-ticker.C:
		}
	}
}

// WaitFor waits up to timeout for sel to be present and returns the first match.
func (p *Page) WaitFor(ctx context.Context, sel Selector, timeout time.Duration) (Element, error) {
	var found Element
	err := p.WaitUntil(ctx, timeout, func(ctx context.Context) (bool, error) {
		el, err := p.driver.Find(ctx, sel)
		if err != nil {
			return false, err
		}
		found = el
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", sel, err)
	}
	return found, nil
}

// WaitReady waits for document.readyState to become "complete".
func (p *Page) WaitReady(ctx context.Context, timeout time.Duration) error {
	return p.WaitUntil(ctx, timeout, func(ctx context.Context) (bool, error) {
		state, err := p.driver.ReadyState(ctx)
		if err != nil {
			return false, err
		}
		return state == readyStateComplete, nil
	})
}

// DismissOverlay clicks away a blocking overlay when one is present. The
// dismiss selector is resolved inside the overlay; when it is empty the overlay
// itself is clicked. It reports whether an overlay was dismissed.
func (p *Page) DismissOverlay(ctx context.Context, overlay, dismiss Selector) bool {
	if overlay.IsZero() {
		return false
	}
	logger := p.log.WithField("overlay", overlay.String())

	el, err := p.driver.Find(ctx, overlay)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.WithError(err).Warn("Could not look up overlay")
		}
		return false
	}

	target := el
	if !dismiss.IsZero() {
		if target, err = el.Find(ctx, dismiss); err != nil {
			logger.WithError(err).Warn("Overlay has no dismiss control")
			return false
		}
	}

	if err := p.Click(ctx, target); err != nil {
		logger.WithError(err).Warn("Failed to dismiss overlay")
		return false
	}
	logger.Info("Dismissed overlay")
	return true
}

// ScrollResult describes how a ScrollUntilStable call ended.
type ScrollResult struct {
	Attempts int
	Count    int
	Stable   bool
}

// ScrollUntilStable scrolls to the bottom repeatedly, pausing between scrolls,
// until the number of indicator elements stops changing or maxAttempts is reached.
func (p *Page) ScrollUntilStable(ctx context.Context, indicator Selector, maxAttempts int, pause time.Duration) ScrollResult {
	logger := p.log.WithField("indicator", indicator.String())

	var res ScrollResult
	res.Count = p.count(ctx, indicator)

	for res.Attempts < maxAttempts {
		res.Attempts++
		if err := p.driver.ScrollToBottom(ctx); err != nil {
			logger.WithError(err).Warn("Scroll failed, keeping what is loaded")
			return res
		}
		if err := sleep(ctx, pause); err != nil {
			return res
		}

		count := p.count(ctx, indicator)
		if height, err := p.driver.PageHeight(ctx); err == nil {
			logger.WithFields(log.Fields{
				"attempt": res.Attempts,
				"count":   count,
				"height":  height,
			}).Debug("Scrolled")
		}

		if count == res.Count {
			res.Stable = true
			break
		}
		res.Count = count
	}

	logger.WithFields(log.Fields{
		"attempts": res.Attempts,
		"count":    res.Count,
		"stable":   res.Stable,
	}).Info("Finished scrolling")
	return res
}

// ChildText returns the whitespace-trimmed text of the first match of sel inside el,
// or fallback when it is absent, empty or unreadable.
func (p *Page) ChildText(ctx context.Context, el Element, sel Selector, fallback string) string {
	child, err := el.Find(ctx, sel)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			p.log.WithError(err).WithField("selector", sel.String()).Debug("Lookup failed")
		}
		return fallback
	}
	return TextOr(ctx, child, fallback)
}

// TextOr returns the trimmed text of el, or fallback when it is empty or unreadable.
func TextOr(ctx context.Context, el Element, fallback string) string {
	text, err := el.Text(ctx)
	if err != nil {
		return fallback
	}
	if text = strings.TrimSpace(text); text == "" {
		return fallback
	}
	return text
}

func (p *Page) count(ctx context.Context, sel Selector) int {
	elements, err := p.driver.FindAll(ctx, sel)
	if err != nil {
		p.log.WithError(err).WithField("selector", sel.String()).Debug("Count failed")
		return 0
	}
	return len(elements)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
