package browser_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenoh1990/scraping-assignment/browser"
	"github.com/chenoh1990/scraping-assignment/browser/browsertest"
)

const catalogURL = "https://shop.example/whiskey"

var indicator = browser.Class("amscroll-page")

func newPage(t *testing.T, d browser.Driver) (*browser.Page, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return browser.NewPage(d, logger, browser.WithPollInterval(time.Millisecond)), hook
}

func TestScrollUntilStable_StopsWhenCountStabilizes(t *testing.T) {
	d := browsertest.NewDriver()
	doc := d.AddPage(catalogURL, (&browsertest.Document{}).Add(indicator, browsertest.NewNode("page 1")))
	d.OnScroll = func(doc *browsertest.Document, scrolls int) {
		if scrolls <= 3 {
			doc.Add(indicator, browsertest.NewNode("more"))
		}
	}
	page, _ := newPage(t, d)
	ctx := context.Background()
	require.NoError(t, page.Navigate(ctx, catalogURL))

	res := page.ScrollUntilStable(ctx, indicator, 60, 0)

	assert.True(t, res.Stable)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 4, res.Count)
	assert.Len(t, doc.Elements[indicator], 4)
}

func TestScrollUntilStable_RespectsMaxAttempts(t *testing.T) {
	d := browsertest.NewDriver()
	d.AddPage(catalogURL, &browsertest.Document{})
	d.OnScroll = func(doc *browsertest.Document, _ int) {
		doc.Add(indicator, browsertest.NewNode("endless"))
	}
	page, _ := newPage(t, d)
	ctx := context.Background()
	require.NoError(t, page.Navigate(ctx, catalogURL))

	res := page.ScrollUntilStable(ctx, indicator, 5, 0)

	assert.False(t, res.Stable)
	assert.Equal(t, 5, res.Attempts)
	assert.Equal(t, 5, d.Scrolls())
}

func TestDismissOverlay(t *testing.T) {
	overlay := browser.CSS("#dy-over-18yrs-popup")
	closeBtn := browser.CSS("button.close")

	t.Run("absent", func(t *testing.T) {
		d := browsertest.NewDriver()
		page, _ := newPage(t, d)
		assert.False(t, page.DismissOverlay(context.Background(), overlay, closeBtn))
		assert.Empty(t, d.Clicked())
	})

	t.Run("clicks the dismiss control", func(t *testing.T) {
		d := browsertest.NewDriver()
		btn := browsertest.NewNode("yes, I am over 18")
		d.AddPage(catalogURL, (&browsertest.Document{}).Add(overlay, browsertest.NewNode("").With(closeBtn, btn)))
		page, _ := newPage(t, d)
		ctx := context.Background()
		require.NoError(t, page.Navigate(ctx, catalogURL))

		assert.True(t, page.DismissOverlay(ctx, overlay, closeBtn))
		assert.Equal(t, []*browsertest.Node{btn}, d.Clicked())
	})

	t.Run("clicks the overlay without a dismiss selector", func(t *testing.T) {
		d := browsertest.NewDriver()
		popup := browsertest.NewNode("popup")
		d.AddPage(catalogURL, (&browsertest.Document{}).Add(overlay, popup))
		page, _ := newPage(t, d)
		ctx := context.Background()
		require.NoError(t, page.Navigate(ctx, catalogURL))

		assert.True(t, page.DismissOverlay(ctx, overlay, browser.Selector{}))
		assert.Equal(t, []*browsertest.Node{popup}, d.Clicked())
	})
}

func TestWaitFor(t *testing.T) {
	ready := browser.Class("page-wrapper")
	d := browsertest.NewDriver()
	d.AddPage(catalogURL, (&browsertest.Document{}).Add(ready, browsertest.NewNode("ok")))
	page, _ := newPage(t, d)
	ctx := context.Background()
	require.NoError(t, page.Navigate(ctx, catalogURL))

	el, err := page.WaitFor(ctx, ready, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", browser.TextOr(ctx, el, "N/A"))

	_, err = page.WaitFor(ctx, browser.Class("fotorama__stage__shaft"), 20*time.Millisecond)
	require.ErrorIs(t, err, browser.ErrTimeout)
}

func TestWaitReady(t *testing.T) {
	d := browsertest.NewDriver()
	d.AddPage(catalogURL, &browsertest.Document{ReadyState: "loading"})
	page, _ := newPage(t, d)
	ctx := context.Background()
	require.NoError(t, page.Navigate(ctx, catalogURL))

	require.ErrorIs(t, page.WaitReady(ctx, 10*time.Millisecond), browser.ErrTimeout)
}

func TestChildText(t *testing.T) {
	name := browser.CSS("strong.product-item-name a")
	item := browsertest.NewNode("").With(name, browsertest.NewNode("  Lagavulin 16  "))
	d := browsertest.NewDriver()
	d.AddPage(catalogURL, (&browsertest.Document{}).Add(browser.CSS("li.item.product"), item))
	page, _ := newPage(t, d)
	ctx := context.Background()
	require.NoError(t, page.Navigate(ctx, catalogURL))

	el, err := page.Find(ctx, browser.CSS("li.item.product"))
	require.NoError(t, err)

	assert.Equal(t, "Lagavulin 16", page.ChildText(ctx, el, name, "N/A"))
	assert.Equal(t, "N/A", page.ChildText(ctx, el, browser.CSS("span.unit"), "N/A"))
}

func TestTitleFallback(t *testing.T) {
	d := browsertest.NewDriver()
	page, _ := newPage(t, d)
	assert.Equal(t, "No title found", page.Title(context.Background()))
}
