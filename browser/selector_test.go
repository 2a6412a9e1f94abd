package browser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenoh1990/scraping-assignment/browser"
)

func TestParseBy(t *testing.T) {
	tests := []struct {
		in   string
		want browser.By
	}{
		{"id", browser.ByID},
		{"class", browser.ByClass},
		{"tag", browser.ByTag},
		{"css", browser.ByCSS},
		{" XPath ", browser.ByXPath},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := browser.ParseBy(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := browser.ParseBy("link-text")
	assert.Error(t, err)
}

func TestByTextRoundTrip(t *testing.T) {
	var b browser.By
	require.NoError(t, b.UnmarshalText([]byte("class")))
	assert.Equal(t, browser.ByClass, b)

	text, err := b.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "class", string(text))

	assert.Error(t, b.UnmarshalText([]byte("nope")))
}

func TestSelectorCSSQuery(t *testing.T) {
	tests := []struct {
		name string
		sel  browser.Selector
		want string
		ok   bool
	}{
		{"css", browser.CSS("li.item.product"), "li.item.product", true},
		{"id", browser.ID("description"), "#description", true},
		{"class", browser.Class("page-wrapper"), ".page-wrapper", true},
		{"compound class", browser.Class("item product"), ".item.product", true},
		{"tag", browser.Tag("img"), "img", true},
		{"xpath", browser.XPath("//div"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.sel.CSSQuery()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectorString(t *testing.T) {
	assert.Equal(t, "class:amscroll-page", browser.Class("amscroll-page").String())
	assert.True(t, browser.Selector{}.IsZero())
}
