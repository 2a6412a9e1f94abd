package scraper

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	whitespace = regexp.MustCompile(`[\s\p{Zs}]+`)

	horizontalSpace = regexp.MustCompile(`[\t\f\r\v\p{Zs}]+`)
	lineEdges       = regexp.MustCompile(` *\n *`)
	blankLines      = regexp.MustCompile(`\n{3,}`)

	// stripPolicy removes every tag and keeps the text, separating block content with a space.
	stripPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)
)

func cleanString(s string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
}

// StripHTML returns the plain text of an HTML fragment with entities decoded.
// Runs of spaces collapse to one; line breaks survive, at most one blank line in a row.
func StripHTML(s string) string {
	text := html.UnescapeString(stripPolicy.Sanitize(s))
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = lineEdges.ReplaceAllString(text, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// MergeTags flattens both tag namespaces into category -> labels.
// A promoted category replaces a primary one with the same name.
func MergeTags(tags NewsTags) TagSet {
	out := make(TagSet, len(tags.MetaData)+len(tags.PromotedMetaData))
	for category, list := range tags.MetaData {
		out[category] = titles(list)
	}
	for category, list := range tags.PromotedMetaData {
		out[category] = titles(list)
	}
	return out
}

func titles(list []Tag) []string {
	out := make([]string, 0, len(list))
	for _, t := range list {
		out = append(out, t.Title)
	}
	return out
}

// PublishDate reads the first "Publish Date" label, if any.
func PublishDate(tags NewsTags) *string {
	dates := tags.MetaData["Publish Date"]
	if len(dates) == 0 {
		return nil
	}
	date := dates[0].Title
	return &date
}

// SectionText extracts the first HTML section of a detail document as plain text.
func SectionText(payload json.RawMessage) (*string, error) {
	var page contentPage
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, fmt.Errorf("decode content page: %w", err)
	}
	sections := page.ContentMain.HTMLContents
	if len(sections) == 0 {
		return nil, fmt.Errorf("content page has no html sections")
	}
	if sections[0].SectionData == nil {
		return nil, fmt.Errorf("content page section has no data")
	}
	text := StripHTML(*sections[0].SectionData)
	return &text, nil
}

// absoluteURL resolves relativePath against baseURL.
func absoluteURL(baseURL, relativePath string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return relativePath
	}
	rel, err := url.Parse(relativePath)
	if err != nil {
		return relativePath
	}
	return base.ResolveReference(rel).String()
}
