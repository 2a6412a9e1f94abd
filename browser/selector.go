package browser

import (
	"fmt"
	"strings"
)

// By is the strategy used to locate elements on a page.
type By int

const (
	ByCSS By = iota
	ByID
	ByClass
	ByTag
	ByXPath
)

var byNames = map[By]string{
	ByCSS:   "css",
	ByID:    "id",
	ByClass: "class",
	ByTag:   "tag",
	ByXPath: "xpath",
}

func (b By) String() string {
	if name, ok := byNames[b]; ok {
		return name
	}
	return fmt.Sprintf("By(%d)", int(b))
}

// ParseBy converts a selector kind name ("id", "class", "tag", "css", "xpath") into a By.
func ParseBy(s string) (By, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for b, n := range byNames {
		if n == name {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown selector kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (b By) MarshalText() ([]byte, error) {
	if _, ok := byNames[b]; !ok {
		return nil, fmt.Errorf("unknown selector kind %d", int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so config files can say `by: class`.
func (b *By) UnmarshalText(text []byte) error {
	parsed, err := ParseBy(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Selector names one element (or set of elements) on a page.
type Selector struct {
	By    By     `mapstructure:"by" json:"by"`
	Value string `mapstructure:"value" json:"value"`
}

func CSS(v string) Selector   { return Selector{By: ByCSS, Value: v} }
func ID(v string) Selector    { return Selector{By: ByID, Value: v} }
func Class(v string) Selector { return Selector{By: ByClass, Value: v} }
func Tag(v string) Selector   { return Selector{By: ByTag, Value: v} }
func XPath(v string) Selector { return Selector{By: ByXPath, Value: v} }

// IsZero reports whether the selector is unset.
func (s Selector) IsZero() bool {
	return s.Value == ""
}

func (s Selector) String() string {
	return s.By.String() + ":" + s.Value
}

// CSSQuery returns the selector as a CSS query. XPath selectors have no CSS form.
func (s Selector) CSSQuery() (string, bool) {
	switch s.By {
	case ByCSS, ByTag:
		return s.Value, true
	case ByID:
		return "#" + s.Value, true
	case ByClass:
		return "." + strings.Join(strings.Fields(s.Value), "."), true
	default:
		return "", false
	}
}
