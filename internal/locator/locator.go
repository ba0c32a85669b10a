// internal/locator/locator.go
package locator

import (
	"fmt"
	"strings"
)

// Strategy tags how a Ref's value is interpreted when it is resolved against the DOM.
type Strategy string

const (
	// CSS is a standard CSS selector resolved with querySelectorAll.
	CSS Strategy = "css"
	// XPath is an XPath 1.0 expression.
	XPath Strategy = "xpath"
	// Text matches elements whose own normalized text equals the value.
	Text Strategy = "text"
	// ID matches the element with the given id attribute.
	ID Strategy = "id"
)

// Ref is a symbolic reference to one or more UI elements. It is a plain value
// and carries no connection to a live page; resolution happens in the driver.
type Ref struct {
	Name     string
	Strategy Strategy
	Value    string
}

// ByCSS creates a named CSS reference.
func ByCSS(name, selector string) Ref { return Ref{Name: name, Strategy: CSS, Value: selector} }

// ByXPath creates a named XPath reference.
func ByXPath(name, expr string) Ref { return Ref{Name: name, Strategy: XPath, Value: expr} }

// ByText creates a reference matching elements by their visible text.
func ByText(name, text string) Ref { return Ref{Name: name, Strategy: Text, Value: text} }

// ByID creates a reference matching an element id.
func ByID(name, id string) Ref { return Ref{Name: name, Strategy: ID, Value: id} }

// IsZero reports whether the reference is unset. Optional locators in the
// configuration are represented by the zero Ref.
func (r Ref) IsZero() bool { return r.Value == "" }

// String renders the reference for logs and error messages.
func (r Ref) String() string {
	if r.Name == "" {
		return fmt.Sprintf("%s=%s", r.Strategy, r.Value)
	}
	return fmt.Sprintf("%s(%s=%s)", r.Name, r.Strategy, r.Value)
}

// IsCSS reports whether the reference can be handed to a CSS engine as is.
func (r Ref) IsCSS() bool { return r.Strategy == CSS }

// AsXPath translates the reference into an equivalent XPath expression.
// CSS references have no general translation and return an error.
func (r Ref) AsXPath() (string, error) {
	switch r.Strategy {
	case XPath:
		return r.Value, nil
	case Text:
		return fmt.Sprintf("//*[normalize-space(text())=%s]", Literal(NormalizeSpace(r.Value))), nil
	case ID:
		return fmt.Sprintf("//*[@id=%s]", Literal(r.Value)), nil
	case CSS:
		return "", fmt.Errorf("locator %s: css selectors cannot be expressed as xpath", r)
	default:
		return "", fmt.Errorf("locator %s: unknown strategy %q", r, r.Strategy)
	}
}

// Parse reads a configuration string of the form "strategy=value". A string
// without a recognised strategy prefix is treated as CSS when it does not start
// with "/" and as XPath when it does. An empty string yields the zero Ref.
func Parse(name, raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, nil
	}

	if prefix, value, ok := strings.Cut(raw, "="); ok {
		switch s := Strategy(strings.ToLower(strings.TrimSpace(prefix))); s {
		case CSS, XPath, Text, ID:
			value = strings.TrimSpace(value)
			if value == "" {
				return Ref{}, fmt.Errorf("locator %q: empty %s value", name, s)
			}
			return Ref{Name: name, Strategy: s, Value: value}, nil
		}
	}

	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "(") {
		return ByXPath(name, raw), nil
	}
	return ByCSS(name, raw), nil
}

// MustParse is Parse for static declarations; it panics on malformed input.
func MustParse(name, raw string) Ref {
	r, err := Parse(name, raw)
	if err != nil {
		panic(err)
	}
	return r
}

// NormalizeSpace trims and collapses runs of whitespace, like XPath's normalize-space().
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Literal quotes s as an XPath string literal, falling back to concat() when s
// contains both quote characters.
func Literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
