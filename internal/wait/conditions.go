// internal/wait/conditions.go
package wait

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/locator"
)

// Condition is a named predicate over an element's state.
type Condition struct {
	name  string
	holds func(browser.ElementState) bool
}

func (c Condition) String() string { return c.name }

// Holds reports whether state satisfies the condition.
func (c Condition) Holds(state browser.ElementState) bool {
	if c.holds == nil {
		return false
	}
	return c.holds(state)
}

var (
	// Presence holds while the element is in the DOM tree, shown or not.
	Presence = Condition{name: "presence", holds: func(s browser.ElementState) bool {
		return s.Attached
	}}

	// Visibility holds for a present element with a non-zero rendered box and
	// no hiding ancestor.
	Visibility = Condition{name: "visibility", holds: visible}

	// Actionable holds for a visible, enabled element. It does not hit-test,
	// so a covered element still qualifies and the click itself reports the
	// interception.
	Actionable = Condition{name: "actionable", holds: func(s browser.ElementState) bool {
		return visible(s) && s.Enabled
	}}

	// Clickable holds for a visible, enabled element whose center point is
	// not covered by another element.
	Clickable = Condition{name: "clickable", holds: func(s browser.ElementState) bool {
		return visible(s) && s.Enabled && !s.Obstructed
	}}
)

func visible(s browser.ElementState) bool {
	return s.Attached && s.Visible && s.Width > 0 && s.Height > 0
}

// TextEquals holds for a visible element whose normalized text equals text.
func TextEquals(text string) Condition {
	want := locator.NormalizeSpace(text)
	return Condition{
		name: fmt.Sprintf("text-equals(%q)", want),
		holds: func(s browser.ElementState) bool {
			return visible(s) && locator.NormalizeSpace(s.Text) == want
		},
	}
}

// TextContains holds for a visible element whose normalized text contains text.
func TextContains(text string) Condition {
	want := locator.NormalizeSpace(text)
	return Condition{
		name: fmt.Sprintf("text-contains(%q)", want),
		holds: func(s browser.ElementState) bool {
			return visible(s) && strings.Contains(locator.NormalizeSpace(s.Text), want)
		},
	}
}

// Expectation pairs a locator with the condition it must satisfy.
type Expectation struct {
	Ref       locator.Ref
	Condition Condition
}

func (x Expectation) String() string {
	return fmt.Sprintf("%s is %s", x.Ref, x.Condition)
}

// Expect builds an Expectation.
func Expect(ref locator.Ref, cond Condition) Expectation {
	return Expectation{Ref: ref, Condition: cond}
}
