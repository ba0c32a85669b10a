// internal/browser/driver.go
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp/kb"

	"github.com/xkilldash9x/flowcheck/internal/locator"
)

// Keys accepted by Driver.PressKey.
const (
	KeyTab   = kb.Tab
	KeyEnter = kb.Enter
)

var (
	// ErrClickIntercepted is reported when another element covers the click target's center point.
	ErrClickIntercepted = errors.New("click intercepted by another element")
	// ErrStaleElement is reported when an element handle no longer refers to a node in the document.
	ErrStaleElement = errors.New("element is stale or detached")
	// ErrSessionClosed is returned by operations on a session that has already been released.
	ErrSessionClosed = errors.New("browser session is closed")
)

// Element is a handle to one node resolved from a locator. It stays valid until
// the document it was found in is replaced.
type Element struct {
	NodeID  cdp.NodeID
	Locator locator.Ref
	Index   int
}

func (e Element) String() string {
	return fmt.Sprintf("%s[%d]", e.Locator, e.Index)
}

// ElementState is a snapshot of the properties the wait conditions look at.
type ElementState struct {
	Attached   bool    `json:"attached"`
	Visible    bool    `json:"visible"`
	Enabled    bool    `json:"enabled"`
	Obstructed bool    `json:"obstructed"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Text       string  `json:"text"`
	Value      string  `json:"value"`
	Tag        string  `json:"tag"`
}

// ClickInterceptedError names the element that received a click meant for another.
type ClickInterceptedError struct {
	Element string
	By      string
}

func (e *ClickInterceptedError) Error() string {
	return fmt.Sprintf("click on %s intercepted by <%s>", e.Element, e.By)
}

// Unwrap lets callers match with errors.Is(err, ErrClickIntercepted).
func (e *ClickInterceptedError) Unwrap() error { return ErrClickIntercepted }

// Driver is the browser-control interface the harness orchestrates. The chromedp
// implementation lives in cdp_driver.go; tests substitute an in-memory page.
// Every method is synchronous and returns as soon as the browser answers.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	DeleteCookies(ctx context.Context) error

	// Find returns every element currently matching ref, in document order.
	// No match is an empty slice, not an error.
	Find(ctx context.Context, ref locator.Ref) ([]Element, error)
	Inspect(ctx context.Context, el Element) (ElementState, error)
	OuterHTML(ctx context.Context, el Element) (string, error)

	// Click performs a pointer click at the element's center. It fails with an
	// error matching ErrClickIntercepted when another element is on top.
	Click(ctx context.Context, el Element) error
	// ScriptClick invokes element.click() in the page, bypassing hit testing.
	ScriptClick(ctx context.Context, el Element) error
	Clear(ctx context.Context, el Element) error
	SendKeys(ctx context.Context, el Element, text string) error
	// PressKey dispatches a key to whichever element has focus.
	PressKey(ctx context.Context, key string) error
	IsFocused(ctx context.Context, el Element) (bool, error)

	Evaluate(ctx context.Context, script string, res interface{}) error
	// FailRequests makes every subsequent request matching one of the URL
	// patterns fail with a connection error.
	FailRequests(ctx context.Context, patterns []string) error

	Close() error
}
