// Package browsertest provides an in-memory browser.Driver for tests. Pages are
// modelled as a set of locator matches whose nodes tests mutate directly or
// through scheduled changes, so no browser is needed.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/locator"
)

// Node is one element of the fake page.
type Node struct {
	State browser.ElementState
	HTML  string
	// ObstructedBy names the element that intercepts pointer clicks. Click
	// also fails as intercepted when State.Obstructed is set, matching the
	// single hit test Chrome uses for both.
	ObstructedBy string
	// ClickErr and ScriptClickErr are returned by the corresponding click.
	ClickErr       error
	ScriptClickErr error
	// OnClick runs after a successful click of either kind, or Enter while focused.
	OnClick func(d *Driver)

	id cdp.NodeID
}

// Visible returns an attached, visible, enabled node showing text.
func Visible(text string) *Node {
	return &Node{State: browser.ElementState{
		Attached: true, Visible: true, Enabled: true,
		Width: 120, Height: 24, Text: text,
	}}
}

// Hidden returns an attached node that is not rendered.
func Hidden() *Node {
	return &Node{State: browser.ElementState{Attached: true, Enabled: true}}
}

// Container returns a visible node whose outer HTML is html.
func Container(html string) *Node {
	n := Visible("")
	n.HTML = html
	return n
}

type scheduled struct {
	at time.Time
	fn func(d *Driver)
}

// Driver implements browser.Driver over the fake page.
type Driver struct {
	mu       sync.Mutex
	nextID   cdp.NodeID
	matches  map[string][]*Node
	nodes    map[cdp.NodeID]*Node
	pending  []scheduled
	tabOrder []*Node
	focused  cdp.NodeID
	url      string
	calls    []string
	finds    int
	closes   int
	cookies  int
	failed   []string

	// Hooks run without the driver lock held, so they may mutate the page.
	OnNavigate     func(d *Driver, url string) error
	OnReload       func(d *Driver) error
	OnFailRequests func(d *Driver, patterns []string)
	OnEvaluate     func(script string, res interface{}) error
	FindErr        error
	CloseErr       error
}

var _ browser.Driver = (*Driver)(nil)

func New() *Driver {
	return &Driver{
		matches: make(map[string][]*Node),
		nodes:   make(map[cdp.NodeID]*Node),
	}
}

func key(ref locator.Ref) string {
	return string(ref.Strategy) + "=" + ref.Value
}

// Set makes ref match exactly nodes, in order.
func (d *Driver) Set(ref locator.Ref, nodes ...*Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.register(nodes)
	d.matches[key(ref)] = nodes
}

func (d *Driver) register(nodes []*Node) {
	for _, n := range nodes {
		if n.id == 0 {
			d.nextID++
			n.id = d.nextID
			d.nodes[n.id] = n
		}
	}
}

// Remove detaches every node matching ref. Handles obtained earlier go stale.
func (d *Driver) Remove(ref locator.Ref) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.matches[key(ref)] {
		n.State.Attached = false
	}
	delete(d.matches, key(ref))
}

// Update runs fn with the page locked; use it to mutate nodes already set.
func (d *Driver) Update(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

// Schedule applies fn once `after` has elapsed. Changes are applied lazily at
// the start of the next driver call, so no goroutines are involved.
func (d *Driver) Schedule(after time.Duration, fn func(d *Driver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, scheduled{at: time.Now().Add(after), fn: fn})
}

// SetTabOrder declares the sequence Tab moves focus through.
func (d *Driver) SetTabOrder(nodes ...*Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.register(nodes)
	d.tabOrder = nodes
}

// enter records the call and applies due scheduled changes.
func (d *Driver) enter(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	now := time.Now()
	var due []func(*Driver)
	rest := d.pending[:0]
	for _, s := range d.pending {
		if !now.Before(s.at) {
			due = append(due, s.fn)
		} else {
			rest = append(rest, s)
		}
	}
	d.pending = rest
	d.mu.Unlock()

	for _, fn := range due {
		fn(d)
	}
}

func (d *Driver) node(el browser.Element) (*Node, error) {
	n, ok := d.nodes[el.NodeID]
	if !ok || !n.State.Attached {
		return nil, fmt.Errorf("%w: %s", browser.ErrStaleElement, el)
	}
	return n, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.enter("navigate " + url)
	d.mu.Lock()
	d.url = url
	hook := d.OnNavigate
	d.mu.Unlock()
	if hook != nil {
		return hook(d, url)
	}
	return nil
}

func (d *Driver) Reload(ctx context.Context) error {
	d.enter("reload")
	d.mu.Lock()
	hook := d.OnReload
	d.mu.Unlock()
	if hook != nil {
		return hook(d)
	}
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.enter("url")
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *Driver) DeleteCookies(ctx context.Context) error {
	d.enter("delete_cookies")
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies++
	return nil
}

func (d *Driver) Find(ctx context.Context, ref locator.Ref) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.enter("find " + ref.String())
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finds++
	if d.FindErr != nil {
		return nil, d.FindErr
	}
	var els []browser.Element
	for _, n := range d.matches[key(ref)] {
		if !n.State.Attached {
			continue
		}
		els = append(els, browser.Element{NodeID: n.id, Locator: ref, Index: len(els)})
	}
	if els == nil {
		els = []browser.Element{}
	}
	return els, nil
}

func (d *Driver) Inspect(ctx context.Context, el browser.Element) (browser.ElementState, error) {
	d.enter("inspect " + el.String())
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[el.NodeID]
	if !ok {
		return browser.ElementState{}, fmt.Errorf("%w: %s", browser.ErrStaleElement, el)
	}
	state := n.State
	state.Obstructed = state.Obstructed || n.ObstructedBy != ""
	return state, nil
}

func (d *Driver) OuterHTML(ctx context.Context, el browser.Element) (string, error) {
	d.enter("outer_html " + el.String())
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(el)
	if err != nil {
		return "", err
	}
	return n.HTML, nil
}

func (d *Driver) click(el browser.Element, script bool) error {
	d.mu.Lock()
	n, err := d.node(el)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	switch {
	case script && n.ScriptClickErr != nil:
		err = n.ScriptClickErr
	case !script && n.ClickErr != nil:
		err = n.ClickErr
	case !script && (n.ObstructedBy != "" || n.State.Obstructed):
		by := n.ObstructedBy
		if by == "" {
			by = "unknown"
		}
		err = &browser.ClickInterceptedError{Element: el.String(), By: by}
	}
	onClick := n.OnClick
	d.mu.Unlock()

	if err != nil {
		return err
	}
	if onClick != nil {
		onClick(d)
	}
	return nil
}

func (d *Driver) Click(ctx context.Context, el browser.Element) error {
	d.enter("click " + el.String())
	return d.click(el, false)
}

func (d *Driver) ScriptClick(ctx context.Context, el browser.Element) error {
	d.enter("script_click " + el.String())
	return d.click(el, true)
}

func (d *Driver) Clear(ctx context.Context, el browser.Element) error {
	d.enter("clear " + el.String())
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(el)
	if err != nil {
		return err
	}
	n.State.Value = ""
	d.focused = n.id
	return nil
}

func (d *Driver) SendKeys(ctx context.Context, el browser.Element, text string) error {
	d.enter("send_keys " + el.String())
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(el)
	if err != nil {
		return err
	}
	n.State.Value += text
	d.focused = n.id
	return nil
}

func (d *Driver) PressKey(ctx context.Context, key string) error {
	d.enter(fmt.Sprintf("press %q", key))
	d.mu.Lock()
	switch key {
	case browser.KeyTab:
		if len(d.tabOrder) > 0 {
			next := 0
			for i, n := range d.tabOrder {
				if n.id == d.focused {
					next = (i + 1) % len(d.tabOrder)
					break
				}
			}
			d.focused = d.tabOrder[next].id
		}
		d.mu.Unlock()
		return nil
	case browser.KeyEnter:
		n, ok := d.nodes[d.focused]
		var onClick func(*Driver)
		if ok && n.State.Attached {
			onClick = n.OnClick
		}
		d.mu.Unlock()
		if onClick != nil {
			onClick(d)
		}
		return nil
	}
	d.mu.Unlock()
	return nil
}

func (d *Driver) IsFocused(ctx context.Context, el browser.Element) (bool, error) {
	d.enter("is_focused " + el.String())
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.node(el); err != nil {
		return false, err
	}
	return d.focused == el.NodeID, nil
}

func (d *Driver) Evaluate(ctx context.Context, script string, res interface{}) error {
	d.enter("evaluate")
	d.mu.Lock()
	hook := d.OnEvaluate
	d.mu.Unlock()
	if hook != nil {
		return hook(script, res)
	}
	return nil
}

func (d *Driver) FailRequests(ctx context.Context, patterns []string) error {
	d.enter("fail_requests")
	d.mu.Lock()
	d.failed = append(d.failed, patterns...)
	hook := d.OnFailRequests
	d.mu.Unlock()
	if hook != nil {
		hook(d, patterns)
	}
	return nil
}

func (d *Driver) Close() error {
	d.enter("close")
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return d.CloseErr
}

// Calls returns the driver calls made so far, in order.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Closes reports how many times Close was called.
func (d *Driver) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Finds reports how many Find calls were made.
func (d *Driver) Finds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finds
}

// CookiesDeleted reports how many times cookies were cleared.
func (d *Driver) CookiesDeleted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cookies
}

// FailedPatterns returns every pattern passed to FailRequests.
func (d *Driver) FailedPatterns() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.failed...)
}

// URL returns the last navigated URL.
func (d *Driver) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// Focused reports whether n currently holds focus.
func (d *Driver) Focused(n *Node) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return n.id != 0 && d.focused == n.id
}
