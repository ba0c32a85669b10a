// internal/pages/manage.go
package pages

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/locator"
	"github.com/xkilldash9x/flowcheck/internal/wait"
)

// LoadStatus is how the device list settled.
type LoadStatus int

const (
	LoadReady LoadStatus = iota
	LoadEmpty
	LoadFailed
)

func (s LoadStatus) String() string {
	switch s {
	case LoadReady:
		return "ready"
	case LoadEmpty:
		return "empty"
	case LoadFailed:
		return "failed"
	default:
		return fmt.Sprintf("LoadStatus(%d)", int(s))
	}
}

// ManagePage is the Manage section and its Device Users list.
type ManagePage struct {
	kit Toolkit

	menu        locator.Ref
	deviceUsers locator.Ref
	container   locator.Ref
	loading     locator.Ref
	empty       locator.Ref
	failed      locator.Ref

	rows        RowSpec
	stablePolls int
}

var _ Page = (*ManagePage)(nil)

// NewManagePage parses the Manage locators. Rows, names and fields are CSS
// selectors applied inside the list container. stablePolls is how many
// consecutive identical row counts mark the list as settled.
func NewManagePage(kit Toolkit, locs config.ManageLocators, stablePolls int) (*ManagePage, error) {
	p := &parser{page: "manage"}
	page := &ManagePage{
		kit:         kit,
		menu:        p.required("manage_menu", locs.Menu),
		deviceUsers: p.required("device_users", locs.DeviceUsers),
		container:   p.required("device_list", locs.ListContainer),
		loading:     p.ref("device_list_loading", locs.LoadingIndicator),
		empty:       p.ref("device_list_empty", locs.EmptyIndicator),
		failed:      p.ref("device_list_error", locs.ErrorIndicator),
		rows:        RowSpec{Row: locs.Row, Name: locs.NameField, Fields: locs.Fields},
		stablePolls: stablePolls,
	}
	if err := page.rows.Validate(); err != nil {
		p.errs = append(p.errs, err)
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	if page.stablePolls < 1 {
		page.stablePolls = 1
	}
	return page, nil
}

func (p *ManagePage) Name() string { return "manage" }

func (p *ManagePage) Locators() []locator.Ref {
	return nonZero(p.menu, p.deviceUsers, p.container, p.loading, p.empty, p.failed)
}

func (p *ManagePage) open(ctx context.Context, ref locator.Ref) error {
	el, err := p.kit.Wait.WaitFor(ctx, ref, wait.Actionable, 0)
	if err != nil {
		return err
	}
	return p.kit.Act.Click(ctx, el)
}

// OpenManage opens the Manage section.
func (p *ManagePage) OpenManage(ctx context.Context) error {
	return p.open(ctx, p.menu)
}

// OpenDeviceUsers opens the Device Users subsection.
func (p *ManagePage) OpenDeviceUsers(ctx context.Context) error {
	return p.open(ctx, p.deviceUsers)
}

// AwaitDevices waits for the device list to settle. The loading indicator
// must clear first; then the first of the error indicator, the empty-state
// indicator or the list container decides the outcome. A rendered container
// must keep the same row count for stablePolls consecutive polls.
// LoadFailed comes with a *DataLoadFailure; other errors are returned as is.
func (p *ManagePage) AwaitDevices(ctx context.Context) (LoadStatus, error) {
	if err := p.kit.Wait.WaitForAbsent(ctx, p.loading, 0); err != nil {
		return p.failure(ctx, "loading indicator never cleared", err)
	}

	const (
		sawError = iota
		sawEmpty
		sawList
	)
	i, el, err := p.kit.Wait.WaitForAny(ctx, 0,
		wait.Expect(p.failed, wait.Visibility),
		wait.Expect(p.empty, wait.Visibility),
		wait.Expect(p.container, wait.Presence))
	if err != nil {
		return p.failure(ctx, "device list never rendered", err)
	}

	switch i {
	case sawError:
		reason := "error indicator shown"
		if state, err := p.kit.Driver.Inspect(ctx, el); err == nil && state.Text != "" {
			reason = fmt.Sprintf("error indicator shown: %s", state.Text)
		}
		return LoadFailed, &DataLoadFailure{Reason: reason}
	case sawEmpty:
		p.kit.Logger.Info("Device list reports no devices.")
		return LoadEmpty, nil
	}

	count, err := p.awaitStableRows(ctx)
	if err != nil {
		return p.failure(ctx, "device list never stabilized", err)
	}
	p.kit.Logger.Debug("Device list settled.", zap.Int("rows", count))
	if count == 0 {
		return LoadEmpty, nil
	}
	return LoadReady, nil
}

func (p *ManagePage) failure(ctx context.Context, reason string, err error) (LoadStatus, error) {
	if ctx.Err() != nil || errors.Is(err, browser.ErrSessionClosed) {
		return LoadFailed, err
	}
	return LoadFailed, &DataLoadFailure{Reason: reason, Cause: err}
}

// awaitStableRows polls the row count until it repeats stablePolls times in a row.
func (p *ManagePage) awaitStableRows(ctx context.Context) (int, error) {
	last, streak := -1, 0
	err := p.kit.Wait.Until(ctx, "device rows to stop changing", 0, func(ctx context.Context) (bool, error) {
		n, err := p.rowCount(ctx)
		if err != nil {
			last, streak = -1, 0
			return false, err
		}
		if n == last {
			streak++
		} else {
			last, streak = n, 1
		}
		return streak >= p.stablePolls, nil
	})
	return last, err
}

var errNoContainer = errors.New("device list container not present")

func (p *ManagePage) containerHTML(ctx context.Context) (string, error) {
	els, err := p.kit.Driver.Find(ctx, p.container)
	if err != nil {
		return "", err
	}
	if len(els) == 0 {
		return "", errNoContainer
	}
	return p.kit.Driver.OuterHTML(ctx, els[0])
}

func (p *ManagePage) rowCount(ctx context.Context) (int, error) {
	fragment, err := p.containerHTML(ctx)
	if err != nil {
		return 0, err
	}
	return countRows(fragment, p.rows)
}

// ReadDevices waits for the list container and parses its rows. Zero rows is
// an empty slice. The slice is fresh on every call and never reused.
func (p *ManagePage) ReadDevices(ctx context.Context) ([]Device, error) {
	el, err := p.kit.Wait.WaitFor(ctx, p.container, wait.Presence, 0)
	if err != nil {
		return nil, err
	}
	fragment, err := p.kit.Driver.OuterHTML(ctx, el)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.container, err)
	}
	devices, err := ParseDevices(fragment, p.rows)
	if err != nil {
		return nil, err
	}
	p.kit.Logger.Info("Devices retrieved.", zap.Int("count", len(devices)))
	return devices, nil
}
