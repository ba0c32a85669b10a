// internal/interact/mocks_test.go
package interact

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/locator"
)

// MockDriver is a testify mock of browser.Driver.
type MockDriver struct {
	mock.Mock
}

var _ browser.Driver = (*MockDriver)(nil)

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockDriver) Reload(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) DeleteCookies(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) Find(ctx context.Context, ref locator.Ref) ([]browser.Element, error) {
	args := m.Called(ctx, ref)
	els, _ := args.Get(0).([]browser.Element)
	return els, args.Error(1)
}

func (m *MockDriver) Inspect(ctx context.Context, el browser.Element) (browser.ElementState, error) {
	args := m.Called(ctx, el)
	return args.Get(0).(browser.ElementState), args.Error(1)
}

func (m *MockDriver) OuterHTML(ctx context.Context, el browser.Element) (string, error) {
	args := m.Called(ctx, el)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Click(ctx context.Context, el browser.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockDriver) ScriptClick(ctx context.Context, el browser.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockDriver) Clear(ctx context.Context, el browser.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockDriver) SendKeys(ctx context.Context, el browser.Element, text string) error {
	return m.Called(ctx, el, text).Error(0)
}

func (m *MockDriver) PressKey(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockDriver) IsFocused(ctx context.Context, el browser.Element) (bool, error) {
	args := m.Called(ctx, el)
	return args.Bool(0), args.Error(1)
}

func (m *MockDriver) Evaluate(ctx context.Context, script string, res interface{}) error {
	return m.Called(ctx, script, res).Error(0)
}

func (m *MockDriver) FailRequests(ctx context.Context, patterns []string) error {
	return m.Called(ctx, patterns).Error(0)
}

func (m *MockDriver) Close() error {
	return m.Called().Error(0)
}
