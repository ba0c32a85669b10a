// internal/browser/allocator.go
package browser

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/flowcheck/internal/config"
)

const (
	defaultViewportWidth  = 1366
	defaultViewportHeight = 900
)

// allocatorFlags computes the Chrome command-line switches for cfg on top of
// chromedp's defaults. A false value removes a default switch.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"disable-notifications":    true,
		"disable-popup-blocking":   true,
		"disable-features":         "Translate,OptimizationHints,MediaRouter",
		"password-store":           "basic",
		"use-mock-keychain":        true,
		"no-default-browser-check": true,
	}

	if !cfg.Headless {
		flags["headless"] = false
		flags["hide-scrollbars"] = false
		flags["mute-audio"] = false
	}

	if cfg.DisableCache {
		flags["disk-cache-size"] = "0"
		flags["media-cache-size"] = "0"
		flags["disable-cache"] = true
	}

	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
		flags["allow-insecure-localhost"] = true
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			flags[name] = value
			continue
		}
		flags[arg] = true
	}

	return flags
}

// viewport returns the configured window size, filling in defaults for
// missing or non-positive dimensions.
func viewport(cfg config.BrowserConfig) (int, int) {
	width, height := defaultViewportWidth, defaultViewportHeight
	if w := cfg.Viewport["width"]; w > 0 {
		width = w
	}
	if h := cfg.Viewport["height"]; h > 0 {
		height = h
	}
	return width, height
}

// DefaultAllocatorOptions builds the exec allocator options for one isolated
// browser process.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}

	width, height := viewport(cfg)
	opts = append(opts, chromedp.WindowSize(width, height))

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	return opts
}
