package navigation

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"shopauth/pkg/logging"
)

// Navigator moves the user agent to a new location. Targets are either
// absolute URLs (identity provider pages) or application paths such as "/en".
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, target string) error

func (f NavigatorFunc) Navigate(ctx context.Context, target string) error {
	return f(ctx, target)
}

// BrowserNavigator opens targets in the system browser. Application paths are
// resolved against the storefront origin.
type BrowserNavigator struct {
	origin *url.URL
	out    io.Writer
	open   func(target string) error
}

// NewBrowserNavigator creates a navigator resolving paths against origin
// (for example http://localhost:3000). The target is always echoed to out so
// the user can open it manually when no browser is available.
func NewBrowserNavigator(origin string, out io.Writer) (*BrowserNavigator, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid application origin %q", origin)
	}
	return &BrowserNavigator{
		origin: &url.URL{Scheme: u.Scheme, Host: u.Host},
		out:    out,
		open:   OpenBrowser,
	}, nil
}

// Resolve returns the absolute URL for target.
func (n *BrowserNavigator) Resolve(target string) (string, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid navigation target %q: %w", target, err)
	}
	return n.origin.ResolveReference(ref).String(), nil
}

func (n *BrowserNavigator) Navigate(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := n.Resolve(target)
	if err != nil {
		return err
	}
	if n.out != nil {
		fmt.Fprintf(n.out, "Opening %s\n", abs)
	}
	if err := n.open(abs); err != nil {
		logging.Warn("Navigation", "Could not open browser, open the URL manually: %v", err)
	}
	return nil
}

// OpenBrowser opens the specified URL in the default web browser.
// It supports Linux, macOS, and Windows.
func OpenBrowser(target string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		cmd = exec.Command("xdg-open", target)
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	// The browser keeps running after we return.
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Recorder is a Navigator that records targets instead of opening them.
type Recorder struct {
	mu      sync.Mutex
	targets []string
	Err     error
}

func (r *Recorder) Navigate(_ context.Context, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target)
	return r.Err
}

// Targets returns a copy of everything navigated to so far.
func (r *Recorder) Targets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.targets...)
}

// Last returns the most recent target, or "".
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.targets) == 0 {
		return ""
	}
	return r.targets[len(r.targets)-1]
}

// HasPrefix reports whether any recorded target starts with prefix.
func (r *Recorder) HasPrefix(prefix string) bool {
	for _, t := range r.Targets() {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}
