package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrdadan/headctl/internal/events"
	"go.uber.org/zap"
)

// Options tunes the session. Zero values are replaced by DefaultOptions.
type Options struct {
	DefaultURL         string
	LaunchReadyTimeout time.Duration
	NavigateTimeout    time.Duration
	ImagesTimeout      time.Duration
	SafeReadyTimeout   time.Duration
	PollInterval       time.Duration
	LayoutSettle       time.Duration
	SafeSettle         time.Duration
	ResizeSettle       time.Duration
	FallbackSize       Size
}

// DefaultOptions returns the timings used in production.
func DefaultOptions() Options {
	return Options{
		DefaultURL:         "https://www.bing.com/",
		LaunchReadyTimeout: 10 * time.Second,
		NavigateTimeout:    30 * time.Second,
		ImagesTimeout:      10 * time.Second,
		SafeReadyTimeout:   15 * time.Second,
		PollInterval:       250 * time.Millisecond,
		LayoutSettle:       2 * time.Second,
		SafeSettle:         time.Second,
		ResizeSettle:       time.Second,
		FallbackSize:       Size{Width: 1920, Height: 1080},
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.LaunchReadyTimeout <= 0 {
		o.LaunchReadyTimeout = def.LaunchReadyTimeout
	}
	if o.NavigateTimeout <= 0 {
		o.NavigateTimeout = def.NavigateTimeout
	}
	if o.ImagesTimeout <= 0 {
		o.ImagesTimeout = def.ImagesTimeout
	}
	if o.SafeReadyTimeout <= 0 {
		o.SafeReadyTimeout = def.SafeReadyTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.FallbackSize.Width <= 0 || o.FallbackSize.Height <= 0 {
		o.FallbackSize = def.FallbackSize
	}
	return o
}

// Status is a snapshot of the session.
type Status struct {
	Running bool     `json:"browser_running"`
	Title   string   `json:"title,omitempty"`
	URL     string   `json:"url,omitempty"`
	Handles []string `json:"window_handles,omitempty"`
	Current string   `json:"current_window_handle,omitempty"`
	Count   int      `json:"tabs_count,omitempty"`
}

// PageInfo is the state of the current tab after an operation.
type PageInfo struct {
	Title string     `json:"title"`
	URL   string     `json:"url"`
	Ready ReadyState `json:"ready_state,omitempty"`
}

// OpenedTab describes a tab created by OpenTab.
type OpenedTab struct {
	Handle string     `json:"window_handle"`
	Title  string     `json:"title"`
	URL    string     `json:"url"`
	Ready  ReadyState `json:"ready_state,omitempty"`
}

// Service is the operation surface over the single browser session.
type Service struct {
	session  *Session
	waiter   *Waiter
	capturer *Capturer
	opts     Options
	logger   *zap.Logger
}

// NewService wires the supervisor, session guard, waiter and capturer.
func NewService(launcher Launcher, reaper Reaper, opts Options, notifier events.Notifier, logger *zap.Logger) *Service {
	opts = opts.withDefaults()
	logger = logger.Named("browser")

	waiter := newWaiter(opts, logger)
	sup := newSupervisor(launcher, reaper, waiter, opts, logger)

	return &Service{
		session:  newSession(sup, notifier, logger),
		waiter:   waiter,
		capturer: newCapturer(opts, logger),
		opts:     opts,
		logger:   logger,
	}
}

// Start launches the browser; a running browser is left as is.
func (s *Service) Start(ctx context.Context) error {
	return s.session.Start(ctx)
}

// Stop terminates the browser if it is running.
func (s *Service) Stop(ctx context.Context) error {
	return s.session.Stop()
}

// Status reports whether the browser runs and, if so, its tabs. Failures to
// read page details are logged and leave the fields empty.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	return inspect(s.session, "status", func(d Driver) (*Status, error) {
		if d == nil {
			return &Status{Running: false}, nil
		}

		st := &Status{Running: true, Current: d.Current()}
		if handles, err := d.Tabs(); err == nil {
			st.Handles = handles
			st.Count = len(handles)
		} else {
			s.logger.Warn("failed to enumerate tabs for status", zap.Error(err))
		}
		if title, err := d.Title(); err == nil {
			st.Title = title
		}
		if url, err := d.URL(); err == nil {
			st.URL = url
		}
		return st, nil
	})
}

// Navigate loads rawURL in the current tab. Bare hosts get an https:// prefix.
// A page that does not finish loading still succeeds with Ready set to
// StateTimedOut.
func (s *Service) Navigate(ctx context.Context, rawURL string) (*PageInfo, error) {
	target := NormalizeURL(rawURL)
	return withExclusiveAccess(s.session, "navigate", func(d Driver) (*PageInfo, error) {
		ready, err := s.load(ctx, d, target)
		if err != nil {
			return nil, err
		}
		return pageInfo(d, ready)
	})
}

// OpenTab opens a tab, makes it current and optionally navigates it. When the
// navigation fails the new tab is closed and the previous tab is current again.
func (s *Service) OpenTab(ctx context.Context, rawURL string) (*OpenedTab, error) {
	return withExclusiveAccess(s.session, "open_tab", func(d Driver) (*OpenedTab, error) {
		previous := d.Current()
		h, err := openTab(d)
		if err != nil {
			return nil, err
		}

		var ready ReadyState
		if rawURL != "" && rawURL != "about:blank" {
			if ready, err = s.load(ctx, d, NormalizeURL(rawURL)); err != nil {
				s.discardTab(d, h, previous)
				return nil, err
			}
		}

		info, err := pageInfo(d, ready)
		if err != nil {
			return nil, err
		}
		return &OpenedTab{Handle: h, Title: info.Title, URL: info.URL, Ready: ready}, nil
	})
}

// ListTabs returns every tab in order without changing the current tab.
func (s *Service) ListTabs(ctx context.Context) ([]TabInfo, error) {
	return withExclusiveAccess(s.session, "list_tabs", listTabs)
}

// SwitchTab makes handle current.
func (s *Service) SwitchTab(ctx context.Context, handle string) (*PageInfo, error) {
	return withExclusiveAccess(s.session, "switch_tab", func(d Driver) (*PageInfo, error) {
		if err := switchTab(d, handle); err != nil {
			return nil, err
		}
		return pageInfo(d, "")
	})
}

// CloseTab closes handle, or the current tab when empty, and returns how many
// tabs remain.
func (s *Service) CloseTab(ctx context.Context, handle string) (int, error) {
	return withExclusiveAccess(s.session, "close_tab", func(d Driver) (int, error) {
		return closeTab(d, handle)
	})
}

// ExecuteScript runs script in the current tab. The result is always
// JSON-serializable.
func (s *Service) ExecuteScript(ctx context.Context, script string) (interface{}, error) {
	return withExclusiveAccess(s.session, "execute_script", func(d Driver) (interface{}, error) {
		v, err := d.Eval(wrapScript(script))
		if err != nil {
			return nil, fmt.Errorf("execute script: %w", err)
		}
		return normalizeResult(v), nil
	})
}

// Screenshot captures the current tab as PNG.
func (s *Service) Screenshot(ctx context.Context, opts CaptureOptions) (*Capture, error) {
	return withExclusiveAccess(s.session, "screenshot", func(d Driver) (*Capture, error) {
		if _, err := d.URL(); err != nil {
			return nil, fmt.Errorf("browser not responding: %w", err)
		}
		s.waiter.AwaitReadySafe(ctx, d, s.opts.SafeReadyTimeout)
		return s.capturer.Capture(d, opts)
	})
}

// load navigates and waits. A driver-level page load timeout is soft.
func (s *Service) load(ctx context.Context, d Driver, target string) (ReadyState, error) {
	err := d.Navigate(target)
	switch {
	case errors.Is(err, ErrPageLoadTimeout):
		s.logger.Warn("navigation timed out, returning current state", zap.String("url", target))
		return StateTimedOut, nil
	case err != nil:
		return "", fmt.Errorf("navigate to %s: %w", target, err)
	}
	return s.waiter.AwaitReady(ctx, d, s.opts.NavigateTimeout, s.opts.ImagesTimeout), nil
}

// discardTab closes a tab that failed to open and switches back to previous.
func (s *Service) discardTab(d Driver, handle, previous string) {
	if err := d.CloseTab(handle); err != nil {
		s.logger.Warn("failed to close tab after failed navigation", zap.String("handle", handle), zap.Error(err))
	}
	if previous == "" {
		return
	}
	if err := d.SwitchTo(previous); err != nil {
		s.logger.Warn("failed to restore previous tab", zap.String("handle", previous), zap.Error(err))
	}
}

func pageInfo(d Driver, ready ReadyState) (*PageInfo, error) {
	title, err := d.Title()
	if err != nil {
		return nil, fmt.Errorf("read title: %w", err)
	}
	url, err := d.URL()
	if err != nil {
		return nil, fmt.Errorf("read url: %w", err)
	}
	return &PageInfo{Title: title, URL: url, Ready: ready}, nil
}
