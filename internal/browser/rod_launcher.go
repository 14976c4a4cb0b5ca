package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// LaunchConfig describes how Chromium is started.
type LaunchConfig struct {
	Bin             string
	UserDataDir     string
	Window          Size
	PageLoadTimeout time.Duration
	ScriptTimeout   time.Duration
}

// DefaultUserDataDir is the profile directory used when none is configured.
// Its path also marks the processes the reaper is allowed to kill.
func DefaultUserDataDir() string {
	return filepath.Join(os.TempDir(), "headctl-chromium")
}

// RodLauncher starts headless Chromium and connects to it over CDP.
type RodLauncher struct {
	cfg    LaunchConfig
	logger *zap.Logger
}

// NewRodLauncher creates a launcher. Empty fields fall back to defaults.
func NewRodLauncher(cfg LaunchConfig, logger *zap.Logger) *RodLauncher {
	if cfg.UserDataDir == "" {
		cfg.UserDataDir = DefaultUserDataDir()
	}
	if cfg.Window.Width <= 0 || cfg.Window.Height <= 0 {
		cfg.Window = Size{Width: 2560, Height: 1440}
	}
	if cfg.PageLoadTimeout <= 0 {
		cfg.PageLoadTimeout = 30 * time.Second
	}
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = 30 * time.Second
	}
	return &RodLauncher{cfg: cfg, logger: logger.Named("launcher")}
}

// Launch starts a browser process with one blank tab. The process outlives ctx;
// only Quit terminates it.
func (r *RodLauncher) Launch(ctx context.Context) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Leakless(true).
		UserDataDir(r.cfg.UserDataDir).
		Set("window-size", fmt.Sprintf("%d,%d", r.cfg.Window.Width, r.cfg.Window.Height)).
		Set("disable-gpu").
		Set("disable-extensions").
		Set("disable-infobars").
		Set("disable-notifications").
		Set("disable-popup-blocking").
		Set("disable-dev-shm-usage").
		Set("font-render-hinting", "none").
		Set("no-first-run").
		Set("no-default-browser-check")
	if r.cfg.Bin != "" {
		l = l.Bin(r.cfg.Bin)
	}

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch chrome: %w", err)
	}

	b := rod.New().ControlURL(wsURL).NoDefaultDevice()
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}

	d := &rodDriver{
		browser:     b,
		launcher:    l,
		pages:       make(map[string]*rod.Page),
		loadTimeout: r.cfg.PageLoadTimeout,
		evalTimeout: r.cfg.ScriptTimeout,
		logger:      r.logger,
	}

	handles, err := d.Tabs()
	if err == nil && len(handles) == 0 {
		var page *rod.Page
		if page, err = b.Page(proto.TargetCreateTarget{URL: "about:blank"}); err == nil {
			d.track(page)
			handles = []string{string(page.TargetID)}
		}
	}
	if err == nil {
		err = d.SwitchTo(handles[0])
	}
	if err != nil {
		if quitErr := d.Quit(); quitErr != nil {
			r.logger.Warn("failed to terminate browser after setup error", zap.Error(quitErr))
		}
		return nil, fmt.Errorf("failed to prepare initial tab: %w", err)
	}

	r.logger.Info("chrome launched", zap.String("endpoint", wsURL), zap.String("profile", r.cfg.UserDataDir))
	return d, nil
}
