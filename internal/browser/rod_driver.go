package browser

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"
)

var errNoCurrentTab = errors.New("no current tab")

// rodDriver implements Driver over a rod browser connection. Tabs keep the
// order in which they were first seen.
type rodDriver struct {
	browser  *rod.Browser
	launcher *launcher.Launcher

	pages   map[string]*rod.Page
	order   []string
	current string

	loadTimeout time.Duration
	evalTimeout time.Duration
	logger      *zap.Logger
}

func (d *rodDriver) track(p *rod.Page) {
	id := string(p.TargetID)
	if _, ok := d.pages[id]; !ok {
		d.order = append(d.order, id)
	}
	d.pages[id] = p
}

// Tabs reconciles the known tabs with the browser's page targets.
func (d *rodDriver) Tabs() ([]string, error) {
	pages, err := d.browser.Pages()
	if err != nil {
		return nil, err
	}

	live := make(map[string]*rod.Page, len(pages))
	for _, p := range pages {
		live[string(p.TargetID)] = p
	}

	order := d.order[:0]
	for _, id := range d.order {
		if _, ok := live[id]; ok {
			order = append(order, id)
		} else {
			delete(d.pages, id)
		}
	}
	d.order = order

	for _, p := range pages {
		d.track(p)
	}
	if _, ok := d.pages[d.current]; !ok {
		d.current = ""
	}

	return slices.Clone(d.order), nil
}

func (d *rodDriver) Current() string {
	return d.current
}

func (d *rodDriver) SwitchTo(handle string) error {
	p, ok := d.pages[handle]
	if !ok {
		if _, err := d.Tabs(); err != nil {
			return err
		}
		if p, ok = d.pages[handle]; !ok {
			return fmt.Errorf("%w: %s", ErrTabNotFound, handle)
		}
	}
	if _, err := p.Activate(); err != nil {
		return err
	}
	d.current = handle
	return nil
}

func (d *rodDriver) NewTab() (string, error) {
	p, err := d.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", err
	}
	d.track(p)
	return string(p.TargetID), nil
}

func (d *rodDriver) CloseTab(handle string) error {
	p, ok := d.pages[handle]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, handle)
	}
	if err := p.Close(); err != nil {
		return err
	}
	delete(d.pages, handle)
	d.order = slices.DeleteFunc(d.order, func(id string) bool { return id == handle })
	if d.current == handle {
		d.current = ""
	}
	return nil
}

func (d *rodDriver) page() (*rod.Page, error) {
	p, ok := d.pages[d.current]
	if !ok {
		return nil, errNoCurrentTab
	}
	return p, nil
}

func (d *rodDriver) Navigate(url string) error {
	p, err := d.page()
	if err != nil {
		return err
	}

	tp := p.Timeout(d.loadTimeout)
	defer tp.CancelTimeout()

	err = tp.Navigate(url)
	if err == nil {
		err = tp.WaitLoad()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %s", ErrPageLoadTimeout, d.loadTimeout, url)
	}
	return err
}

func (d *rodDriver) Title() (string, error) {
	p, err := d.page()
	if err != nil {
		return "", err
	}
	info, err := p.Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (d *rodDriver) URL() (string, error) {
	p, err := d.page()
	if err != nil {
		return "", err
	}
	info, err := p.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Eval returns the result by value. Values CDP cannot serialize come back as
// their unserializable literal or description.
func (d *rodDriver) Eval(js string) (interface{}, error) {
	p, err := d.page()
	if err != nil {
		return nil, err
	}

	tp := p.Timeout(d.evalTimeout)
	defer tp.CancelTimeout()

	res, err := tp.Eval(js)
	if err != nil {
		return nil, err
	}

	switch {
	case res.Type == proto.RuntimeRemoteObjectTypeUndefined:
		return nil, nil
	case res.UnserializableValue != "":
		return string(res.UnserializableValue), nil
	case res.Value.Nil() && res.Subtype != proto.RuntimeRemoteObjectSubtypeNull && res.Description != "":
		return res.Description, nil
	}
	return res.Value.Val(), nil
}

func (d *rodDriver) Screenshot() ([]byte, error) {
	p, err := d.page()
	if err != nil {
		return nil, err
	}
	return p.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (d *rodDriver) WindowSize() (Size, error) {
	p, err := d.page()
	if err != nil {
		return Size{}, err
	}
	bounds, err := p.GetWindow()
	if err != nil {
		return Size{}, err
	}
	if bounds.Width == nil || bounds.Height == nil {
		return Size{}, fmt.Errorf("window bounds without size")
	}
	return Size{Width: *bounds.Width, Height: *bounds.Height}, nil
}

func (d *rodDriver) SetWindowSize(size Size) error {
	p, err := d.page()
	if err != nil {
		return err
	}
	return p.SetWindow(&proto.BrowserBounds{
		Width:       gson.Int(size.Width),
		Height:      gson.Int(size.Height),
		WindowState: proto.BrowserWindowStateNormal,
	})
}

// Quit closes the CDP connection, kills the process and removes the profile.
func (d *rodDriver) Quit() error {
	err := d.browser.Close()
	d.launcher.Kill()
	d.launcher.Cleanup()

	d.pages = make(map[string]*rod.Page)
	d.order = nil
	d.current = ""

	if err != nil {
		d.logger.Debug("browser close returned error after kill", zap.Error(err))
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	return nil
}
