package browser

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahrdadan/headctl/internal/events"
	"go.uber.org/zap/zaptest"
)

type fakeTab struct {
	title string
	url   string
}

// fakeDriver is an in-memory browser. It counts calls that overlap in time so
// tests can assert the session never lets two operations interleave.
type fakeDriver struct {
	tabs    map[string]*fakeTab
	order   []string
	current string
	nextID  int
	window  Size

	evals         map[string]func() (interface{}, error)
	script        func(js string) (interface{}, error)
	navigateErr   error
	titleErr      error
	screenshotErr error
	setWindowErr  func(Size) error
	quitErr       error

	navigated   []string
	resizes     []Size
	shots       []Size
	quits       atomic.Int32
	inFlight    atomic.Int32
	overlaps    atomic.Int32
	callLatency time.Duration
}

func newFakeDriver() *fakeDriver {
	d := &fakeDriver{
		tabs:   make(map[string]*fakeTab),
		window: Size{Width: 1280, Height: 720},
		evals: map[string]func() (interface{}, error){
			documentReadyJS: func() (interface{}, error) { return true, nil },
			imagesLoadedJS:  func() (interface{}, error) { return true, nil },
			scrollSizeJS: func() (interface{}, error) {
				return []interface{}{float64(1280), float64(4000)}, nil
			},
			innerSizeJS: func() (interface{}, error) {
				return []interface{}{float64(1280), float64(720)}, nil
			},
		},
	}
	d.current = d.addTab()
	return d
}

func (d *fakeDriver) addTab() string {
	d.nextID++
	h := fmt.Sprintf("tab-%d", d.nextID)
	d.tabs[h] = &fakeTab{title: "", url: "about:blank"}
	d.order = append(d.order, h)
	return h
}

func (d *fakeDriver) enter() func() {
	if d.inFlight.Add(1) > 1 {
		d.overlaps.Add(1)
	}
	if d.callLatency > 0 {
		time.Sleep(d.callLatency)
	}
	return func() { d.inFlight.Add(-1) }
}

func (d *fakeDriver) tab() (*fakeTab, error) {
	t, ok := d.tabs[d.current]
	if !ok {
		return nil, errNoCurrentTab
	}
	return t, nil
}

func (d *fakeDriver) Tabs() ([]string, error) {
	defer d.enter()()
	return slices.Clone(d.order), nil
}

func (d *fakeDriver) Current() string {
	return d.current
}

func (d *fakeDriver) SwitchTo(handle string) error {
	defer d.enter()()
	if _, ok := d.tabs[handle]; !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, handle)
	}
	d.current = handle
	return nil
}

func (d *fakeDriver) NewTab() (string, error) {
	defer d.enter()()
	return d.addTab(), nil
}

func (d *fakeDriver) CloseTab(handle string) error {
	defer d.enter()()
	if _, ok := d.tabs[handle]; !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, handle)
	}
	delete(d.tabs, handle)
	d.order = slices.DeleteFunc(d.order, func(h string) bool { return h == handle })
	if d.current == handle {
		d.current = ""
	}
	return nil
}

func (d *fakeDriver) Navigate(url string) error {
	defer d.enter()()
	t, err := d.tab()
	if err != nil {
		return err
	}
	d.navigated = append(d.navigated, url)
	if d.navigateErr != nil {
		return d.navigateErr
	}
	t.url = url
	t.title = "Title of " + url
	return nil
}

func (d *fakeDriver) Title() (string, error) {
	defer d.enter()()
	if d.titleErr != nil {
		return "", d.titleErr
	}
	t, err := d.tab()
	if err != nil {
		return "", err
	}
	return t.title, nil
}

func (d *fakeDriver) URL() (string, error) {
	defer d.enter()()
	t, err := d.tab()
	if err != nil {
		return "", err
	}
	return t.url, nil
}

func (d *fakeDriver) Eval(js string) (interface{}, error) {
	defer d.enter()()
	if fn, ok := d.evals[js]; ok {
		return fn()
	}
	if d.script != nil {
		return d.script(js)
	}
	return nil, nil
}

func (d *fakeDriver) Screenshot() ([]byte, error) {
	defer d.enter()()
	if d.screenshotErr != nil {
		return nil, d.screenshotErr
	}
	d.shots = append(d.shots, d.window)
	return []byte(fmt.Sprintf("png:%dx%d", d.window.Width, d.window.Height)), nil
}

func (d *fakeDriver) WindowSize() (Size, error) {
	defer d.enter()()
	return d.window, nil
}

func (d *fakeDriver) SetWindowSize(size Size) error {
	defer d.enter()()
	d.resizes = append(d.resizes, size)
	if d.setWindowErr != nil {
		if err := d.setWindowErr(size); err != nil {
			return err
		}
	}
	d.window = size
	return nil
}

func (d *fakeDriver) Quit() error {
	d.quits.Add(1)
	return d.quitErr
}

type fakeLauncher struct {
	driver *fakeDriver
	err    error
	calls  atomic.Int32
}

func (l *fakeLauncher) Launch(ctx context.Context) (Driver, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return l.driver, nil
}

type fakeReaper struct {
	err   error
	calls atomic.Int32
}

func (r *fakeReaper) Reap(ctx context.Context) error {
	r.calls.Add(1)
	return r.err
}

type recordingNotifier struct {
	events []events.Event
}

func (n *recordingNotifier) Notify(ev events.Event) {
	n.events = append(n.events, ev)
}

func testOptions() Options {
	return Options{
		DefaultURL:         "https://start.test/",
		LaunchReadyTimeout: 50 * time.Millisecond,
		NavigateTimeout:    50 * time.Millisecond,
		ImagesTimeout:      50 * time.Millisecond,
		SafeReadyTimeout:   50 * time.Millisecond,
		PollInterval:       time.Millisecond,
		FallbackSize:       Size{Width: 1920, Height: 1080},
	}
}

func newTestService(t *testing.T, d *fakeDriver) (*Service, *fakeLauncher) {
	t.Helper()
	l := &fakeLauncher{driver: d}
	svc := NewService(l, &fakeReaper{}, testOptions(), nil, zaptest.NewLogger(t))
	return svc, l
}

func startedService(t *testing.T, d *fakeDriver) *Service {
	t.Helper()
	svc, _ := newTestService(t, d)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return svc
}
