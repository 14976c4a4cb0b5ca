package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ahrdadan/headctl/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOperationsRequireRunningBrowser(t *testing.T) {
	d := newFakeDriver()
	svc, l := newTestService(t, d)
	ctx := context.Background()

	ops := map[string]func() error{
		"navigate":       func() error { _, err := svc.Navigate(ctx, "example.com"); return err },
		"open_tab":       func() error { _, err := svc.OpenTab(ctx, ""); return err },
		"list_tabs":      func() error { _, err := svc.ListTabs(ctx); return err },
		"switch_tab":     func() error { _, err := svc.SwitchTab(ctx, "tab-1"); return err },
		"close_tab":      func() error { _, err := svc.CloseTab(ctx, ""); return err },
		"execute_script": func() error { _, err := svc.ExecuteScript(ctx, "return 1"); return err },
		"screenshot":     func() error { _, err := svc.Screenshot(ctx, CaptureOptions{}); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), ErrNotRunning)
		})
	}

	assert.Zero(t, l.calls.Load(), "no operation may launch the browser implicitly")
	assert.Empty(t, d.navigated)
}

func TestStartIsIdempotent(t *testing.T) {
	d := newFakeDriver()
	svc, l := newTestService(t, d)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Start(ctx))

	assert.EqualValues(t, 1, l.calls.Load())
	assert.Equal(t, []string{"https://start.test/"}, d.navigated)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, "tab-1", st.Current)
	assert.Equal(t, "https://start.test/", st.URL)
}

func TestStartReapsStrayProcessesButIgnoresFailure(t *testing.T) {
	d := newFakeDriver()
	reaper := &fakeReaper{err: errors.New("pkill: not found")}
	svc := NewService(&fakeLauncher{driver: d}, reaper, testOptions(), nil, zaptest.NewLogger(t))

	require.NoError(t, svc.Start(context.Background()))
	assert.EqualValues(t, 1, reaper.calls.Load())
}

func TestStartLaunchFailure(t *testing.T) {
	l := &fakeLauncher{err: errors.New("no chromium binary")}
	svc := NewService(l, nil, testOptions(), nil, zaptest.NewLogger(t))

	err := svc.Start(context.Background())
	assert.ErrorIs(t, err, ErrLaunchFailed)

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestStartQuitsBrowserThatNeverBecomesReady(t *testing.T) {
	d := newFakeDriver()
	d.evals[documentReadyJS] = func() (interface{}, error) { return false, nil }
	svc, _ := newTestService(t, d)

	err := svc.Start(context.Background())
	assert.ErrorIs(t, err, ErrLaunchFailed)
	assert.EqualValues(t, 1, d.quits.Load())

	_, err = svc.ListTabs(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestStopIsSafeWhenNotRunning(t *testing.T) {
	d := newFakeDriver()
	svc, _ := newTestService(t, d)
	ctx := context.Background()

	require.NoError(t, svc.Stop(ctx))

	require.NoError(t, svc.Start(ctx))
	d.quitErr = errors.New("already gone")
	require.NoError(t, svc.Stop(ctx))
	assert.EqualValues(t, 1, d.quits.Load())

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestNavigatePrefixesBareHost(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)

	info, err := svc.Navigate(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", info.URL)
	assert.Equal(t, "Title of https://example.com", info.Title)
	assert.Equal(t, StateComplete, info.Ready)
}

func TestNavigateTimeoutStillSucceeds(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	d.navigateErr = fmt.Errorf("%w: slow.test", ErrPageLoadTimeout)

	info, err := svc.Navigate(context.Background(), "https://slow.test")
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, info.Ready)
}

func TestNavigateReportsImagesTimeout(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	d.evals[imagesLoadedJS] = func() (interface{}, error) { return false, nil }

	info, err := svc.Navigate(context.Background(), "https://images.test")
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, info.Ready)
}

func TestNavigateFailure(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	d.navigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	_, err := svc.Navigate(context.Background(), "https://nowhere.invalid")
	assert.ErrorIs(t, err, ErrOperationFailed)

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running, "a failed navigation keeps the browser")
}

func TestNavigateFailureMentioningEOFKeepsBrowser(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	ctx := context.Background()
	d.navigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	_, err := svc.Navigate(ctx, "geoffrey.invalid")
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.Contains(t, err.Error(), "geoffrey.invalid")
	assert.EqualValues(t, 0, d.quits.Load())

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
}

func TestOpenTabNavigationFailureClosesNewTab(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	ctx := context.Background()
	d.navigateErr = errors.New("net::ERR_CONNECTION_REFUSED")

	_, err := svc.OpenTab(ctx, "down.test")
	assert.ErrorIs(t, err, ErrOperationFailed)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, []string{"tab-1"}, st.Handles)
	assert.Equal(t, "tab-1", st.Current)
}

func TestOpenTabBecomesCurrent(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	ctx := context.Background()

	tab, err := svc.OpenTab(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "tab-2", tab.Handle)
	assert.Equal(t, "about:blank", tab.URL)
	assert.Empty(t, tab.Ready)

	tab, err = svc.OpenTab(ctx, "docs.test")
	require.NoError(t, err)
	assert.Equal(t, "tab-3", tab.Handle)
	assert.Equal(t, "https://docs.test", tab.URL)
	assert.Equal(t, StateComplete, tab.Ready)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tab-3", st.Current)
	assert.Equal(t, []string{"tab-1", "tab-2", "tab-3"}, st.Handles)
}

func TestListTabsKeepsCurrent(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	ctx := context.Background()

	_, err := svc.OpenTab(ctx, "second.test")
	require.NoError(t, err)
	_, err = svc.SwitchTab(ctx, "tab-1")
	require.NoError(t, err)

	tabs, err := svc.ListTabs(ctx)
	require.NoError(t, err)
	require.Len(t, tabs, 2)

	assert.Equal(t, "tab-1", tabs[0].Handle)
	assert.True(t, tabs[0].IsCurrent)
	assert.Equal(t, "https://start.test/", tabs[0].URL)
	assert.Equal(t, "https://second.test", tabs[1].URL)
	assert.False(t, tabs[1].IsCurrent)
	assert.Equal(t, "tab-1", d.Current())
}

func TestSwitchTab(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	ctx := context.Background()

	_, err := svc.OpenTab(ctx, "other.test")
	require.NoError(t, err)

	info, err := svc.SwitchTab(ctx, "tab-1")
	require.NoError(t, err)
	assert.Equal(t, "https://start.test/", info.URL)

	_, err = svc.SwitchTab(ctx, "tab-99")
	assert.ErrorIs(t, err, ErrTabNotFound)
	assert.Equal(t, "tab-1", d.Current())
}

func TestCloseLastTabIsRejected(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)

	_, err := svc.CloseTab(context.Background(), "")
	assert.ErrorIs(t, err, ErrLastTab)
	assert.Equal(t, []string{"tab-1"}, d.order)
	assert.Equal(t, "tab-1", d.Current())
}

func TestCloseCurrentTabSelectsFirstRemaining(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	ctx := context.Background()

	_, err := svc.OpenTab(ctx, "")
	require.NoError(t, err)
	_, err = svc.OpenTab(ctx, "")
	require.NoError(t, err)

	remaining, err := svc.CloseTab(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
	assert.Equal(t, "tab-1", d.Current())

	remaining, err = svc.CloseTab(ctx, "tab-1")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, "tab-2", d.Current())
}

func TestCloseUnknownTab(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	ctx := context.Background()

	_, err := svc.OpenTab(ctx, "")
	require.NoError(t, err)

	_, err = svc.CloseTab(ctx, "tab-42")
	assert.ErrorIs(t, err, ErrTabNotFound)
	assert.Len(t, d.order, 2)
}

func TestExecuteScript(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	ctx := context.Background()

	var got string
	d.script = func(js string) (interface{}, error) {
		got = js
		return map[string]interface{}{"n": float64(2), "list": []interface{}{"a", true}}, nil
	}

	res, err := svc.ExecuteScript(ctx, "return document.title")
	require.NoError(t, err)
	assert.Equal(t, "function() {\nreturn document.title\n}", got)
	assert.Equal(t, map[string]interface{}{"n": float64(2), "list": []interface{}{"a", true}}, res)

	d.script = func(js string) (interface{}, error) {
		got = js
		return math.Inf(1), nil
	}
	res, err = svc.ExecuteScript(ctx, "() => Infinity")
	require.NoError(t, err)
	assert.Equal(t, "+Inf", res)
	assert.Equal(t, "() => Infinity", got)
}

func TestExecuteScriptError(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)

	d.script = func(js string) (interface{}, error) {
		return nil, errors.New("ReferenceError: nope is not defined")
	}
	_, err := svc.ExecuteScript(context.Background(), "return nope")
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.Contains(t, err.Error(), "ReferenceError")
}

func TestScriptErrorMentioningTypeofKeepsBrowser(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	ctx := context.Background()

	d.script = func(js string) (interface{}, error) {
		return nil, errors.New("eval js error: Error: unexpected typeof result")
	}
	_, err := svc.ExecuteScript(ctx, "return typeof x")
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.EqualValues(t, 0, d.quits.Load())

	d.script = func(js string) (interface{}, error) { return "ok", nil }
	res, err := svc.ExecuteScript(ctx, "return 'ok'")
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
}

func TestPanicBecomesOperationFailed(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	ctx := context.Background()

	d.script = func(js string) (interface{}, error) { panic("driver exploded") }
	_, err := svc.ExecuteScript(ctx, "return 1")
	assert.ErrorIs(t, err, ErrOperationFailed)

	d.script = func(js string) (interface{}, error) { return float64(1), nil }
	res, err := svc.ExecuteScript(ctx, "return 1")
	require.NoError(t, err, "the lease must be released after a panic")
	assert.Equal(t, float64(1), res)
}

func TestConnectionLossDropsHandle(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	ctx := context.Background()

	d.titleErr = fmt.Errorf("read tcp 127.0.0.1:9222: %w", io.EOF)
	_, err := svc.SwitchTab(ctx, "tab-1")
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.EqualValues(t, 1, d.quits.Load())

	_, err = svc.ListTabs(ctx)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestScreenshotViewport(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)

	shot, err := svc.Screenshot(context.Background(), CaptureOptions{})
	require.NoError(t, err)
	assert.Equal(t, TierViewport, shot.Tier)
	assert.Equal(t, []byte("png:1280x720"), shot.Image)
	assert.Empty(t, d.resizes)
}

func TestScreenshotFullPageRestoresWindow(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)

	shot, err := svc.Screenshot(context.Background(), CaptureOptions{FullPage: true})
	require.NoError(t, err)
	assert.Equal(t, TierFullPage, shot.Tier)
	assert.Equal(t, []byte("png:1280x4000"), shot.Image)
	assert.Equal(t, []Size{{1280, 4000}, {1280, 720}}, d.resizes)
	assert.Equal(t, Size{Width: 1280, Height: 720}, d.window)
}

func TestScreenshotUsesFallbackForInvalidDocumentSize(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	d.evals[scrollSizeJS] = func() (interface{}, error) {
		return []interface{}{float64(0), float64(0)}, nil
	}

	shot, err := svc.Screenshot(context.Background(), CaptureOptions{FullPage: true})
	require.NoError(t, err)
	assert.Equal(t, TierFullPage, shot.Tier)
	assert.Equal(t, Size{Width: 1920, Height: 1080}, d.resizes[0])
}

func TestScreenshotFallsBackWhenResizeFails(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	d.setWindowErr = func(s Size) error {
		if s.Height == 4000 {
			return errors.New("window too large")
		}
		return nil
	}

	shot, err := svc.Screenshot(context.Background(), CaptureOptions{FullPage: true})
	require.NoError(t, err)
	assert.Equal(t, TierViewport, shot.Tier)
	assert.NotEmpty(t, shot.Image)
	assert.Equal(t, Size{Width: 1280, Height: 720}, d.resizes[len(d.resizes)-1])
	assert.Equal(t, Size{Width: 1280, Height: 720}, d.window)
}

func TestScreenshotFallsBackWhenGeometryPanics(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	d.evals[scrollSizeJS] = func() (interface{}, error) { panic("bad geometry") }

	shot, err := svc.Screenshot(context.Background(), CaptureOptions{FullPage: true})
	require.NoError(t, err)
	assert.Equal(t, TierViewport, shot.Tier)
	assert.NotEmpty(t, shot.Image)
}

func TestScreenshotViewportFailure(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	d.screenshotErr = errors.New("target crashed")

	_, err := svc.Screenshot(context.Background(), CaptureOptions{FullPage: true})
	assert.ErrorIs(t, err, ErrCaptureFailed)
}

func TestConcurrentOperationsDoNotInterleave(t *testing.T) {
	d := newFakeDriver()
	svc := startedService(t, d)
	d.callLatency = 200 * time.Microsecond
	d.script = func(js string) (interface{}, error) { return "ok", nil }
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.Navigate(ctx, fmt.Sprintf("site-%d.test", i))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = svc.ExecuteScript(ctx, "return 1")
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.Screenshot(ctx, CaptureOptions{FullPage: true})
		}()
	}
	wg.Wait()

	assert.Zero(t, d.overlaps.Load())
	assert.Len(t, d.navigated, 13)
}

func TestOperationEvents(t *testing.T) {
	d := newFakeDriver()
	n := &recordingNotifier{}
	svc := NewService(&fakeLauncher{driver: d}, nil, testOptions(), n, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := svc.ListTabs(ctx)
	require.Error(t, err)
	require.NoError(t, svc.Start(ctx))

	require.Len(t, n.events, 4)
	assert.Equal(t, events.Event{Seq: 1, Operation: "list_tabs", Status: events.StatusStarted, Time: n.events[0].Time}, n.events[0])
	assert.Equal(t, events.StatusFailed, n.events[1].Status)
	assert.Equal(t, uint64(1), n.events[1].Seq)
	assert.Contains(t, n.events[1].Error, "not running")
	assert.Equal(t, "start", n.events[3].Operation)
	assert.Equal(t, uint64(2), n.events[3].Seq)
	assert.Equal(t, events.StatusSucceeded, n.events[3].Status)
}
