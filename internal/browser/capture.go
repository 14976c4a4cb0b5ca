package browser

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Capture tiers, in the order they are attempted.
const (
	TierViewport = "viewport"
	TierFullPage = "full_page"
)

const (
	scrollSizeJS = `() => [document.body.scrollWidth, document.body.scrollHeight]`
	innerSizeJS  = `() => [window.innerWidth, window.innerHeight]`
)

// CaptureOptions selects how much of the page to capture.
type CaptureOptions struct {
	FullPage bool
}

// Capture is a screenshot and the tier that produced it.
type Capture struct {
	Image []byte
	Tier  string
}

type captureStrategy struct {
	name    string
	applies func(CaptureOptions) bool
	capture func(d Driver) ([]byte, error)
}

// Capturer produces a screenshot from an ordered list of strategies.
//
// The viewport capture is always taken first and is the result whenever no
// better strategy succeeds. Each strategy runs inside its own error boundary.
type Capturer struct {
	fallback   Size
	settle     time.Duration
	strategies []captureStrategy
	logger     *zap.Logger
}

func newCapturer(opts Options, logger *zap.Logger) *Capturer {
	c := &Capturer{
		fallback: opts.FallbackSize,
		settle:   opts.ResizeSettle,
		logger:   logger.Named("capture"),
	}
	c.strategies = []captureStrategy{
		{
			name:    TierFullPage,
			applies: func(o CaptureOptions) bool { return o.FullPage },
			capture: c.fullPage,
		},
	}
	return c
}

// Capture returns the best available screenshot. It fails with ErrCaptureFailed
// only when the viewport itself cannot be captured.
func (c *Capturer) Capture(d Driver, opts CaptureOptions) (*Capture, error) {
	baseline, err := c.viewport(d)
	if err != nil {
		c.logger.Error("viewport capture failed", zap.Error(err))
		return nil, opError("screenshot", ErrCaptureFailed, err)
	}

	for _, s := range c.strategies {
		if !s.applies(opts) {
			continue
		}
		img, err := runStrategy(s, d)
		if err != nil {
			c.logger.Warn("capture tier failed, using fallback",
				zap.String("tier", s.name),
				zap.Error(err))
			continue
		}
		return &Capture{Image: img, Tier: s.name}, nil
	}

	return &Capture{Image: baseline, Tier: TierViewport}, nil
}

func runStrategy(s captureStrategy, d Driver) (img []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	img, err = s.capture(d)
	if err == nil && len(img) == 0 {
		err = fmt.Errorf("empty image")
	}
	return img, err
}

func (c *Capturer) viewport(d Driver) (img []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	img, err = d.Screenshot()
	if err == nil && len(img) == 0 {
		err = fmt.Errorf("empty image")
	}
	return img, err
}

// fullPage grows the window to the document size, captures, and always
// restores the original window size.
func (c *Capturer) fullPage(d Driver) (img []byte, err error) {
	target, err := c.documentSize(d)
	if err != nil {
		return nil, err
	}

	original, err := d.WindowSize()
	if err != nil {
		return nil, fmt.Errorf("read window size: %w", err)
	}

	defer func() {
		if restoreErr := d.SetWindowSize(original); restoreErr != nil {
			c.logger.Error("failed to restore window size",
				zap.Int("width", original.Width),
				zap.Int("height", original.Height),
				zap.Error(restoreErr))
		}
	}()

	if err := d.SetWindowSize(target); err != nil {
		return nil, fmt.Errorf("resize window to %dx%d: %w", target.Width, target.Height, err)
	}
	if c.settle > 0 {
		time.Sleep(c.settle)
	}

	img, err = d.Screenshot()
	if err != nil {
		return nil, fmt.Errorf("capture resized window: %w", err)
	}
	return img, nil
}

// documentSize returns the scrollable document size, or the fallback
// resolution when the page reports a non-positive dimension.
func (c *Capturer) documentSize(d Driver) (Size, error) {
	scroll, err := evalSize(d, scrollSizeJS)
	if err != nil {
		return Size{}, fmt.Errorf("read document size: %w", err)
	}
	inner, err := evalSize(d, innerSizeJS)
	if err != nil {
		return Size{}, fmt.Errorf("read viewport size: %w", err)
	}

	c.logger.Debug("page geometry",
		zap.Int("scroll_width", scroll.Width),
		zap.Int("scroll_height", scroll.Height),
		zap.Int("inner_width", inner.Width),
		zap.Int("inner_height", inner.Height))

	if scroll.Width <= 0 || scroll.Height <= 0 {
		c.logger.Warn("page reported invalid size, using fallback",
			zap.Int("width", c.fallback.Width),
			zap.Int("height", c.fallback.Height))
		return c.fallback, nil
	}
	return scroll, nil
}

func evalSize(d Driver, js string) (Size, error) {
	v, err := d.Eval(js)
	if err != nil {
		return Size{}, err
	}
	pair, ok := v.([]interface{})
	if !ok || len(pair) != 2 {
		return Size{}, fmt.Errorf("unexpected size result %v", v)
	}
	w, err := toInt(pair[0])
	if err != nil {
		return Size{}, err
	}
	h, err := toInt(pair[1])
	if err != nil {
		return Size{}, err
	}
	return Size{Width: w, Height: h}, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
