package browser

import "context"

// Size is a window size in CSS pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Driver is the automation surface of one running browser process.
//
// A Driver is not safe for concurrent use; the Session serializes every call.
// Tabs are identified by opaque handles and enumerated in a stable order.
// Exactly one tab is current and page-level calls act on it.
type Driver interface {
	// Tabs returns the open tab handles in enumeration order.
	Tabs() ([]string, error)
	// Current returns the handle of the current tab.
	Current() string
	// SwitchTo makes handle the current tab.
	SwitchTo(handle string) error
	// NewTab opens a blank tab and returns its handle without switching to it.
	NewTab() (string, error)
	// CloseTab closes handle. If it was current, no tab is current until SwitchTo.
	CloseTab(handle string) error

	// Navigate loads url in the current tab. A load that outlives the driver's
	// page load timeout returns an error wrapping ErrPageLoadTimeout.
	Navigate(url string) error
	Title() (string, error)
	URL() (string, error)
	// Eval runs a JavaScript function expression in the current tab and returns
	// its JSON-decoded result.
	Eval(js string) (interface{}, error)
	// Screenshot captures the current viewport as PNG.
	Screenshot() ([]byte, error)

	WindowSize() (Size, error)
	SetWindowSize(size Size) error

	// Quit closes the browser and terminates its process.
	Quit() error
}

// Launcher creates new browser processes.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}

// Reaper terminates browser processes left behind by earlier runs.
type Reaper interface {
	Reap(ctx context.Context) error
}
