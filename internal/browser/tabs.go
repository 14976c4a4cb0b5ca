package browser

import (
	"fmt"
	"slices"
)

// TabInfo describes one open tab.
type TabInfo struct {
	Handle    string `json:"handle"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	IsCurrent bool   `json:"is_current"`
}

// listTabs visits every tab to read its title and URL, then switches back so
// the current tab is unchanged when it returns.
func listTabs(d Driver) (tabs []TabInfo, err error) {
	current := d.Current()
	handles, err := d.Tabs()
	if err != nil {
		return nil, fmt.Errorf("enumerate tabs: %w", err)
	}

	defer func() {
		if d.Current() == current || !slices.Contains(handles, current) {
			return
		}
		if restoreErr := d.SwitchTo(current); restoreErr != nil && err == nil {
			tabs, err = nil, fmt.Errorf("restore current tab: %w", restoreErr)
		}
	}()

	tabs = make([]TabInfo, 0, len(handles))
	for _, h := range handles {
		if err := d.SwitchTo(h); err != nil {
			return nil, fmt.Errorf("switch to tab %s: %w", h, err)
		}
		title, err := d.Title()
		if err != nil {
			return nil, fmt.Errorf("read title of tab %s: %w", h, err)
		}
		url, err := d.URL()
		if err != nil {
			return nil, fmt.Errorf("read url of tab %s: %w", h, err)
		}
		tabs = append(tabs, TabInfo{
			Handle:    h,
			Title:     title,
			URL:       url,
			IsCurrent: h == current,
		})
	}
	return tabs, nil
}

// openTab creates a tab and makes it current.
func openTab(d Driver) (string, error) {
	h, err := d.NewTab()
	if err != nil {
		return "", fmt.Errorf("open tab: %w", err)
	}
	if err := d.SwitchTo(h); err != nil {
		return "", fmt.Errorf("switch to new tab: %w", err)
	}
	return h, nil
}

func switchTab(d Driver, handle string) error {
	handles, err := d.Tabs()
	if err != nil {
		return fmt.Errorf("enumerate tabs: %w", err)
	}
	if !slices.Contains(handles, handle) {
		return fmt.Errorf("%w: %s", ErrTabNotFound, handle)
	}
	return d.SwitchTo(handle)
}

// closeTab closes handle, or the current tab when handle is empty, and makes
// the first remaining tab current. The last tab can never be closed.
func closeTab(d Driver, handle string) (int, error) {
	if handle == "" {
		handle = d.Current()
	}

	handles, err := d.Tabs()
	if err != nil {
		return 0, fmt.Errorf("enumerate tabs: %w", err)
	}
	if !slices.Contains(handles, handle) {
		return 0, fmt.Errorf("%w: %s", ErrTabNotFound, handle)
	}
	if len(handles) == 1 {
		return 0, ErrLastTab
	}

	if err := d.CloseTab(handle); err != nil {
		return 0, fmt.Errorf("close tab %s: %w", handle, err)
	}

	remaining, err := d.Tabs()
	if err != nil {
		return 0, fmt.Errorf("enumerate tabs: %w", err)
	}
	if len(remaining) == 0 {
		return 0, fmt.Errorf("no tabs left after closing %s", handle)
	}
	if err := d.SwitchTo(remaining[0]); err != nil {
		return 0, fmt.Errorf("switch to tab %s: %w", remaining[0], err)
	}
	return len(remaining), nil
}
