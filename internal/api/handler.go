package api

import (
	"context"
	"errors"
	"time"

	"github.com/ahrdadan/headctl/internal/browser"
	"github.com/ahrdadan/headctl/internal/events"
	"github.com/ahrdadan/headctl/internal/scratch"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Controller is the browser operation surface served over HTTP.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status(ctx context.Context) (*browser.Status, error)
	Navigate(ctx context.Context, url string) (*browser.PageInfo, error)
	OpenTab(ctx context.Context, url string) (*browser.OpenedTab, error)
	ListTabs(ctx context.Context) ([]browser.TabInfo, error)
	SwitchTab(ctx context.Context, handle string) (*browser.PageInfo, error)
	CloseTab(ctx context.Context, handle string) (int, error)
	ExecuteScript(ctx context.Context, script string) (interface{}, error)
	Screenshot(ctx context.Context, opts browser.CaptureOptions) (*browser.Capture, error)
}

// EventSource hands out live operation event subscriptions.
type EventSource interface {
	Subscribe() <-chan events.Event
	Unsubscribe(ch <-chan events.Event)
}

// Handler handles API requests
type Handler struct {
	browser Controller
	scratch *scratch.Dir
	events  EventSource
	logger  *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(ctrl Controller, dir *scratch.Dir, source EventSource, logger *zap.Logger) *Handler {
	return &Handler{
		browser: ctrl,
		scratch: dir,
		events:  source,
		logger:  logger.Named("api"),
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorHandler is the custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	return c.Status(statusCode(err)).JSON(Response{
		Success: false,
		Error:   err.Error(),
	})
}

func statusCode(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, browser.ErrNotRunning):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, browser.ErrTabNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, browser.ErrLastTab):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// parseBody decodes an optional JSON body. An empty body leaves v untouched.
func parseBody(c *fiber.Ctx, v interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return nil
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// StartBrowser launches the browser if it is not running
func (h *Handler) StartBrowser(c *fiber.Ctx) error {
	if err := h.browser.Start(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(Response{
		Success: true,
		Data:    map[string]interface{}{"browser_running": true},
	})
}

// StopBrowser terminates the browser
func (h *Handler) StopBrowser(c *fiber.Ctx) error {
	if err := h.browser.Stop(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(Response{
		Success: true,
		Data:    map[string]interface{}{"browser_running": false},
	})
}

// BrowserStatus returns browser status
func (h *Handler) BrowserStatus(c *fiber.Ctx) error {
	status, err := h.browser.Status(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(Response{Success: true, Data: status})
}

// NavigateRequest represents a navigation request
type NavigateRequest struct {
	URL string `json:"url"`
}

// Navigate loads a URL in the current tab
func (h *Handler) Navigate(c *fiber.Ctx) error {
	var req NavigateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.URL == "" {
		return fiber.NewError(fiber.StatusBadRequest, "URL is required")
	}

	info, err := h.browser.Navigate(c.UserContext(), req.URL)
	if err != nil {
		return err
	}
	return c.JSON(Response{Success: true, Data: info})
}

// OpenTabRequest represents a new tab request
type OpenTabRequest struct {
	URL string `json:"url"`
}

// OpenTab opens a tab and makes it current
func (h *Handler) OpenTab(c *fiber.Ctx) error {
	var req OpenTabRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	tab, err := h.browser.OpenTab(c.UserContext(), req.URL)
	if err != nil {
		return err
	}
	return c.JSON(Response{Success: true, Data: tab})
}

// ListTabs lists every open tab
func (h *Handler) ListTabs(c *fiber.Ctx) error {
	tabs, err := h.browser.ListTabs(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"tabs":  tabs,
			"count": len(tabs),
		},
	})
}

// TabRequest identifies a tab
type TabRequest struct {
	Handle string `json:"handle"`
}

// SwitchTab makes a tab current
func (h *Handler) SwitchTab(c *fiber.Ctx) error {
	var req TabRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Handle == "" {
		return fiber.NewError(fiber.StatusBadRequest, "handle is required")
	}

	info, err := h.browser.SwitchTab(c.UserContext(), req.Handle)
	if err != nil {
		return err
	}
	return c.JSON(Response{Success: true, Data: info})
}

// CloseTab closes a tab, the current one when no handle is given
func (h *Handler) CloseTab(c *fiber.Ctx) error {
	var req TabRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	remaining, err := h.browser.CloseTab(c.UserContext(), req.Handle)
	if err != nil {
		return err
	}
	return c.JSON(Response{
		Success: true,
		Data:    map[string]interface{}{"remaining_tabs": remaining},
	})
}

// ScriptRequest represents a script execution request
type ScriptRequest struct {
	Script string `json:"script"`
}

// ExecuteScript runs JavaScript in the current tab
func (h *Handler) ExecuteScript(c *fiber.Ctx) error {
	var req ScriptRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Script == "" {
		return fiber.NewError(fiber.StatusBadRequest, "script is required")
	}

	result, err := h.browser.ExecuteScript(c.UserContext(), req.Script)
	if err != nil {
		return err
	}
	return c.JSON(Response{
		Success: true,
		Data:    map[string]interface{}{"result": result},
	})
}

// Screenshot captures the current tab and sends it as a PNG download
func (h *Handler) Screenshot(c *fiber.Ctx) error {
	shot, err := h.browser.Screenshot(c.UserContext(), browser.CaptureOptions{
		FullPage: c.QueryBool("full_page", false),
	})
	if err != nil {
		return err
	}

	path, err := h.scratch.WriteImage("screenshot", shot.Image)
	if err != nil {
		h.logger.Error("failed to store screenshot", zap.Error(err))
		return err
	}

	// SendFile holds the file open, so it can be unlinked once the response is set up.
	// The sweeper catches anything left behind.
	defer h.scratch.Remove(path)

	c.Set("X-Capture-Tier", shot.Tier)
	c.Attachment("screenshot.png")
	return c.SendFile(path)
}
