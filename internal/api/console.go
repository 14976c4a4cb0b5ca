package api

import (
	"bytes"
	_ "embed"
	"html/template"

	"github.com/ahrdadan/headctl/internal/config"
	"github.com/gofiber/fiber/v2"
)

//go:embed console.html
var consoleHTML string

var consoleTemplate = template.Must(template.New("console").Parse(consoleHTML))

type consoleData struct {
	AppName string
	Version string
}

// Console serves the browser control page
func (h *Handler) Console(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := consoleTemplate.Execute(&buf, consoleData{
		AppName: config.AppName,
		Version: config.Version,
	}); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}
