package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

const (
	// Version is the current version of headctl
	Version = "1"
	// AppName is the application name
	AppName = "headctl"
)

// Config holds all configuration options for the headctl server
type Config struct {
	// Server
	Host string
	Port int

	// Browser
	BrowserBin      string
	ChromeRevision  int
	InstallDeps     bool
	NoAutostart     bool
	WindowWidth     int
	WindowHeight    int
	DefaultURL      string
	PageLoadTimeout time.Duration
	ScriptTimeout   time.Duration

	// Scratch files
	ScratchDir string
	ScratchTTL time.Duration

	// Security
	RateLimitRequests int // requests per minute per client

	// Events
	NatsURL     string // empty disables NATS publishing
	NatsSubject string

	// Logging
	LogLevel  string
	LogFormat string // console or json

	// Flags
	ShowVersion bool
	ShowHelp    bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              5000,
		BrowserBin:        "",
		ChromeRevision:    0,
		InstallDeps:       false,
		NoAutostart:       false,
		WindowWidth:       2560,
		WindowHeight:      1440,
		DefaultURL:        "https://www.bing.com/",
		PageLoadTimeout:   30 * time.Second,
		ScriptTimeout:     30 * time.Second,
		ScratchDir:        "temp",
		ScratchTTL:        10 * time.Minute,
		RateLimitRequests: 120,
		NatsURL:           "",
		NatsSubject:       "headctl.events",
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// Register binds every option to fs.
func (c *Config) Register(fs *flag.FlagSet) {
	// Server flags
	fs.StringVar(&c.Host, "host", c.Host, "Host address to bind the server")
	fs.IntVar(&c.Port, "port", c.Port, "Port number for the server")

	// Browser flags
	fs.StringVar(&c.BrowserBin, "browser-bin", c.BrowserBin, "Chromium binary (downloaded when empty)")
	fs.IntVar(&c.ChromeRevision, "chrome-revision", c.ChromeRevision, "Chromium revision to download (0 uses default)")
	fs.BoolVar(&c.InstallDeps, "install-deps", c.InstallDeps, "Install OS packages required by Chromium")
	fs.BoolVar(&c.NoAutostart, "no-autostart", c.NoAutostart, "Do not start the browser at boot")
	fs.IntVar(&c.WindowWidth, "window-width", c.WindowWidth, "Browser window width")
	fs.IntVar(&c.WindowHeight, "window-height", c.WindowHeight, "Browser window height")
	fs.StringVar(&c.DefaultURL, "default-url", c.DefaultURL, "Page opened after the browser starts")
	fs.DurationVar(&c.PageLoadTimeout, "page-load-timeout", c.PageLoadTimeout, "Page load timeout")
	fs.DurationVar(&c.ScriptTimeout, "script-timeout", c.ScriptTimeout, "Script execution timeout")

	// Scratch flags
	fs.StringVar(&c.ScratchDir, "scratch-dir", c.ScratchDir, "Directory for transient screenshot files")
	fs.DurationVar(&c.ScratchTTL, "scratch-ttl", c.ScratchTTL, "Age after which scratch files are removed")

	// Security flags
	fs.IntVar(&c.RateLimitRequests, "rate-limit", c.RateLimitRequests, "Rate limit requests per minute")

	// Event flags
	fs.StringVar(&c.NatsURL, "nats-url", c.NatsURL, "NATS server URL for operation events (empty disables)")
	fs.StringVar(&c.NatsSubject, "nats-subject", c.NatsSubject, "NATS subject for operation events")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format (console, json)")

	// Other flags
	fs.BoolVar(&c.ShowVersion, "version", c.ShowVersion, "Show version information")
	fs.BoolVar(&c.ShowHelp, "help", c.ShowHelp, "Show help message")
}

// Validate clamps out-of-range values back to sane defaults.
func (c *Config) Validate() {
	def := DefaultConfig()
	if c.WindowWidth < 320 {
		c.WindowWidth = def.WindowWidth
	}
	if c.WindowHeight < 240 {
		c.WindowHeight = def.WindowHeight
	}
	if c.PageLoadTimeout <= 0 {
		c.PageLoadTimeout = def.PageLoadTimeout
	}
	if c.ScriptTimeout <= 0 {
		c.ScriptTimeout = def.ScriptTimeout
	}
	if c.ScratchTTL < time.Minute {
		c.ScratchTTL = time.Minute
	}
	if c.RateLimitRequests < 1 {
		c.RateLimitRequests = def.RateLimitRequests
	}
	if c.ScratchDir == "" {
		c.ScratchDir = def.ScratchDir
	}
	if c.DefaultURL == "" {
		c.DefaultURL = def.DefaultURL
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		c.LogFormat = def.LogFormat
	}
}

// Parse parses args into a fresh config.
func Parse(args []string) (*Config, error) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	cfg.Register(fs)
	fs.Usage = func() {
		PrintHelp()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Validate()
	return cfg, nil
}

// ParseFlags parses command line flags and returns the config
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	return cfg
}

// PrintVersion prints version information
func PrintVersion() {
	fmt.Printf("%s v%s\n", AppName, Version)
}

// PrintHelp prints help information
func PrintHelp() {
	d := DefaultConfig()
	fmt.Printf(`%s v%s (headless browser control)

Usage:
  ./server [flags]

Server:
  --host               %s
  --port               %d

Browser:
  --browser-bin        (downloaded when empty)
  --chrome-revision    %d
  --install-deps       %v
  --no-autostart       %v
  --window-width       %d
  --window-height      %d
  --default-url        %s
  --page-load-timeout  %s
  --script-timeout     %s

Scratch:
  --scratch-dir        %s
  --scratch-ttl        %s

Security:
  --rate-limit         %d (requests per minute)

Events:
  --nats-url           (empty disables)
  --nats-subject       %s

Other:
  --log-level          %s
  --log-format         %s
  --version            show version
  --help               show this help

`, AppName, Version,
		d.Host, d.Port,
		d.ChromeRevision, d.InstallDeps, d.NoAutostart, d.WindowWidth, d.WindowHeight,
		d.DefaultURL, d.PageLoadTimeout, d.ScriptTimeout,
		d.ScratchDir, d.ScratchTTL,
		d.RateLimitRequests,
		d.NatsSubject,
		d.LogLevel, d.LogFormat)
}

// HandleFlags handles version and help flags, exits if needed
func HandleFlags(cfg *Config) {
	if cfg.ShowVersion {
		PrintVersion()
		os.Exit(0)
	}

	if cfg.ShowHelp {
		PrintHelp()
		os.Exit(0)
	}
}
