package browser

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"go.uber.org/zap"
)

// InstallChrome downloads a Chromium build for the current OS/arch and returns
// the binary path. OS packages are installed first when installDeps is set.
func InstallChrome(ctx context.Context, revision int, installDeps bool, logger *zap.Logger) (string, error) {
	logger = logger.Named("installer")

	if installDeps {
		logger.Info("installing chromium dependencies")
		if err := InstallChromeDependencies(ctx); err != nil {
			return "", err
		}
	}

	downloader := launcher.NewBrowser()
	downloader.Context = ctx
	if revision > 0 {
		downloader.Revision = revision
	}

	path, err := downloader.Get()
	if err != nil {
		return "", fmt.Errorf("failed to download chrome: %w", err)
	}

	logger.Info("chromium ready", zap.String("path", path), zap.Int("revision", downloader.Revision))
	return path, nil
}

// InstallChromeDependencies installs OS packages required by Chromium.
func InstallChromeDependencies(ctx context.Context) error {
	if runtime.GOOS != "linux" {
		return nil
	}

	name, args, ok := dependencyCommand(exec.LookPath)
	if !ok {
		return fmt.Errorf("no supported package manager found for Chrome dependencies")
	}
	if name == "apt-get" {
		if err := runCommand(ctx, "apt-get", "update"); err != nil {
			return err
		}
	}
	return runCommand(ctx, name, args...)
}

// dependencyCommand picks the first available package manager.
func dependencyCommand(lookPath func(string) (string, error)) (string, []string, bool) {
	managers := []struct {
		name string
		args []string
	}{
		{"apt-get", append([]string{"install", "-y", "--no-install-recommends"}, chromeDepsApt...)},
		{"dnf", append([]string{"install", "-y"}, chromeDepsDnf...)},
		{"yum", append([]string{"install", "-y"}, chromeDepsYum...)},
		{"apk", append([]string{"add", "--no-cache"}, chromeDepsApk...)},
	}
	for _, m := range managers {
		if path, err := lookPath(m.name); err == nil && path != "" {
			return m.name, m.args, true
		}
	}
	return "", nil, false
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v failed: %w\n%s", name, args, err, out.String())
	}
	return nil
}

var chromeDepsApt = []string{
	"ca-certificates",
	"fonts-liberation",
	"libasound2",
	"libatk-bridge2.0-0",
	"libatk1.0-0",
	"libcups2",
	"libdbus-1-3",
	"libdrm2",
	"libgbm1",
	"libgtk-3-0",
	"libnspr4",
	"libnss3",
	"libx11-xcb1",
	"libxcomposite1",
	"libxdamage1",
	"libxfixes3",
	"libxrandr2",
	"libxshmfence1",
	"libxss1",
	"libxtst6",
	"libpango-1.0-0",
	"libpangocairo-1.0-0",
	"libxkbcommon0",
}

var chromeDepsDnf = []string{
	"alsa-lib",
	"atk",
	"cups-libs",
	"gtk3",
	"libX11",
	"libXcomposite",
	"libXdamage",
	"libXrandr",
	"libXfixes",
	"libX11-xcb",
	"libxcb",
	"libxkbcommon",
	"libxshmfence",
	"nss",
	"nspr",
	"pango",
	"mesa-libgbm",
	"libdrm",
}

var chromeDepsYum = chromeDepsDnf

var chromeDepsApk = []string{
	"ca-certificates",
	"freetype",
	"harfbuzz",
	"nss",
	"ttf-freefont",
	"alsa-lib",
	"atk",
	"at-spi2-atk",
	"cups-libs",
	"libxcomposite",
	"libxdamage",
	"libxrandr",
	"libxfixes",
	"libxkbcommon",
	"libx11",
	"libxrender",
	"libxext",
	"libxcb",
	"libdrm",
	"mesa-gbm",
	"gtk+3.0",
	"pango",
	"cairo",
	"gdk-pixbuf",
	"fontconfig",
	"libstdc++",
	"libgcc",
}
