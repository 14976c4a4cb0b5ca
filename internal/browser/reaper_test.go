package browser

import (
	"context"
	"os/exec"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestReaperWithoutMarkerDoesNothing(t *testing.T) {
	r := NewProcessReaper("", zaptest.NewLogger(t))
	assert.NoError(t, r.Reap(context.Background()))
}

func TestReaperCommandTargetsMarker(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows matches by image name")
	}
	r := NewProcessReaper("/tmp/headctl-chromium", zaptest.NewLogger(t))
	name, args := r.command()
	assert.Equal(t, "pkill", name)
	assert.Equal(t, []string{"-9", "-f", "/tmp/headctl-chromium"}, args)
}

func TestReaperNoMatchIsNotAnError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("would kill every chrome.exe")
	}
	if _, err := exec.LookPath("pkill"); err != nil {
		t.Skip("pkill not installed")
	}

	r := NewProcessReaper("headctl-no-such-process-"+uuid.NewString(), zaptest.NewLogger(t))
	assert.NoError(t, r.Reap(context.Background()))
}
