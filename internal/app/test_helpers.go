package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/taskgrid/internal/registry"
	"github.com/vk/taskgrid/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. It returns
// the app with its console and log buffers.
func SetupAppTest(t *testing.T, cfg Config, modules ...registry.Module) (*App, *testutil.SafeBuffer, *testutil.SafeBuffer) {
	t.Helper()

	outBuffer := &testutil.SafeBuffer{}
	logBuffer := &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	cfg.NoColor = true
	appConfig, err := NewConfig(cfg)
	require.NoError(t, err)

	testApp, err := NewApp(outBuffer, logBuffer, appConfig, modules...)
	require.NoError(t, err)

	t.Cleanup(func() {
		testApp.Close()
		if os.Getenv("TASKGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, outBuffer, logBuffer
}
