package binutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/gorealm/gorealm/engine/gwlog"
)

func TestSetupGWLog(t *testing.T) {
	logFile := filepath.Join(os.TempDir(), "binutil_test.log")
	defer os.Remove(logFile)

	SetupGWLog("binutil_test", "warn", logFile, false)
	assert.Equal(t, gwlog.WarnLevel, gwlog.GetLevel())
	gwlog.Warnf("written to %s", logFile)
	gwlog.Sync()

	st, err := os.Stat(logFile)
	assert.Equal(t, nil, err)
	assert.T(t, st.Size() > 0)

	SetupGWLog("binutil_test", "debug", "", false)
	assert.Equal(t, gwlog.DebugLevel, gwlog.GetLevel())
}

func TestSetupHTTPServerDisabled(t *testing.T) {
	// port 0 means no http server, nothing is started
	SetupHTTPServer("127.0.0.1", 0, nil)
}
