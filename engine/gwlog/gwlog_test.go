package gwlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bmizerany/assert"
)

func TestGWLog(t *testing.T) {
	logFile := filepath.Join(os.TempDir(), "gwlog_test.log")
	defer os.Remove(logFile)

	SetSource("gwlog_test")
	SetOutput([]string{"stderr", logFile})
	SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, GetLevel())

	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, InfoLevel, ParseLevel("INFO"))
	assert.Equal(t, WarnLevel, ParseLevel("warn"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, PanicLevel, ParseLevel("panic"))
	assert.Equal(t, FatalLevel, ParseLevel("fatal"))

	Debugf("this is a debug %d", 1)
	SetLevel(InfoLevel)
	Debugf("SHOULD NOT SEE THIS!")
	Infof("this is an info %d", 2)
	Warnf("this is a warning %d", 3)
	TraceError("this is a trace error %d", 4)
	Sync()

	paniced := false
	func() {
		defer func() {
			paniced = recover() != nil
		}()
		Panicf("this is a panic %d", 4)
	}()
	assert.T(t, paniced, "Panicf should panic")

	st, err := os.Stat(logFile)
	assert.Equal(t, nil, err)
	assert.T(t, st.Size() > 0, "log file should not be empty")

	SetOutput([]string{"stderr"})
}
