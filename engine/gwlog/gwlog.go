package gwlog

import (
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"

	"encoding/json"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// DebugLevel level
	DebugLevel Level = Level(zap.DebugLevel)
	// InfoLevel level
	InfoLevel Level = Level(zap.InfoLevel)
	// WarnLevel level
	WarnLevel Level = Level(zap.WarnLevel)
	// ErrorLevel level
	ErrorLevel Level = Level(zap.ErrorLevel)
	// PanicLevel level
	PanicLevel Level = Level(zap.PanicLevel)
	// FatalLevel level
	FatalLevel Level = Level(zap.FatalLevel)

	// Debugf logs formatted debug message
	Debugf logFormatFunc
	// Infof logs formatted info message
	Infof logFormatFunc
	// Warnf logs formatted warn message
	Warnf logFormatFunc
	// Errorf logs formatted error message
	Errorf logFormatFunc
	Panicf logFormatFunc
	Fatalf logFormatFunc
	Fatal  func(args ...interface{})
	Panic  func(args ...interface{})
)

type logFormatFunc func(format string, args ...interface{})

// Level is type of log levels
type Level zapcore.Level

const rotateSinkScheme = "rotate"

var (
	cfg    zap.Config
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	source string
)

type rotateSink struct {
	*lumberjack.Logger
}

func (s rotateSink) Sync() error {
	return nil
}

func newRotateSink(u *url.URL) (zap.Sink, error) {
	filename := u.Path
	if filename == "" {
		filename = u.Opaque
	}
	return rotateSink{&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100, // megabytes
		MaxBackups: 100,
		MaxAge:     30, // days
		Compress:   true,
	}}, nil
}

func init() {
	var err error
	cfgJson := []byte(`{
		"level": "debug",
		"outputPaths": ["stderr"],
		"errorOutputPaths": ["stderr"],
		"encoding": "console",
		"encoderConfig": {
			"messageKey": "message",
			"levelKey": "level",
			"timeKey": "time",
			"levelEncoder": "lowercase",
			"timeEncoder": "iso8601"
		}
	}`)

	if err = json.Unmarshal(cfgJson, &cfg); err != nil {
		panic(err)
	}

	if err = zap.RegisterSink(rotateSinkScheme, newRotateSink); err != nil {
		panic(err)
	}

	rebuild()
}

func rebuild() {
	newLogger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	logger = newLogger
	if source != "" {
		logger = logger.With(zap.String("source", source))
	}
	setSugar(logger.Sugar())
}

// SetSource sets the component name (master/login/world) of gwlog module
func SetSource(comp string) {
	source = comp
	rebuild()
}

func setSugar(sugar_ *zap.SugaredLogger) {
	sugar = sugar_
	Debugf = sugar.Debugf
	Infof = sugar.Infof
	Warnf = sugar.Warnf
	Errorf = sugar.Errorf
	Panicf = sugar.Panicf
	Panic = sugar.Panic
	Fatalf = sugar.Fatalf
	Fatal = sugar.Fatal
}

// SetLevel sets the log level
func SetLevel(lv Level) {
	cfg.Level.SetLevel(zapcore.Level(lv))
}

// GetLevel get the current log level
func GetLevel() Level {
	return Level(cfg.Level.Level())
}

// TraceError prints the stack and error
func TraceError(format string, args ...interface{}) {
	Errorf("%s\n%s", strings.TrimSpace(string(debug.Stack())), fmt.Sprintf(format, args...))
}

// SetOutput sets the output paths. "stderr" and "stdout" are written as is,
// any other path is treated as a log file and rotated.
func SetOutput(outputs []string) {
	paths := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if out == "stderr" || out == "stdout" || strings.Contains(out, "://") {
			paths = append(paths, out)
		} else {
			paths = append(paths, rotateSinkScheme+":"+out)
		}
	}
	cfg.OutputPaths = paths
	rebuild()
}

// Sync flushes buffered log entries
func Sync() {
	_ = logger.Sync()
}

// ParseLevel converts string to Levels
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "panic":
		return PanicLevel
	case "fatal":
		return FatalLevel
	}
	Errorf("ParseLevel: unknown level: %s", s)
	return DebugLevel
}
