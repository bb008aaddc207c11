// Package logging builds the process logger: zap writing to a rotating file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file created inside the state directory.
const FileName = "minai.log"

// Options selects where and how much to log.
type Options struct {
	Dir   string // directory of minai.log
	Level string // debug, info, warn or error
	// Dev switches to a console encoder at debug level. MINAI_DEV=1 sets it.
	Dev bool
	// Writer replaces the rotating file, mostly for tests.
	Writer io.Writer
}

// DevMode reports whether MINAI_DEV=1.
func DevMode() bool {
	return os.Getenv("MINAI_DEV") == "1"
}

// New builds a logger. The returned close function flushes and releases the
// file.
func New(opts Options) (*zap.Logger, func() error, error) {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, nil, fmt.Errorf("parse log level: %w", err)
		}
	}
	dev := opts.Dev || DevMode()
	if dev {
		level.SetLevel(zap.DebugLevel)
	}

	var (
		sink    zapcore.WriteSyncer
		closeFn = func() error { return nil }
	)
	if opts.Writer != nil {
		sink = zapcore.AddSync(opts.Writer)
	} else {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, FileName),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		sink = zapcore.AddSync(rotator)
		closeFn = rotator.Close
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)
	if dev {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	logger := zap.New(zapcore.NewCore(encoder, sink, level), zap.AddCaller())
	return logger, func() error {
		_ = logger.Sync()
		return closeFn()
	}, nil
}

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// SetGlobal installs l behind the package helpers.
func SetGlobal(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	global = l
	mu.Unlock()
}

// L returns the global logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// For returns the global logger named after a component.
func For(component string) *zap.Logger {
	return L().Named(component)
}

// DevLog logs only when MINAI_DEV=1
func DevLog(format string, args ...any) {
	if DevMode() {
		L().Sugar().Debugf("[DEV] "+format, args...)
	}
}

// UserLog records something the user did or saw.
func UserLog(format string, args ...any) {
	L().Sugar().Infof(format, args...)
}

// ErrorLog logs errors
func ErrorLog(format string, args ...any) {
	L().Sugar().Errorf(format, args...)
}
