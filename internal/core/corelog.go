package core

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel mirrors the four levels the external log callback contract
// (§6) exposes to bindings.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

// LogCallback is the process-global log sink, invoked synchronously from
// whichever core thread produced the message. Implementations must be
// reentrant and must not block.
type LogCallback func(level LogLevel, message string, userData interface{})

type callbackCore struct {
	zapcore.LevelEnabler
	cb       LogCallback
	userData interface{}
}

func (c *callbackCore) With([]zapcore.Field) zapcore.Core { return c }
func (c *callbackCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}
func (c *callbackCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	if c.cb == nil {
		return nil
	}
	c.cb(zapToLevel(e.Level), e.Message, c.userData)
	return nil
}
func (c *callbackCore) Sync() error { return nil }

func zapToLevel(l zapcore.Level) LogLevel {
	switch {
	case l < zapcore.InfoLevel:
		return LogDebug
	case l < zapcore.WarnLevel:
		return LogInfo
	case l < zapcore.ErrorLevel:
		return LogWarn
	default:
		return LogError
	}
}

var (
	logMu  sync.RWMutex
	logger = zap.NewNop()
)

// SetLogCallback installs the process-global log callback. Passing a nil
// cb disables forwarding and reverts to a no-op logger.
func SetLogCallback(cb LogCallback, userData interface{}) {
	logMu.Lock()
	defer logMu.Unlock()
	if cb == nil {
		logger = zap.NewNop()
		return
	}
	core := &callbackCore{LevelEnabler: zapcore.DebugLevel, cb: cb, userData: userData}
	logger = zap.New(core)
}

// Log returns the current process-global logger. Backends should hold
// onto a sugared/named child (Log().Named("camera.v4l2")) rather than
// calling this on every line.
func Log() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}
