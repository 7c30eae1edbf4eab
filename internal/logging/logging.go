// Package logging provides the explicit logging context handed to services
// and stages. There is no package-level logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file written inside an attached directory.
const FileName = "sfg.log"

// Context wraps a logger and, once attached, the file sink it tees into.
type Context struct {
	logger *zap.Logger
	core   zapcore.Core
	level  zap.AtomicLevel

	sink      *os.File
	closeOnce sync.Once
	closeErr  error
}

// New creates a console logging context. pretty selects the human-readable
// console encoder instead of JSON.
func New(level string, pretty bool) (*Context, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	atom := zap.NewAtomicLevelAt(lvl)

	var enc zapcore.Encoder
	if pretty {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	} else {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), atom)

	return &Context{
		logger: zap.New(core),
		core:   core,
		level:  atom,
	}, nil
}

// FromLogger wraps an existing logger, e.g. one built by zaptest.
func FromLogger(l *zap.Logger) *Context {
	return &Context{logger: l, core: l.Core(), level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
}

// Nop returns a context that discards everything.
func Nop() *Context {
	return FromLogger(zap.NewNop())
}

// Logger returns the underlying logger.
func (c *Context) Logger() *zap.Logger { return c.logger }

// With returns a child context carrying extra fields. The child shares the
// parent's sink and must not be detached separately.
func (c *Context) With(fields ...zap.Field) *Context {
	return &Context{
		logger: c.logger.With(fields...),
		core:   c.core,
		level:  c.level,
	}
}

// Attach returns a child context that also writes JSON lines to dir/sfg.log.
// Call Detach on the child when done.
func (c *Context) Attach(dir string) (*Context, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(f),
		c.level,
	)
	tee := zapcore.NewTee(c.core, fileCore)

	return &Context{
		logger: zap.New(tee),
		core:   tee,
		level:  c.level,
		sink:   f,
	}, nil
}

// Detach flushes and closes the file sink. It is safe to call more than once,
// and a no-op on contexts that were not attached.
func (c *Context) Detach() error {
	c.closeOnce.Do(func() {
		_ = c.logger.Sync()
		if c.sink != nil {
			c.closeErr = c.sink.Close()
		}
	})
	return c.closeErr
}
