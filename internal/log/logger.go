// Package log provides the process-wide structured logger, backed by logrus.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"firestige.xyz/schc/internal/config"
)

// Logger is the logging surface used across the gateway.
type Logger interface {
	Trace(args ...interface{})
	Tracef(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = defaultLogger()
	output *MultiWriter
)

func defaultLogger() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}

// GetLogger returns the global logger. Before Init it writes text to stderr.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the global logger according to cfg. Output always goes to
// stdout; a rotating file is added when cfg.File is enabled. The file of a
// previous Init is closed.
func Init(cfg config.LogConfig) error {
	l, out, err := build(cfg, os.Stdout)
	if err != nil {
		return err
	}
	mu.Lock()
	prev := output
	logger, output = l, out
	mu.Unlock()

	if prev != nil {
		return prev.Close()
	}
	return nil
}

// New builds a logger that writes to w only, ignoring cfg.File. It does not
// touch the global logger.
func New(cfg config.LogConfig, w io.Writer) (Logger, error) {
	cfg.File.Enabled = false
	l, _, err := build(cfg, w)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Close releases the log files opened by Init.
func Close() error {
	mu.Lock()
	out := output
	output = nil
	mu.Unlock()

	if out == nil {
		return nil
	}
	return out.Close()
}

func build(cfg config.LogConfig, stdout io.Writer) (*logrusAdapter, *MultiWriter, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	l := logrus.New()
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: cfg.Time})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: cfg.Time})
	case "prefixed":
		l.SetFormatter(&prefixed.TextFormatter{FullTimestamp: true, TimestampFormat: cfg.Time})
	case "pattern":
		if strings.Contains(cfg.Pattern, "%caller") || strings.Contains(cfg.Pattern, "%func") {
			l.SetReportCaller(true)
		}
		l.SetFormatter(&formatter{pattern: cfg.Pattern, time: cfg.Time})
	default:
		return nil, nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	out := NewMultiWriter().Add(stdout)
	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, nil, fmt.Errorf("file output requires 'path' field")
		}
		out.AddFileAppender(cfg.File)
	}
	l.SetOutput(out)

	return &logrusAdapter{entry: logrus.NewEntry(l)}, out, nil
}
