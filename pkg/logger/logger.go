package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Options selects how New builds a logger
type Options struct {
	// Level is a logrus level name. Empty means debug in development and
	// info otherwise.
	Level string
	// Format is "json" or "text". Empty means text in development and json
	// otherwise.
	Format      string
	Development bool
	// Output defaults to stderr so stdout stays free for command output
	Output io.Writer
}

var (
	mu  sync.RWMutex
	std *logrus.Logger
)

// New builds a logger from opts without touching the package default
func New(opts Options) (*logrus.Logger, error) {
	level := strings.ToLower(opts.Level)
	if level == "" {
		level = "info"
		if opts.Development {
			level = "debug"
		}
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	formatter, err := formatterFor(opts.Format, opts.Development)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetLevel(parsed)
	log.SetFormatter(formatter)
	if opts.Output != nil {
		log.SetOutput(opts.Output)
	} else {
		log.SetOutput(os.Stderr)
	}
	return log, nil
}

func formatterFor(format string, development bool) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "":
		if development {
			return formatterFor("text", true)
		}
		return formatterFor("json", false)
	case "json":
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}, nil
	case "text":
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     development,
			DisableColors:   !development,
		}, nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// SetDefault replaces the logger used by WithService and the context
// helpers when they are given no base entry.
func SetDefault(log *logrus.Logger) {
	mu.Lock()
	std = log
	mu.Unlock()
}

// Default returns the package logger, building a production one on first
// use if SetDefault was never called.
func Default() *logrus.Logger {
	mu.RLock()
	log := std
	mu.RUnlock()
	if log != nil {
		return log
	}

	mu.Lock()
	defer mu.Unlock()
	if std == nil {
		std, _ = New(Options{})
	}
	return std
}

// Discard returns a logger that drops everything, for tests and embedding
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// WithService creates a logger with service context
func WithService(serviceName string) *logrus.Entry {
	return Default().WithField("service", serviceName)
}

// WithOptimizationContext creates a logger with full optimization context
func WithOptimizationContext(base *logrus.Entry, optimizationID string, freeTransfers, maxTransfers int) *logrus.Entry {
	if base == nil {
		base = logrus.NewEntry(Default())
	}
	return base.WithFields(logrus.Fields{
		"optimization_id": optimizationID,
		"free_transfers":  freeTransfers,
		"max_transfers":   maxTransfers,
	})
}

// WithScenarioContext adds the strategy and transfer count of one solve
func WithScenarioContext(base *logrus.Entry, strategy string, numTransfers int) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"strategy":      strategy,
		"num_transfers": numTransfers,
	})
}
