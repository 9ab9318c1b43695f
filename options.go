package rexdb

import "log/slog"

type options struct {
	storagePath     string
	logger          *Logger
	queriesLogLevel slog.Level
}

// Option configures DB constructor behavior.
//
// Options exist to avoid exploding the API surface with constructor
// variants.
type Option func(*options)

// WithStoragePath enables persistence. Each namespace opened on the DB
// is backed by a bbolt file under the given directory and reloads its
// schema and documents on the next Open.
//
// If path is empty, namespaces stay purely in memory.
func WithStoragePath(path string) Option {
	return func(o *options) {
		o.storagePath = path
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := rexdb.NewJSONLogger(slog.LevelInfo)
//	db, _ := rexdb.Open(rexdb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithQueriesLogLevel sets the level executed query plans are logged
// at. Defaults to slog.LevelDebug.
func WithQueriesLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.queriesLogLevel = level
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:          NoopLogger(),
		queriesLogLevel: slog.LevelDebug,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
