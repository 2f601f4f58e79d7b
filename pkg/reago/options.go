package reago

import "log/slog"

// Option configures a Model at construction.
type Option func(*Model)

// WithDebug controls whether cell writes emit human-readable log records.
// Default false.
func WithDebug(enabled bool) Option {
	return func(m *Model) {
		m.debug = enabled
	}
}

// WithLogger sets the logger used for debug records.
// Default: slog.Default() with component=reago.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver installs an observability hook. Combine several with
// MultiObserver.
func WithObserver(o Observer) Option {
	return func(m *Model) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithModelBinder sets the model's default external subscription primitive.
// A binder installed with WithBinder for the current goroutine takes
// precedence over this one.
func WithModelBinder(b Binder) Option {
	return func(m *Model) {
		m.binder = b
	}
}
