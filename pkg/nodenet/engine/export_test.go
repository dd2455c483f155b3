package engine

import "io"

// WithDefaultLogOutput redirects the default logger, which otherwise writes to stdout.
func WithDefaultLogOutput(w io.Writer) Option {
	return func(e *Engine) { e.defaultLog = w }
}
