// Package logging constructs the application's slog loggers and provides the
// shared field vocabulary for structured output.
package logging
