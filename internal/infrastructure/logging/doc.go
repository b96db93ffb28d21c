// Package logging provides the structured logger used across
// periph-core. It wraps log/slog with level parsing, output selection
// and default service fields, so every component logs the same shape.
package logging
