// Package logging builds the zap logger shared by all components.
package logging

import (
	"go.uber.org/zap"
)

// New returns a production zap logger when env is "production", otherwise a
// development logger. Components receive the logger by constructor injection.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Nop returns a no-op logger for tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}
