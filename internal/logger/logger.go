// Package logger constructs the application's zap logger.
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds a zap logger for the given mode, "development" or
// "production". Development logs are human-readable; production logs are
// JSON.
func New(mode string) (*zap.Logger, error) {
	switch mode {
	case "", "development":
		log, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("failed to build development logger: %w", err)
		}
		return log, nil
	case "production":
		log, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to build production logger: %w", err)
		}
		return log, nil
	default:
		return nil, fmt.Errorf("unknown log mode %q", mode)
	}
}
