package synth

import (
	"fmt"

	"kani-tts-server/internal/platform/logging"
)

// Driver identifiers supported by the synthesis gateway.
const (
	DriverHTTP = "http"
	DriverEdge = "edge"
)

// New creates a synthesis gateway based on the provided configuration.
func New(cfg Config, logger *logging.Logger) (Gateway, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverHTTP
	}

	switch driver {
	case DriverHTTP:
		return NewHTTP(cfg.HTTP, cfg.Presets, logger)
	case DriverEdge:
		return NewEdge(cfg.Edge, logger)
	default:
		return nil, fmt.Errorf("unsupported synthesis driver: %s", driver)
	}
}
