package artifact

import "fmt"

// Driver identifiers supported by the artifact store.
const (
	DriverLocal = "local"
	DriverNATS  = "nats"
)

// New creates an artifact store based on the provided configuration.
func New(cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverLocal
	}

	switch driver {
	case DriverLocal:
		return NewLocal(cfg.Path)
	case DriverNATS:
		return NewNATS(cfg.NATS)
	default:
		return nil, fmt.Errorf("unsupported artifact store driver: %s", driver)
	}
}
