package platform

import (
	"fmt"

	"vifd/internal/logger"
	"vifd/pkg/network"
)

type Options struct {
	Driver     string
	ReadBuffer int
	Log        *logger.Logger
}

// NewDriver returns the packet I/O backend named by opts.Driver.
func NewDriver(opts Options) (network.Driver, error) {
	switch opts.Driver {
	case "", "memory":
		return NewMemoryDriver(), nil
	case "tun":
		return newTUNDriver(opts)
	default:
		return nil, fmt.Errorf("unknown interface driver %q", opts.Driver)
	}
}
