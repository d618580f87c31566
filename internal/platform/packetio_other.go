//go:build !linux

package platform

import (
	"fmt"
	"runtime"

	"vifd/pkg/network"
)

func newTUNDriver(Options) (network.Driver, error) {
	return nil, fmt.Errorf("tun driver is not supported on %s", runtime.GOOS)
}
