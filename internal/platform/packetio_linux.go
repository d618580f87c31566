//go:build linux

package platform

import (
	"vifd/internal/platform/linux"
	"vifd/pkg/network"
)

func newTUNDriver(opts Options) (network.Driver, error) {
	return linux.NewDriver(linux.Options{ReadBuffer: opts.ReadBuffer, Log: opts.Log}), nil
}
