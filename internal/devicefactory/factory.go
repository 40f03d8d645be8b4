// Package devicefactory selects the radio backend used by the commands.
package devicefactory

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/device"
	goble "github.com/srg/blesense/internal/device/go-ble"
)

// AdapterFactory creates the device.Adapter used by the commands.
// This is a variable so that it can be overridden in tests.
var AdapterFactory = func(logger *logrus.Logger) (device.Adapter, error) {
	return goble.NewAdapter(logger), nil
}

// NewAdapter creates the adapter through AdapterFactory.
func NewAdapter(logger *logrus.Logger) (device.Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	return AdapterFactory(logger)
}
