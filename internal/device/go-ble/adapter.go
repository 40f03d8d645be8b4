package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/device"
)

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Adapter implements device.Adapter on top of a go-ble device.
// The platform device is opened lazily; failing to open it is reported as a power state.
type Adapter struct {
	logger *logrus.Logger

	mu     sync.Mutex
	dev    ble.Device
	state  device.PowerState
	states device.Listeners[device.PowerState]
}

// NewAdapter creates an Adapter; no radio access happens until first use.
func NewAdapter(logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{logger: logger}
}

// State opens the platform device if needed and returns the resulting power state.
func (a *Adapter) State() device.PowerState {
	_, _ = a.device()
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// OnStateChange registers fn for power state transitions.
func (a *Adapter) OnStateChange(fn func(device.PowerState)) *device.Subscription {
	return a.states.Add(fn)
}

// Scan runs a go-ble scan until ctx is done, filtering by the requested services.
func (a *Adapter) Scan(ctx context.Context, opts device.ScanOptions, handler func(device.Advertisement)) error {
	dev, err := a.device()
	if err != nil {
		return err
	}

	wanted := make(map[string]struct{}, len(opts.Services))
	for _, uuid := range device.NormalizeUUIDs(opts.Services) {
		wanted[uuid] = struct{}{}
	}

	err = dev.Scan(ctx, opts.AllowDuplicates, func(bleAdv ble.Advertisement) {
		adv := NewBLEAdvertisement(bleAdv)
		if !advertises(adv, wanted) {
			return
		}
		handler(adv)
	})
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	err = NormalizeError(err)
	if errors.Is(err, device.ErrBluetoothOff) {
		a.setState(device.StatePoweredOff)
	}
	return err
}

// Dial connects to the device with the given address.
func (a *Adapter) Dial(ctx context.Context, address string) (device.Link, error) {
	dev, err := a.device()
	if err != nil {
		return nil, err
	}

	a.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return newLink(address, client, a.logger), nil
}

// Close releases the platform device.
func (a *Adapter) Close() error {
	a.mu.Lock()
	dev := a.dev
	a.dev = nil
	a.mu.Unlock()
	if dev == nil {
		return nil
	}
	return dev.Stop()
}

func (a *Adapter) device() (ble.Device, error) {
	a.mu.Lock()
	if a.dev != nil {
		dev := a.dev
		a.mu.Unlock()
		return dev, nil
	}
	a.mu.Unlock()

	dev, err := DeviceFactory()
	if err != nil {
		err = NormalizeError(err)
		if errors.Is(err, device.ErrBluetoothOff) {
			a.setState(device.StatePoweredOff)
		} else {
			a.setState(device.StateUnsupported)
		}
		return nil, fmt.Errorf("failed to open BLE adapter: %w", err)
	}

	a.mu.Lock()
	if a.dev != nil {
		// Lost the race to another caller.
		existing := a.dev
		a.mu.Unlock()
		_ = dev.Stop()
		return existing, nil
	}
	a.dev = dev
	a.mu.Unlock()

	a.setState(device.StatePoweredOn)
	return dev, nil
}

func (a *Adapter) setState(st device.PowerState) {
	a.mu.Lock()
	changed := a.state != st
	a.state = st
	a.mu.Unlock()

	if changed {
		a.logger.WithField("state", st).Debug("Adapter state changed")
		a.states.Emit(st)
	}
}

var _ device.Adapter = (*Adapter)(nil)
