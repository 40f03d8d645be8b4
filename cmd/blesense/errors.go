package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/scanner"
	"github.com/srg/blesense/session"
)

// FormatUserError turns an operation error into a short message for the terminal.
func FormatUserError(err error) string {
	var (
		timeoutErr    *device.AdapterTimeoutError
		stateErr      *device.AdapterStateError
		startErr      *device.ScanStartError
		disconnected  *device.DisconnectedError
		resolutionErr *device.CharacteristicResolutionError
		subscribeErr  *device.SubscribeError
		writeErr      *device.WriteError
	)

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("Bluetooth adapter is not ready after %s (state: %s)", timeoutErr.Timeout, timeoutErr.State)
	case errors.As(err, &stateErr):
		return fmt.Sprintf("Bluetooth adapter became %s, scan stopped", stateErr.State)
	case errors.As(err, &startErr):
		return fmt.Sprintf("Could not scan: %v", startErr.Err)
	case errors.Is(err, scanner.ErrScanInProgress):
		return "Another scan is already running"
	case errors.As(err, &disconnected):
		return fmt.Sprintf("Device %s disconnected while connecting", disconnected.Address)
	case errors.As(err, &resolutionErr):
		return fmt.Sprintf("Device is not a supported sensor: %s", resolutionErr)
	case errors.As(err, &subscribeErr):
		return fmt.Sprintf("Could not enable notifications on %s: %v", subscribeErr.Characteristic, subscribeErr.Err)
	case errors.As(err, &writeErr):
		return fmt.Sprintf("Write to %s failed: %v", writeErr.Characteristic, writeErr.Err)
	case errors.Is(err, device.ErrNotInitialized):
		return "Device is not ready: the connection handshake did not complete"
	case errors.Is(err, session.ErrCommandPending):
		return "Another command is still waiting for its response"
	case errors.Is(err, device.ErrNotConnected):
		return "Device is not connected"
	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out waiting for the device"
	default:
		return err.Error()
	}
}
