package device

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConnectionState represents the specific kind of connection state failure.
type ConnectionState string

const (
	NotConnected   ConnectionState = "not_connected"
	NotInitialized ConnectionState = "not_initialized"
	BluetoothOff   ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return strings.ReplaceAll(string(e.State), "_", " ")
	}
	return fmt.Sprintf("%s: %s", strings.ReplaceAll(string(e.State), "_", " "), e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State.
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrNotConnected   = &ConnectionError{State: NotConnected}
	ErrNotInitialized = &ConnectionError{State: NotInitialized}
	ErrBluetoothOff   = &ConnectionError{State: BluetoothOff, Msg: "bluetooth is turned off"}
)

// AdapterTimeoutError is returned when the adapter did not power on in time.
type AdapterTimeoutError struct {
	State   PowerState
	Timeout time.Duration
}

func (e *AdapterTimeoutError) Error() string {
	return fmt.Sprintf("adapter not powered on after %s (state: %s)", e.Timeout, e.State)
}

// AdapterStateError is returned when the adapter left the powered-on state during a scan.
type AdapterStateError struct {
	State PowerState
}

func (e *AdapterStateError) Error() string {
	return fmt.Sprintf("adapter state changed to %s while scanning", e.State)
}

// ScanStartError is returned when the adapter rejects or aborts a scan.
type ScanStartError struct {
	Err error
}

func (e *ScanStartError) Error() string {
	return fmt.Sprintf("scan failed: %v", e.Err)
}

func (e *ScanStartError) Unwrap() error { return e.Err }

// DisconnectedError is returned when a device disconnects while a connection is being set up.
type DisconnectedError struct {
	Address string
	Reason  error
}

func (e *DisconnectedError) Error() string {
	if e.Reason == nil {
		return fmt.Sprintf("device %s disconnected", e.Address)
	}
	return fmt.Sprintf("device %s disconnected: %v", e.Address, e.Reason)
}

func (e *DisconnectedError) Unwrap() error { return e.Reason }

// Is makes every DisconnectedError match ErrNotConnected.
func (e *DisconnectedError) Is(target error) bool {
	return target == ErrNotConnected
}

// CharacteristicResolutionError is returned when a required service or characteristic is missing.
type CharacteristicResolutionError struct {
	Service        string
	Characteristic string // empty when the service itself is missing
	Role           string
}

func (e *CharacteristicResolutionError) Error() string {
	if e.Characteristic == "" {
		return fmt.Sprintf("service %q not found", e.Service)
	}
	if e.Role == "" {
		return fmt.Sprintf("characteristic %q not found in service %q", e.Characteristic, e.Service)
	}
	return fmt.Sprintf("%s characteristic %q not found in service %q", e.Role, e.Characteristic, e.Service)
}

// SubscribeError is returned when enabling notifications on a characteristic fails.
type SubscribeError struct {
	Characteristic string
	Err            error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("failed to subscribe to %s: %v", e.Characteristic, e.Err)
}

func (e *SubscribeError) Unwrap() error { return e.Err }

// WriteError is returned when a characteristic write fails at the transport level.
type WriteError struct {
	Characteristic string
	Err            error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write to %s: %v", e.Characteristic, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsConnectionState reports whether err is a ConnectionError with the given state.
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
