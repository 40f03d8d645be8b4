package device

import (
	"context"
	"strings"
	"unicode"
)

// PowerState is the power state reported by the radio adapter.
type PowerState int

const (
	StateUnknown PowerState = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

func (s PowerState) String() string {
	switch s {
	case StateResetting:
		return "resetting"
	case StateUnsupported:
		return "unsupported"
	case StateUnauthorized:
		return "unauthorized"
	case StatePoweredOff:
		return "powered_off"
	case StatePoweredOn:
		return "powered_on"
	default:
		return "unknown"
	}
}

// Identity identifies a remote device. Address is always in normalized form.
type Identity struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// NewIdentity builds an Identity, normalizing the address. An empty id defaults to the address.
func NewIdentity(id, address, name string) Identity {
	addr := NormalizeAddress(address)
	if id == "" {
		id = addr
	}
	return Identity{ID: id, Address: addr, Name: name}
}

// DisplayName returns the advertised name, falling back to the address.
func (i Identity) DisplayName() string {
	if i.Name == "" {
		return i.Address
	}
	return i.Name
}

// NormalizeAddress converts a device address to lowercase with all separator punctuation removed,
// so "AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff" and "aabbccddeeff" compare equal.
func NormalizeAddress(address string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, address)
}

// Advertisement is a single broadcast packet as delivered by a scan.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Services() []string
	Connectable() bool
	RSSI() int
	Addr() string
}

// IdentityOf derives the Identity of the advertising device.
func IdentityOf(adv Advertisement) Identity {
	return NewIdentity("", adv.Addr(), adv.LocalName())
}

// ScanOptions configures a single adapter scan.
type ScanOptions struct {
	// Services restricts delivery to advertisements carrying at least one of these service UUIDs.
	Services []string
	// AllowDuplicates reports every advertisement instead of the first sighting per device.
	AllowDuplicates bool
}

// Property is a bit set of GATT characteristic properties.
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWrite
	PropWriteWithoutResponse
	PropNotify
	PropIndicate
)

// Characteristic is a resolved characteristic handle on a connected device.
type Characteristic struct {
	UUID       string
	Properties Property
}

// CanNotify reports whether the characteristic supports notifications or indications.
func (c Characteristic) CanNotify() bool {
	return c.Properties&(PropNotify|PropIndicate) != 0
}

// Notification is data pushed by a connected device on a characteristic.
// Pushed is false for data that merely echoes a read.
type Notification struct {
	Characteristic string
	Data           []byte
	Pushed         bool
}

// Adapter is the local radio controller capability consumed by the scanner and sessions.
type Adapter interface {
	// State returns the last known power state.
	State() PowerState
	// OnStateChange registers fn for power state transitions.
	OnStateChange(fn func(PowerState)) *Subscription
	// Scan blocks until ctx is done or the scan fails, calling handler for each advertisement.
	// A nil error or a context error means the scan was stopped cleanly.
	Scan(ctx context.Context, opts ScanOptions, handler func(Advertisement)) error
	// Dial opens a transport connection to the device with the given address.
	Dial(ctx context.Context, address string) (Link, error)
}

// Link is a transport-level connection to one device.
type Link interface {
	Address() string
	IsConnected() bool
	// DiscoverCharacteristics returns the characteristics of the given service.
	DiscoverCharacteristics(ctx context.Context, service string) ([]Characteristic, error)
	// Subscribe enables remote notifications on the characteristic.
	Subscribe(ctx context.Context, char Characteristic) error
	// OnNotification registers fn for data arriving on the characteristic.
	OnNotification(char Characteristic, fn func(Notification)) *Subscription
	// Write writes data to the characteristic and waits for the acknowledgment.
	Write(ctx context.Context, char Characteristic, data []byte) error
	// OnDisconnect registers fn for an unexpected loss of the connection.
	OnDisconnect(fn func(reason error)) *Subscription
	Disconnect() error
}
