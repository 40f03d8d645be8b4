package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/groutine"
)

// ----------------------------
// BLE Link
// ----------------------------

// Link is a live go-ble client connection implementing device.Link.
type Link struct {
	address string
	client  ble.Client
	logger  *logrus.Logger

	mu        sync.RWMutex
	connected bool
	chars     map[string]*ble.Characteristic

	writeMu       sync.Mutex
	notifications *hashmap.Map[string, *device.Listeners[device.Notification]]
	disconnects   device.Listeners[error]

	stop     context.CancelFunc
	stopOnce sync.Once
}

func newLink(address string, client ble.Client, logger *logrus.Logger) *Link {
	l := &Link{
		address:       device.NormalizeAddress(address),
		client:        client,
		logger:        logger,
		connected:     true,
		chars:         make(map[string]*ble.Characteristic),
		notifications: hashmap.New[string, *device.Listeners[device.Notification]](),
	}

	monitorCtx, stop := context.WithCancel(context.Background())
	l.stop = stop

	notifier, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		logger.Debug("Client does not report disconnections, link loss will go unnoticed")
		return l
	}
	groutine.Go(monitorCtx, logger, "ble-link-monitor", func(ctx context.Context) {
		select {
		case <-notifier.Disconnected():
			l.logger.WithField("address", l.address).Warn("Device reported disconnection")
			l.markDisconnected(device.ErrNotConnected)
		case <-ctx.Done():
		}
	})

	return l
}

func (l *Link) Address() string { return l.address }

func (l *Link) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// DiscoverCharacteristics discovers the GATT profile and returns the characteristics of service.
// The returned characteristics are remembered for later Subscribe and Write calls.
func (l *Link) DiscoverCharacteristics(ctx context.Context, service string) ([]device.Characteristic, error) {
	if !l.IsConnected() {
		return nil, device.ErrNotConnected
	}

	type result struct {
		profile *ble.Profile
		err     error
	}
	done := make(chan result, 1)
	groutine.Go(ctx, l.logger, "ble-discover-profile", func(context.Context) {
		p, err := l.client.DiscoverProfile(true)
		done <- result{p, err}
	})

	var profile *ble.Profile
	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(r.err))
		}
		profile = r.profile
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}

	want := device.NormalizeUUID(service)
	for _, svc := range profile.Services {
		if device.NormalizeUUID(svc.UUID.String()) != want {
			continue
		}

		out := make([]device.Characteristic, 0, len(svc.Characteristics))
		l.mu.Lock()
		for _, c := range svc.Characteristics {
			uuid := device.NormalizeUUID(c.UUID.String())
			l.chars[uuid] = c
			out = append(out, device.Characteristic{UUID: uuid, Properties: toProperties(c.Property)})
		}
		l.mu.Unlock()

		l.logger.WithFields(logrus.Fields{
			"address":         l.address,
			"service_uuid":    want,
			"characteristics": len(out),
		}).Debug("Service discovered")
		return out, nil
	}

	return nil, &device.CharacteristicResolutionError{Service: service, Role: "service"}
}

// Subscribe enables notifications, or indications when that is all the characteristic supports.
func (l *Link) Subscribe(ctx context.Context, char device.Characteristic) error {
	c, err := l.lookup(char)
	if err != nil {
		return err
	}
	if !char.CanNotify() {
		return fmt.Errorf("characteristic %s does not support notifications", char.UUID)
	}
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}

	uuid := device.NormalizeUUID(char.UUID)
	return NormalizeError(l.client.Subscribe(c, useIndication(char.Properties), func(data []byte) {
		l.dispatch(uuid, data)
	}))
}

// OnNotification registers fn for data pushed on char.
func (l *Link) OnNotification(char device.Characteristic, fn func(device.Notification)) *device.Subscription {
	listeners, _ := l.notifications.GetOrInsert(device.NormalizeUUID(char.UUID), &device.Listeners[device.Notification]{})
	return listeners.Add(fn)
}

// Write writes data with response unless the characteristic only supports write-without-response.
func (l *Link) Write(ctx context.Context, char device.Characteristic, data []byte) error {
	c, err := l.lookup(char)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	return NormalizeError(l.client.WriteCharacteristic(c, data, writeWithoutResponse(char.Properties)))
}

// OnDisconnect registers fn for an unexpected loss of the connection.
func (l *Link) OnDisconnect(fn func(reason error)) *device.Subscription {
	return l.disconnects.Add(fn)
}

// Disconnect clears subscriptions and closes the connection. Listeners registered with
// OnDisconnect are not called for a local disconnect.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	wasConnected := l.connected
	l.connected = false
	l.mu.Unlock()

	l.stopOnce.Do(l.stop)
	if !wasConnected {
		return nil
	}

	if err := l.client.ClearSubscriptions(); err != nil {
		l.logger.WithError(err).Debug("Failed to clear subscriptions")
	}
	if err := l.client.CancelConnection(); err != nil {
		return fmt.Errorf("failed to cancel connection: %w", NormalizeError(err))
	}
	l.logger.WithField("address", l.address).Info("Disconnected")
	return nil
}

func (l *Link) lookup(char device.Characteristic) (*ble.Characteristic, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.connected {
		return nil, device.ErrNotConnected
	}
	c, ok := l.chars[device.NormalizeUUID(char.UUID)]
	if !ok {
		return nil, &device.CharacteristicResolutionError{Characteristic: char.UUID, Role: "unresolved"}
	}
	return c, nil
}

func (l *Link) dispatch(uuid string, data []byte) {
	listeners, ok := l.notifications.Get(uuid)
	if !ok {
		return
	}
	listeners.Emit(device.Notification{
		Characteristic: uuid,
		Data:           append([]byte(nil), data...),
		Pushed:         true,
	})
}

func (l *Link) markDisconnected(reason error) {
	l.mu.Lock()
	wasConnected := l.connected
	l.connected = false
	l.mu.Unlock()

	if wasConnected {
		l.disconnects.Emit(reason)
	}
}

var _ device.Link = (*Link)(nil)
