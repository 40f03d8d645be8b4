package testutils

import (
	"context"
	"sync"

	"github.com/srg/blesense/internal/device"
)

// Write is a characteristic write recorded by FakeLink.
type Write struct {
	Characteristic string
	Data           []byte
}

// FakeLink is an in-memory device.Link with scriptable failures and responses.
type FakeLink struct {
	address string

	mu            sync.Mutex
	connected     bool
	services      map[string][]device.Characteristic
	discoverErr   error
	subscribeErrs map[string]error
	writeErr      error
	subscribed    []string
	writes        []Write
	onWrite       func(l *FakeLink, w Write)
	disconnects   int
	notifications map[string]*device.Listeners[device.Notification]
	lost          device.Listeners[error]
}

// NewFakeLink creates a disconnected link for address; Dial on a FakeAdapter connects it.
func NewFakeLink(address string) *FakeLink {
	return &FakeLink{
		address:       device.NormalizeAddress(address),
		services:      make(map[string][]device.Characteristic),
		subscribeErrs: make(map[string]error),
		notifications: make(map[string]*device.Listeners[device.Notification]),
	}
}

// WithService adds a service with its characteristics.
func (l *FakeLink) WithService(uuid string, chars ...device.Characteristic) *FakeLink {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services[device.NormalizeUUID(uuid)] = chars
	return l
}

// FailDiscovery makes DiscoverCharacteristics fail with err.
func (l *FakeLink) FailDiscovery(err error) *FakeLink {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discoverErr = err
	return l
}

// FailSubscribe makes Subscribe on the characteristic fail with err.
func (l *FakeLink) FailSubscribe(uuid string, err error) *FakeLink {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribeErrs[device.NormalizeUUID(uuid)] = err
	return l
}

// FailWrites makes every Write fail with err.
func (l *FakeLink) FailWrites(err error) *FakeLink {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErr = err
	return l
}

// OnWrite installs fn, called synchronously after each successful write.
func (l *FakeLink) OnWrite(fn func(l *FakeLink, w Write)) *FakeLink {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onWrite = fn
	return l
}

// RespondWith answers every write to writeUUID with a pushed notification on notifyUUID
// carrying code followed by the written bytes.
func (l *FakeLink) RespondWith(writeUUID, notifyUUID string, code byte) *FakeLink {
	want := device.NormalizeUUID(writeUUID)
	return l.OnWrite(func(l *FakeLink, w Write) {
		if w.Characteristic == want {
			l.Notify(notifyUUID, append([]byte{code}, w.Data...), true)
		}
	})
}

func (l *FakeLink) connect() {
	l.mu.Lock()
	l.connected = true
	l.mu.Unlock()
}

func (l *FakeLink) Address() string { return l.address }

func (l *FakeLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *FakeLink) DiscoverCharacteristics(ctx context.Context, service string) ([]device.Characteristic, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil, device.ErrNotConnected
	}
	if l.discoverErr != nil {
		return nil, l.discoverErr
	}
	chars, ok := l.services[device.NormalizeUUID(service)]
	if !ok {
		return nil, &device.CharacteristicResolutionError{Service: service, Role: "service"}
	}
	return append([]device.Characteristic(nil), chars...), nil
}

func (l *FakeLink) Subscribe(ctx context.Context, char device.Characteristic) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return device.ErrNotConnected
	}
	uuid := device.NormalizeUUID(char.UUID)
	if err := l.subscribeErrs[uuid]; err != nil {
		return err
	}
	l.subscribed = append(l.subscribed, uuid)
	return nil
}

func (l *FakeLink) OnNotification(char device.Characteristic, fn func(device.Notification)) *device.Subscription {
	return l.listeners(char.UUID).Add(fn)
}

func (l *FakeLink) Write(ctx context.Context, char device.Characteristic, data []byte) error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return device.ErrNotConnected
	}
	if l.writeErr != nil {
		err := l.writeErr
		l.mu.Unlock()
		return err
	}
	w := Write{Characteristic: device.NormalizeUUID(char.UUID), Data: append([]byte(nil), data...)}
	l.writes = append(l.writes, w)
	hook := l.onWrite
	l.mu.Unlock()

	if hook != nil {
		hook(l, w)
	}
	return nil
}

func (l *FakeLink) OnDisconnect(fn func(reason error)) *device.Subscription {
	return l.lost.Add(fn)
}

func (l *FakeLink) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	l.disconnects++
	return nil
}

// Notify delivers data on the characteristic to registered listeners.
func (l *FakeLink) Notify(uuid string, data []byte, pushed bool) {
	uuid = device.NormalizeUUID(uuid)
	l.listeners(uuid).Emit(device.Notification{Characteristic: uuid, Data: data, Pushed: pushed})
}

// SimulateDisconnect drops the connection as if the remote device went away.
func (l *FakeLink) SimulateDisconnect(reason error) {
	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()
	l.lost.Emit(reason)
}

// Writes returns every successful write in order.
func (l *FakeLink) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Write(nil), l.writes...)
}

// Subscribed returns the subscribed characteristics in order.
func (l *FakeLink) Subscribed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.subscribed...)
}

// Disconnects returns how many times Disconnect was called.
func (l *FakeLink) Disconnects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disconnects
}

// NotificationListeners returns the number of listeners registered on the characteristic.
func (l *FakeLink) NotificationListeners(uuid string) int {
	return l.listeners(uuid).Len()
}

// DisconnectListeners returns the number of registered disconnect listeners.
func (l *FakeLink) DisconnectListeners() int {
	return l.lost.Len()
}

func (l *FakeLink) listeners(uuid string) *device.Listeners[device.Notification] {
	uuid = device.NormalizeUUID(uuid)
	l.mu.Lock()
	defer l.mu.Unlock()
	ls, ok := l.notifications[uuid]
	if !ok {
		ls = &device.Listeners[device.Notification]{}
		l.notifications[uuid] = ls
	}
	return ls
}

var _ device.Link = (*FakeLink)(nil)
