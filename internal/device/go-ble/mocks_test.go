package goble

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// mockDevice stubs the ble.Device calls the adapter makes; anything else panics on the nil embed.
type mockDevice struct {
	ble.Device
	mock.Mock
}

func (m *mockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup, h)
	if len(args) > 1 {
		if run, ok := args.Get(1).(func(ble.AdvHandler)); ok && run != nil {
			run(h)
		}
	}
	return args.Error(0)
}

func (m *mockDevice) Dial(ctx context.Context, addr ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, addr)
	client, _ := args.Get(0).(ble.Client)
	return client, args.Error(1)
}

func (m *mockDevice) Stop() error {
	return m.Called().Error(0)
}

type fakeAdvertisement struct {
	ble.Advertisement
	name     string
	addr     string
	rssi     int
	mfg      []byte
	services []ble.UUID
	overflow []ble.UUID
}

func (a *fakeAdvertisement) LocalName() string           { return a.name }
func (a *fakeAdvertisement) ManufacturerData() []byte    { return a.mfg }
func (a *fakeAdvertisement) Services() []ble.UUID        { return a.services }
func (a *fakeAdvertisement) OverflowService() []ble.UUID { return a.overflow }
func (a *fakeAdvertisement) Connectable() bool           { return true }
func (a *fakeAdvertisement) RSSI() int                   { return a.rssi }
func (a *fakeAdvertisement) Addr() ble.Addr              { return ble.NewAddr(a.addr) }

type fakeClient struct {
	ble.Client

	mu           sync.Mutex
	profile      *ble.Profile
	profileErr   error
	subscribeErr error
	writeErr     error
	handlers     map[string]ble.NotificationHandler
	indications  map[string]bool
	writes       []fakeWrite
	cleared      bool
	cancelled    bool
	disconnected chan struct{}
}

type fakeWrite struct {
	uuid  string
	data  []byte
	noRsp bool
}

func newFakeClient(profile *ble.Profile) *fakeClient {
	return &fakeClient{
		profile:      profile,
		handlers:     make(map[string]ble.NotificationHandler),
		indications:  make(map[string]bool),
		disconnected: make(chan struct{}),
	}
}

func (c *fakeClient) DiscoverProfile(bool) (*ble.Profile, error) {
	return c.profile, c.profileErr
}

func (c *fakeClient) Subscribe(char *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.handlers[char.UUID.String()] = h
	c.indications[char.UUID.String()] = ind
	return nil
}

func (c *fakeClient) WriteCharacteristic(char *ble.Characteristic, value []byte, noRsp bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, fakeWrite{uuid: char.UUID.String(), data: value, noRsp: noRsp})
	return nil
}

func (c *fakeClient) ClearSubscriptions() error {
	c.mu.Lock()
	c.cleared = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) CancelConnection() error {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (c *fakeClient) push(uuid ble.UUID, data []byte) {
	c.mu.Lock()
	h := c.handlers[uuid.String()]
	c.mu.Unlock()
	if h != nil {
		h(data)
	}
}
