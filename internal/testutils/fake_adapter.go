package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/blesense/internal/device"
)

// FakeAdapter is an in-memory device.Adapter. Scans block until their context ends;
// advertisements are injected with Advertise and links are served from AddLink.
type FakeAdapter struct {
	mu       sync.Mutex
	state    device.PowerState
	handler  func(device.Advertisement)
	scanErr  error
	scans    []device.ScanOptions
	links    map[string]*FakeLink
	dialErr  error
	dials    int
	scanning chan struct{}

	states device.Listeners[device.PowerState]
}

// NewFakeAdapter creates an adapter reporting the given power state.
func NewFakeAdapter(state device.PowerState) *FakeAdapter {
	return &FakeAdapter{
		state:    state,
		links:    make(map[string]*FakeLink),
		scanning: make(chan struct{}, 16),
	}
}

func (a *FakeAdapter) State() device.PowerState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *FakeAdapter) OnStateChange(fn func(device.PowerState)) *device.Subscription {
	return a.states.Add(fn)
}

// SetState changes the power state and notifies listeners.
func (a *FakeAdapter) SetState(st device.PowerState) {
	a.mu.Lock()
	a.state = st
	a.mu.Unlock()
	a.states.Emit(st)
}

// StateListeners returns the number of registered state-change listeners.
func (a *FakeAdapter) StateListeners() int {
	return a.states.Len()
}

// FailScan makes subsequent scans fail immediately with err.
func (a *FakeAdapter) FailScan(err error) {
	a.mu.Lock()
	a.scanErr = err
	a.mu.Unlock()
}

func (a *FakeAdapter) Scan(ctx context.Context, opts device.ScanOptions, handler func(device.Advertisement)) error {
	a.mu.Lock()
	a.scans = append(a.scans, opts)
	if a.scanErr != nil {
		err := a.scanErr
		a.mu.Unlock()
		return err
	}
	a.handler = handler
	a.mu.Unlock()

	select {
	case a.scanning <- struct{}{}:
	default:
	}

	<-ctx.Done()

	a.mu.Lock()
	a.handler = nil
	a.mu.Unlock()
	return ctx.Err()
}

// WaitScanning blocks until a scan has started or timeout elapses.
func (a *FakeAdapter) WaitScanning(timeout time.Duration) bool {
	select {
	case <-a.scanning:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Scans returns the options of every scan started so far.
func (a *FakeAdapter) Scans() []device.ScanOptions {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]device.ScanOptions(nil), a.scans...)
}

// Advertise delivers adv to the running scan. Returns false if nothing is scanning.
func (a *FakeAdapter) Advertise(adv device.Advertisement) bool {
	a.mu.Lock()
	handler := a.handler
	a.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(adv)
	return true
}

// AddLink registers the link served by Dial for its address.
func (a *FakeAdapter) AddLink(link *FakeLink) {
	a.mu.Lock()
	a.links[link.Address()] = link
	a.mu.Unlock()
}

// FailDial makes subsequent dials fail with err.
func (a *FakeAdapter) FailDial(err error) {
	a.mu.Lock()
	a.dialErr = err
	a.mu.Unlock()
}

// Dials returns how many times Dial was called.
func (a *FakeAdapter) Dials() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dials
}

func (a *FakeAdapter) Dial(ctx context.Context, address string) (device.Link, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dials++
	if a.dialErr != nil {
		return nil, a.dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := device.NormalizeAddress(address)
	link, ok := a.links[addr]
	if !ok {
		link = NewFakeLink(addr)
		a.links[addr] = link
	}
	link.connect()
	return link, nil
}

var _ device.Adapter = (*FakeAdapter)(nil)
