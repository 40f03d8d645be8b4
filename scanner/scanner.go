package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/advert"
	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/reading"
	"github.com/srg/blesense/internal/ringchan"
	"github.com/srg/blesense/session"
)

// PowerOnTimeout is how long a scan waits for the adapter to report powered-on.
const PowerOnTimeout = 5 * time.Second

// ErrScanInProgress is returned when a scan is requested while another one is active.
var ErrScanInProgress = errors.New("scan already in progress")

// errStopped is the cancellation cause of an explicit Stop.
var errStopped = errors.New("scan stopped")

// Options filter a scan.
type Options struct {
	// AllowList restricts the scan to these addresses (any case or separator style). Empty allows all.
	AllowList []string
	// Services restricts the scan to devices advertising one of these service UUIDs.
	Services []string
}

// Scanner discovers sensors, either as connectable devices or as a stream of decoded readings.
// Only one scan runs at a time.
type Scanner struct {
	adapter        device.Adapter
	decoder        *advert.Decoder
	logger         *logrus.Logger
	powerOnTimeout time.Duration
	sessionOpts    []session.Option

	mu     sync.Mutex
	active context.CancelCauseFunc
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPowerOnTimeout overrides PowerOnTimeout.
func WithPowerOnTimeout(d time.Duration) Option {
	return func(s *Scanner) { s.powerOnTimeout = d }
}

// WithDecoder replaces the advertisement decoder.
func WithDecoder(d *advert.Decoder) Option {
	return func(s *Scanner) { s.decoder = d }
}

// WithSessionOptions sets the options applied to every discovered device session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Scanner) { s.sessionOpts = opts }
}

// NewScanner creates a Scanner on top of the adapter.
func NewScanner(adapter device.Adapter, logger *logrus.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Scanner{
		adapter:        adapter,
		decoder:        advert.NewDecoder(nil),
		logger:         logger,
		powerOnTimeout: PowerOnTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WaitPoweredOn returns once the adapter is powered on. It fails with *device.AdapterTimeoutError
// carrying the last observed state if that does not happen within the power-on timeout.
func (s *Scanner) WaitPoweredOn(ctx context.Context) error {
	states := ringchan.New[device.PowerState](4)
	sub := s.adapter.OnStateChange(func(st device.PowerState) {
		states.Send(st)
	})
	defer sub.Release()

	last := s.adapter.State()
	if last == device.StatePoweredOn {
		return nil
	}

	s.logger.WithField("state", last).Debug("Waiting for adapter to power on...")

	timer := time.NewTimer(s.powerOnTimeout)
	defer timer.Stop()

	for {
		select {
		case st := <-states.C():
			last = st
			if st == device.StatePoweredOn {
				s.logger.Debug("Adapter powered on")
				return nil
			}
		case <-timer.C:
			return &device.AdapterTimeoutError{State: last, Timeout: s.powerOnTimeout}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ScanDevices scans with duplicate suppression and returns the allow-listed devices seen,
// keyed by normalized address. Each newly seen device is also passed to onDevice (may be nil).
// The scan runs until Stop is called or ctx is done, both of which count as success.
func (s *Scanner) ScanDevices(ctx context.Context, opts Options, onDevice func(*session.Session)) (map[string]*session.Session, error) {
	allow := newAllowList(opts.AllowList)
	devices := hashmap.New[string, *session.Session]()

	handler := func(adv device.Advertisement) {
		id := device.IdentityOf(adv)
		if !allow.permits(id.Address) {
			return
		}
		if _, seen := devices.Get(id.Address); seen {
			return
		}
		sess, existing := devices.GetOrInsert(id.Address, session.New(s.adapter, id, s.logger, s.sessionOpts...))
		if existing {
			return
		}
		s.logger.WithFields(logrus.Fields{
			"device":  id.DisplayName(),
			"address": id.Address,
			"rssi":    adv.RSSI(),
		}).Info("Discovered new device")
		if onDevice != nil {
			onDevice(sess)
		}
	}

	err := s.run(ctx, device.ScanOptions{Services: opts.Services, AllowDuplicates: false}, handler)

	result := make(map[string]*session.Session, devices.Len())
	devices.Range(func(addr string, sess *session.Session) bool {
		result[addr] = sess
		return true
	})
	if err != nil {
		return result, err
	}

	s.logger.WithField("device_count", len(result)).Info("Device scan completed")
	return result, nil
}

// ScanReadings scans with duplicate delivery and passes every reading decoded from an
// allow-listed device to onReading. Runs until Stop is called or ctx is done.
func (s *Scanner) ScanReadings(ctx context.Context, opts Options, onReading func(reading.Reading)) error {
	allow := newAllowList(opts.AllowList)

	handler := func(adv device.Advertisement) {
		id := device.IdentityOf(adv)
		if !allow.permits(id.Address) {
			return
		}
		for r := range s.decoder.Decode(adv.ManufacturerData(), id) {
			onReading(r)
		}
	}

	return s.run(ctx, device.ScanOptions{Services: opts.Services, AllowDuplicates: true}, handler)
}

// Stop ends the active scan, which then returns successfully. No-op if nothing is scanning.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel := s.active
	s.mu.Unlock()
	if cancel != nil {
		s.logger.Debug("Stopping scan")
		cancel(errStopped)
	}
}

// run waits for power-on, then scans until stopped, adapter state loss or adapter failure.
// Stop or cancellation during the wait is a clean stop; a deadline during the wait is not.
func (s *Scanner) run(ctx context.Context, opts device.ScanOptions, handler func(device.Advertisement)) error {
	scanCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if !s.begin(cancel) {
		return ErrScanInProgress
	}
	defer s.end()

	waitStart := time.Now()
	if err := s.WaitPoweredOn(scanCtx); err != nil {
		if scanCtx.Err() == nil {
			return err
		}
		// A caller deadline running out first is still a power-on failure.
		if errors.Is(context.Cause(scanCtx), context.DeadlineExceeded) {
			if st := s.adapter.State(); st != device.StatePoweredOn {
				return &device.AdapterTimeoutError{State: st, Timeout: time.Since(waitStart).Round(time.Millisecond)}
			}
		}
		return nil
	}

	stateSub := s.adapter.OnStateChange(func(st device.PowerState) {
		if st != device.StatePoweredOn {
			cancel(&device.AdapterStateError{State: st})
		}
	})
	defer stateSub.Release()

	// Nothing is delivered once run returns, even if the adapter is late to stop.
	var closed atomic.Bool
	defer closed.Store(true)
	gated := func(adv device.Advertisement) {
		if closed.Load() || scanCtx.Err() != nil {
			return
		}
		handler(adv)
	}

	if st := s.adapter.State(); st != device.StatePoweredOn {
		return &device.AdapterStateError{State: st}
	}

	s.logger.WithFields(logrus.Fields{
		"duplicates": opts.AllowDuplicates,
		"services":   opts.Services,
	}).Info("Starting BLE scan...")

	err := s.adapter.Scan(scanCtx, opts, gated)

	var stateErr *device.AdapterStateError
	if cause := context.Cause(scanCtx); errors.As(cause, &stateErr) {
		s.logger.WithField("state", stateErr.State).Warn("Adapter left powered-on state, scan stopped")
		return stateErr
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return &device.ScanStartError{Err: err}
	}
	return nil
}

func (s *Scanner) begin(cancel context.CancelCauseFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return false
	}
	s.active = cancel
	return true
}

func (s *Scanner) end() {
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
}

type allowList map[string]struct{}

func newAllowList(addrs []string) allowList {
	if len(addrs) == 0 {
		return nil
	}
	al := make(allowList, len(addrs))
	for _, a := range addrs {
		al[device.NormalizeAddress(a)] = struct{}{}
	}
	return al
}

func (al allowList) permits(addr string) bool {
	if al == nil {
		return true
	}
	_, ok := al[addr]
	return ok
}
