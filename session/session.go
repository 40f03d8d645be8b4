// Package session drives the connection handshake with a sensor and exchanges commands with it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/device"
)

// ErrConnectInProgress is returned by Connect while another Connect on the same session runs.
var ErrConnectInProgress = errors.New("connect already in progress")

// Session is the per-device connection state machine:
// Disconnected -> Connecting -> CharacteristicsResolved -> Subscribed -> Initialized.
type Session struct {
	adapter  device.Adapter
	identity device.Identity
	profile  Profile
	logger   *logrus.Logger

	mu       sync.Mutex
	state    State
	reached  State
	link     device.Link
	lost     *device.Subscription
	chars    handles
	settings *CommandChannel
	data     *CommandChannel
	ready    chan struct{}
}

type handles struct {
	settingsWrite  device.Characteristic
	settingsNotify device.Characteristic
	dataWrite      device.Characteristic
	dataNotify     device.Characteristic
}

// Option configures a Session.
type Option func(*Session)

// WithProfile overrides the GATT layout.
func WithProfile(p Profile) Option {
	return func(s *Session) { s.profile = p }
}

// New creates a disconnected session for the device.
func New(adapter device.Adapter, identity device.Identity, logger *logrus.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Session{
		adapter:  adapter,
		identity: identity,
		profile:  DefaultProfile,
		logger:   logger,
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Identity returns the identity of the remote device.
func (s *Session) Identity() device.Identity {
	return s.identity
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastReached returns the furthest state the most recent Connect got to, even if it then failed.
func (s *Session) LastReached() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reached
}

// Ready returns a channel closed once the session reaches Initialized.
func (s *Session) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Connect runs all connection phases as one operation. On any failure the session is left
// Disconnected; the transport link, if one was opened, stays up until Disconnect.
// An initialized session whose link is still up is left as is.
func (s *Session) Connect(ctx context.Context) (err error) {
	s.mu.Lock()
	switch s.state {
	case Initialized:
		if s.link != nil && s.link.IsConnected() {
			s.mu.Unlock()
			return nil
		}
		s.resetLocked(&device.DisconnectedError{Address: s.identity.Address})
	case Disconnected:
	default:
		s.mu.Unlock()
		return ErrConnectInProgress
	}
	s.state, _ = next(Disconnected, Connecting, nil)
	s.reached = Connecting
	s.mu.Unlock()

	log := s.logger.WithField("address", s.identity.Address)

	connCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	defer func() {
		if err != nil {
			s.reset(err)
			log.WithError(err).Error("Connection failed")
		}
	}()

	log.Info("Connecting to device...")

	link, err := s.dial(connCtx)
	if err != nil {
		return s.advance(Connecting, CharacteristicsResolved, err)
	}

	// Lives as long as the link belongs to this session: it aborts a running Connect and
	// tears down an initialized session. Released by reset.
	lost := link.OnDisconnect(func(reason error) {
		s.linkLost(link, cancel, &device.DisconnectedError{Address: s.identity.Address, Reason: reason})
	})
	s.mu.Lock()
	s.lost.Release()
	s.lost = lost
	s.mu.Unlock()
	if !link.IsConnected() {
		cancel(&device.DisconnectedError{Address: s.identity.Address})
	}

	steps := []struct {
		from, to State
		run      func(context.Context, device.Link) error
	}{
		{Connecting, CharacteristicsResolved, s.resolveCharacteristics},
		{CharacteristicsResolved, Subscribed, s.subscribe},
		{Subscribed, Initialized, s.initialize},
	}
	for _, step := range steps {
		stepErr := interrupted(connCtx)
		if stepErr == nil {
			stepErr = step.run(connCtx, link)
		}
		if cause := interrupted(connCtx); cause != nil {
			stepErr = cause
		}
		if err := s.advance(step.from, step.to, stepErr); err != nil {
			return err
		}
		log.WithField("state", step.to).Debug("Connection phase completed")
	}

	s.mu.Lock()
	if cause := interrupted(connCtx); cause != nil {
		s.mu.Unlock()
		return cause
	}
	close(s.ready)
	s.mu.Unlock()
	log.Info("Device ready")
	return nil
}

// WriteSetting sends payload on the settings channel and returns the matching response.
func (s *Session) WriteSetting(ctx context.Context, payload []byte, expectedCode byte) ([]byte, error) {
	ch, err := s.channel(func() *CommandChannel { return s.settings })
	if err != nil {
		return nil, err
	}
	return ch.Send(ctx, payload, expectedCode)
}

// WriteCommand sends payload on the data channel and returns the matching response.
func (s *Session) WriteCommand(ctx context.Context, payload []byte, expectedCode byte) ([]byte, error) {
	ch, err := s.channel(func() *CommandChannel { return s.data })
	if err != nil {
		return nil, err
	}
	return ch.Send(ctx, payload, expectedCode)
}

// Disconnect tears down the transport link and returns the session to Disconnected.
// A command still waiting for its response fails with device.ErrNotConnected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	link := s.link
	s.link = nil
	s.resetLocked(device.ErrNotConnected)
	s.mu.Unlock()

	if link == nil {
		return nil
	}
	s.logger.WithField("address", s.identity.Address).Info("Disconnecting device...")
	return link.Disconnect()
}

func (s *Session) channel(pick func() *CommandChannel) (*CommandChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Initialized {
		return nil, fmt.Errorf("%w: session is %s", device.ErrNotInitialized, s.state)
	}
	return pick(), nil
}

// advance applies the transition to target if the session is still in from.
func (s *Session) advance(from, target State, stepErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from && stepErr == nil {
		stepErr = &TransitionError{From: s.state, To: target}
	}
	state, err := next(from, target, stepErr)
	s.state = state
	if err == nil {
		s.reached = state
	}
	return err
}

// linkLost handles the remote end dropping link. A running Connect is aborted through
// its context; an initialized session is torn down here.
func (s *Session) linkLost(link device.Link, abortConnect context.CancelCauseFunc, cause *device.DisconnectedError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	abortConnect(cause)
	if s.link != link || s.state != Initialized {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"address": s.identity.Address,
		"reason":  cause.Reason,
	}).Warn("Device disconnected unexpectedly")
	s.resetLocked(cause)
}

// reset drops everything learned during the handshake; pending commands fail with cause.
func (s *Session) reset(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(cause)
}

func (s *Session) resetLocked(cause error) {
	s.state = Disconnected
	s.chars = handles{}
	for _, ch := range []*CommandChannel{s.settings, s.data} {
		if ch != nil {
			ch.Close(cause)
		}
	}
	s.settings = nil
	s.data = nil
	s.lost.Release()
	s.lost = nil
	select {
	case <-s.ready:
		s.ready = make(chan struct{})
	default:
	}
}

func (s *Session) dial(ctx context.Context) (device.Link, error) {
	s.mu.Lock()
	existing := s.link
	s.mu.Unlock()

	if existing != nil && existing.IsConnected() {
		s.logger.WithField("address", s.identity.Address).Debug("Reusing existing transport connection")
		return existing, nil
	}

	link, err := s.adapter.Dial(ctx, s.identity.Address)
	if err != nil {
		if cause := interrupted(ctx); cause != nil {
			return nil, cause
		}
		return nil, fmt.Errorf("failed to connect to device %s: %w", s.identity.Address, err)
	}

	s.mu.Lock()
	s.link = link
	s.mu.Unlock()
	return link, nil
}

func (s *Session) resolveCharacteristics(ctx context.Context, link device.Link) error {
	chars, err := link.DiscoverCharacteristics(ctx, s.profile.Service)
	if err != nil {
		return fmt.Errorf("failed to discover characteristics: %w", err)
	}

	byUUID := make(map[string]device.Characteristic, len(chars))
	for _, c := range chars {
		byUUID[device.NormalizeUUID(c.UUID)] = c
	}

	lookup := func(role, uuid string) (device.Characteristic, error) {
		c, ok := byUUID[device.NormalizeUUID(uuid)]
		if !ok {
			return device.Characteristic{}, &device.CharacteristicResolutionError{
				Service:        s.profile.Service,
				Characteristic: uuid,
				Role:           role,
			}
		}
		return c, nil
	}

	var h handles
	if h.settingsWrite, err = lookup("settings-write", s.profile.SettingsWrite); err != nil {
		return err
	}
	if h.settingsNotify, err = lookup("settings-notify", s.profile.SettingsNotify); err != nil {
		return err
	}
	if h.dataWrite, err = lookup("data-write", s.profile.DataWrite); err != nil {
		return err
	}
	if h.dataNotify, err = lookup("data-notify", s.profile.DataNotify); err != nil {
		return err
	}

	s.mu.Lock()
	s.chars = h
	s.settings = NewCommandChannel(link, h.settingsWrite, h.settingsNotify, s.logger)
	s.data = NewCommandChannel(link, h.dataWrite, h.dataNotify, s.logger)
	s.mu.Unlock()
	return nil
}

func (s *Session) subscribe(ctx context.Context, link device.Link) error {
	s.mu.Lock()
	order := []device.Characteristic{s.chars.settingsNotify, s.chars.dataNotify}
	s.mu.Unlock()

	for _, char := range order {
		if err := interrupted(ctx); err != nil {
			return err
		}
		if err := link.Subscribe(ctx, char); err != nil {
			return &device.SubscribeError{Characteristic: char.UUID, Err: err}
		}
		s.logger.WithFields(logrus.Fields{
			"address":   s.identity.Address,
			"char_uuid": char.UUID,
		}).Debug("Subscribed to notifications")
	}
	return nil
}

func (s *Session) initialize(ctx context.Context, _ device.Link) error {
	s.mu.Lock()
	settings := s.settings
	s.mu.Unlock()

	for i, cmd := range initSequence {
		if err := interrupted(ctx); err != nil {
			return err
		}
		if _, err := settings.Send(ctx, cmd, InitResponseCode); err != nil {
			return fmt.Errorf("initialization command %d failed: %w", i+1, err)
		}
	}
	return nil
}

// interrupted returns the cancellation cause of ctx, or nil while it is still live.
func interrupted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return context.Cause(ctx)
}
