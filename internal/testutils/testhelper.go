package testutils

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/session"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a logger writing nowhere.
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{
		T:      t,
		Logger: NewQuietLogger(),
	}
}

// NewQuietLogger returns a debug-level logger that discards its output.
func NewQuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel) // debug paths still run
	return logger
}

// SensorLink returns a connected-on-dial link exposing the default sensor profile.
// Every settings write is answered with the handshake response code.
func SensorLink(address string) *FakeLink {
	p := session.DefaultProfile
	return NewFakeLink(address).
		WithService(p.Service,
			device.Characteristic{UUID: device.NormalizeUUID(p.SettingsWrite), Properties: device.PropWrite},
			device.Characteristic{UUID: device.NormalizeUUID(p.SettingsNotify), Properties: device.PropNotify},
			device.Characteristic{UUID: device.NormalizeUUID(p.DataWrite), Properties: device.PropWrite},
			device.Characteristic{UUID: device.NormalizeUUID(p.DataNotify), Properties: device.PropNotify},
		).
		RespondWith(p.SettingsWrite, p.SettingsNotify, session.InitResponseCode)
}

// AdapterSuite provides a fake adapter and a quiet logger to every test.
//
//	type ScannerSuite struct {
//	    testutils.AdapterSuite
//	}
//
//	func (s *ScannerSuite) TestSomething() {
//	    s.Adapter.SetState(device.StatePoweredOff)
//	}
type AdapterSuite struct {
	suite.Suite
	Adapter *FakeAdapter
	Logger  *logrus.Logger
}

func (s *AdapterSuite) SetupTest() {
	s.Adapter = NewFakeAdapter(device.StatePoweredOn)
	s.Logger = NewQuietLogger()
}

// Context returns a context cancelled at the end of the test.
func (s *AdapterSuite) Context(timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	s.T().Cleanup(cancel)
	return ctx
}

// WaitFor polls cond until it holds, failing the test after two seconds.
func (s *AdapterSuite) WaitFor(cond func() bool, msg string) {
	s.Require().Eventually(cond, 2*time.Second, 5*time.Millisecond, msg)
}
