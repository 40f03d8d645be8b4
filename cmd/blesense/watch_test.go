package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srg/blesense/internal/reading"
	"github.com/srg/blesense/internal/testutils"
)

type WatchTestSuite struct {
	CommandTestSuite
}

func (s *WatchTestSuite) advertiseTemperature(celsius float64) {
	s.Adapter.Advertise(testutils.NewAdvertisementBuilder().
		WithName("Porch").
		WithAddress(TestDeviceAddress1).
		WithPayload(testutils.NewPayloadBuilder(TestDeviceAddress1).WithTemperature(celsius)).
		Build())
}

func (s *WatchTestSuite) TestWatchCmd_JSONLines() {
	// GOAL: Verify every decoded reading is streamed, including repeats
	//
	// TEST SCENARIO: Same device broadcasts three times → three JSON lines in arrival order

	done := s.StartCommand("watch", "--duration", "300ms", "--format", "json")
	s.AwaitScanning()
	s.advertiseTemperature(18)
	s.advertiseTemperature(18.5)
	s.advertiseTemperature(19)

	res := s.Await(done)
	s.Require().NoError(res.err)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	s.Require().Len(lines, 3)

	var values []float64
	for _, line := range lines {
		var r reading.Reading
		s.Require().NoError(json.Unmarshal([]byte(line), &r))
		s.Equal(reading.Temperature, r.Name)
		s.Equal("000000000001", r.Device.Address)
		values = append(values, r.Value)
	}
	s.Equal([]float64{18, 18.5, 19}, values)
}

func (s *WatchTestSuite) TestWatchCmd_TableSummary() {
	done := s.StartCommand("watch", "--duration", "300ms", "--history", "2")
	s.AwaitScanning()
	for v := 10; v < 50; v++ {
		s.advertiseTemperature(float64(v))
	}

	res := s.Await(done)
	s.Require().NoError(res.err)

	s.Contains(res.stdout, "Porch")
	s.Contains(res.stdout, "40 readings received")
	s.Contains(res.stdout, "evicted from history", "history overflow MUST be reported")
	s.Contains(res.stdout, "TIME")

	summary := res.stdout[strings.LastIndex(res.stdout, "TIME"):]
	s.Contains(summary, "49°C", "the newest reading MUST be kept in history")
	s.NotContains(summary, "10°C", "the oldest reading MUST be evicted")
}

func (s *WatchTestSuite) TestWatchCmd_NothingReceived() {
	done := s.StartCommand("watch", "--duration", "100ms")
	s.AwaitScanning()

	res := s.Await(done)
	s.Require().NoError(res.err)
	s.Equal("\n0 readings received\n", res.stdout)
}

func TestWatchTestSuite(t *testing.T) {
	suite.Run(t, new(WatchTestSuite))
}
