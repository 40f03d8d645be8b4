package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/devicefactory"
	"github.com/srg/blesense/internal/testutils"
)

// Test device addresses for consistent fake device identification.
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

// CommandTestSuite runs commands against the fake adapter installed as the adapter factory.
// All cmd/blesense test suites embed it.
type CommandTestSuite struct {
	testutils.AdapterSuite
	originalFactory func(*logrus.Logger) (device.Adapter, error)
}

func (s *CommandTestSuite) SetupSuite() {
	color.NoColor = true
	s.originalFactory = devicefactory.AdapterFactory
	devicefactory.AdapterFactory = func(*logrus.Logger) (device.Adapter, error) {
		return s.Adapter, nil
	}
}

func (s *CommandTestSuite) TearDownSuite() {
	devicefactory.AdapterFactory = s.originalFactory
}

// commandResult is what a command printed and returned.
type commandResult struct {
	stdout string
	stderr string
	err    error
}

// ExecuteCommand runs the root command with args, returning stdout, stderr and the error.
// Logging is kept at error level unless args override it.
func (s *CommandTestSuite) ExecuteCommand(args ...string) commandResult {
	return <-s.StartCommand(args...)
}

// StartCommand runs the root command in the background.
func (s *CommandTestSuite) StartCommand(args ...string) <-chan commandResult {
	root := newRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(append([]string{"--log-level=error"}, args...))

	done := make(chan commandResult, 1)
	go func() {
		err := root.ExecuteContext(context.Background())
		done <- commandResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
	}()
	return done
}

// Await waits for a command started with StartCommand.
func (s *CommandTestSuite) Await(done <-chan commandResult) commandResult {
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		s.FailNow("command did not return")
		return commandResult{}
	}
}

// AwaitScanning waits until the command under test has started scanning.
func (s *CommandTestSuite) AwaitScanning() {
	s.Require().True(s.Adapter.WaitScanning(2*time.Second), "command MUST start scanning")
}

// writeTestConfig writes a YAML config file and returns its path.
func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blesense.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}
