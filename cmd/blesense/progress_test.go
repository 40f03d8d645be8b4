package main

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer is a bytes.Buffer safe for the printer goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressPrinter(t *testing.T) {
	out := &syncBuffer{}
	p := NewCountdownProgressPrinter(out, "Scanning for sensors", "Scanning", 10*time.Second)
	p.Start()
	p.SetPhase("2 found")
	time.Sleep(3 * progressUpdateInterval)
	p.Stop()
	p.Stop()

	got := out.String()
	assert.Contains(t, got, "Scanning for sensors (")
	assert.Contains(t, got, "2 found 10s)", "countdown MUST show the remaining seconds")
	assert.True(t, strings.HasSuffix(got, clearLineSequence), "Stop MUST clear the status line")
}

func TestProgressPrinter_NeverStarted(t *testing.T) {
	out := &syncBuffer{}
	p := NewProgressPrinter(out, "Writing", "Connecting")
	p.Stop()
	assert.Empty(t, out.String())

	var none *ProgressPrinter
	assert.NotPanics(t, func() {
		none.SetPhase("x")
		none.Stop()
	})
}

func TestProgressFor_NotATerminal(t *testing.T) {
	assert.Nil(t, progressFor(&bytes.Buffer{}, func(w io.Writer) *ProgressPrinter { return NewProgressPrinter(w, "x", "y") }))
}
