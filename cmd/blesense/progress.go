package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter keeps a single status line up to date while an operation runs.
//
//	p := NewCountdownProgressPrinter(w, "Scanning", 10*time.Second)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use; Stop must be called to end its goroutine.
type ProgressPrinter struct {
	w        io.Writer
	prefix   string
	phase    atomic.Value // string
	duration time.Duration
	countUp  bool

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewProgressPrinter creates a printer showing the elapsed time.
func NewProgressPrinter(w io.Writer, prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{w: w, prefix: prefix, countUp: true, stop: make(chan struct{}), done: make(chan struct{})}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a printer showing the time left of duration.
// A zero duration shows no countdown.
func NewCountdownProgressPrinter(w io.Writer, prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := NewProgressPrinter(w, prefix, phase)
	p.countUp = false
	p.duration = duration
	return p
}

// SetPhase changes the phase shown next to the prefix. No-op on a nil printer.
func (p *ProgressPrinter) SetPhase(phase string) {
	if p != nil {
		p.phase.Store(phase)
	}
}

// Start begins updating the status line.
func (p *ProgressPrinter) Start() {
	if p.started.CompareAndSwap(false, true) {
		go p.loop(time.Now())
	}
}

// Stop ends the updates and clears the status line.
// Safe to call more than once, and on a nil printer.
func (p *ProgressPrinter) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		close(p.stop)
		if p.started.Load() {
			<-p.done
			fmt.Fprint(p.w, clearLineSequence)
		}
	})
}

func (p *ProgressPrinter) loop(start time.Time) {
	defer close(p.done)
	ticker := time.NewTicker(progressUpdateInterval)
	defer ticker.Stop()

	for {
		p.print(time.Since(start))
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}
	}
}

func (p *ProgressPrinter) print(elapsed time.Duration) {
	phase := p.phase.Load().(string)
	seconds := int(elapsed.Seconds())
	if !p.countUp {
		if p.duration <= 0 {
			fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, phase)
			return
		}
		seconds = 0
		if remaining := p.duration - elapsed; remaining > 0 {
			seconds = int(remaining.Seconds() + 0.5)
		}
	}
	fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
}

// progressFor returns a started printer on an interactive w, or nil.
func progressFor(w io.Writer, newPrinter func(io.Writer) *ProgressPrinter) *ProgressPrinter {
	if !isTerminal(w) {
		return nil
	}
	p := newPrinter(w)
	p.Start()
	return p
}
