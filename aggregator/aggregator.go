// Package aggregator collects one reading per requested kind from broadcast packets under a deadline.
package aggregator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/reading"
	"github.com/srg/blesense/scanner"
)

// ReadingSource streams decoded readings until ctx is done.
type ReadingSource interface {
	ScanReadings(ctx context.Context, opts scanner.Options, onReading func(reading.Reading)) error
}

// Aggregator accumulates a reading.Set from a ReadingSource.
type Aggregator struct {
	source ReadingSource
	logger *logrus.Logger
}

// New creates an Aggregator reading from source.
func New(source ReadingSource, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Aggregator{source: source, logger: logger}
}

// Collect scans until every requested reading name has been seen or the deadline elapses.
// The latest reading per name wins. An elapsed deadline is not an error: the partial set is returned.
// Scan failures are returned together with whatever was collected. A non-positive deadline means no deadline.
func (a *Aggregator) Collect(ctx context.Context, names []string, deadline time.Duration, opts scanner.Options) (*reading.Set, error) {
	set := reading.NewSet()

	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	if len(wanted) == 0 {
		return set, nil
	}

	var (
		scanCtx context.Context
		cancel  context.CancelFunc
	)
	if deadline > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, deadline)
	} else {
		scanCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	log := a.logger.WithFields(logrus.Fields{
		"readings": len(wanted),
		"deadline": deadline,
	})
	log.Debug("Collecting readings...")

	err := a.source.ScanReadings(scanCtx, opts, func(r reading.Reading) {
		if _, ok := wanted[r.Name]; !ok {
			return
		}
		if set.Put(r) >= len(wanted) {
			cancel()
		}
	})
	if err != nil {
		return set, err
	}

	if set.Len() < len(wanted) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return set, ctxErr
		}
		log.WithField("collected", set.Len()).Warn("Deadline elapsed before all readings were seen")
		return set, nil
	}

	log.Info("All requested readings collected")
	return set, nil
}
