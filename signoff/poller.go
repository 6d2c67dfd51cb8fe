package signoff

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ttab/elephantine"
)

// Poller keeps the workflow snapshot for the currently viewed collection
// fresh. Refreshes are triggered both on an interval and immediately when
// the viewed collection changes.
//
// Each refresh is tagged with the location it was started for. When a
// SetLocation supersedes an in-flight refresh, the stale result is
// dropped instead of delivered, so rapid navigation can't publish a
// snapshot for a collection the caller is no longer viewing.
type Poller struct {
	workflow *Workflow
	logger   *slog.Logger
	interval time.Duration
	out      chan *Snapshot

	generation atomic.Int64
	target     atomic.Value

	refresh  chan struct{}
	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

type pollTarget struct {
	Bucket     string
	Collection string
	Generation int64
}

type PollerOptions struct {
	Logger *slog.Logger
	// Interval between refreshes of the current location. Defaults to
	// 30 seconds.
	Interval time.Duration
}

func NewPoller(workflow *Workflow, opt PollerOptions) *Poller {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := opt.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	p := Poller{
		workflow: workflow,
		logger:   logger,
		interval: interval,
		out:      make(chan *Snapshot),
		refresh:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	return &p
}

// SetLocation retargets the poller at the collection the caller is now
// viewing and triggers an immediate refresh.
func (p *Poller) SetLocation(bid, cid string) {
	gen := p.generation.Add(1)

	p.target.Store(pollTarget{
		Bucket:     bid,
		Collection: cid,
		Generation: gen,
	})

	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Snapshots delivers the refreshed snapshots. A nil snapshot means the
// current location is not configured for review.
func (p *Poller) Snapshots() <-chan *Snapshot {
	return p.out
}

// Run the poller. A poller can only run once.
func (p *Poller) Run(ctx context.Context) error {
	defer close(p.stopped)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck
		case <-p.stop:
			return nil
		case <-p.refresh:
		case <-ticker.C:
		}

		target, ok := p.target.Load().(pollTarget)
		if !ok {
			continue
		}

		snap, err := p.workflow.Snapshot(ctx,
			target.Bucket, target.Collection)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}

			p.logger.ErrorContext(ctx,
				"failed to refresh workflow snapshot",
				elephantine.LogKeyError, err,
				LogKeyBucket, target.Bucket,
				LogKeyCollection, target.Collection)

			continue
		}

		if p.generation.Load() != target.Generation {
			// Superseded by a newer SetLocation while we were
			// fetching.
			continue
		}

		select {
		case p.out <- snap:
		case <-p.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck
		}
	}
}

// Stop the poller. Blocks until it has stopped or the timeout has been
// reached.
func (p *Poller) Stop(timeout time.Duration) {
	p.stopOnce.Do(func() {
		close(p.stop)
	})

	select {
	case <-time.After(timeout):
	case <-p.stopped:
	}
}
