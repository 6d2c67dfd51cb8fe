package signoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/ttab/elephant-signoff/signoff"
	"github.com/ttab/elephant-signoff/store"
)

func TestPollerDeliversSnapshotOnSetLocation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := reviewFixture()
	w := newTestWorkflow(t, f, "alice")

	poller := signoff.NewPoller(w, signoff.PollerOptions{
		Interval: time.Hour,
	})

	go func() {
		_ = poller.Run(ctx)
	}()

	defer poller.Stop(time.Second)

	poller.SetLocation("stage", "certs")

	select {
	case snap := <-poller.Snapshots():
		if snap == nil {
			t.Fatal("expected a snapshot for a configured collection")
		}

		if snap.Source.Location.Collection != "certs" {
			t.Errorf("expected a snapshot for certs, got %s",
				snap.Source.Location)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
	}

	// Retargeting at an unconfigured collection delivers a nil snapshot.
	poller.SetLocation("stage", "unrelated")

	select {
	case snap := <-poller.Snapshots():
		if snap != nil {
			t.Errorf("expected a nil snapshot for an unconfigured collection, got %v",
				snap)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
	}
}

// gatedStore blocks attribute reads until the gate is opened, so that a
// refresh can be held in flight while the test retargets the poller.
type gatedStore struct {
	*fakeStore

	gate   chan struct{}
	inRead chan struct{}
}

func (g *gatedStore) Attributes(
	ctx context.Context, loc store.Location,
) (*store.Attributes, error) {
	select {
	case g.inRead <- struct{}{}:
	default:
	}

	<-g.gate

	return g.fakeStore.Attributes(ctx, loc)
}

func TestPollerDropsSupersededRefresh(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := &gatedStore{
		fakeStore: reviewFixture(),
		gate:      make(chan struct{}),
		inRead:    make(chan struct{}, 1),
	}
	w := newTestWorkflow(t, g, "alice")

	poller := signoff.NewPoller(w, signoff.PollerOptions{
		Interval: time.Hour,
	})

	go func() {
		_ = poller.Run(ctx)
	}()

	defer poller.Stop(time.Second)

	// Start a refresh for a configured collection and wait for it to be
	// in flight.
	poller.SetLocation("stage", "certs")

	select {
	case <-g.inRead:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the refresh to start")
	}

	// Retarget at an unconfigured collection while the first refresh is
	// still blocked, then let it finish.
	poller.SetLocation("stage", "unrelated")

	close(g.gate)

	// The stale snapshot for certs must be dropped; the first delivery
	// is the nil snapshot for the new location.
	select {
	case snap := <-poller.Snapshots():
		if snap != nil {
			t.Errorf("superseded refresh was delivered: %v", snap)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
	}
}
