package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatcher_Add(t *testing.T) {
	watcher := NewWatcher()

	watcher.Add(newFakeObserver())
	require.Len(t, watcher.observers, 1)

	obs := newFakeObserver()
	watcher.Add(obs)
	require.Len(t, watcher.observers, 2)

	watcher.Add(obs)
	require.Len(t, watcher.observers, 2)
}

func TestWatcher_Remove(t *testing.T) {
	watcher := NewWatcher()
	watcher.observers[newFakeObserver()] = struct{}{}

	obs := newFakeObserver()
	watcher.observers[obs] = struct{}{}
	require.Len(t, watcher.observers, 2)

	watcher.Remove(obs)
	require.Len(t, watcher.observers, 1)

	watcher.Remove(obs)
	require.Len(t, watcher.observers, 1)
}

func TestWatcher_Notify(t *testing.T) {
	watcher := NewWatcher()

	obs := newFakeObserver()
	watcher.observers[obs] = struct{}{}

	watcher.Notify(Event{Type: EventDeposit, Subject: "alice", Amount: 10})
	evt := <-obs.ch
	require.Equal(t, EventDeposit, evt.Type)
	require.Equal(t, uint64(10), evt.Amount)
}

func TestEvent_String(t *testing.T) {
	evt := Event{
		Type:      EventBidPlaced,
		Subject:   "auction:1",
		Principal: "bob",
		Amount:    150,
		Timestamp: 42,
	}

	require.Equal(t, "BidPlaced{subject=auction:1 principal=bob amount=150 time=42}",
		evt.String())
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeObserver struct {
	ch chan Event
}

func (o fakeObserver) NotifyCallback(evt Event) {
	o.ch <- evt
}

func newFakeObserver() fakeObserver {
	return fakeObserver{
		ch: make(chan Event, 1),
	}
}
