package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/custody"
	"go.dedis.ch/custody/core"
)

func TestCounter_NotifyCallback(t *testing.T) {
	n := len(custody.PromCollectors)

	c := NewCounter()
	require.Len(t, custody.PromCollectors, n+2)
	require.Len(t, c.Collectors(), 2)

	w := core.NewWatcher()
	w.Add(c)

	w.Notify(core.Event{Type: core.EventDeposit, Amount: 10})
	w.Notify(core.Event{Type: core.EventDeposit, Amount: 5})
	w.Notify(core.Event{Type: core.EventFrozen})

	require.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues("Deposit")))
	require.Equal(t, 15.0, testutil.ToFloat64(c.amounts.WithLabelValues("Deposit")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("Frozen")))
}
