package call

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/txn"
)

func TestTransaction_New(t *testing.T) {
	tx := NewTransaction("alice", WithValue(10), WithClock(5, 86400))

	require.Equal(t, access.Principal("alice"), tx.GetIdentity())
	require.Equal(t, uint64(10), tx.GetValue())
	require.Equal(t, uint64(5), tx.GetHeight())
	require.Equal(t, uint64(86400), tx.GetTime())
	require.Len(t, tx.GetID(), 12)
	require.Len(t, tx.String(), 20)
}

func TestTransaction_UniqueID(t *testing.T) {
	a := NewTransaction("alice")
	b := NewTransaction("alice")

	require.NotEqual(t, a.GetID(), b.GetID())
}

func TestTransaction_GetArgs(t *testing.T) {
	tx := NewTransaction("alice",
		WithArg("B", []byte{2}),
		WithArgs(txn.Arg{Key: "A", Value: []byte{1}}),
		WithUint("C", 42))

	require.Equal(t, []string{"A", "B", "C"}, tx.GetArgs())
	require.Equal(t, []byte{1}, tx.GetArg("A"))
	require.Equal(t, []byte{2}, tx.GetArg("B"))
	require.Equal(t, []byte("42"), tx.GetArg("C"))
	require.Nil(t, tx.GetArg("D"))
}
