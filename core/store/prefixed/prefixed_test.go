package prefixed

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/custody/internal/testing/fake"
)

func TestSnapshot_SetGetDelete(t *testing.T) {
	backend := fake.NewSnapshot()

	a := NewSnapshot("a", backend)
	b := NewSnapshot("b", backend)

	require.NoError(t, a.Set([]byte("key"), []byte{1}))
	require.NoError(t, b.Set([]byte("key"), []byte{2}))

	value, err := a.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, value)

	value, err = backend.Get([]byte("b/key"))
	require.NoError(t, err)
	require.Equal(t, []byte{2}, value)

	require.NoError(t, a.Delete([]byte("key")))

	value, err = a.Get([]byte("key"))
	require.NoError(t, err)
	require.Nil(t, value)

	value, err = NewReadable("b", backend).Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte{2}, value)
}

func TestNewPrefixedKey(t *testing.T) {
	require.Equal(t, []byte("ledger/account/alice"),
		NewPrefixedKey([]byte("ledger"), []byte("account/alice")))

	require.Equal(t, []byte("/"), NewPrefixedKey(nil, nil))
}
