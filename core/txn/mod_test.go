package txn

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
)

func TestGetUint(t *testing.T) {
	tx := fakeTx{args: map[string]string{"a": "42", "b": "-1", "c": "18446744073709551616"}}

	value, err := GetUint(tx, "a")
	require.NoError(t, err)
	require.Equal(t, uint64(42), value)

	_, err = GetUint(tx, "b")
	require.ErrorIs(t, err, core.ErrInvalidInput)
	require.EqualError(t, err, "malformed argument 'b': invalid input")

	_, err = GetUint(tx, "c")
	require.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = GetUint(tx, "d")
	require.EqualError(t, err, "missing argument 'd': invalid input")

	value, err = GetOptionalUint(tx, "d")
	require.NoError(t, err)
	require.Equal(t, uint64(0), value)

	_, err = GetOptionalUint(tx, "b")
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestGetPrincipal(t *testing.T) {
	tx := fakeTx{args: map[string]string{"a": "alice", "b": "a b"}}

	p, err := GetPrincipal(tx, "a")
	require.NoError(t, err)
	require.Equal(t, access.Principal("alice"), p)

	_, err = GetPrincipal(tx, "b")
	require.EqualError(t, err, "invalid principal 'a b' in argument 'b': invalid input")

	_, err = GetPrincipal(tx, "c")
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeTx struct {
	Transaction

	args map[string]string
}

func (tx fakeTx) GetArg(key string) []byte {
	value, found := tx.args[key]
	if !found {
		return nil
	}

	return []byte(value)
}
