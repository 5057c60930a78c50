package access

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrincipal_Valid(t *testing.T) {
	require.True(t, Principal("alice").Valid())
	require.True(t, Principal("0xdeadbeef").Valid())

	require.False(t, Principal("").Valid())
	require.False(t, Principal("al ice").Valid())
	require.False(t, Principal("alice\n").Valid())
	require.False(t, Principal(strings.Repeat("a", MaxPrincipalLen+1)).Valid())
}

func TestState_IsAdmin(t *testing.T) {
	state := State{Admins: []Principal{"bob", "carol"}}

	require.True(t, state.IsAdmin("bob"))
	require.True(t, state.IsAdmin("carol"))
	require.False(t, state.IsAdmin("alice"))
	require.False(t, State{}.IsAdmin("alice"))
}

func TestState_Roles(t *testing.T) {
	state := State{Owner: "alice", Admins: []Principal{"bob"}}

	require.Equal(t, []Role{RoleOwner}, state.Roles("alice"))
	require.Equal(t, []Role{RoleAdmin}, state.Roles("bob"))
	require.Equal(t, []Role{RoleResource, RoleAdmin}, state.Roles("bob", "bob"))
	require.Equal(t, []Role{RoleResource}, state.Roles("dave", "carol", "dave"))
	require.Empty(t, state.Roles("eve"))
}

func TestRules_CoverOperations(t *testing.T) {
	for op, roles := range Rules {
		require.NotEmpty(t, roles, op)
	}

	require.Equal(t, []Role{RoleOwner}, Rules[OpUpdateFee])
	require.Equal(t, []Role{RoleOwner}, Rules[OpManageSale])
	require.NotContains(t, Rules[OpDistributeTokens], RoleResource)
}
