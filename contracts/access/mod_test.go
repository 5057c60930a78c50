package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/access/roles"
	"go.dedis.ch/custody/core/execution"
	"go.dedis.ch/custody/core/execution/native"
	"go.dedis.ch/custody/core/gateway"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/store/mem"
	"go.dedis.ch/custody/core/txn"
	"go.dedis.ch/custody/core/txn/call"
	"go.dedis.ch/custody/internal/testing/fake"
)

func TestRegisterContract(t *testing.T) {
	srvc := native.NewExecution()
	RegisterContract(srvc, Contract{})

	require.Panics(t, func() { RegisterContract(srvc, Contract{}) })
}

func TestContract_Execute_Invalid(t *testing.T) {
	contract := newContract(t)

	_, err := run(contract, "owner", "")
	require.EqualError(t, err, "'access:command' not found in tx arg: invalid input")

	_, err = run(contract, "owner", "fake")
	require.EqualError(t, err, "access, unknown command 'fake': invalid input")

	tx := call.NewTransaction("owner", call.WithValue(1),
		call.WithArg(CmdArg, []byte(CmdPause)))

	_, err = contract.Execute(context.Background(), tx)
	require.EqualError(t, err, "command 'PAUSE' does not accept value: invalid input")
}

func TestContract_TransferOwnership(t *testing.T) {
	contract := newContract(t)

	_, err := run(contract, "alice", CmdTransferOwnership, "alice")
	require.ErrorIs(t, err, core.ErrUnauthorized)
	require.EqualError(t, err, "failed to TRANSFER_OWNERSHIP: transfer-ownership: "+
		"'alice' is not allowed to transfer-ownership: unauthorized")

	_, err = run(contract, "owner", CmdTransferOwnership, "")
	require.EqualError(t, err, "failed to TRANSFER_OWNERSHIP: transfer-ownership: "+
		"invalid owner '': invalid input")

	res, err := run(contract, "owner", CmdTransferOwnership, "alice")
	require.NoError(t, err)
	require.Equal(t, core.EventRoleChanged, res.Events[0].Type)
	require.Equal(t, "transfer-ownership", res.Events[0].Subject)
	require.Equal(t, "alice", res.Events[0].Principal)

	state, err := contract.GetState()
	require.NoError(t, err)
	require.Equal(t, access.Principal("alice"), state.Owner)

	_, err = run(contract, "owner", CmdTransferOwnership, "owner")
	require.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestContract_Admins(t *testing.T) {
	contract := newContract(t)

	_, err := run(contract, "admin", CmdPause)
	require.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = run(contract, "owner", CmdGrantAdmin, "admin")
	require.NoError(t, err)

	_, err = run(contract, "admin", CmdGrantAdmin, "bob")
	require.ErrorIs(t, err, core.ErrUnauthorized)

	res, err := run(contract, "admin", CmdPause)
	require.NoError(t, err)
	require.Equal(t, []core.Event{{
		Type:      core.EventPaused,
		Subject:   "pause",
		Principal: "admin",
		Amount:    1,
	}}, res.Events)

	// Idempotent without event.
	res, err = run(contract, "admin", CmdPause)
	require.NoError(t, err)
	require.Empty(t, res.Events)

	state, err := contract.GetState()
	require.NoError(t, err)
	require.True(t, state.Paused)
	require.Equal(t, []access.Principal{"admin"}, state.Admins)

	_, err = run(contract, "owner", CmdRevokeAdmin, "admin")
	require.NoError(t, err)

	_, err = run(contract, "admin", CmdUnpause)
	require.ErrorIs(t, err, core.ErrUnauthorized)

	res, err = run(contract, "owner", CmdUnpause)
	require.NoError(t, err)
	require.Equal(t, uint64(0), res.Events[0].Amount)
}

func TestContract_BadPolicy(t *testing.T) {
	contract := NewContract(gateway.NewGateway(mem.NewStore(), fake.NewSender()), badManager{})

	_, err := run(contract, "owner", CmdPause)
	require.EqualError(t, err, fake.Err("failed to PAUSE: pause"))

	_, err = run(contract, "owner", CmdGrantAdmin, "alice")
	require.EqualError(t, err, fake.Err("failed to GRANT_ADMIN: grant-admin"))
}

// -----------------------------------------------------------------------------
// Utility functions

func newContract(t *testing.T) Contract {
	s := mem.NewStore()

	_, err := s.Stage(func(snap store.Snapshot) error {
		return roles.NewPolicy().Init(snap, "owner")
	})
	require.NoError(t, err)

	return NewContract(gateway.NewGateway(s, fake.NewSender()), roles.NewPolicy())
}

func run(c Contract, caller access.Principal, cmd Command, principal ...string) (execution.Result, error) {
	args := []txn.Arg{{Key: CmdArg, Value: []byte(cmd)}}
	if len(principal) > 0 {
		args = append(args, txn.Arg{Key: PrincipalArg, Value: []byte(principal[0])})
	}

	tx := call.NewTransaction(caller, call.WithArgs(args...))

	return c.Execute(context.Background(), tx)
}

type badManager struct {
	roles.Policy
}

func (badManager) GrantAdmin(store.Snapshot, access.Principal, access.Principal) error {
	return fake.GetError()
}

func (badManager) SetPaused(store.Snapshot, access.Principal, bool) (bool, error) {
	return false, fake.GetError()
}
