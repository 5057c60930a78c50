// Package fake provides fake implementations of the interfaces of the module
// to help the tests.
package fake

import (
	"context"
	"sync"

	"go.dedis.ch/custody/core/access"
	"golang.org/x/xerrors"
)

var fakeErr = xerrors.New("fake error")

// GetError returns the fake error.
func GetError() error {
	return fakeErr
}

// Err returns the expected message of the fake error wrapped with the given
// context.
func Err(msg string) string {
	return msg + ": " + fakeErr.Error()
}

// Call is a tool to keep track of a function calls.
type Call struct {
	sync.Mutex
	calls [][]interface{}
}

// Get returns the nth call ith parameter.
func (c *Call) Get(n, i int) interface{} {
	if c == nil {
		return nil
	}

	c.Lock()
	defer c.Unlock()

	return c.calls[n][i]
}

// Len returns the number of calls.
func (c *Call) Len() int {
	if c == nil {
		return 0
	}

	c.Lock()
	defer c.Unlock()

	return len(c.calls)
}

// Add adds a call to the list.
func (c *Call) Add(args ...interface{}) {
	if c == nil {
		return
	}

	c.Lock()
	defer c.Unlock()

	c.calls = append(c.calls, args)
}

// Transfer is an outbound transfer recorded by the fake sender.
type Transfer struct {
	To     access.Principal
	Amount uint64
}

// Sender is a fake outbound transfer collaborator. It records the successful
// transfers, fails for the configured destinations and can run a hook before
// completing a transfer, which is how the tests play a malicious receiver.
//
// - implements gateway.Sender
type Sender struct {
	sync.Mutex

	Transfers []Transfer
	failing   map[access.Principal]int
	hook      func(ctx context.Context, to access.Principal, amount uint64)
}

// NewSender returns a sender that accepts every transfer.
func NewSender() *Sender {
	return &Sender{
		failing: make(map[access.Principal]int),
	}
}

// FailFor makes the next n transfers to the destination fail. A negative n
// makes them fail forever.
func (s *Sender) FailFor(to access.Principal, n int) {
	s.Lock()
	s.failing[to] = n
	s.Unlock()
}

// OnSend sets a hook called with the context of the transfer.
func (s *Sender) OnSend(hook func(ctx context.Context, to access.Principal, amount uint64)) {
	s.Lock()
	s.hook = hook
	s.Unlock()
}

// Send implements gateway.Sender.
func (s *Sender) Send(ctx context.Context, to access.Principal, amount uint64) error {
	s.Lock()
	hook := s.hook
	s.Unlock()

	if hook != nil {
		hook(ctx, to, amount)
	}

	s.Lock()
	defer s.Unlock()

	n, found := s.failing[to]
	if found && n != 0 {
		if n > 0 {
			s.failing[to] = n - 1
		}

		return fakeErr
	}

	s.Transfers = append(s.Transfers, Transfer{To: to, Amount: amount})

	return nil
}

// Received returns the total amount transferred to the destination.
func (s *Sender) Received(to access.Principal) uint64 {
	s.Lock()
	defer s.Unlock()

	var total uint64
	for _, t := range s.Transfers {
		if t.To == to {
			total += t.Amount
		}
	}

	return total
}

// BadSender is a sender that always fails.
//
// - implements gateway.Sender
type BadSender struct{}

// Send implements gateway.Sender.
func (BadSender) Send(context.Context, access.Principal, uint64) error {
	return fakeErr
}
