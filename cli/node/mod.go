// Package node defines the builder of the CLI application that starts the
// custody daemon and controls it.
//
// The application has a start command that runs the daemon until it receives
// a signal. The other commands are either executed by the CLI process, or sent
// to the daemon through a UNIX socket in the configuration folder when they are
// created with MakeAction. The daemon runs the action with the flags of the
// command and writes its output back to the CLI.
package node

import (
	"io"

	"go.dedis.ch/custody/cli"
)

// Builder is the builder provided to the initializers so that they can create
// their commands and actions.
type Builder interface {
	// SetCommand creates a new command and returns its builder.
	SetCommand(name string) cli.CommandBuilder

	// SetStartFlags appends flags to the start command.
	SetStartFlags(...cli.Flag)

	// MakeAction creates a CLI action from the template. The template is
	// executed on the daemon.
	MakeAction(ActionTemplate) cli.Action
}

// ActionTemplate is an action executed on the daemon.
type ActionTemplate interface {
	// Execute processes a command received from the CLI on the daemon.
	Execute(Context) error
}

// Context is the context of an action executed on the daemon. It provides the
// dependency injector alongside the flags and the output of the command.
type Context struct {
	Injector Injector
	Flags    cli.Flags
	Out      io.Writer
}

// Injector is a dependency injection abstraction.
type Injector interface {
	// Resolve populates the input with the dependency if any compatible exists.
	Resolve(interface{}) error

	// Inject stores the dependency to be resolved later on.
	Inject(interface{})
}

// Initializer is the interface that a module implements to set its commands
// and inject the dependencies resolved by its actions.
type Initializer interface {
	// SetCommands populates the builder with the commands of the module.
	SetCommands(Builder)

	// OnStart starts the components of the module and populates the injector.
	OnStart(cli.Flags, Injector) error

	// OnStop stops the components and releases the resources.
	OnStop(Injector) error
}

// Client is the interface to send a message to the daemon.
type Client interface {
	Send([]byte) error
}

// Daemon is an IPC socket to communicate between a CLI and a running node.
type Daemon interface {
	Listen() error
	Close() error
}

// DaemonFactory is an interface to create a daemon and clients to connect to
// it.
type DaemonFactory interface {
	ClientFromContext(cli.Flags) (Client, error)
	DaemonFromContext(cli.Flags) (Daemon, error)
}
