package node

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	urfavecli "github.com/urfave/cli/v2"
	"go.dedis.ch/custody"
	"go.dedis.ch/custody/cli"
	"go.dedis.ch/custody/cli/urfave"
	"golang.org/x/xerrors"
)

const (
	// ConfigFlag is the global flag of the configuration folder, which holds
	// the socket of the daemon and the files of the modules.
	ConfigFlag = "config"

	// LogLevelFlag is the flag of the start command setting the level of the
	// logger of the daemon.
	LogLevelFlag = "log-level"
)

// CLIBuilder is the builder of the CLI that starts and controls the daemon.
//
// - implements node.Builder
// - implements cli.Builder
type CLIBuilder struct {
	cli.Builder

	daemonFactory DaemonFactory
	injector      Injector
	actions       *actionMap
	startFlags    []cli.Flag
	inits         []Initializer
	writer        io.Writer

	// The daemon stops on SIGINT or SIGTERM, unless a channel is provided in
	// which case the caller is in charge of it.
	enableSignal bool
	sigs         chan os.Signal
}

// NewBuilder returns a new builder with the initializers.
func NewBuilder(inits ...Initializer) *CLIBuilder {
	return NewBuilderWithCfg(nil, nil, inits...)
}

// NewBuilderWithCfg returns a new builder using the signal channel and the
// output. A nil channel enables the system signals and a nil output is the
// standard output.
func NewBuilderWithCfg(sigs chan os.Signal, out io.Writer, inits ...Initializer) *CLIBuilder {
	if out == nil {
		out = os.Stdout
	}

	enabled := false

	if sigs == nil {
		sigs = make(chan os.Signal, 1)
		enabled = true
	}

	injector := NewInjector()
	actions := &actionMap{}

	factory := socketFactory{
		injector: injector,
		actions:  actions,
		out:      out,
	}

	builder := urfave.NewBuilder("custody", nil, cli.StringFlag{
		Name:    ConfigFlag,
		Usage:   "path to the config folder",
		Value:   ".custody",
		EnvVars: []string{"CUSTODY_CONFIG"},
	})

	return &CLIBuilder{
		Builder:       builder,
		injector:      injector,
		actions:       actions,
		daemonFactory: factory,
		enableSignal:  enabled,
		sigs:          sigs,
		inits:         inits,
		writer:        out,
	}
}

// SetStartFlags implements node.Builder.
func (b *CLIBuilder) SetStartFlags(flags ...cli.Flag) {
	b.startFlags = append(b.startFlags, flags...)
}

// MakeAction implements node.Builder. The action sends the identifier of the
// template and the flags of the command to the daemon.
func (b *CLIBuilder) MakeAction(tmpl ActionTemplate) cli.Action {
	index := b.actions.Set(tmpl)

	return func(c cli.Flags) error {
		client, err := b.daemonFactory.ClientFromContext(c)
		if err != nil {
			return xerrors.Errorf("couldn't make client: %v", err)
		}

		id := make([]byte, 2)
		binary.LittleEndian.PutUint16(id, index)

		fset := make(FlagSet)

		ctx, ok := c.(*urfavecli.Context)
		if ok {
			lookupFlags(fset, ctx)
		}

		buf, err := json.Marshal(fset)
		if err != nil {
			return xerrors.Errorf("failed to marshal flag set: %v", err)
		}

		err = client.Send(append(id, buf...))
		if err != nil {
			return xerrors.Errorf("couldn't send action: %w", err)
		}

		return nil
	}
}

// lookupFlags collects the flags of the command and of its ancestors.
func lookupFlags(fset FlagSet, ctx *urfavecli.Context) {
	for _, ancestor := range ctx.Lineage() {
		if ancestor.Command != nil {
			fill(fset, ancestor.Command.Flags, ancestor)
		}

		if ancestor.App != nil {
			fill(fset, ancestor.App.Flags, ancestor)
		}
	}
}

func fill(fset FlagSet, flags []urfavecli.Flag, ctx *urfavecli.Context) {
	for _, flag := range flags {
		names := flag.Names()
		if len(names) == 0 {
			continue
		}

		_, found := fset[names[0]]
		if found {
			// The closest command defines the value.
			continue
		}

		value := ctx.Value(names[0])

		slice, ok := value.(urfavecli.StringSlice)
		if ok {
			fset[names[0]] = slice.Value()
		} else {
			fset[names[0]] = value
		}
	}
}

// Build implements cli.Builder. It adds the start command after the commands
// of the initializers.
func (b *CLIBuilder) Build() cli.Application {
	for _, controller := range b.inits {
		controller.SetCommands(b)
	}

	flags := append([]cli.Flag{
		cli.StringFlag{
			Name:  LogLevelFlag,
			Usage: "level of the logs of the daemon",
			Value: zerolog.InfoLevel.String(),
		},
	}, b.startFlags...)

	cmd := b.SetCommand("start")
	cmd.SetDescription("start the daemon")
	cmd.SetFlags(flags...)
	cmd.SetAction(b.start)

	return b.Builder.Build()
}

func (b *CLIBuilder) start(flags cli.Flags) error {
	if b.enableSignal {
		signal.Notify(b.sigs, syscall.SIGINT, syscall.SIGTERM)

		defer signal.Stop(b.sigs)
	}

	level := flags.String(LogLevelFlag)
	if level != "" {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			return xerrors.Errorf("invalid log level: %v", err)
		}

		custody.Logger = custody.Logger.Level(lvl)
	}

	dir := flags.Path(ConfigFlag)
	if dir != "" {
		err := os.MkdirAll(dir, 0700)
		if err != nil {
			return xerrors.Errorf("couldn't make path: %v", err)
		}
	}

	daemon, err := b.daemonFactory.DaemonFromContext(flags)
	if err != nil {
		return xerrors.Errorf("couldn't make daemon: %v", err)
	}

	for _, controller := range b.inits {
		err = controller.OnStart(flags, b.injector)
		if err != nil {
			return xerrors.Errorf("couldn't run the controller: %v", err)
		}
	}

	// The socket is opened once every component is started.
	err = daemon.Listen()
	if err != nil {
		return xerrors.Errorf("couldn't start the daemon: %v", err)
	}

	defer daemon.Close()

	custody.Logger.Info().Str("config", dir).Msg("daemon started")

	<-b.sigs

	// Reverse order so that the services stop before the store they use.
	for i := len(b.inits) - 1; i >= 0; i-- {
		err = b.inits[i].OnStop(b.injector)
		if err != nil {
			return xerrors.Errorf("couldn't stop controller: %v", err)
		}
	}

	custody.Logger.Info().Msg("daemon stopped")

	return nil
}

// actionMap stores the templates and assigns a unique index to each.
type actionMap struct {
	list []ActionTemplate
}

func (m *actionMap) Set(a ActionTemplate) uint16 {
	m.list = append(m.list, a)
	return uint16(len(m.list) - 1)
}

func (m *actionMap) Get(index uint16) ActionTemplate {
	if int(index) >= len(m.list) {
		return nil
	}

	return m.list[index]
}
