// Package controller implements the initializer of the engine. It opens the
// database and the configuration of the ledger when the daemon starts, and
// defines the commands that call the contracts and query the ledger.
package controller

import (
	"os"
	"path/filepath"

	"go.dedis.ch/custody"
	"go.dedis.ch/custody/cli"
	"go.dedis.ch/custody/cli/node"
	"go.dedis.ch/custody/core/event/amqp"
	"go.dedis.ch/custody/core/event/prom"
	"go.dedis.ch/custody/core/gateway"
	"go.dedis.ch/custody/core/store/kv"
	"go.dedis.ch/custody/engine"
	"go.dedis.ch/custody/proxy"
	"golang.org/x/xerrors"
)

const (
	// DBFlag is the flag of the path of the database, relative to the
	// configuration folder.
	DBFlag = "db"

	// ConfigFileFlag is the flag of the path of the YAML configuration of the
	// engine, relative to the configuration folder.
	ConfigFileFlag = "engine-config"

	// OwnerFlag is the flag of the owner of a new ledger.
	OwnerFlag = "owner"

	// AMQPFlag is the flag of the url of the broker the events are exported
	// to. The export is disabled when it is empty.
	AMQPFlag = "amqp"

	// ExchangeFlag is the flag of the exchange of the events.
	ExchangeFlag = "amqp-exchange"
)

var bucket = []byte("custody")

var dialFn = func(url, exchange string) (*amqp.Exporter, error) {
	return amqp.Dial(url, exchange)
}

// NewController returns the initializer of the engine.
func NewController() node.Initializer {
	return controller{}
}

// controller is the initializer of the engine.
//
// - implements node.Initializer
type controller struct{}

// SetCommands implements node.Initializer.
func (controller) SetCommands(builder node.Builder) {
	builder.SetStartFlags(
		cli.StringFlag{
			Name:  DBFlag,
			Usage: "path of the database",
			Value: "custody.db",
		},
		cli.StringFlag{
			Name:  ConfigFileFlag,
			Usage: "path of the configuration of the engine",
			Value: "custody.yaml",
		},
		cli.StringFlag{
			Name:  OwnerFlag,
			Usage: "owner of a new ledger, overrides the configuration",
		},
		cli.StringFlag{
			Name:    AMQPFlag,
			Usage:   "url of the broker of the events, disabled if empty",
			EnvVars: []string{"CUSTODY_AMQP"},
		},
		cli.StringFlag{
			Name:  ExchangeFlag,
			Usage: "exchange of the events",
			Value: amqp.DefaultExchange,
		},
	)

	cmd := builder.SetCommand("call")
	cmd.SetDescription("execute a transaction on a contract")
	cmd.SetFlags(
		cli.StringFlag{
			Name:     "contract",
			Usage:    "contract name, or one of vault, auction, market, sale, access",
			Required: true,
		},
		cli.StringFlag{
			Name:     "caller",
			Usage:    "principal of the caller",
			Required: true,
		},
		cli.IntFlag{
			Name:  "value",
			Usage: "value attached to the transaction",
		},
		cli.IntFlag{
			Name:  "height",
			Usage: "logical height of the transaction",
		},
		cli.IntFlag{
			Name:  "time",
			Usage: "logical time of the transaction in seconds",
		},
		cli.StringSliceFlag{
			Name:  "args",
			Usage: "arguments as key=value, a key without namespace gets the one of the contract",
		},
	)
	cmd.SetAction(builder.MakeAction(callAction{}))

	cmd = builder.SetCommand("query")
	cmd.SetDescription("read the state of the ledger")

	for _, q := range queries {
		sub := cmd.SetSubCommand(q.name)
		sub.SetDescription(q.description)
		sub.SetFlags(q.flags...)
		sub.SetAction(builder.MakeAction(queryAction{query: q.fn}))
	}

	cmd = builder.SetCommand("asset")
	sub := cmd.SetSubCommand("register")
	sub.SetDescription("register the owner of an asset of the marketplace")
	sub.SetFlags(
		cli.StringFlag{Name: "asset", Usage: "reference of the asset", Required: true},
		cli.StringFlag{Name: "owner", Usage: "owner of the asset", Required: true},
	)
	sub.SetAction(builder.MakeAction(registerAction{}))
}

// OnStart implements node.Initializer. It opens the database, creates the
// engine and injects it. The queries are served on the proxy if it is
// started.
func (controller) OnStart(flags cli.Flags, inj node.Injector) error {
	dir := flags.Path(node.ConfigFlag)

	config, err := loadConfig(resolve(dir, flags.Path(ConfigFileFlag)))
	if err != nil {
		return xerrors.Errorf("failed to load config: %v", err)
	}

	owner := flags.String(OwnerFlag)
	if owner != "" {
		config.Owner = owner
	}

	db, err := kv.New(resolve(dir, flags.Path(DBFlag)))
	if err != nil {
		return xerrors.Errorf("failed to open database: %v", err)
	}

	e, err := newEngine(db, config)
	if err != nil {
		db.Close()
		return err
	}

	inj.Inject(db)
	inj.Inject(e)

	e.Watch().Add(prom.NewCounter())

	url := flags.String(AMQPFlag)
	if url != "" {
		exporter, err := dialFn(url, flags.String(ExchangeFlag))
		if err != nil {
			db.Close()
			return xerrors.Errorf("failed to export events: %v", err)
		}

		e.Watch().Add(exporter)
		inj.Inject(exporter)
	}

	var p proxy.Proxy

	err = inj.Resolve(&p)
	if err == nil {
		p.RegisterHandler(APIPrefix+"/", newRouter(e).ServeHTTP)
	}

	return nil
}

// OnStop implements node.Initializer. It closes the exporter and the
// database.
func (controller) OnStop(inj node.Injector) error {
	var exporter *amqp.Exporter

	err := inj.Resolve(&exporter)
	if err == nil {
		err = exporter.Close()
		if err != nil {
			return xerrors.Errorf("failed to close exporter: %v", err)
		}
	}

	var db kv.DB

	err = inj.Resolve(&db)
	if err != nil {
		return xerrors.Errorf("failed to resolve db: %v", err)
	}

	err = db.Close()
	if err != nil {
		return xerrors.Errorf("failed to close db: %v", err)
	}

	return nil
}

func newEngine(db kv.DB, config engine.Config) (*engine.Engine, error) {
	s, err := kv.NewStore(db, bucket)
	if err != nil {
		return nil, xerrors.Errorf("failed to open store: %v", err)
	}

	sender := gateway.NewLogSender(custody.Logger)

	e, err := engine.New(s, sender, config)
	if err != nil {
		return nil, xerrors.Errorf("failed to create engine: %v", err)
	}

	return e, nil
}

// loadConfig loads the configuration file, or returns the default
// configuration if it does not exist.
func loadConfig(path string) (engine.Config, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		custody.Logger.Info().Str("path", path).Msg("no config file, using defaults")

		return engine.DefaultConfig(), nil
	}

	return engine.LoadConfig(path)
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(dir, path)
}
