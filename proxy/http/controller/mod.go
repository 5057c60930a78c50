// Package controller implements the initializer of the HTTP proxy of the
// daemon.
package controller

import (
	"go.dedis.ch/custody/cli"
	"go.dedis.ch/custody/cli/node"
	"go.dedis.ch/custody/proxy"
	"go.dedis.ch/custody/proxy/http"
	"golang.org/x/xerrors"
)

const (
	// AddrFlag is the flag of the start command with the address of the
	// proxy. The proxy is disabled when it is empty.
	AddrFlag = "http"

	defaultProm = "/metrics"
)

var proxyFac func(string) proxy.Proxy = func(addr string) proxy.Proxy {
	return http.NewHTTP(addr)
}

// NewController returns the initializer of the proxy.
func NewController() node.Initializer {
	return controller{}
}

// controller starts the proxy with the daemon when an address is given.
//
// - implements node.Initializer
type controller struct{}

// SetCommands implements node.Initializer. It adds the flag of the address to
// the start command and the command registering the metrics.
func (controller) SetCommands(builder node.Builder) {
	builder.SetStartFlags(cli.StringFlag{
		Name:    AddrFlag,
		Usage:   "address of the http proxy, disabled if empty",
		EnvVars: []string{"CUSTODY_HTTP"},
	})

	cmd := builder.SetCommand("proxy")
	sub := cmd.SetSubCommand("prom")
	sub.SetDescription("register the collectors and serve them to prometheus")
	sub.SetFlags(cli.StringFlag{
		Name:  "path",
		Usage: "path of the handler",
		Value: defaultProm,
	})
	sub.SetAction(builder.MakeAction(promAction{}))
}

// OnStart implements node.Initializer. It starts the proxy in the background
// and injects it.
func (controller) OnStart(flags cli.Flags, inj node.Injector) error {
	addr := flags.String(AddrFlag)
	if addr == "" {
		return nil
	}

	p := proxyFac(addr)

	errs := make(chan error, 1)
	go func() {
		errs <- p.Listen()
	}()

	err := waitAddr(p, errs)
	if err != nil {
		return xerrors.Errorf("failed to start proxy: %v", err)
	}

	inj.Inject(p)

	return nil
}

// OnStop implements node.Initializer. It stops the proxy if it is started.
func (controller) OnStop(inj node.Injector) error {
	var p proxy.Proxy

	err := inj.Resolve(&p)
	if err == nil {
		p.Stop()
	}

	return nil
}
