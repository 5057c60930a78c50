package controller

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.dedis.ch/custody"
	"go.dedis.ch/custody/cli/node"
	"go.dedis.ch/custody/proxy"
	"golang.org/x/xerrors"
)

const (
	startRetries  = 50
	startInterval = 20 * time.Millisecond
)

var registerer prometheus.Registerer = prometheus.DefaultRegisterer

// promAction registers the collectors of the ledger and serves them on the
// proxy.
//
// - implements node.ActionTemplate
type promAction struct{}

// Execute implements node.ActionTemplate. A collector already registered is
// reported and skipped.
func (promAction) Execute(ctx node.Context) error {
	var p proxy.Proxy

	err := ctx.Injector.Resolve(&p)
	if err != nil {
		return xerrors.Errorf("failed to resolve the proxy: %v", err)
	}

	path := ctx.Flags.String("path")

	for _, c := range custody.PromCollectors {
		err = registerer.Register(c)
		if err != nil {
			fmt.Fprintf(ctx.Out, "ERROR: failed to register: %v\n", err)
		}
	}

	p.RegisterHandler(path, promhttp.Handler().ServeHTTP)

	fmt.Fprintf(ctx.Out, "registered prometheus service on %q", path)

	return nil
}

// waitAddr waits for the proxy to listen, or to fail.
func waitAddr(p proxy.Proxy, errs <-chan error) error {
	for i := 0; i < startRetries; i++ {
		if p.GetAddr() != nil {
			return nil
		}

		select {
		case err := <-errs:
			if err == nil {
				return xerrors.New("proxy stopped")
			}

			return err
		case <-time.After(startInterval):
		}
	}

	return xerrors.New("proxy not listening")
}
