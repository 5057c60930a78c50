// Package main implements the custody daemon and the commands to use it.
//
//  custody --config /tmp/node start --owner alice --http 127.0.0.1:8080
//  custody --config /tmp/node call --contract vault --caller bob --value 100
//  custody --config /tmp/node call --contract vault --caller bob\
//    --args command=WITHDRAW --args amount=40 --time 60
//  custody --config /tmp/node query account --id bob
//  custody --config /tmp/node proxy prom --path /metrics
//
package main

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/custody/cli/node"
	engine "go.dedis.ch/custody/engine/controller"
	proxy "go.dedis.ch/custody/proxy/http/controller"
)

type config struct {
	Channel chan os.Signal
	Writer  io.Writer
}

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return runWithCfg(args, config{})
}

func runWithCfg(args []string, cfg config) error {
	// The proxy is injected before the engine registers its queries on it.
	builder := node.NewBuilderWithCfg(
		cfg.Channel,
		cfg.Writer,
		proxy.NewController(),
		engine.NewController(),
	)

	app := builder.Build()

	return app.Run(args)
}
