// Package proxy defines the HTTP surface of the daemon, which serves the
// read-only queries of the ledger and its metrics.
package proxy

import (
	"net"
	"net/http"
)

// Proxy defines the primitives of the HTTP server of the daemon.
type Proxy interface {
	// Listen starts the server. The call blocks until the server stops.
	Listen() error

	// Stop stops the server.
	Stop()

	// GetAddr returns the address the server listens on, or nil if it is not
	// listening yet.
	GetAddr() net.Addr

	// RegisterHandler registers the handler of the path.
	RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request))
}
