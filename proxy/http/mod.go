// Package http implements the proxy with the HTTP server of the standard
// library. Every request is tagged with a request identifier, returned in the
// X-Request-Id header, and logged once served.
package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/custody"
	"golang.org/x/xerrors"
)

type key int

const requestIDKey key = 0

const shutdownTimeout = 10 * time.Second

// HTTP is the HTTP server of the daemon.
//
// - implements proxy.Proxy
type HTTP struct {
	sync.Mutex

	mux        *http.ServeMux
	server     *http.Server
	logger     zerolog.Logger
	listenAddr string
	ln         net.Listener
}

// NewHTTP creates a new server for the address. An empty port picks a free
// one.
func NewHTTP(listenAddr string) *HTTP {
	logger := custody.Logger.With().Str("role", "http proxy").Logger()

	mux := http.NewServeMux()

	return &HTTP{
		mux: mux,
		server: &http.Server{
			Handler:           tracing(logging(logger)(mux)),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:     logger,
		listenAddr: listenAddr,
	}
}

// Listen implements proxy.Proxy. It returns nil once the server is stopped.
func (h *HTTP) Listen() error {
	ln, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		return xerrors.Errorf("failed to listen on '%s': %v", h.listenAddr, err)
	}

	h.Lock()
	h.ln = ln
	h.Unlock()

	h.logger.Info().Str("addr", ln.Addr().String()).Msg("server is ready")

	err = h.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return xerrors.Errorf("failed to serve: %v", err)
	}

	h.logger.Info().Msg("server stopped")

	return nil
}

// Stop implements proxy.Proxy. It waits for the requests in progress to
// finish.
func (h *HTTP) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	h.server.SetKeepAlivesEnabled(false)

	err := h.server.Shutdown(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to shutdown gracefully")
	}
}

// GetAddr implements proxy.Proxy.
func (h *HTTP) GetAddr() net.Addr {
	h.Lock()
	defer h.Unlock()

	if h.ln == nil {
		return nil
	}

	return h.ln.Addr()
}

// RegisterHandler implements proxy.Proxy.
func (h *HTTP) RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	h.mux.HandleFunc(path, handler)
}

// RequestID returns the identifier of the request, or an empty string.
func RequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

func logging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.Debug().Str("requestID", RequestID(r)).
				Str("method", r.Method).
				Str("url", r.URL.Path).
				Str("remoteAddr", r.RemoteAddr).
				Dur("duration", time.Since(start)).
				Msg("request served")
		})
	}
}

// tracing reuses the request identifier of the client, or assigns a new one.
func tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = xid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
