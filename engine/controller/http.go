package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/index"
	"go.dedis.ch/custody/engine"
	"golang.org/x/xerrors"
)

// APIPrefix is the path prefix of the queries served on the proxy.
const APIPrefix = "/api"

// newRouter returns the router of the read-only queries of the engine.
func newRouter(e *engine.Engine) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix(APIPrefix).Subrouter()

	api.HandleFunc("/custody", handle(func(r *http.Request) (interface{}, error) {
		return e.Custody()
	})).Methods(http.MethodGet)

	api.HandleFunc("/policy", handle(func(r *http.Request) (interface{}, error) {
		return e.Policy()
	})).Methods(http.MethodGet)

	api.HandleFunc("/fee", handle(func(r *http.Request) (interface{}, error) {
		return e.Fee()
	})).Methods(http.MethodGet)

	api.HandleFunc("/accounts/{id}", handle(func(r *http.Request) (interface{}, error) {
		return e.Account(access.Principal(mux.Vars(r)["id"]))
	})).Methods(http.MethodGet)

	api.HandleFunc("/auctions", handle(func(r *http.Request) (interface{}, error) {
		p, err := pageOf(r)
		if err != nil {
			return nil, err
		}

		return e.Auctions(p)
	})).Methods(http.MethodGet)

	api.HandleFunc("/auctions/{id:[0-9]+}", handle(func(r *http.Request) (interface{}, error) {
		return e.Auction(idOf(r))
	})).Methods(http.MethodGet)

	api.HandleFunc("/auctions/{id:[0-9]+}/bids", handle(func(r *http.Request) (interface{}, error) {
		p, err := pageOf(r)
		if err != nil {
			return nil, err
		}

		return e.Bids(idOf(r), p)
	})).Methods(http.MethodGet)

	api.HandleFunc("/listings", handle(func(r *http.Request) (interface{}, error) {
		p, err := pageOf(r)
		if err != nil {
			return nil, err
		}

		return e.Listings(p)
	})).Methods(http.MethodGet)

	api.HandleFunc("/listings/{id:[0-9]+}", handle(func(r *http.Request) (interface{}, error) {
		return e.Listing(idOf(r))
	})).Methods(http.MethodGet)

	api.HandleFunc("/listings/{id:[0-9]+}/offers", handle(func(r *http.Request) (interface{}, error) {
		p, err := pageOf(r)
		if err != nil {
			return nil, err
		}

		return e.Offers(idOf(r), p)
	})).Methods(http.MethodGet)

	api.HandleFunc("/offers/{id:[0-9]+}", handle(func(r *http.Request) (interface{}, error) {
		return e.Offer(idOf(r))
	})).Methods(http.MethodGet)

	api.HandleFunc("/sale", handle(func(r *http.Request) (interface{}, error) {
		return e.Sale()
	})).Methods(http.MethodGet)

	api.HandleFunc("/sale/tiers", handle(func(r *http.Request) (interface{}, error) {
		p, err := pageOf(r)
		if err != nil {
			return nil, err
		}

		return e.Tiers(p)
	})).Methods(http.MethodGet)

	api.HandleFunc("/sale/purchases", handle(func(r *http.Request) (interface{}, error) {
		p, err := pageOf(r)
		if err != nil {
			return nil, err
		}

		return e.Purchases(p)
	})).Methods(http.MethodGet)

	api.HandleFunc("/sale/holdings/{id}", handle(func(r *http.Request) (interface{}, error) {
		return e.Holding(access.Principal(mux.Vars(r)["id"]))
	})).Methods(http.MethodGet)

	return r
}

// handle returns a handler writing the result of the query in JSON, or the
// error with the status of its kind.
func handle(query func(r *http.Request) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := query(r)
		if err != nil {
			writeErr(w, statusOf(err), err.Error())
			return
		}

		writeResponse(w, http.StatusOK, res)
	}
}

// idOf returns the identifier of the path. The route only matches digits, and
// an identifier out of range is zero, which no record has.
func idOf(r *http.Request) uint64 {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return id
}

func pageOf(r *http.Request) (index.Page, error) {
	p := index.NewPage(0, index.MaxPageSize)

	var err error

	offset := r.URL.Query().Get("offset")
	if offset != "" {
		p.Offset, err = strconv.ParseUint(offset, 10, 64)
		if err != nil {
			return p, xerrors.Errorf("invalid offset '%s': %w", offset, core.ErrInvalidInput)
		}
	}

	limit := r.URL.Query().Get("limit")
	if limit != "" {
		p.Limit, err = strconv.ParseUint(limit, 10, 64)
		if err != nil {
			return p, xerrors.Errorf("invalid limit '%s': %w", limit, core.ErrInvalidInput)
		}
	}

	return p, nil
}

func statusOf(err error) int {
	switch {
	case xerrors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case xerrors.Is(err, core.ErrInvalidInput), xerrors.Is(err, core.ErrLimitExceeded):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeResponse(w, status, map[string]string{"error": msg})
}
