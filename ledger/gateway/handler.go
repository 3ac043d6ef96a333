package gateway

import (
	"encoding/json"
	"io/ioutil"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
)

// MaxTxSize is the largest transaction body a Handler accepts.
const MaxTxSize = 64 << 20

// Handler serves a ledger.Ledger over HTTP with the protocol Client speaks.
type Handler struct {
	l      ledger.Ledger
	router *httprouter.Router

	// Logf logs failed requests.
	// If nil, log.Printf is used.
	Logf func(string, ...interface{})
}

// NewHandler produces a Handler serving l.
func NewHandler(l ledger.Ledger) *Handler {
	h := &Handler{l: l, router: httprouter.New()}
	h.router.POST("/tx", h.submit)
	h.router.POST("/graphql", h.query)
	h.router.GET("/:id", h.fetch)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.router.ServeHTTP(w, req)
}

func (h *Handler) logf(format string, args ...interface{}) {
	if h.Logf != nil {
		h.Logf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

func (h *Handler) fail(w http.ResponseWriter, req *http.Request, code int, err error) {
	h.logf("%s %s: %s", req.Method, req.URL.Path, err)
	http.Error(w, err.Error(), code)
}

func (h *Handler) submit(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	body, err := ioutil.ReadAll(http.MaxBytesReader(w, req.Body, MaxTxSize))
	if err != nil {
		h.fail(w, req, http.StatusBadRequest, errors.Wrap(err, "reading request"))
		return
	}
	var wtx wireTx
	if err = json.Unmarshal(body, &wtx); err != nil {
		h.fail(w, req, http.StatusBadRequest, errors.Wrap(err, "decoding transaction"))
		return
	}
	tx, err := fromWire(&wtx)
	if err != nil {
		h.fail(w, req, http.StatusBadRequest, err)
		return
	}
	id, err := h.l.Submit(req.Context(), tx)
	if errors.Is(err, ledger.ErrRejected) || errors.Is(err, ledger.ErrBadSignature) {
		h.fail(w, req, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(id))
}

func (h *Handler) fetch(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	data, err := h.l.Fetch(req.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		h.fail(w, req, http.StatusNotFound, err)
		return
	}
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// The query text is not parsed.
// Only the variables of the document Client sends are honored.
func (h *Handler) query(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var greq gqlRequest
	if err := json.NewDecoder(req.Body).Decode(&greq); err != nil {
		h.fail(w, req, http.StatusBadRequest, errors.Wrap(err, "decoding query"))
		return
	}

	q := &ledger.Query{
		Tags:  greq.Variables.Tags,
		After: greq.Variables.After,
		First: greq.Variables.First,
	}
	for _, o := range greq.Variables.Owners {
		q.Owners = append(q.Owners, ledger.Owner(o))
	}

	var gresp gqlResponse
	page, err := h.l.Query(req.Context(), q)
	if err != nil {
		h.logf("%s %s: %s", req.Method, req.URL.Path, err)
		gresp.Errors = []gqlError{{Message: err.Error()}}
	} else {
		txs := &gresp.Data.Transactions
		txs.PageInfo.HasNextPage = page.HasMore
		for i, e := range page.Entries {
			edge := gqlEdge{Node: nodeFor(e)}
			if i == len(page.Entries)-1 {
				edge.Cursor = page.Cursor
			}
			txs.Edges = append(txs.Edges, edge)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(gresp); err != nil {
		h.logf("%s %s: encoding response: %s", req.Method, req.URL.Path, err)
	}
}
