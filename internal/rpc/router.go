// Package rpc exposes the ledger engine over HTTP: transaction
// submission, account/transaction/ledger lookups, the close/accept
// lifecycle transitions, and observability endpoints. Grounded on
// the teacher's router.go for its shape — one http.ServeMux, a small
// middleware chain wrapping it, expvar counters, an SSE event
// stream — rewired from round/mas-unit endpoints to this engine's
// ledger operations.
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"thomasd/internal/account"
	"thomasd/internal/app"
	"thomasd/internal/codec"
	"thomasd/internal/ledger"
	"thomasd/internal/ledgerstore"
	"thomasd/internal/serializer"
	"thomasd/internal/tx"
)

var errBadHash = errors.New("rpc: malformed hex-encoded hash")

// NewRouter builds the HTTP handler wired to eng.
func NewRouter(eng *app.Engine) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/metrics", handleMetrics)
	mux.HandleFunc("/node/info", handleNodeInfo(eng))
	mux.HandleFunc("/events/stream", handleEventStream(eng))

	mux.HandleFunc("/tx", handleSubmit(eng))
	mux.HandleFunc("/tx/", handleGetTransaction(eng))
	mux.HandleFunc("/account/", handleGetAccount(eng))
	mux.HandleFunc("/ledger/close", handleClose(eng))
	mux.HandleFunc("/ledger/accept", handleAccept(eng))
	mux.HandleFunc("/ledger/", handleGetLedger(eng))
	mux.HandleFunc("/merkle/account", handleMerkle(eng, true))
	mux.HandleFunc("/merkle/trans", handleMerkle(eng, false))

	return requestLog(mux)
}

// requestLog is the one always-on middleware, logging method/path/
// status/latency the way the teacher's chain logged every request.
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		log.Printf("rpc %s %s -> %d (%s)", r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	expvar.Do(func(kv expvar.KeyValue) {
		if iv, ok := kv.Value.(*expvar.Int); ok {
			fmt.Fprintf(w, "%s %s\n", kv.Key, iv.String())
		}
	})
}

func handleNodeInfo(eng *app.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		algo, pub := eng.NodeInfo()
		writeJSON(w, http.StatusOK, map[string]any{"algo": algo, "pub_key": pub})
	}
}

func handleEventStream(eng *app.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ch := eng.Subscribe()
		defer eng.Unsubscribe(ch)

		for {
			select {
			case <-r.Context().Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", msg)
				flusher.Flush()
			}
		}
	}
}

func handleSubmit(eng *app.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			metricBadRequest.Add(1)
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": "read_body"})
			return
		}

		var wire tx.Transfer
		ct := r.Header.Get("Content-Type")
		if strings.Contains(ct, "cbor") {
			err = codec.DecodeCBOR(body, &wire)
		} else {
			err = codec.DecodeJSON(body, &wire)
		}
		if err != nil {
			metricBadRequest.Add(1)
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": "decode: " + err.Error()})
			return
		}

		if !wire.VerifyCommit() {
			metricBadRequest.Add(1)
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": "bad_commitment"})
			return
		}

		t, err := wire.ToTransaction()
		if err != nil {
			metricBadRequest.Add(1)
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": err.Error()})
			return
		}

		res, err := eng.Submit(t)
		if err != nil {
			metricTxRejected.Add(1)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "reason": err.Error()})
			return
		}
		if res != ledger.ResultSuccess {
			metricTxRejected.Add(1)
			id := t.ID()
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "applied": false, "reason": res.String(), "tx_id": hex.EncodeToString(id[:])})
			return
		}
		metricTxSubmitted.Add(1)
		id := t.ID()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "applied": true, "tx_id": hex.EncodeToString(id[:])})
	}
}

func handleGetTransaction(eng *app.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idHex := strings.TrimPrefix(r.URL.Path, "/tx/")
		var id serializer.Hash256
		if err := decodeHashInto(&id, idHex); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": "bad tx id"})
			return
		}
		t, err := eng.Transaction(id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "reason": err.Error()})
			return
		}
		if t == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "reason": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":            true,
			"from":          hex.EncodeToString(t.From[:]),
			"to":            hex.EncodeToString(t.To[:]),
			"amount":        t.Amount,
			"fee":           t.Fee,
			"from_seq":      t.FromSeq,
			"source_ledger": t.SourceLedger,
			"status":        t.Status().String(),
		})
	}
}

func handleGetAccount(eng *app.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idHex := strings.TrimPrefix(r.URL.Path, "/account/")
		b, err := hex.DecodeString(idHex)
		if err != nil || len(b) != 20 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": "bad account id"})
			return
		}
		var id account.ID
		copy(id[:], b)

		st, err := eng.AccountState(id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "reason": err.Error()})
			return
		}
		if st == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "reason": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "balance": st.Balance, "seq": st.Seq})
	}
}

func handleClose(eng *app.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h, err := eng.Close()
		if err != nil {
			writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "reason": err.Error()})
			return
		}
		metricLedgerClosed.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "header": eng.SignedHeaderWire(h)})
	}
}

func handleAccept(eng *app.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h, err := eng.Accept()
		if err != nil {
			writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "reason": err.Error()})
			return
		}
		metricLedgerAccept.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "header": eng.SignedHeaderWire(h)})
	}
}

func handleGetLedger(eng *app.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/ledger/")
		var (
			h   ledger.Header
			err error
		)
		if seq, perr := strconv.ParseUint(key, 10, 32); perr == nil {
			h, err = eng.LedgerBySeq(uint32(seq))
		} else {
			var hash serializer.Hash256
			if derr := decodeHashInto(&hash, key); derr != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": "bad ledger key"})
				return
			}
			h, err = eng.LedgerByHash(hash)
		}
		if errors.Is(err, ledgerstore.ErrNoSuchLedger) {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "reason": "not found"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "reason": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "header": app.ToHeaderWire(h)})
	}
}

func handleMerkle(eng *app.Engine, isAccount bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := eng.Current().Header()
		root := h.TransHash
		if isAccount {
			root = h.AccountHash
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "root": hex.EncodeToString(root[:])})
	}
}

func decodeHashInto(dst *serializer.Hash256, s string) error {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(dst) {
		return errBadHash
	}
	copy(dst[:], b)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
