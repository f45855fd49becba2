package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"thomasd/internal/account"
	"thomasd/internal/app"
	"thomasd/internal/clock"
	"thomasd/internal/ledger"
	"thomasd/internal/ledgerstore/memstore"
	"thomasd/internal/tx"
)

func newTestRouter(t *testing.T) (http.Handler, account.ID) {
	t.Helper()
	var master account.ID
	master[19] = 1

	eng, err := app.NewEngine(app.Config{
		Store:         memstore.New(),
		Clock:         clock.Fixed{},
		KeyPath:       t.TempDir() + "/node.json",
		MasterAccount: master,
		GenesisAmount: 1_000_000,
		Policy:        ledger.Policy{AllowImplicitAccountCreation: true},
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return NewRouter(eng), master
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}
}

func TestAccountEndpointReturnsGenesisBalance(t *testing.T) {
	router, master := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/account/"+hex.EncodeToString(master[:]), nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /account/{id} = %d, body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		OK      bool   `json:"ok"`
		Balance uint64 `json:"balance"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.OK || body.Balance != 1_000_000 {
		t.Fatalf("body = %+v, want balance 1000000", body)
	}
}

func TestAccountEndpointNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	var missing account.ID
	missing[19] = 99
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/account/"+hex.EncodeToString(missing[:]), nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET /account/{missing} = %d, want 404", rec.Code)
	}
}

func TestSubmitTransferAppliesTransaction(t *testing.T) {
	router, master := newTestRouter(t)

	var dest account.ID
	dest[19] = 2
	payload, _ := json.Marshal(map[string]any{
		"source_ledger": 0,
		"from":          hex.EncodeToString(master[:]),
		"to":            hex.EncodeToString(dest[:]),
		"from_seq":      0,
		"amount":        1000,
		"fee":           10,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tx", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /tx = %d, body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		OK      bool `json:"ok"`
		Applied bool `json:"applied"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.OK || !body.Applied {
		t.Fatalf("body = %+v, want ok+applied", body)
	}

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/account/"+hex.EncodeToString(dest[:]), nil)
	router.ServeHTTP(rec2, req2)
	var acct struct {
		Balance uint64 `json:"balance"`
	}
	json.Unmarshal(rec2.Body.Bytes(), &acct)
	if acct.Balance != 990 {
		t.Fatalf("dest balance = %d, want 990", acct.Balance)
	}
}

func TestSubmitTransferWithFutureSourceLedgerRejected(t *testing.T) {
	router, master := newTestRouter(t)

	var dest account.ID
	dest[19] = 2
	payload, _ := json.Marshal(map[string]any{
		"source_ledger": 99,
		"from":          hex.EncodeToString(master[:]),
		"to":            hex.EncodeToString(dest[:]),
		"amount":        1000,
		"fee":           10,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tx", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /tx with future source_ledger = %d, body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		OK     bool   `json:"ok"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.OK || body.Reason != "BADLSEQ" {
		t.Fatalf("body = %+v, want rejected with BADLSEQ", body)
	}
}

func TestSubmitTransferWithBadCommitmentRejected(t *testing.T) {
	router, master := newTestRouter(t)

	var dest account.ID
	dest[19] = 2
	payload, _ := json.Marshal(map[string]any{
		"from":           hex.EncodeToString(master[:]),
		"to":             hex.EncodeToString(dest[:]),
		"amount":         1000,
		"fee":            10,
		"msg_commitment": "deadbeef",
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tx", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("POST /tx with bad commitment = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestSubmitTransferWithCorrectCommitmentApplied(t *testing.T) {
	router, master := newTestRouter(t)

	var dest account.ID
	dest[19] = 2
	wire := tx.Transfer{
		From:   hex.EncodeToString(master[:]),
		To:     hex.EncodeToString(dest[:]),
		Amount: 1000,
		Fee:    10,
	}
	wire.MsgCommit = hex.EncodeToString(tx.CommitHash(wire.CommitPayload()))
	payload, _ := json.Marshal(wire)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tx", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /tx with correct commitment = %d, body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		OK      bool `json:"ok"`
		Applied bool `json:"applied"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.OK || !body.Applied {
		t.Fatalf("body = %+v, want ok+applied", body)
	}
}

func TestCloseThenAcceptAdvancesLedger(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ledger/close", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /ledger/close = %d, body=%s", rec.Code, rec.Body.String())
	}
	var closeBody struct {
		Header struct {
			SignatureHex string `json:"signature_hex"`
		} `json:"header"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &closeBody); err != nil {
		t.Fatalf("decode close response: %v", err)
	}
	if closeBody.Header.SignatureHex == "" {
		t.Fatalf("closed ledger header should carry a node signature")
	}

	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/ledger/accept", nil))
	if rec2.Code != http.StatusOK {
		t.Fatalf("POST /ledger/accept = %d, body=%s", rec2.Code, rec2.Body.String())
	}

	rec3 := httptest.NewRecorder()
	router.ServeHTTP(rec3, httptest.NewRequest(http.MethodGet, "/ledger/0", nil))
	if rec3.Code != http.StatusOK {
		t.Fatalf("GET /ledger/0 = %d, body=%s", rec3.Code, rec3.Body.String())
	}
}
