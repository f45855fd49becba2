package main

import (
	"encoding/hex"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"thomasd/internal/account"
	"thomasd/internal/app"
	"thomasd/internal/buildinfo"
	"thomasd/internal/ledger"
	"thomasd/internal/ledgerstore"
	"thomasd/internal/ledgerstore/memstore"
	"thomasd/internal/ledgerstore/sqlstore"
	"thomasd/internal/rpc"
)

func main() {
	log.SetOutput(os.Stdout)

	store, err := openStore()
	if err != nil {
		log.Printf("[STARTUP] store error: %v", err)
		hang()
	}

	eng, err := app.NewEngine(app.Config{
		Store:         store,
		KeyPath:       env("THOMAS_NODE_KEY", "data/node_key.json"),
		MasterAccount: masterAccount(),
		GenesisAmount: 100_000_000,
		Policy:        ledger.Policy{AllowImplicitAccountCreation: envBool("THOMAS_ALLOW_IMPLICIT_CREATE", true)},
	})
	if err != nil {
		log.Printf("[STARTUP] engine error: %v", err)
		hang()
	}

	addr := env("THOMAS_LISTEN_ADDR", "127.0.0.1:0")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("[STARTUP] listen error: %v", err)
		hang()
	}

	srv := &http.Server{Handler: rpc.NewRouter(eng)}

	log.Printf("[OK] thomasd %s (%s) listening on http://%s", buildinfo.Version, buildinfo.Commit, ln.Addr().String())

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("[RUNTIME] serve error: %v", err)
	}

	hang()
}

func openStore() (ledgerstore.Store, error) {
	path := os.Getenv("THOMAS_DB_PATH")
	if path == "" {
		return memstore.New(), nil
	}
	return sqlstore.Open(path)
}

func masterAccount() account.ID {
	var id account.ID
	if hexID := os.Getenv("THOMAS_MASTER_ACCOUNT"); hexID != "" {
		if b, err := hex.DecodeString(hexID); err == nil && len(b) == len(id) {
			copy(id[:], b)
			return id
		}
		log.Printf("[STARTUP] THOMAS_MASTER_ACCOUNT is not a valid 20-byte hex id, using the all-zero master account")
	}
	return id
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}

// hang keeps the process alive after a startup or serve failure
// instead of exiting, so a supervising terminal window never just
// closes on the operator.
func hang() {
	for {
		time.Sleep(10 * time.Second)
	}
}
