// thomasctl is a small flag-based CLI for driving a thomasd node:
// generating a node keypair, signing an arbitrary payload, and
// submitting a transfer. It supersedes the teacher's standalone
// sig_once.go/sig_util.go/txgen.go scripts with one subcommand-style
// tool in the same stdlib-flag idiom txgen.go already used.
package main

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"thomasd/internal/tx"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "keygen":
		cmdKeygen(os.Args[2:])
	case "sign":
		cmdSign(os.Args[2:])
	case "submit":
		cmdSubmit(os.Args[2:])
	case "balance":
		cmdBalance(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  thomasctl keygen")
	fmt.Fprintln(os.Stderr, "  thomasctl sign -sk <hex> <message>")
	fmt.Fprintln(os.Stderr, "  thomasctl submit -addr <host:port> -from <hex20> -to <hex20> -amount N -fee N -seq N [-source-ledger N] [-commit]")
	fmt.Fprintln(os.Stderr, "  thomasctl balance -addr <host:port> -account <hex20>")
	os.Exit(2)
}

func cmdKeygen(args []string) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fatal(err)
	}
	fmt.Println("pub:", hex.EncodeToString(pub))
	fmt.Println("priv:", hex.EncodeToString(priv))
}

func cmdSign(args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	sk := fs.String("sk", "", "hex-encoded ed25519 private key")
	fs.Parse(args)
	if *sk == "" || fs.NArg() < 1 {
		usage()
	}
	priv, err := hex.DecodeString(*sk)
	if err != nil || len(priv) != ed25519.PrivateKeySize {
		fatal(fmt.Errorf("bad private key"))
	}
	sig := ed25519.Sign(ed25519.PrivateKey(priv), []byte(fs.Arg(0)))
	fmt.Println(hex.EncodeToString(sig))
}

func cmdSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8080", "thomasd HTTP address")
	from := fs.String("from", "", "hex-encoded 20-byte source account id")
	to := fs.String("to", "", "hex-encoded 20-byte destination account id")
	amount := fs.Uint64("amount", 0, "transfer amount")
	fee := fs.Uint64("fee", 0, "transfer fee")
	seq := fs.Uint("seq", 0, "source account's current sequence number")
	sourceLedger := fs.Uint("source-ledger", 0, "earliest ledger sequence the transfer may apply to (0: any)")
	withCommit := fs.Bool("commit", false, "attach a msg_commitment over the transfer fields")
	fs.Parse(args)
	if *from == "" || *to == "" {
		usage()
	}

	wire := tx.Transfer{
		SourceLedger: uint32(*sourceLedger),
		From:         *from,
		To:           *to,
		FromSeq:      uint32(*seq),
		Amount:       *amount,
		Fee:          *fee,
	}
	if *withCommit {
		wire.MsgCommit = hex.EncodeToString(tx.CommitHash(wire.CommitPayload()))
	}

	payload, _ := json.Marshal(wire)
	resp, err := http.Post("http://"+*addr+"/tx", "application/json", bytes.NewReader(payload))
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

func cmdBalance(args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8080", "thomasd HTTP address")
	acct := fs.String("account", "", "hex-encoded 20-byte account id")
	fs.Parse(args)
	if *acct == "" {
		usage()
	}
	resp, err := http.Get("http://" + *addr + "/account/" + *acct)
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
