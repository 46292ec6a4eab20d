package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"

	"escrowvault/core/runtime/runtimetest"
	"escrowvault/crypto"
	"escrowvault/native/escrow"
	"escrowvault/native/favorites"
	"escrowvault/rpc"
)

type cliFixture struct {
	t      *testing.T
	h      *runtimetest.Harness
	dir    string
	url    string
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	nonce  uint64
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	h := runtimetest.New(t)
	h.Register(escrow.ProgramID, escrow.New())
	h.Register(favorites.ProgramID, favorites.New())
	srv := rpc.NewServer(h.Runtime, rpc.ServerConfig{}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &cliFixture{
		t:      t,
		h:      h,
		dir:    t.TempDir(),
		url:    ts.URL,
		stdout: new(bytes.Buffer),
		stderr: new(bytes.Buffer),
		nonce:  1_000,
	}
}

func (f *cliFixture) run(args ...string) int {
	f.t.Helper()
	f.stdout.Reset()
	f.stderr.Reset()
	args, endpoint, err := applyGlobalFlags(append([]string{"--rpc", f.url}, args...), defaultRPCEndpoint)
	if err != nil {
		f.t.Fatalf("global flags: %v", err)
	}
	c := &cli{
		endpoint: endpoint,
		stdout:   f.stdout,
		stderr:   f.stderr,
		client:   rpc.NewClient(endpoint, nil),
		nonce: func() uint64 {
			f.nonce++
			return f.nonce
		},
	}
	return c.dispatch(args)
}

func (f *cliFixture) mustRun(args ...string) {
	f.t.Helper()
	if code := f.run(args...); code != 0 {
		f.t.Fatalf("escrow-cli %s exited %d: %s", strings.Join(args, " "), code, f.stderr.String())
	}
}

func (f *cliFixture) keyFile(name string, key solana.PrivateKey) string {
	f.t.Helper()
	path := filepath.Join(f.dir, name+".json")
	if err := crypto.SaveKeyFile(path, key); err != nil {
		f.t.Fatalf("save key: %v", err)
	}
	return path
}

func decodeOutput[T any](t *testing.T, buf *bytes.Buffer) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode output %q: %v", buf.String(), err)
	}
	return out
}

func TestOfferCommandsSettleTrade(t *testing.T) {
	f := newCLIFixture(t)
	authority := f.h.NewWallet()
	maker := f.h.NewWallet()
	taker := f.h.NewWallet()
	mintA := f.h.NewMint(authority, 6)
	mintB := f.h.NewMint(authority, 6)
	f.h.MintTo(authority, mintA, maker.PublicKey(), 1_000)
	f.h.MintTo(authority, mintB, taker.PublicKey(), 500)
	makerKey := f.keyFile("maker", maker)
	takerKey := f.keyFile("taker", taker)

	f.mustRun("offer", "make", "--key", makerKey,
		"--mint-a", mintA.String(), "--mint-b", mintB.String(),
		"--id", "4", "--deposit", "300", "--wanted", "120")
	receipt := decodeOutput[rpc.ReceiptResult](t, f.stdout)
	if len(receipt.Events) != 1 || receipt.Events[0].Type != escrow.EventTypeOfferMade {
		t.Fatalf("unexpected make receipt: %+v", receipt)
	}

	f.mustRun("offer", "show", "--maker", maker.PublicKey().String(), "--id", "4")
	view := decodeOutput[rpc.OfferResult](t, f.stdout)
	if view.Deposit != 300 || view.WantedAmountB != 120 {
		t.Fatalf("unexpected offer: %+v", view)
	}

	f.mustRun("offer", "take", "--key", takerKey, "--maker", maker.PublicKey().String(), "--id", "4")

	if got := f.h.WalletBalance(taker.PublicKey(), mintA); got != 300 {
		t.Fatalf("taker token A balance = %d, want 300", got)
	}
	if got := f.h.WalletBalance(maker.PublicKey(), mintB); got != 120 {
		t.Fatalf("maker token B balance = %d, want 120", got)
	}

	if code := f.run("offer", "show", "--address", view.Address); code == 0 {
		t.Fatalf("expected closed offer lookup to fail")
	}
	if !strings.Contains(f.stderr.String(), "HTTP 404") {
		t.Fatalf("expected 404 in stderr, got %q", f.stderr.String())
	}

	f.mustRun("balance", "--wallet", maker.PublicKey().String(), "--mint", mintB.String())
	balance := decodeOutput[rpc.TokenAccountResult](t, f.stdout)
	if balance.Amount != 120 {
		t.Fatalf("balance output = %d, want 120", balance.Amount)
	}
}

func TestOfferCancelRequiresMaker(t *testing.T) {
	f := newCLIFixture(t)
	authority := f.h.NewWallet()
	maker := f.h.NewWallet()
	stranger := f.h.NewWallet()
	mintA := f.h.NewMint(authority, 0)
	mintB := f.h.NewMint(authority, 0)
	f.h.MintTo(authority, mintA, maker.PublicKey(), 50)
	makerKey := f.keyFile("maker", maker)
	strangerKey := f.keyFile("stranger", stranger)

	f.mustRun("offer", "make", "--key", makerKey,
		"--mint-a", mintA.String(), "--mint-b", mintB.String(),
		"--id", "1", "--deposit", "50", "--wanted", "10")

	if code := f.run("offer", "cancel", "--key", strangerKey, "--maker", maker.PublicKey().String(), "--id", "1"); code == 0 {
		t.Fatalf("expected stranger cancel to fail")
	}
	if !strings.Contains(f.stderr.String(), "authorization") {
		t.Fatalf("expected authorization failure, got %q", f.stderr.String())
	}

	f.mustRun("offer", "cancel", "--key", makerKey, "--maker", maker.PublicKey().String(), "--id", "1")
	if got := f.h.WalletBalance(maker.PublicKey(), mintA); got != 50 {
		t.Fatalf("maker refund = %d, want 50", got)
	}
}

func TestFavoritesCommands(t *testing.T) {
	f := newCLIFixture(t)
	owner := f.h.NewWallet()
	delegate := f.h.NewWallet()
	ownerKey := f.keyFile("owner", owner)
	delegateKey := f.keyFile("delegate", delegate)

	f.mustRun("favorites", "set", "--key", ownerKey, "--number", "7", "--color", "green")
	f.mustRun("favorites", "authority", "--key", ownerKey, "--delegate", delegate.PublicKey().String())
	f.mustRun("favorites", "update", "--key", delegateKey, "--owner", owner.PublicKey().String(), "--color", "violet")

	f.mustRun("favorites", "show", "--owner", owner.PublicKey().String())
	fav := decodeOutput[rpc.FavoritesResult](t, f.stdout)
	if fav.Number != 7 || fav.Color != "violet" || fav.Delegate != delegate.PublicKey().String() {
		t.Fatalf("unexpected favorites: %+v", fav)
	}

	f.mustRun("favorites", "authority", "--key", ownerKey)
	if code := f.run("favorites", "update", "--key", delegateKey, "--owner", owner.PublicKey().String(), "--number", "1"); code == 0 {
		t.Fatalf("expected revoked delegate update to fail")
	}
}

func TestKeygenAndAddress(t *testing.T) {
	f := newCLIFixture(t)
	path := filepath.Join(f.dir, "new.json")

	f.mustRun("keygen", "--out", path)
	generated := strings.TrimSpace(f.stdout.String())

	f.mustRun("address", "--key", path)
	if got := strings.TrimSpace(f.stdout.String()); got != generated {
		t.Fatalf("address = %q, want %q", got, generated)
	}

	if code := f.run("keygen", "--out", path); code == 0 {
		t.Fatalf("expected keygen to refuse overwriting")
	}
	f.mustRun("keygen", "--out", path, "--force")
	if strings.TrimSpace(f.stdout.String()) == generated {
		t.Fatalf("expected a fresh key after --force")
	}
}

func TestArgumentValidation(t *testing.T) {
	f := newCLIFixture(t)
	key := f.keyFile("k", f.h.NewWallet())
	addr := solana.NewWallet().PublicKey().String()

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "Usage: escrow-cli"},
		{"unknown command", []string{"bogus"}, "Unknown command: bogus"},
		{"unknown offer subcommand", []string{"offer", "steal"}, "Unknown offer subcommand"},
		{"make missing mint", []string{"offer", "make", "--key", key, "--mint-b", addr, "--id", "1", "--deposit", "1", "--wanted", "1"}, "--mint-a is required"},
		{"make zero deposit", []string{"offer", "make", "--key", key, "--mint-a", addr, "--mint-b", addr, "--id", "1", "--deposit", "0", "--wanted", "1"}, "--deposit must be greater than zero"},
		{"make bad id", []string{"offer", "make", "--key", key, "--mint-a", addr, "--mint-b", addr, "--id", "-1", "--deposit", "1", "--wanted", "1"}, "--id must be an unsigned integer"},
		{"take bad maker", []string{"offer", "take", "--key", key, "--maker", "nope", "--id", "1"}, "--maker"},
		{"show conflicting selectors", []string{"offer", "show", "--address", addr, "--id", "1"}, "cannot be combined"},
		{"favorites update without fields", []string{"favorites", "update", "--key", key}, "at least one of"},
		{"favorites long color", []string{"favorites", "set", "--key", key, "--number", "1", "--color", strings.Repeat("x", favorites.MaxColorLength+1)}, "limit " + strconv.Itoa(favorites.MaxColorLength)},
		{"missing key", []string{"address"}, "--key is required"},
		{"positional args", []string{"balance", "extra"}, "unexpected positional arguments"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code := f.run(tc.args...); code != 1 {
				t.Fatalf("exit code = %d, want 1", code)
			}
			if !strings.Contains(f.stderr.String(), tc.want) {
				t.Fatalf("stderr %q does not contain %q", f.stderr.String(), tc.want)
			}
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	args, endpoint, err := applyGlobalFlags([]string{"balance", "--rpc=http://node:1", "--wallet", "x"}, defaultRPCEndpoint)
	if err != nil {
		t.Fatalf("applyGlobalFlags: %v", err)
	}
	if endpoint != "http://node:1" {
		t.Fatalf("endpoint = %q", endpoint)
	}
	if strings.Join(args, " ") != "balance --wallet x" {
		t.Fatalf("args = %v", args)
	}
	if _, _, err := applyGlobalFlags([]string{"--rpc"}, defaultRPCEndpoint); err == nil {
		t.Fatalf("expected error for missing --rpc value")
	}

	lookup := func(string) (string, bool) { return " http://env:2 ", true }
	if got := defaultEndpoint(lookup); got != "http://env:2" {
		t.Fatalf("defaultEndpoint = %q", got)
	}
	empty := func(string) (string, bool) { return "", false }
	if got := defaultEndpoint(empty); got != defaultRPCEndpoint {
		t.Fatalf("defaultEndpoint = %q", got)
	}
}
