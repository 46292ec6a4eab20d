package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"escrowvault/config"
	"escrowvault/core/types"
	"escrowvault/native/favorites"
	"escrowvault/rpc"
	"escrowvault/storage"
)

func TestResolveGenesisPathPrecedence(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key != genesisPathEnv {
			t.Fatalf("unexpected lookup key: %s", key)
		}
		return "env-path", true
	}

	t.Run("cli flag takes precedence", func(t *testing.T) {
		if path := resolveGenesisPath("cli-path", "cfg-path", lookup); path != "cli-path" {
			t.Fatalf("unexpected path: got %q want %q", path, "cli-path")
		}
	})

	t.Run("environment overrides config", func(t *testing.T) {
		if path := resolveGenesisPath("", "cfg-path", lookup); path != "env-path" {
			t.Fatalf("unexpected path: got %q want %q", path, "env-path")
		}
	})

	t.Run("config used when no other sources", func(t *testing.T) {
		emptyLookup := func(string) (string, bool) { return "", false }
		if path := resolveGenesisPath("", "cfg-path", emptyLookup); path != "cfg-path" {
			t.Fatalf("unexpected path: got %q want %q", path, "cfg-path")
		}
	})

	t.Run("no source starts on existing state", func(t *testing.T) {
		if path := resolveGenesisPath("", "", nil); path != "" {
			t.Fatalf("expected empty path, got %q", path)
		}
	})
}

func TestResolveGenesisPathTrimsValues(t *testing.T) {
	blankLookup := func(string) (string, bool) { return "  \t ", true }
	if path := resolveGenesisPath("  cli  ", " cfg ", blankLookup); path != "cli" {
		t.Fatalf("expected trimmed CLI path, got %q", path)
	}
	if path := resolveGenesisPath("", " cfg ", blankLookup); path != "cfg" {
		t.Fatalf("expected trimmed config path, got %q", path)
	}
}

func TestDialAddressFor(t *testing.T) {
	cases := map[string]string{
		":8899":          "127.0.0.1:8899",
		"0.0.0.0:8899":   "0.0.0.0:8899",
		"localhost:9000": "localhost:9000",
		"not-an-address": "not-an-address",
	}
	for in, want := range cases {
		if got := dialAddressFor(in); got != want {
			t.Fatalf("dialAddressFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWaitForRPCStartupReportsServerError(t *testing.T) {
	errCh := make(chan error, 1)
	boom := errors.New("bind failed")
	errCh <- boom
	if err := waitForRPCStartup(freeAddress(t), errCh, time.Second); !errors.Is(err, boom) {
		t.Fatalf("expected server error, got %v", err)
	}

	closed := make(chan error)
	close(closed)
	if err := waitForRPCStartup(freeAddress(t), closed, time.Second); err == nil {
		t.Fatalf("expected error when server channel closes")
	}
}

func TestWaitForRPCStartupTimesOut(t *testing.T) {
	errCh := make(chan error)
	if err := waitForRPCStartup(freeAddress(t), errCh, 150*time.Millisecond); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestNewLedgerRegistersPrograms(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger, err := newLedger(db, config.Default(), logger)
	if err != nil {
		t.Fatalf("newLedger: %v", err)
	}
	if _, err := newLedger(db, config.Default(), logger); err != nil {
		t.Fatalf("second ledger over the same store: %v", err)
	}
	if ledger == nil {
		t.Fatalf("expected ledger")
	}
}

func TestRunServesGenesisState(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	owner, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	genesisPath := filepath.Join(dir, "genesis.yaml")
	genesisYAML := fmt.Sprintf("genesisTime: \"2024-01-01T00:00:00Z\"\naccounts:\n  - address: %s\n    lamports: 5000000000\n", owner.PublicKey())
	if err := os.WriteFile(genesisPath, []byte(genesisYAML), 0o600); err != nil {
		t.Fatalf("write genesis: %v", err)
	}

	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.RPCAddress = freeAddress(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, genesisPath, logger) }()

	client := rpc.NewClient("http://"+cfg.RPCAddress, nil)
	var acc *rpc.AccountResult
	deadline := time.Now().Add(5 * time.Second)
	for {
		acc, err = client.GetAccount(context.Background(), owner.PublicKey())
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("query genesis account: %v", err)
	}
	if acc.Lamports != 5_000_000_000 {
		t.Fatalf("unexpected lamports: %d", acc.Lamports)
	}

	ix, err := favorites.NewSetFavoritesInstruction(owner.PublicKey(), 42, "blue", nil)
	if err != nil {
		t.Fatalf("build instruction: %v", err)
	}
	tx := types.NewTransaction(owner.PublicKey(), ix)
	tx.Nonce = 1
	if err := tx.Sign(owner); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := client.SubmitTransaction(context.Background(), tx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	fav, err := client.GetFavorites(context.Background(), owner.PublicKey())
	if err != nil {
		t.Fatalf("query favorites: %v", err)
	}
	if fav.Number != 42 || fav.Color != "blue" {
		t.Fatalf("unexpected favorites: %+v", fav)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("run did not stop after cancellation")
	}
}

func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to allocate port: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()
	return addr
}
