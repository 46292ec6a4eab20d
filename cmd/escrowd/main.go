package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"

	"escrowvault/config"
	"escrowvault/core/events"
	"escrowvault/core/genesis"
	"escrowvault/core/runtime"
	"escrowvault/gateway/middleware"
	"escrowvault/native/associatedtoken"
	"escrowvault/native/escrow"
	"escrowvault/native/favorites"
	"escrowvault/native/system"
	"escrowvault/native/token"
	"escrowvault/observability/logging"
	"escrowvault/rpc"
	"escrowvault/storage"
)

const (
	genesisPathEnv  = "ESCROW_GENESIS"
	environmentEnv  = "ESCROW_ENV"
	shutdownTimeout = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a YAML genesis file (overrides ESCROW_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	env := cfg.Environment
	if fromEnv := strings.TrimSpace(os.Getenv(environmentEnv)); fromEnv != "" {
		env = fromEnv
	}
	logger := logging.SetupWithOptions("escrowd", env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	genesisPath := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, genesisPath, logger); err != nil {
		logger.Error("escrowd terminated", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("escrowd stopped")
}

// run opens the ledger, applies genesis, serves the API and blocks until ctx
// is cancelled or the server fails.
func run(ctx context.Context, cfg *config.Config, genesisPath string, logger *slog.Logger) error {
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if genesisPath != "" {
		spec, err := genesis.LoadGenesisSpec(genesisPath)
		if err != nil {
			return fmt.Errorf("load genesis spec: %w", err)
		}
		applied, err := genesis.Apply(db, spec, cfg.Rent)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis checked",
			slog.String("path", genesisPath),
			slog.Bool("applied", applied),
			slog.Time("genesis_time", spec.GenesisTimestamp()))
	}

	ledger, err := newLedger(db, cfg, logger)
	if err != nil {
		return err
	}

	server := rpc.NewServer(ledger, rpc.ServerConfig{
		Address:      cfg.RPCAddress,
		MaxBodyBytes: cfg.RPC.MaxBodyBytes,
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		ReadHeaderTimeout: time.Duration(cfg.RPC.ReadHeaderTimeout) * time.Second,
		ReadTimeout:       time.Duration(cfg.RPC.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPC.WriteTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.RPC.IdleTimeout) * time.Second,
		LogRequests:       true,
	}, logger)

	rpcErrCh := make(chan error, 1)
	go func() {
		rpcErrCh <- server.Start()
		close(rpcErrCh)
	}()
	if err := waitForRPCStartup(cfg.RPCAddress, rpcErrCh, 5*time.Second); err != nil {
		return fmt.Errorf("rpc startup: %w", err)
	}
	logger.Info("escrow node running", slog.String("rpc", cfg.RPCAddress), slog.String("data_dir", cfg.DataDir))

	select {
	case <-ctx.Done():
	case err, ok := <-rpcErrCh:
		if ok && err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
		return errors.New("rpc server exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc shutdown: %w", err)
	}
	return nil
}

// newLedger builds the runtime with every built-in program registered.
func newLedger(db storage.Database, cfg *config.Config, logger *slog.Logger) (*runtime.Runtime, error) {
	ledger := runtime.New(db)
	ledger.SetLogger(logger.With(slog.String("component", "runtime")))
	ledger.SetEmitter(events.LogEmitter{Logger: logger.With(slog.String("component", "events"))})
	ledger.SetRent(cfg.Rent)

	programs := []struct {
		id      solana.PublicKey
		program runtime.Program
	}{
		{system.ProgramID, system.New()},
		{token.ProgramID, token.New()},
		{associatedtoken.ProgramID, associatedtoken.New()},
		{escrow.ProgramID, escrow.New()},
		{favorites.ProgramID, favorites.New()},
	}
	for _, entry := range programs {
		if err := ledger.Register(entry.id, entry.program); err != nil {
			return nil, fmt.Errorf("register %s: %w", entry.program.Name(), err)
		}
	}
	return ledger, nil
}

type envLookupFunc func(string) (string, bool)

// resolveGenesisPath picks the genesis file: CLI flag, then environment,
// then config. An empty result starts the node on its existing state.
func resolveGenesisPath(cliPath string, cfgPath string, lookup envLookupFunc) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(cfgPath)
}

func waitForRPCStartup(addr string, errCh <-chan error, timeout time.Duration) error {
	dialAddr := dialAddressFor(addr)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err, ok := <-errCh:
			return startupFailure(err, ok)
		default:
		}

		conn, err := net.DialTimeout("tcp", dialAddr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case err, ok := <-errCh:
			return startupFailure(err, ok)
		case <-ticker.C:
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for RPC server to start on %s", addr)
		}
	}
}

func startupFailure(err error, ok bool) error {
	if !ok {
		return fmt.Errorf("RPC server terminated before startup confirmation")
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("RPC server exited before startup confirmation")
}

func dialAddressFor(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
