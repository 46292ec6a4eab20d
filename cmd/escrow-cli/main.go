package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"escrowvault/core/types"
	"escrowvault/crypto"
	"escrowvault/rpc"
)

const (
	rpcURLEnv          = "ESCROW_RPC_URL"
	defaultRPCEndpoint = "http://localhost:8899"
	requestTimeout     = 30 * time.Second
)

// cli carries the settings shared by every command.
type cli struct {
	endpoint string
	stdout   io.Writer
	stderr   io.Writer
	client   *rpc.Client
	nonce    func() uint64
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	endpoint := defaultEndpoint(os.LookupEnv)
	args, endpoint, err := applyGlobalFlags(args, endpoint)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	c := &cli{
		endpoint: endpoint,
		stdout:   stdout,
		stderr:   stderr,
		client:   rpc.NewClient(endpoint, nil),
		nonce:    func() uint64 { return uint64(time.Now().UnixNano()) },
	}
	return c.dispatch(args)
}

func (c *cli) dispatch(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(c.stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return c.runKeygen(args[1:])
	case "address":
		return c.runAddress(args[1:])
	case "offer":
		return c.runOfferCommand(args[1:])
	case "balance":
		return c.runBalance(args[1:])
	case "account":
		return c.runAccount(args[1:])
	case "favorites":
		return c.runFavoritesCommand(args[1:])
	case "help", "-h", "--help":
		fmt.Fprintln(c.stdout, usage())
		return 0
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(c.stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.Join([]string{
		"Usage: escrow-cli [--rpc URL] <command> [flags]",
		"",
		"Commands:",
		"  keygen --out FILE                      write a new key file",
		"  address --key FILE                     print the key file's public address",
		"  offer make|take|cancel|show ...         manage escrow offers",
		"  balance --wallet ADDR --mint ADDR      show a wallet's token balance",
		"  account --address ADDR                 show a ledger account",
		"  favorites set|update|authority|show ...  manage stored preferences",
	}, "\n")
}

func defaultEndpoint(lookup func(string) (string, bool)) string {
	if v, ok := lookup(rpcURLEnv); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return defaultRPCEndpoint
}

func applyGlobalFlags(args []string, endpoint string) ([]string, string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, "", errors.New("missing value for --rpc")
			}
			endpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			endpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, endpoint, nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseFlags parses args and rejects stray positional arguments.
func (c *cli) parseFlags(fs *flag.FlagSet, args []string) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(c.stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func (c *cli) fail(format string, args ...any) int {
	fmt.Fprintf(c.stderr, "Error: "+format+"\n", args...)
	return 1
}

func (c *cli) failRequest(err error) int {
	var apiErr *rpc.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(c.stderr, "Error: %s (%s, HTTP %d)\n", apiErr.Message, apiErr.Kind, apiErr.Status)
		return 1
	}
	fmt.Fprintf(c.stderr, "Error: request to %s failed: %v\n", c.endpoint, err)
	return 1
}

func (c *cli) writeResult(v any) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return c.fail("encode result: %v", err)
	}
	return 0
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// submit signs ixs with signer as fee payer and sends them as one
// transaction.
func (c *cli) submit(signer solana.PrivateKey, ixs ...types.Instruction) int {
	tx := types.NewTransaction(signer.PublicKey(), ixs...)
	tx.Nonce = c.nonce()
	if err := tx.Sign(signer); err != nil {
		return c.fail("sign transaction: %v", err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	receipt, err := c.client.SubmitTransaction(ctx, tx)
	if err != nil {
		return c.failRequest(err)
	}
	return c.writeResult(receipt)
}

func loadKey(path string) (solana.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--key is required")
	}
	return crypto.LoadKeyFile(path)
}

func parseAddress(flagName, value string) (solana.PublicKey, error) {
	if strings.TrimSpace(value) == "" {
		return solana.PublicKey{}, fmt.Errorf("--%s is required", flagName)
	}
	addr, err := crypto.ParsePublicKey(strings.TrimSpace(value))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("--%s: %v", flagName, err)
	}
	return addr, nil
}

func (c *cli) runKeygen(args []string) int {
	fs := newFlagSet("keygen", c.stderr)
	out := fs.String("out", "", "path of the key file to create")
	force := fs.Bool("force", false, "overwrite an existing key file")
	if !c.parseFlags(fs, args) {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		return c.fail("--out is required")
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return c.fail("%s already exists (use --force to overwrite)", *out)
		}
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return c.fail("generate key: %v", err)
	}
	if err := crypto.SaveKeyFile(*out, key); err != nil {
		return c.fail("save key: %v", err)
	}
	fmt.Fprintln(c.stdout, key.PublicKey().String())
	return 0
}

func (c *cli) runAddress(args []string) int {
	fs := newFlagSet("address", c.stderr)
	keyFile := fs.String("key", "", "key file")
	if !c.parseFlags(fs, args) {
		return 1
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return c.fail("%v", err)
	}
	fmt.Fprintln(c.stdout, key.PublicKey().String())
	return 0
}

func (c *cli) runBalance(args []string) int {
	fs := newFlagSet("balance", c.stderr)
	walletStr := fs.String("wallet", "", "wallet address")
	mintStr := fs.String("mint", "", "mint address")
	if !c.parseFlags(fs, args) {
		return 1
	}
	wallet, err := parseAddress("wallet", *walletStr)
	if err != nil {
		return c.fail("%v", err)
	}
	mint, err := parseAddress("mint", *mintStr)
	if err != nil {
		return c.fail("%v", err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	balance, err := c.client.GetWalletBalance(ctx, wallet, mint)
	if err != nil {
		return c.failRequest(err)
	}
	return c.writeResult(balance)
}

func (c *cli) runAccount(args []string) int {
	fs := newFlagSet("account", c.stderr)
	addrStr := fs.String("address", "", "account address")
	if !c.parseFlags(fs, args) {
		return 1
	}
	addr, err := parseAddress("address", *addrStr)
	if err != nil {
		return c.fail("%v", err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	acc, err := c.client.GetAccount(ctx, addr)
	if err != nil {
		return c.failRequest(err)
	}
	return c.writeResult(acc)
}
