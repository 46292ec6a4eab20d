package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"escrowvault/native/escrow"
	"escrowvault/rpc"
)

func offerUsage() string {
	return strings.Join([]string{
		"Usage: escrow-cli offer <subcommand> [flags]",
		"",
		"Subcommands:",
		"  make   --key FILE --mint-a ADDR --mint-b ADDR --id N --deposit N --wanted N",
		"  take   --key FILE --maker ADDR --id N",
		"  cancel --key FILE --maker ADDR --id N",
		"  show   (--maker ADDR --id N | --address ADDR)",
	}, "\n")
}

func (c *cli) runOfferCommand(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(c.stderr, offerUsage())
		return 1
	}
	switch args[0] {
	case "make":
		return c.runOfferMake(args[1:])
	case "take":
		return c.runOfferTake(args[1:])
	case "cancel":
		return c.runOfferCancel(args[1:])
	case "show":
		return c.runOfferShow(args[1:])
	default:
		fmt.Fprintf(c.stderr, "Unknown offer subcommand: %s\n", args[0])
		fmt.Fprintln(c.stderr, offerUsage())
		return 1
	}
}

func parseUint(flagName, value string, allowZero bool) (uint64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, fmt.Errorf("--%s is required", flagName)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("--%s must be an unsigned integer", flagName)
	}
	if n == 0 && !allowZero {
		return 0, fmt.Errorf("--%s must be greater than zero", flagName)
	}
	return n, nil
}

func (c *cli) runOfferMake(args []string) int {
	fs := newFlagSet("offer make", c.stderr)
	var keyFile, mintA, mintB, id, deposit, wanted string
	fs.StringVar(&keyFile, "key", "", "maker key file")
	fs.StringVar(&mintA, "mint-a", "", "mint of the deposited token")
	fs.StringVar(&mintB, "mint-b", "", "mint of the requested token")
	fs.StringVar(&id, "id", "", "offer id, unique per maker")
	fs.StringVar(&deposit, "deposit", "", "amount of token A to lock in the vault")
	fs.StringVar(&wanted, "wanted", "", "amount of token B requested")
	if !c.parseFlags(fs, args) {
		return 1
	}

	params := escrow.MakeParams{}
	var err error
	if params.TokenMintA, err = parseAddress("mint-a", mintA); err != nil {
		return c.fail("%v", err)
	}
	if params.TokenMintB, err = parseAddress("mint-b", mintB); err != nil {
		return c.fail("%v", err)
	}
	if params.ID, err = parseUint("id", id, true); err != nil {
		return c.fail("%v", err)
	}
	if params.DepositAmount, err = parseUint("deposit", deposit, false); err != nil {
		return c.fail("%v", err)
	}
	if params.WantedAmountB, err = parseUint("wanted", wanted, false); err != nil {
		return c.fail("%v", err)
	}
	key, err := loadKey(keyFile)
	if err != nil {
		return c.fail("%v", err)
	}
	params.Maker = key.PublicKey()

	ix, err := escrow.NewMakeInstruction(params)
	if err != nil {
		return c.fail("build instruction: %v", err)
	}
	return c.submit(key, ix)
}

// offerTarget parses the --key, --maker and --id flags shared by take and
// cancel, then fetches the live offer.
func (c *cli) offerTarget(name string, args []string) (solana.PrivateKey, *escrow.Offer, int) {
	fs := newFlagSet(name, c.stderr)
	var keyFile, makerStr, id string
	fs.StringVar(&keyFile, "key", "", "signer key file")
	fs.StringVar(&makerStr, "maker", "", "maker address")
	fs.StringVar(&id, "id", "", "offer id")
	if !c.parseFlags(fs, args) {
		return nil, nil, 1
	}
	maker, err := parseAddress("maker", makerStr)
	if err != nil {
		return nil, nil, c.fail("%v", err)
	}
	offerID, err := parseUint("id", id, true)
	if err != nil {
		return nil, nil, c.fail("%v", err)
	}
	key, err := loadKey(keyFile)
	if err != nil {
		return nil, nil, c.fail("%v", err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	view, err := c.client.GetMakerOffer(ctx, maker, offerID)
	if err != nil {
		return nil, nil, c.failRequest(err)
	}
	offer, err := view.Offer()
	if err != nil {
		return nil, nil, c.fail("decode offer: %v", err)
	}
	return key, offer, 0
}

func (c *cli) runOfferTake(args []string) int {
	key, offer, code := c.offerTarget("offer take", args)
	if code != 0 {
		return code
	}
	ix, err := escrow.NewTakeInstruction(key.PublicKey(), offer)
	if err != nil {
		return c.fail("build instruction: %v", err)
	}
	return c.submit(key, ix)
}

func (c *cli) runOfferCancel(args []string) int {
	key, offer, code := c.offerTarget("offer cancel", args)
	if code != 0 {
		return code
	}
	ix, err := escrow.NewCancelInstruction(key.PublicKey(), offer)
	if err != nil {
		return c.fail("build instruction: %v", err)
	}
	return c.submit(key, ix)
}

func (c *cli) runOfferShow(args []string) int {
	fs := newFlagSet("offer show", c.stderr)
	var makerStr, id, addrStr string
	fs.StringVar(&makerStr, "maker", "", "maker address")
	fs.StringVar(&id, "id", "", "offer id")
	fs.StringVar(&addrStr, "address", "", "offer account address")
	if !c.parseFlags(fs, args) {
		return 1
	}

	ctx, cancel := requestContext()
	defer cancel()
	var (
		view *rpc.OfferResult
		err  error
	)
	switch {
	case strings.TrimSpace(addrStr) != "":
		if makerStr != "" || id != "" {
			return c.fail("--address cannot be combined with --maker or --id")
		}
		addr, perr := parseAddress("address", addrStr)
		if perr != nil {
			return c.fail("%v", perr)
		}
		view, err = c.client.GetOffer(ctx, addr)
	default:
		maker, perr := parseAddress("maker", makerStr)
		if perr != nil {
			return c.fail("%v", perr)
		}
		offerID, perr := parseUint("id", id, true)
		if perr != nil {
			return c.fail("%v", perr)
		}
		view, err = c.client.GetMakerOffer(ctx, maker, offerID)
	}
	if err != nil {
		return c.failRequest(err)
	}
	return c.writeResult(view)
}
