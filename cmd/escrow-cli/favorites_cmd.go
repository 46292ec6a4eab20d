package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"escrowvault/native/favorites"
)

func favoritesUsage() string {
	return strings.Join([]string{
		"Usage: escrow-cli favorites <subcommand> [flags]",
		"",
		"Subcommands:",
		"  set       --key FILE --number N --color TEXT [--delegate ADDR]",
		"  update    --key FILE [--owner ADDR] [--number N] [--color TEXT]",
		"  authority --key FILE [--delegate ADDR]   (omit --delegate to clear)",
		"  show      --owner ADDR",
	}, "\n")
}

func (c *cli) runFavoritesCommand(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(c.stderr, favoritesUsage())
		return 1
	}
	switch args[0] {
	case "set":
		return c.runFavoritesSet(args[1:])
	case "update":
		return c.runFavoritesUpdate(args[1:])
	case "authority":
		return c.runFavoritesAuthority(args[1:])
	case "show":
		return c.runFavoritesShow(args[1:])
	default:
		fmt.Fprintf(c.stderr, "Unknown favorites subcommand: %s\n", args[0])
		fmt.Fprintln(c.stderr, favoritesUsage())
		return 1
	}
}

func optionalAddress(flagName, value string) (*solana.PublicKey, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	addr, err := parseAddress(flagName, value)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func (c *cli) runFavoritesSet(args []string) int {
	fs := newFlagSet("favorites set", c.stderr)
	var keyFile, number, color, delegateStr string
	fs.StringVar(&keyFile, "key", "", "owner key file")
	fs.StringVar(&number, "number", "", "favorite number")
	fs.StringVar(&color, "color", "", "favorite color")
	fs.StringVar(&delegateStr, "delegate", "", "optional delegate allowed to update")
	if !c.parseFlags(fs, args) {
		return 1
	}
	n, err := parseUint("number", number, true)
	if err != nil {
		return c.fail("%v", err)
	}
	if len(color) > favorites.MaxColorLength {
		return c.fail("--color is %d bytes, limit %d", len(color), favorites.MaxColorLength)
	}
	delegate, err := optionalAddress("delegate", delegateStr)
	if err != nil {
		return c.fail("%v", err)
	}
	key, err := loadKey(keyFile)
	if err != nil {
		return c.fail("%v", err)
	}
	ix, err := favorites.NewSetFavoritesInstruction(key.PublicKey(), n, color, delegate)
	if err != nil {
		return c.fail("build instruction: %v", err)
	}
	return c.submit(key, ix)
}

func (c *cli) runFavoritesUpdate(args []string) int {
	fs := newFlagSet("favorites update", c.stderr)
	var keyFile, ownerStr, number, color string
	fs.StringVar(&keyFile, "key", "", "owner or delegate key file")
	fs.StringVar(&ownerStr, "owner", "", "owner of the favorites (defaults to the key's address)")
	fs.StringVar(&number, "number", "", "new favorite number")
	fs.StringVar(&color, "color", "", "new favorite color")
	if !c.parseFlags(fs, args) {
		return 1
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["number"] && !set["color"] {
		return c.fail("at least one of --number or --color is required")
	}

	var numberPtr *uint64
	if set["number"] {
		n, err := parseUint("number", number, true)
		if err != nil {
			return c.fail("%v", err)
		}
		numberPtr = &n
	}
	var colorPtr *string
	if set["color"] {
		if len(color) > favorites.MaxColorLength {
			return c.fail("--color is %d bytes, limit %d", len(color), favorites.MaxColorLength)
		}
		colorPtr = &color
	}

	key, err := loadKey(keyFile)
	if err != nil {
		return c.fail("%v", err)
	}
	owner := key.PublicKey()
	if strings.TrimSpace(ownerStr) != "" {
		if owner, err = parseAddress("owner", ownerStr); err != nil {
			return c.fail("%v", err)
		}
	}
	ix, err := favorites.NewUpdateFavoritesInstruction(key.PublicKey(), owner, numberPtr, colorPtr)
	if err != nil {
		return c.fail("build instruction: %v", err)
	}
	return c.submit(key, ix)
}

func (c *cli) runFavoritesAuthority(args []string) int {
	fs := newFlagSet("favorites authority", c.stderr)
	var keyFile, delegateStr string
	fs.StringVar(&keyFile, "key", "", "owner key file")
	fs.StringVar(&delegateStr, "delegate", "", "new delegate; empty clears it")
	if !c.parseFlags(fs, args) {
		return 1
	}
	delegate, err := optionalAddress("delegate", delegateStr)
	if err != nil {
		return c.fail("%v", err)
	}
	key, err := loadKey(keyFile)
	if err != nil {
		return c.fail("%v", err)
	}
	ix, err := favorites.NewSetAuthorityInstruction(key.PublicKey(), delegate)
	if err != nil {
		return c.fail("build instruction: %v", err)
	}
	return c.submit(key, ix)
}

func (c *cli) runFavoritesShow(args []string) int {
	fs := newFlagSet("favorites show", c.stderr)
	ownerStr := fs.String("owner", "", "owner address")
	if !c.parseFlags(fs, args) {
		return 1
	}
	owner, err := parseAddress("owner", *ownerStr)
	if err != nil {
		return c.fail("%v", err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	fav, err := c.client.GetFavorites(ctx, owner)
	if err != nil {
		return c.failRequest(err)
	}
	return c.writeResult(fav)
}
