package genesis

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"escrowvault/core/state"
	"escrowvault/core/types"
	"escrowvault/native/associatedtoken"
	"escrowvault/native/token"
	"escrowvault/storage"
)

var appliedKey = []byte("genesis:applied")

// ErrAlreadyApplied is returned by Apply when the database was initialised
// from a different genesis time.
var ErrAlreadyApplied = errors.New("genesis: database already initialised")

// Apply writes the genesis state into db in a single transaction. Applying
// the same spec again is a no-op and reports false; applying a spec with a
// different genesis time fails with ErrAlreadyApplied.
func Apply(db storage.Database, spec *GenesisSpec, rent types.Rent) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return false, fmt.Errorf("database must not be nil")
	}
	if spec.accounts == nil {
		if err := spec.validate(); err != nil {
			return false, err
		}
	}

	stamp := []byte(spec.GenesisTimestamp().Format(time.RFC3339))
	existing, err := db.Get(appliedKey)
	switch {
	case err == nil:
		if string(existing) == string(stamp) {
			return false, nil
		}
		return false, fmt.Errorf("%w at %s", ErrAlreadyApplied, existing)
	case !errors.Is(err, storage.ErrNotFound):
		return false, err
	}

	txn, err := db.Begin()
	if err != nil {
		return false, err
	}
	defer txn.Discard()
	manager := state.NewManager(txn)

	// 1) Wallets (sorted)
	wallets := make([]solana.PublicKey, 0, len(spec.accounts))
	for addr := range spec.accounts {
		wallets = append(wallets, addr)
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].String() < wallets[j].String() })
	for _, addr := range wallets {
		if err := manager.PutAccount(addr, &types.Account{
			Lamports: spec.accounts[addr],
			Owner:    solana.SystemProgramID,
		}); err != nil {
			return false, fmt.Errorf("fund %s: %w", addr, err)
		}
	}

	// 2) Balances, accumulating supply per mint
	supply := make(map[string]uint64, len(spec.mints))
	for i, bal := range spec.Balances {
		name := strings.TrimSpace(bal.Mint)
		mint := spec.mints[name]
		owner, err := solana.PublicKeyFromBase58(strings.TrimSpace(bal.Owner))
		if err != nil {
			return false, fmt.Errorf("balances[%d]: %w", i, err)
		}
		total := supply[name] + bal.Amount
		if total < supply[name] {
			return false, fmt.Errorf("balances[%d]: supply of %q overflows", i, name)
		}
		supply[name] = total

		ata, err := associatedtoken.Address(owner, mint.address)
		if err != nil {
			return false, fmt.Errorf("balances[%d]: %w", i, err)
		}
		data, err := (&token.Account{
			Mint:   mint.address,
			Owner:  owner,
			Amount: bal.Amount,
			State:  token.AccountInitialized,
		}).Marshal()
		if err != nil {
			return false, fmt.Errorf("balances[%d]: %w", i, err)
		}
		if err := manager.PutAccount(ata, &types.Account{
			Lamports: rent.MinimumBalance(len(data)),
			Owner:    token.ProgramID,
			Data:     data,
		}); err != nil {
			return false, fmt.Errorf("balances[%d]: %w", i, err)
		}
	}

	// 3) Mints (sorted)
	for _, name := range spec.mintNames() {
		mint := spec.mints[name]
		data, err := (&token.Mint{
			MintAuthority: mint.authority,
			Supply:        supply[name],
			Decimals:      mint.decimals,
			IsInitialized: true,
		}).Marshal()
		if err != nil {
			return false, fmt.Errorf("mint %q: %w", name, err)
		}
		if err := manager.PutAccount(mint.address, &types.Account{
			Lamports: rent.MinimumBalance(len(data)),
			Owner:    token.ProgramID,
			Data:     data,
		}); err != nil {
			return false, fmt.Errorf("mint %q: %w", name, err)
		}
	}

	if err := txn.Put(appliedKey, stamp); err != nil {
		return false, err
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
