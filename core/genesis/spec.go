package genesis

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"

	"escrowvault/crypto"
)

// GenesisSpec describes the ledger contents written before the first
// transaction: funded wallets, token mints and initial token balances.
type GenesisSpec struct {
	GenesisTime string        `yaml:"genesisTime"`
	Accounts    []AccountSpec `yaml:"accounts"`
	Mints       []MintSpec    `yaml:"mints"`
	Balances    []BalanceSpec `yaml:"balances"`

	genesisTimestamp time.Time
	accounts         map[solana.PublicKey]uint64
	mints            map[string]resolvedMint
}

// AccountSpec funds a system-owned wallet.
type AccountSpec struct {
	Address  string `yaml:"address"`
	Lamports uint64 `yaml:"lamports"`
}

// MintSpec creates a token mint at a fixed address.
type MintSpec struct {
	Name          string `yaml:"name"`
	Address       string `yaml:"address"`
	Decimals      uint8  `yaml:"decimals"`
	MintAuthority string `yaml:"mintAuthority"`
}

// BalanceSpec credits Amount base units of the named mint to Owner's
// associated token account.
type BalanceSpec struct {
	Owner  string `yaml:"owner"`
	Mint   string `yaml:"mint"`
	Amount uint64 `yaml:"amount"`
}

type resolvedMint struct {
	address   solana.PublicKey
	authority solana.PublicKey
	decimals  uint8
}

// LoadGenesisSpec reads and validates a YAML genesis file.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file: %w", err)
	}
	return ParseGenesisSpec(contents)
}

// ParseGenesisSpec decodes and validates a YAML genesis document.
func ParseGenesisSpec(contents []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	if err := yaml.Unmarshal(contents, &spec); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// GenesisTimestamp returns the parsed genesis time.
func (s *GenesisSpec) GenesisTimestamp() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.genesisTimestamp
}

// MintAddress returns the address of the named mint.
func (s *GenesisSpec) MintAddress(name string) (solana.PublicKey, bool) {
	if s == nil {
		return solana.PublicKey{}, false
	}
	mint, ok := s.mints[strings.TrimSpace(name)]
	return mint.address, ok
}

func (s *GenesisSpec) validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	s.accounts = make(map[solana.PublicKey]uint64, len(s.Accounts))
	for i, acc := range s.Accounts {
		addr, err := crypto.ParsePublicKey(acc.Address)
		if err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
		if _, dup := s.accounts[addr]; dup {
			return fmt.Errorf("accounts[%d]: duplicate address %s", i, addr)
		}
		if acc.Lamports == 0 {
			return fmt.Errorf("accounts[%d]: lamports must be positive", i)
		}
		s.accounts[addr] = acc.Lamports
	}

	s.mints = make(map[string]resolvedMint, len(s.Mints))
	seen := make(map[solana.PublicKey]struct{}, len(s.Mints))
	for i, mint := range s.Mints {
		name := strings.TrimSpace(mint.Name)
		if name == "" {
			return fmt.Errorf("mints[%d]: name must be set", i)
		}
		if _, dup := s.mints[name]; dup {
			return fmt.Errorf("mints[%d]: duplicate name %q", i, name)
		}
		addr, err := crypto.ParsePublicKey(mint.Address)
		if err != nil {
			return fmt.Errorf("mints[%d]: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("mints[%d]: duplicate address %s", i, addr)
		}
		if _, clash := s.accounts[addr]; clash {
			return fmt.Errorf("mints[%d]: address %s is also a funded wallet", i, addr)
		}
		authority, err := crypto.ParsePublicKey(mint.MintAuthority)
		if err != nil {
			return fmt.Errorf("mints[%d]: mint authority: %w", i, err)
		}
		seen[addr] = struct{}{}
		s.mints[name] = resolvedMint{address: addr, authority: authority, decimals: mint.Decimals}
	}

	type holding struct {
		owner solana.PublicKey
		mint  string
	}
	held := make(map[holding]struct{}, len(s.Balances))
	for i, bal := range s.Balances {
		owner, err := crypto.ParsePublicKey(bal.Owner)
		if err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
		name := strings.TrimSpace(bal.Mint)
		if _, ok := s.mints[name]; !ok {
			return fmt.Errorf("balances[%d]: unknown mint %q", i, bal.Mint)
		}
		if bal.Amount == 0 {
			return fmt.Errorf("balances[%d]: amount must be positive", i)
		}
		key := holding{owner: owner, mint: name}
		if _, dup := held[key]; dup {
			return fmt.Errorf("balances[%d]: duplicate balance for %s in %q", i, owner, name)
		}
		held[key] = struct{}{}
	}
	return nil
}

// mintNames returns the mint names in lexical order so application is
// deterministic.
func (s *GenesisSpec) mintNames() []string {
	names := make([]string, 0, len(s.mints))
	for name := range s.mints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseGenesisTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be set")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid genesisTime %q: %w", value, err)
	}
	return ts.UTC(), nil
}
