package runtime

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"escrowvault/core/derive"
	coreerrors "escrowvault/core/errors"
	"escrowvault/core/types"
)

// InvokeContext is a program's view of one invocation: its own ID, the
// instruction data and the accounts it was handed, with their privileges.
// Every read and write must go through an account in that list.
type InvokeContext struct {
	exec      *execution
	programID solana.PublicKey
	accounts  []*solana.AccountMeta
	data      []byte
	depth     int
}

func newInvokeContext(exec *execution, ix types.Instruction, depth int) *InvokeContext {
	cloned := ix.Clone()
	return &InvokeContext{
		exec:      exec,
		programID: cloned.ProgramID,
		accounts:  cloned.Accounts,
		data:      cloned.Data,
		depth:     depth,
	}
}

// ProgramID returns the ID of the executing program.
func (c *InvokeContext) ProgramID() solana.PublicKey { return c.programID }

// Data returns the instruction data.
func (c *InvokeContext) Data() []byte { return c.data }

// Depth returns the call depth; top-level instructions run at 1.
func (c *InvokeContext) Depth() int { return c.depth }

// NumAccounts returns the length of the account list.
func (c *InvokeContext) NumAccounts() int { return len(c.accounts) }

// Rent returns the rent parameters in force.
func (c *InvokeContext) Rent() types.Rent { return c.exec.rent }

// Key returns the address at position i of the account list.
func (c *InvokeContext) Key(i int) (solana.PublicKey, error) {
	if i < 0 || i >= len(c.accounts) {
		return solana.PublicKey{}, fmt.Errorf("runtime: account index %d out of range (%d accounts): %w", i, len(c.accounts), coreerrors.ErrInvalidArgument)
	}
	return c.accounts[i].PublicKey, nil
}

// RequireAccounts fails unless at least n accounts were supplied.
func (c *InvokeContext) RequireAccounts(n int) error {
	if len(c.accounts) < n {
		return fmt.Errorf("runtime: expected %d accounts, got %d: %w", n, len(c.accounts), coreerrors.ErrInvalidArgument)
	}
	return nil
}

func (c *InvokeContext) keys() []solana.PublicKey {
	keys := make(solana.PublicKeySlice, 0, len(c.accounts))
	for _, meta := range c.accounts {
		keys.UniqueAppend(meta.PublicKey)
	}
	return keys
}

func (c *InvokeContext) has(key solana.PublicKey) bool {
	for _, meta := range c.accounts {
		if meta.PublicKey.Equals(key) {
			return true
		}
	}
	return false
}

// IsSigner reports whether key signed this invocation, either with a
// transaction signature or as a derived address vouched for by the caller.
func (c *InvokeContext) IsSigner(key solana.PublicKey) bool {
	for _, meta := range c.accounts {
		if meta.IsSigner && meta.PublicKey.Equals(key) {
			return true
		}
	}
	return false
}

// IsWritable reports whether key may be modified by this invocation.
func (c *InvokeContext) IsWritable(key solana.PublicKey) bool {
	for _, meta := range c.accounts {
		if meta.IsWritable && meta.PublicKey.Equals(key) {
			return true
		}
	}
	return false
}

// Load returns a copy of the account at key. Addresses without a record load
// as an empty system-owned account.
func (c *InvokeContext) Load(key solana.PublicKey) (*types.Account, error) {
	if !c.has(key) {
		return nil, fmt.Errorf("runtime: account %s not in instruction: %w", key, coreerrors.ErrInvalidArgument)
	}
	acc, err := c.exec.state.GetAccount(key)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return types.NewSystemAccount(), nil
	}
	return acc, nil
}

// GetAccount is Load that returns nil for addresses without a record. It lets
// the context serve as a state.AccountReader for program helpers.
func (c *InvokeContext) GetAccount(key solana.PublicKey) (*types.Account, error) {
	if !c.has(key) {
		return nil, fmt.Errorf("runtime: account %s not in instruction: %w", key, coreerrors.ErrInvalidArgument)
	}
	return c.exec.state.GetAccount(key)
}

// Exists reports whether key currently holds lamports or data.
func (c *InvokeContext) Exists(key solana.PublicKey) (bool, error) {
	if !c.has(key) {
		return false, fmt.Errorf("runtime: account %s not in instruction: %w", key, coreerrors.ErrInvalidArgument)
	}
	return c.exec.state.AccountExists(key)
}

// Store writes acc to key. Only the owning program may debit lamports,
// change data or reassign the owner; any program may credit a writable
// account. Accounts holding data must stay rent exempt.
func (c *InvokeContext) Store(key solana.PublicKey, acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("runtime: nil account for %s: %w", key, coreerrors.ErrInvalidArgument)
	}
	if !c.IsWritable(key) {
		return fmt.Errorf("runtime: account %s is not writable: %w", key, coreerrors.ErrAuthorization)
	}
	prev, err := c.Load(key)
	if err != nil {
		return err
	}
	if prev.Executable != acc.Executable {
		return fmt.Errorf("runtime: executable flag of %s is immutable: %w", key, coreerrors.ErrAuthorization)
	}
	if !prev.Owner.Equals(c.programID) {
		if acc.Lamports < prev.Lamports {
			return fmt.Errorf("runtime: %s may not debit %s owned by %s: %w", c.programID, key, prev.Owner, coreerrors.ErrAuthorization)
		}
		if !acc.Owner.Equals(prev.Owner) {
			return fmt.Errorf("runtime: %s may not reassign %s owned by %s: %w", c.programID, key, prev.Owner, coreerrors.ErrAuthorization)
		}
		if string(acc.Data) != string(prev.Data) {
			return fmt.Errorf("runtime: %s may not modify data of %s owned by %s: %w", c.programID, key, prev.Owner, coreerrors.ErrAuthorization)
		}
	}
	if len(acc.Data) > 0 {
		if min := c.exec.rent.MinimumBalance(len(acc.Data)); acc.Lamports < min {
			return fmt.Errorf("runtime: %s holds %d lamports, rent exemption needs %d: %w", key, acc.Lamports, min, coreerrors.ErrInsufficientFunds)
		}
	}
	return c.exec.state.PutAccount(key, acc.Clone())
}

// Log appends a line to the transaction log.
func (c *InvokeContext) Log(format string, args ...any) {
	c.exec.log("Program log: " + fmt.Sprintf(format, args...))
}

// Emit records an event that is published once the transaction commits.
func (c *InvokeContext) Emit(evt *types.Event) {
	if evt == nil {
		return
	}
	c.exec.events = append(c.exec.events, evt)
}

// Invoke calls another program with a subset of this invocation's accounts.
// Signer and writable flags cannot exceed those held here.
func (c *InvokeContext) Invoke(ix types.Instruction) error {
	return c.invoke(ix, nil)
}

// InvokeSigned is Invoke with additional signers: each seed set, ending in
// its bump, derives an address of the calling program that signs the call.
func (c *InvokeContext) InvokeSigned(ix types.Instruction, signerSeeds ...[][]byte) error {
	signers := make([]solana.PublicKey, 0, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := derive.SignerAddress(c.programID, seeds)
		if err != nil {
			return err
		}
		signers = append(signers, addr)
	}
	return c.invoke(ix, signers)
}

func (c *InvokeContext) invoke(ix types.Instruction, derivedSigners []solana.PublicKey) error {
	if c.depth >= MaxInvokeDepth {
		return fmt.Errorf("runtime: call depth %d exceeds limit %d: %w", c.depth+1, MaxInvokeDepth, coreerrors.ErrInvalidArgument)
	}
	program, ok := c.exec.runtime.programs[ix.ProgramID]
	if !ok {
		return fmt.Errorf("runtime: unknown program %s: %w", ix.ProgramID, coreerrors.ErrInvalidArgument)
	}
	if !c.has(ix.ProgramID) {
		return fmt.Errorf("runtime: program %s not in caller accounts: %w", ix.ProgramID, coreerrors.ErrInvalidArgument)
	}
	for i, meta := range ix.Accounts {
		if meta == nil {
			return fmt.Errorf("runtime: nil account meta %d: %w", i, coreerrors.ErrInvalidArgument)
		}
		if !c.has(meta.PublicKey) {
			return fmt.Errorf("runtime: account %s not available to caller: %w", meta.PublicKey, coreerrors.ErrAuthorization)
		}
		if meta.IsSigner && !c.IsSigner(meta.PublicKey) && !containsKey(derivedSigners, meta.PublicKey) {
			return fmt.Errorf("runtime: %s requires signature from %s: %w", ix.ProgramID, meta.PublicKey, coreerrors.ErrAuthorization)
		}
		if meta.IsWritable && !c.IsWritable(meta.PublicKey) {
			return fmt.Errorf("runtime: %s requires %s writable: %w", ix.ProgramID, meta.PublicKey, coreerrors.ErrAuthorization)
		}
	}
	return c.exec.run(newInvokeContext(c.exec, ix, c.depth+1), program)
}

func containsKey(keys []solana.PublicKey, key solana.PublicKey) bool {
	for _, candidate := range keys {
		if candidate.Equals(key) {
			return true
		}
	}
	return false
}
