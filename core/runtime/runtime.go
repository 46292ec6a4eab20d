// Package runtime executes ledger transactions. Each transaction is applied
// inside one storage transaction: every instruction, including the nested
// program calls it makes, either commits together or leaves no trace.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/events"
	"escrowvault/core/state"
	"escrowvault/core/types"
	"escrowvault/observability"
	"escrowvault/storage"
)

// MaxInvokeDepth bounds the nesting of cross-program calls. Top-level
// instructions run at depth 1.
const MaxInvokeDepth = 4

// Program is the entry point of an on-ledger program.
type Program interface {
	Name() string
	Execute(ctx *InvokeContext) error
}

// InstructionNamer is implemented by programs that can label their
// instructions for logs and metrics.
type InstructionNamer interface {
	InstructionName(data []byte) string
}

// Receipt describes a committed transaction.
type Receipt struct {
	Signature  string         `json:"signature"`
	Logs       []string       `json:"logs"`
	Events     []*types.Event `json:"events"`
	ExecutedAt time.Time      `json:"executedAt"`
}

// Runtime dispatches transactions to registered programs against a storage
// backend. Executions are serialized.
type Runtime struct {
	mu       sync.Mutex
	db       storage.Database
	programs map[solana.PublicKey]Program
	rent     types.Rent
	logger   *slog.Logger
	emitter  events.Emitter
	nowFn    func() time.Time
}

// New constructs a runtime over db with default rent and no registered
// programs.
func New(db storage.Database) *Runtime {
	return &Runtime{
		db:       db,
		programs: make(map[solana.PublicKey]Program),
		rent:     types.DefaultRent(),
		logger:   slog.Default(),
		emitter:  events.NoopEmitter{},
		nowFn:    time.Now,
	}
}

// SetLogger configures the structured logger.
func (r *Runtime) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	r.logger = logger
}

// SetEmitter configures the sink receiving events of committed transactions.
func (r *Runtime) SetEmitter(emitter events.Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

// SetRent overrides the rent parameters.
func (r *Runtime) SetRent(rent types.Rent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rent = rent
}

// SetNowFunc overrides the clock used for receipts. Intended for tests.
func (r *Runtime) SetNowFunc(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	r.nowFn = now
}

// Rent returns the active rent parameters.
func (r *Runtime) Rent() types.Rent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rent
}

// Register installs program under id. Registering the same id twice is an
// error.
func (r *Runtime) Register(id solana.PublicKey, program Program) error {
	if program == nil {
		return fmt.Errorf("runtime: nil program for %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.programs[id]; exists {
		return fmt.Errorf("runtime: program %s already registered", id)
	}
	r.programs[id] = program
	return nil
}

// GetAccount reads the committed state of addr. It returns nil when the
// account does not exist.
func (r *Runtime) GetAccount(addr solana.PublicKey) (*types.Account, error) {
	return state.NewManager(r.db).GetAccount(addr)
}

// Execute verifies and applies tx. On any error no state changes are kept.
func (r *Runtime) Execute(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("runtime: nil transaction: %w", coreerrors.ErrInvalidArgument)
	}
	if len(tx.Instructions) == 0 {
		return nil, fmt.Errorf("runtime: transaction has no instructions: %w", coreerrors.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.nowFn()
	receipt, err := r.execute(ctx, tx)
	elapsed := r.nowFn().Sub(start)
	observability.Runtime().ObserveTransaction(err == nil, coreerrors.Kind(err), elapsed)
	if err != nil {
		r.logger.Warn("transaction rejected",
			slog.String("signature", tx.ID()),
			slog.String("kind", coreerrors.Kind(err)),
			slog.String("error", err.Error()))
		return nil, err
	}
	receipt.ExecutedAt = start
	r.logger.Debug("transaction committed",
		slog.String("signature", receipt.Signature),
		slog.Int("instructions", len(tx.Instructions)),
		slog.Duration("elapsed", elapsed))
	for _, evt := range receipt.Events {
		r.emitter.Emit(evt)
	}
	return receipt, nil
}

func (r *Runtime) execute(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	if err := tx.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("runtime: %v: %w", err, coreerrors.ErrAuthorization)
	}
	for i, ix := range tx.Instructions {
		if _, ok := r.programs[ix.ProgramID]; !ok {
			return nil, fmt.Errorf("runtime: instruction %d: unknown program %s: %w", i, ix.ProgramID, coreerrors.ErrInvalidArgument)
		}
	}

	txn, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("runtime: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			txn.Discard()
		}
	}()

	exec := &execution{
		runtime: r,
		state:   state.NewManager(txn),
		rent:    r.rent,
	}
	if err := exec.state.RecordSignature(tx.Signatures[0]); err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	for i, ix := range tx.Instructions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		program := r.programs[ix.ProgramID]
		invoke := newInvokeContext(exec, ix, 1)
		err := exec.run(invoke, program)
		observability.Runtime().ObserveInstruction(program.Name(), instructionName(program, ix.Data), err == nil)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("runtime: commit: %w", err)
	}
	committed = true
	return &Receipt{Signature: tx.ID(), Logs: exec.logs, Events: exec.events}, nil
}

func instructionName(program Program, data []byte) string {
	if namer, ok := program.(InstructionNamer); ok {
		return namer.InstructionName(data)
	}
	return ""
}

// execution carries the per-transaction state shared by every invocation
// frame.
type execution struct {
	runtime *Runtime
	state   *state.Manager
	rent    types.Rent
	logs    []string
	events  []*types.Event
}

func (e *execution) log(line string) {
	e.logs = append(e.logs, line)
}

// run executes one invocation frame and checks that the program neither
// created nor destroyed lamports across the accounts it was handed.
func (e *execution) run(ictx *InvokeContext, program Program) error {
	e.log(fmt.Sprintf("Program %s invoke [%d]", ictx.programID, ictx.depth))
	before, err := e.lamportTotal(ictx.keys())
	if err != nil {
		return err
	}
	if err := program.Execute(ictx); err != nil {
		e.log(fmt.Sprintf("Program %s failed: %v", ictx.programID, err))
		return err
	}
	after, err := e.lamportTotal(ictx.keys())
	if err != nil {
		return err
	}
	if before != after {
		err := fmt.Errorf("runtime: %s changed total lamports from %d to %d: %w", program.Name(), before, after, coreerrors.ErrState)
		e.log(fmt.Sprintf("Program %s failed: %v", ictx.programID, err))
		return err
	}
	e.log(fmt.Sprintf("Program %s success", ictx.programID))
	return nil
}

func (e *execution) lamportTotal(keys []solana.PublicKey) (uint64, error) {
	var total uint64
	for _, key := range keys {
		acc, err := e.state.GetAccount(key)
		if err != nil {
			return 0, err
		}
		if acc == nil {
			continue
		}
		next := total + acc.Lamports
		if next < total {
			return 0, errors.New("runtime: lamport total overflows")
		}
		total = next
	}
	return total, nil
}
