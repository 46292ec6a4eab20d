package errors

import stderrors "errors"

// Error kinds shared by the runtime and every native program. Programs wrap
// these with context using fmt.Errorf("...: %w", ErrX) and callers classify
// failures with errors.Is.
var (
	// ErrAuthorization covers missing signatures, signer/owner mismatches and
	// derived addresses that do not reproduce from the presented seeds.
	ErrAuthorization = stderrors.New("authorization failed")
	// ErrState covers records that are absent, already present, closed, or in
	// a shape that forbids the requested transition.
	ErrState = stderrors.New("invalid account state")
	// ErrInsufficientFunds is returned when a balance cannot cover a debit.
	ErrInsufficientFunds = stderrors.New("insufficient funds")
	// ErrDerivationExhausted is returned when no bump yields an off-curve
	// address.
	ErrDerivationExhausted = stderrors.New("unable to find a viable program address bump")
	// ErrInvalidArgument covers malformed instruction data and account lists.
	ErrInvalidArgument = stderrors.New("invalid argument")
)

// Kind returns a stable label for err, suitable for metrics and API payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrAuthorization):
		return "authorization"
	case stderrors.Is(err, ErrState):
		return "state"
	case stderrors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case stderrors.Is(err, ErrDerivationExhausted):
		return "derivation"
	case stderrors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "internal"
	}
}
