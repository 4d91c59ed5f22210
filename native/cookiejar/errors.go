package cookiejar

import "errors"

var (
	ErrUnauthorized            = errors.New("cookiejar: unauthorized")
	ErrInvalidRequest          = errors.New("cookiejar: invalid request")
	ErrAllowanceExceeded       = errors.New("cookiejar: allowance exceeded")
	ErrInsufficientPoolBalance = errors.New("cookiejar: insufficient pool balance")
	ErrTransferFailed          = errors.New("cookiejar: transfer failed")
	ErrInvalidPolicy           = errors.New("cookiejar: invalid policy")
	ErrLedgerOverflow          = errors.New("cookiejar: ledger total overflow")

	// ErrAllowanceUnderflow means the window total is above the ceiling. That
	// can only happen if the ledger was written outside the guard, so the
	// operation is aborted instead of clamping the remainder to zero.
	ErrAllowanceUnderflow = errors.New("cookiejar: claimed total exceeds ceiling")
)
