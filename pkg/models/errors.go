package models

import "errors"

// Sentinel errors for the trade-loop engine. Callers use errors.Is against
// these; call sites wrap with fmt.Errorf("%w: ...") to add context.
var (
	ErrOwnershipConflict          = errors.New("ownership conflict")
	ErrInvariantViolation         = errors.New("graph invariant violation")
	ErrInvalidLifecycleTransition = errors.New("invalid lifecycle transition")
	ErrUnknownTenant              = errors.New("unknown tenant")
	ErrUnknownWallet              = errors.New("unknown wallet")
	ErrUnknownItem                = errors.New("unknown item")
	ErrUnknownLoop                = errors.New("unknown trade loop")
	ErrBudgetExceeded             = errors.New("budget exceeded")
	ErrSnapshotInconsistency      = errors.New("snapshot inconsistency")
)
