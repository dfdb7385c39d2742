package service

import "errors"

// Validation errors. Rejected before any mutation.
var (
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrZeroShares            = errors.New("operation would mint or burn zero shares")
	ErrZeroAddress           = errors.New("identity must not be the zero address")
	ErrAssetMismatch         = errors.New("yield module asset does not match vault asset")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNilModule             = errors.New("yield module is required")
	ErrNilForwarder          = errors.New("donation forwarder is required")
	ErrNegativeAmount        = errors.New("amount must not be negative")
	ErrFractionalAmount      = errors.New("amount must be a whole number of base units")
)

// State errors.
var (
	ErrPaused          = errors.New("vault is paused")
	ErrUnauthorized    = errors.New("caller is not the vault admin")
	ErrVaultNotFound   = errors.New("vault not found")
	ErrVaultInsolvent  = errors.New("vault has outstanding shares but no assets")
	ErrBindingMismatch = errors.New("collaborator does not match persisted vault binding")
)

// Collaborator failures.
var (
	ErrTransferFailed        = errors.New("asset transfer failed")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSweepFailed           = errors.New("yield module did not accept the offered amount")
	ErrHarvestFailed         = errors.New("yield module harvest failed")
	ErrForwardingFailed      = errors.New("forwarding failed")
)

// ErrReentrantCall is returned when a ledger operation is invoked while another operation
// on the same ledger is in flight.
var ErrReentrantCall = errors.New("reentrant call rejected")

// ErrBusy is returned by a Turnstile when a caller waited too long for its turn
var ErrBusy = errors.New("vault is busy")

// Storage errors shared by every repository backend.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrConflict     = errors.New("concurrent modification")
)

// IsValidationError reports whether err was rejected before any mutation was attempted
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrZeroAmount, ErrZeroShares, ErrZeroAddress, ErrAssetMismatch, ErrInsufficientShares,
		ErrInsufficientAllowance, ErrNilModule, ErrNilForwarder, ErrNegativeAmount, ErrFractionalAmount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsCollaboratorError reports whether err originated in the token, yield module or forwarder
func IsCollaboratorError(err error) bool {
	for _, target := range []error{
		ErrTransferFailed, ErrInsufficientLiquidity, ErrSweepFailed, ErrHarvestFailed, ErrForwardingFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
