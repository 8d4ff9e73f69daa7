package domain

import "errors"

var (
	ErrNotEnoughAccountKeys   = errors.New("not enough account keys")
	ErrInvalidAccountData     = errors.New("invalid account data")
	ErrInvalidInstructionData = errors.New("invalid instruction data")
	ErrInvalidOwner           = errors.New("invalid account owner")
	ErrUninitializedAccount   = errors.New("account is not initialized")
	ErrAccountFrozen          = errors.New("account frozen")
	ErrMintMismatch           = errors.New("token mint mismatch")

	ErrAuthorization              = errors.New("missing required authority")
	ErrInvalidSeeds               = errors.New("derived address does not match seeds")
	ErrPrivilegeEscalation        = errors.New("privilege escalation in cross-facility call")
	ErrAddressDerivationExhausted = errors.New("no off-curve bump found for seeds")

	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	ErrMissingRepaymentCommitment = errors.New("missing repayment commitment")
	ErrInsufficientRepayment      = errors.New("insufficient repayment")

	ErrUnsupportedSysvar        = errors.New("unsupported sysvar")
	ErrInstructionNotFound      = errors.New("instruction not found in transaction")
	ErrMalformedInstructionList = errors.New("malformed instruction list")

	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrAccountAlreadyInUse     = errors.New("account already in use")
	ErrAccountBorrowFailed     = errors.New("account buffer already borrowed")
	ErrReadonlyAccountModified = errors.New("read-only account modified")
	ErrExternalAccountModified = errors.New("account modified by non-owner")
	ErrUnbalancedInstruction   = errors.New("sum of account balances changed")
	ErrIncorrectProgramID      = errors.New("incorrect facility id")
	ErrUnknownFacility         = errors.New("unknown facility")
	ErrCallDepthExceeded       = errors.New("cross-facility call depth exceeded")
	ErrReentrancy              = errors.New("reentrant cross-facility call")
	ErrDuplicateTransaction    = errors.New("transaction already processed")
	ErrInvalidSignature        = errors.New("invalid transaction signature")
	ErrInvalidAddress          = errors.New("invalid address")
	ErrNotFound                = errors.New("not found")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrTransactionTooLarge     = errors.New("transaction too large")
)

// Category groups failures the way callers act on them.
type Category string

const (
	CategoryAccountShape      Category = "account_shape"
	CategoryAuthorization     Category = "authorization"
	CategoryArithmetic        Category = "arithmetic"
	CategoryProtocolInvariant Category = "protocol_invariant"
	CategoryIntrospection     Category = "introspection"
	CategoryRuntime           Category = "runtime"
)

var categories = []struct {
	err      error
	category Category
}{
	{ErrMissingRepaymentCommitment, CategoryProtocolInvariant},
	{ErrInsufficientRepayment, CategoryProtocolInvariant},
	{ErrUnsupportedSysvar, CategoryIntrospection},
	{ErrInstructionNotFound, CategoryIntrospection},
	{ErrMalformedInstructionList, CategoryIntrospection},
	{ErrArithmeticOverflow, CategoryArithmetic},
	{ErrAuthorization, CategoryAuthorization},
	{ErrInvalidSeeds, CategoryAuthorization},
	{ErrPrivilegeEscalation, CategoryAuthorization},
	{ErrAddressDerivationExhausted, CategoryAuthorization},
	{ErrInvalidSignature, CategoryAuthorization},
	{ErrNotEnoughAccountKeys, CategoryAccountShape},
	{ErrInvalidAccountData, CategoryAccountShape},
	{ErrInvalidInstructionData, CategoryAccountShape},
	{ErrInvalidOwner, CategoryAccountShape},
	{ErrUninitializedAccount, CategoryAccountShape},
	{ErrAccountFrozen, CategoryAccountShape},
	{ErrMintMismatch, CategoryAccountShape},
}

// CategoryOf classifies err. Protocol and introspection errors are checked
// first because a missing repay instruction wraps both.
func CategoryOf(err error) Category {
	for _, c := range categories {
		if errors.Is(err, c.err) {
			return c.category
		}
	}
	return CategoryRuntime
}
