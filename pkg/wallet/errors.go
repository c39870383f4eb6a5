package wallet

import "errors"

var (
	// ErrNullMnemonic ...
	ErrNullMnemonic = errors.New("mnemonic must not be null")
	// ErrInvalidMnemonic ...
	ErrInvalidMnemonic = errors.New("mnemonic is invalid")
	// ErrInvalidEntropySize ...
	ErrInvalidEntropySize = errors.New(
		"entropy size must be a multiple of 32 in the range [128,256]",
	)
	// ErrNullDerivationPath ...
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrMalformedDerivationPath ...
	ErrMalformedDerivationPath = errors.New(
		"path must not start or end with a '/' and " +
			"can optionally start with 'm/' for absolute paths",
	)
	// ErrInvalidDerivationPath ...
	ErrInvalidDerivationPath = errors.New("invalid derivation path")
	// ErrNotHardenedDerivationPath is returned for ed25519 derivation,
	// which is defined for hardened path elements only.
	ErrNotHardenedDerivationPath = errors.New(
		"all derivation path elements must be hardened (suffix \"'\")",
	)
	// ErrOutOfRangeAccountIndex ...
	ErrOutOfRangeAccountIndex = errors.New(
		"account index exceeds the max hardened derivation value",
	)
)
