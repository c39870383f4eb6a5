package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/assert"
)

func TestParseDerivationPath(t *testing.T) {
	tests := []struct {
		input  string
		output DerivationPath
		err    error
	}{
		// Plain absolute derivation paths
		{"m/44'/0'/0'/0/0", DerivationPath{hdkeychain.HardenedKeyStart + 44, hdkeychain.HardenedKeyStart, hdkeychain.HardenedKeyStart, 0, 0}, nil},
		{"m/44'/0'/0'/0/128", DerivationPath{hdkeychain.HardenedKeyStart + 44, hdkeychain.HardenedKeyStart, hdkeychain.HardenedKeyStart, 0, 128}, nil},
		{"m/44'/501'/0'/0'", DerivationPath{hdkeychain.HardenedKeyStart + 44, hdkeychain.HardenedKeyStart + 501, hdkeychain.HardenedKeyStart, hdkeychain.HardenedKeyStart}, nil},
		{"m/2147483692/2147483648/2147483648/0", DerivationPath{hdkeychain.HardenedKeyStart + 44, hdkeychain.HardenedKeyStart, hdkeychain.HardenedKeyStart, 0}, nil},

		// Hexadecimal absolute derivation paths
		{"m/0x2c'/0x00'/0x00'/0x00", DerivationPath{hdkeychain.HardenedKeyStart + 44, hdkeychain.HardenedKeyStart, hdkeychain.HardenedKeyStart, 0}, nil},
		{"m/0x2c'/0x1f5'/0x00'/0x00'", DerivationPath{hdkeychain.HardenedKeyStart + 44, hdkeychain.HardenedKeyStart + 501, hdkeychain.HardenedKeyStart, hdkeychain.HardenedKeyStart}, nil},

		// Relative derivation paths
		{"44'/0'/0/0", DerivationPath{hdkeychain.HardenedKeyStart + 44, hdkeychain.HardenedKeyStart, 0, 0}, nil},
		{"0'/0/0", DerivationPath{hdkeychain.HardenedKeyStart, 0, 0}, nil},
		{"0/0", DerivationPath{0, 0}, nil},

		// Invalid derivation paths
		{"", nil, ErrNullDerivationPath},                    // Empty relative derivation path
		{"m", nil, ErrMalformedDerivationPath},              // Empty absolute derivation path
		{"m/", nil, ErrMalformedDerivationPath},             // Missing last derivation component
		{"/44'/0'/0'/0/0", nil, ErrMalformedDerivationPath}, // Absolute path without m prefix, might be user error
		{"m/2147483648'", nil, nil},                         // Overflows 32 bit integer (dynamic values on error, not constant)
		{"m/-1'", nil, nil},                                 // Cannot contain negative number (dynamic values on error, not constant)
		{"0", nil, ErrMalformedDerivationPath},              // Bad derivation path
	}
	for _, tt := range tests {
		path, err := ParseDerivationPath(tt.input)
		if err != nil {
			if tt.err != nil {
				assert.Equal(t, tt.err, err)
			}
		}
		assert.Equal(t, tt.output, path)
	}
}

func TestAccountPaths(t *testing.T) {
	assert.Equal(t, "m/44'/0'/0'/0/0", BitcoinAccountPath(0).String())
	assert.Equal(t, "m/44'/0'/0'/0/7", BitcoinAccountPath(7).String())
	assert.Equal(t, "m/44'/501'/0'/0'", SolanaAccountPath(0).String())
	assert.Equal(t, "m/44'/501'/9'/0'", SolanaAccountPath(9).String())
}

func TestDerivationPathRoundTrip(t *testing.T) {
	for _, strPath := range []string{
		"m/44'/0'/0'/0/3",
		"m/44'/501'/3'/0'",
		"m/84'/0'/0'/1/42",
	} {
		path, err := ParseDerivationPath(strPath)
		assert.NoError(t, err)
		assert.Equal(t, strPath, path.String())
	}
}
