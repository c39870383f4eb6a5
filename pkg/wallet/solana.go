package wallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/gagliardetto/solana-go"
)

// SolanaAccount is an ed25519 keypair derived from a SolanaKeychain.
// Address and PublicKey are the same base58 string since Solana
// addresses are the public key itself. PrivateKey holds the 64-byte
// expanded key solana-keygen writes to keypair files.
type SolanaAccount struct {
	Index          uint32
	Address        string
	PublicKey      string
	PrivateKey     []byte
	DerivationPath string
}

// SolanaKeychain derives ed25519 keypairs along m/44'/501'/{index}'/0'.
// The master node is taken directly from the BIP39 seed, the left half
// as key and the right half as chain code. Child nodes follow the
// SLIP-0010 ed25519 rounds and accept hardened elements only.
type SolanaKeychain struct {
	mnemonic  []string
	masterKey []byte
	chainCode []byte
}

// NewSolanaKeychainOpts is the struct given to the NewSolanaKeychain method
type NewSolanaKeychainOpts struct {
	Mnemonic []string
}

func (o NewSolanaKeychainOpts) validate() error {
	if len(o.Mnemonic) <= 0 {
		return ErrNullMnemonic
	}
	if !isMnemonicValid(o.Mnemonic) {
		return ErrInvalidMnemonic
	}
	return nil
}

// NewSolanaKeychain returns a keychain rooted at the given mnemonic's seed.
func NewSolanaKeychain(opts NewSolanaKeychainOpts) (*SolanaKeychain, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	seed := generateSeedFromMnemonic(opts.Mnemonic)
	return &SolanaKeychain{
		mnemonic:  opts.Mnemonic,
		masterKey: seed[:32],
		chainCode: seed[32:64],
	}, nil
}

// Mnemonic returns the phrase the keychain was built from.
func (k *SolanaKeychain) Mnemonic() []string {
	return k.mnemonic
}

// DeriveAccount derives the keypair at m/44'/501'/{index}'/0'.
func (k *SolanaKeychain) DeriveAccount(index uint32) (*SolanaAccount, error) {
	if index > MaxHardenedValue {
		return nil, ErrOutOfRangeAccountIndex
	}

	path := SolanaAccountPath(index)
	key, err := k.deriveKey(path)
	if err != nil {
		return nil, err
	}

	prvkey := ed25519.NewKeyFromSeed(key)
	pubkey := solana.PrivateKey(prvkey).PublicKey().String()

	return &SolanaAccount{
		Index:          index,
		Address:        pubkey,
		PublicKey:      pubkey,
		PrivateKey:     []byte(prvkey),
		DerivationPath: path.String(),
	}, nil
}

// DeriveAccounts derives the first count keypairs in index order.
func (k *SolanaKeychain) DeriveAccounts(count uint32) ([]SolanaAccount, error) {
	accounts := make([]SolanaAccount, 0, count)
	for i := uint32(0); i < count; i++ {
		account, err := k.DeriveAccount(i)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, nil
}

// deriveKey walks the hardened path with the SLIP-0010 ed25519 child
// derivation rounds, returning the 32-byte key of the final node.
func (k *SolanaKeychain) deriveKey(path DerivationPath) ([]byte, error) {
	key := k.masterKey
	chainCode := k.chainCode

	for _, step := range path {
		if step < hdkeychain.HardenedKeyStart {
			return nil, ErrNotHardenedDerivationPath
		}

		data := make([]byte, 0, 37)
		data = append(data, 0x00)
		data = append(data, key...)
		data = binary.BigEndian.AppendUint32(data, step)

		mac := hmac.New(sha512.New, chainCode)
		mac.Write(data)
		sum := mac.Sum(nil)

		key = sum[:32]
		chainCode = sum[32:]
	}

	return key, nil
}
