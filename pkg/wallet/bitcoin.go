package wallet

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// BitcoinAccount is a keypair derived from a BitcoinKeychain, encoded
// the way bitcoind on regtest expects it: a bech32 P2WPKH address, a
// compressed public key in hex and a WIF export of the private key.
type BitcoinAccount struct {
	Index          uint32
	Address        string
	PublicKey      string
	PrivateKey     []byte
	WIF            string
	DerivationPath string
}

// BitcoinKeychain derives regtest keypairs along the BIP44 path
// m/44'/0'/0'/0/{index} from a BIP39 mnemonic.
type BitcoinKeychain struct {
	mnemonic  []string
	masterKey *hdkeychain.ExtendedKey
	net       *chaincfg.Params
}

// NewBitcoinKeychainOpts is the struct given to the NewBitcoinKeychain method
type NewBitcoinKeychainOpts struct {
	Mnemonic []string
}

func (o NewBitcoinKeychainOpts) validate() error {
	if len(o.Mnemonic) <= 0 {
		return ErrNullMnemonic
	}
	if !isMnemonicValid(o.Mnemonic) {
		return ErrInvalidMnemonic
	}
	return nil
}

// NewBitcoinKeychain returns a keychain rooted at the master key of the
// given mnemonic's seed, on regtest network params.
func NewBitcoinKeychain(opts NewBitcoinKeychainOpts) (*BitcoinKeychain, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	net := &chaincfg.RegressionNetParams
	seed := generateSeedFromMnemonic(opts.Mnemonic)
	masterKey, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		return nil, err
	}

	return &BitcoinKeychain{
		mnemonic:  opts.Mnemonic,
		masterKey: masterKey,
		net:       net,
	}, nil
}

// Mnemonic returns the phrase the keychain was built from.
func (k *BitcoinKeychain) Mnemonic() []string {
	return k.mnemonic
}

// DeriveAccount derives the keypair at m/44'/0'/0'/0/{index}.
func (k *BitcoinKeychain) DeriveAccount(index uint32) (*BitcoinAccount, error) {
	if index > MaxHardenedValue {
		return nil, ErrOutOfRangeAccountIndex
	}

	path := BitcoinAccountPath(index)
	node := k.masterKey
	var err error
	for _, step := range path {
		node, err = node.Derive(step)
		if err != nil {
			return nil, err
		}
	}

	prvkey, err := node.ECPrivKey()
	if err != nil {
		return nil, err
	}
	pubkey := prvkey.PubKey().SerializeCompressed()

	wif, err := btcutil.NewWIF(prvkey, k.net, true)
	if err != nil {
		return nil, err
	}

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubkey), k.net,
	)
	if err != nil {
		return nil, err
	}

	return &BitcoinAccount{
		Index:          index,
		Address:        addr.EncodeAddress(),
		PublicKey:      hex.EncodeToString(pubkey),
		PrivateKey:     prvkey.Serialize(),
		WIF:            wif.String(),
		DerivationPath: path.String(),
	}, nil
}

// DeriveAccounts derives the first count keypairs in index order.
func (k *BitcoinKeychain) DeriveAccounts(count uint32) ([]BitcoinAccount, error) {
	accounts := make([]BitcoinAccount, 0, count)
	for i := uint32(0); i < count; i++ {
		account, err := k.DeriveAccount(i)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, nil
}
