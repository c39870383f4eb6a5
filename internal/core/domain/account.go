package domain

// Account is a derived keypair together with its last observed on-chain
// balance. Key fields are immutable after derivation; only Balance is
// refreshed afterwards.
type Account struct {
	// Index is the derivation index within the owning account set.
	Index uint32 `json:"index"`
	// Address is the chain-native address encoding (bech32 P2WPKH for
	// Bitcoin regtest, base58 for Solana).
	Address string `json:"address"`
	// PublicKey is the chain-native public key encoding.
	PublicKey string `json:"publicKey"`
	// PrivateKey is the raw private key material (32 bytes for Bitcoin,
	// the 64-byte keypair for Solana).
	PrivateKey []byte `json:"privateKey"`
	// WIF is the wallet-import export of the private key. Bitcoin only.
	WIF string `json:"wif,omitempty"`
	// Mnemonic is the phrase this account was derived from, if any.
	Mnemonic string `json:"mnemonic,omitempty"`
	// DerivationPath is the canonical path string, if derived.
	DerivationPath string `json:"derivationPath,omitempty"`
	// Balance in the chain's native display unit (BTC, SOL).
	Balance float64 `json:"balance"`
}

// AccountSet is an ordered sequence of accounts. Order is stable and
// equals derivation index order.
type AccountSet []Account

// Addresses returns the set's addresses in index order.
func (s AccountSet) Addresses() []string {
	addrs := make([]string, 0, len(s))
	for _, a := range s {
		addrs = append(addrs, a.Address)
	}
	return addrs
}

// ByAddress returns the account with the given address, if present.
func (s AccountSet) ByAddress(addr string) (Account, bool) {
	for _, a := range s {
		if a.Address == addr {
			return a, true
		}
	}
	return Account{}, false
}
