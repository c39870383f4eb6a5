package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, 3001, GetInt(APIPortKey))
	assert.Equal(t, 60, GetInt(NodeReadyAttemptsKey))
	assert.Equal(t, 500*time.Millisecond, GetNodeReadyInterval())
	assert.Equal(t, 10, GetInt(FundingRateKey))

	assert.Equal(t, "bitcoind", GetString(BitcoinBinaryKey))
	assert.Equal(t, 18443, GetInt(BitcoinRPCPortKey))
	assert.Equal(t, 18444, GetInt(BitcoinP2PPortKey))
	assert.Equal(t, 10.0, GetFloat(BitcoinBalanceKey))

	assert.Equal(t, "solana-test-validator", GetString(SolanaBinaryKey))
	assert.Equal(t, 8899, GetInt(SolanaRPCPortKey))
	assert.Equal(t, 100.0, GetFloat(SolanaBalanceKey))

	assert.Empty(t, GetMnemonic())
}

func TestSetOverride(t *testing.T) {
	Set(BitcoinAccountsKey, 3)
	defer Set(BitcoinAccountsKey, 10)
	assert.Equal(t, 3, GetInt(BitcoinAccountsKey))

	Set(MnemonicKey, "legal winner thank year wave sausage worth useful legal winner thank yellow")
	defer Set(MnemonicKey, "")
	assert.Len(t, GetMnemonic(), 12)
}

func TestInstancePaths(t *testing.T) {
	dir := InstanceDir("bitcoin", "dev-1")
	assert.Equal(t, filepath.Join(GetDatadir(), "instances", "bitcoin", "dev-1"), dir)
	assert.Equal(t, filepath.Join(dir, "accounts.json"), AccountsFile("bitcoin", "dev-1"))
	assert.Equal(t, filepath.Join(dir, "instance.json"), InstanceInfoFile("bitcoin", "dev-1"))
	assert.Equal(t, filepath.Join(GetDatadir(), "registry"), RegistryDir())
}
