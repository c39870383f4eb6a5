package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/forged/internal/core/domain"
)

func TestAccountStoreRoundTrip(t *testing.T) {
	store := NewAccountStore(t.TempDir())

	accounts := domain.AccountSet{
		{
			Index:      0,
			Address:    "bcrt1qtest0",
			PublicKey:  "02aabb",
			PrivateKey: []byte{0x01, 0x02},
			WIF:        "cTest",
			Balance:    10,
		},
		{
			Index:     1,
			Address:   "bcrt1qtest1",
			PublicKey: "03ccdd",
			Balance:   10,
		},
	}
	require.NoError(t, store.Save(domain.ChainBitcoin, "dev-1", accounts))

	loaded, err := store.Load(domain.ChainBitcoin, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, accounts, loaded)

	// a second save replaces the file
	accounts[0].Balance = 25
	require.NoError(t, store.Save(domain.ChainBitcoin, "dev-1", accounts))
	loaded, err = store.Load(domain.ChainBitcoin, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, loaded[0].Balance)
}

func TestAccountStoreLoadMissing(t *testing.T) {
	store := NewAccountStore(t.TempDir())

	accounts, err := store.Load(domain.ChainSolana, "never-started")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestAccountStoreLoadCorrupted(t *testing.T) {
	baseDir := t.TempDir()
	dir := filepath.Join(baseDir, "bitcoin", "dev-1")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "accounts.json"), []byte("{not json"), 0644,
	))

	store := NewAccountStore(baseDir)
	_, err := store.Load(domain.ChainBitcoin, "dev-1")
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestAccountStoreLoadMalformedDerivationPath(t *testing.T) {
	store := NewAccountStore(t.TempDir())

	accounts := domain.AccountSet{
		{Index: 0, Address: "bcrt1qtest0", DerivationPath: "m/44'/0'/0'/0/0"},
		{Index: 1, Address: "bcrt1qtest1", DerivationPath: "m/44'/x'/0'"},
	}
	require.NoError(t, store.Save(domain.ChainBitcoin, "dev-1", accounts))

	_, err := store.Load(domain.ChainBitcoin, "dev-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Contains(t, err.Error(), "account 1")
}

func TestAccountStoreDeleteIdempotent(t *testing.T) {
	store := NewAccountStore(t.TempDir())

	require.NoError(t, store.Save(
		domain.ChainBitcoin, "dev-1", domain.AccountSet{{Index: 0, Address: "a"}},
	))
	require.NoError(t, store.Delete(domain.ChainBitcoin, "dev-1"))
	require.NoError(t, store.Delete(domain.ChainBitcoin, "dev-1"))

	accounts, err := store.Load(domain.ChainBitcoin, "dev-1")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestInstanceInfoStore(t *testing.T) {
	store := NewInstanceInfoStore(t.TempDir())

	missing, err := store.Load(domain.ChainBitcoin, "dev-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	info := domain.InstanceInfo{
		Chain:      domain.ChainBitcoin,
		InstanceID: "dev-1",
		RPCURL:     "http://127.0.0.1:18443",
		RPCPort:    18443,
		P2PPort:    18444,
		RPCUser:    "chainforge",
		RPCPass:    "chainforge",
		Running:    true,
	}
	require.NoError(t, store.Save(info))

	loaded, err := store.Load(domain.ChainBitcoin, "dev-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Running)
	assert.Equal(t, info.RPCURL, loaded.RPCURL)

	require.NoError(t, store.MarkStopped(domain.ChainBitcoin, "dev-1"))
	loaded, err = store.Load(domain.ChainBitcoin, "dev-1")
	require.NoError(t, err)
	assert.False(t, loaded.Running)

	// stopping an instance that never wrote info is fine
	require.NoError(t, store.MarkStopped(domain.ChainSolana, "other"))
}
