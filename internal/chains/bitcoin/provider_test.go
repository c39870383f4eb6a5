package bitcoin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/forged/internal/core/domain"
)

func validConfig() Config {
	return Config{
		InstanceID:     "dev-1",
		Binary:         "bitcoind",
		RPCPort:        18443,
		P2PPort:        18444,
		RPCUser:        "chainforge",
		RPCPass:        "chainforge",
		Accounts:       10,
		InitialBalance: 10,
		InstanceDir:    "/tmp/chainforge-test/bitcoin/dev-1",
		ReadyAttempts:  60,
		ReadyInterval:  500 * time.Millisecond,
		FundingRate:    10,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad instance name", func(c *Config) { c.InstanceID = "Bad Name" }},
		{"rpc port out of range", func(c *Config) { c.RPCPort = 0 }},
		{"p2p port out of range", func(c *Config) { c.P2PPort = 70000 }},
		{"equal ports", func(c *Config) { c.P2PPort = c.RPCPort }},
		{"no accounts", func(c *Config) { c.Accounts = 0 }},
		{"negative balance", func(c *Config) { c.InitialBalance = -1 }},
		{"no instance dir", func(c *Config) { c.InstanceDir = "" }},
		{"no ready attempts", func(c *Config) { c.ReadyAttempts = 0 }},
		{"no funding rate", func(c *Config) { c.FundingRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.validate(), domain.ErrConfig)
		})
	}
}

func TestConfigRPCURL(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "http://127.0.0.1:18443", cfg.RPCURL())
	assert.Equal(t, "127.0.0.1:18443", cfg.rpcHost())
}

func TestMiningPlan(t *testing.T) {
	// 10 accounts at 10 BTC need 100.01 BTC, covered by 3 coinbases
	blocks, required := miningPlan(10, 10)
	assert.Equal(t, uint32(103), blocks)
	assert.InDelta(t, 100.01, required, 1e-9)

	// a single coinbase covers a small ask, plus 100 maturity blocks
	blocks, required = miningPlan(1, 10)
	assert.Equal(t, uint32(101), blocks)
	assert.InDelta(t, 10.001, required, 1e-9)

	// zero balance still mines one block for the fee buffer
	blocks, required = miningPlan(5, 0)
	assert.Equal(t, uint32(101), blocks)
	assert.InDelta(t, 0.005, required, 1e-9)
}

func TestMiningPlanCrossesHalving(t *testing.T) {
	// 200 accounts at 50 BTC exceed the first 150-block reward era, so
	// the plan continues into the 25 BTC era
	blocks, required := miningPlan(200, 50)
	assert.Equal(t, uint32(351), blocks)
	assert.InDelta(t, 10000.2, required, 1e-9)
}

func TestStopIsIdempotent(t *testing.T) {
	provider, err := NewProvider(validConfig(), nil, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, provider.Stop(ctx))
	assert.NoError(t, provider.Stop(ctx))
}

func TestFundInOrderStopsAtFirstFailure(t *testing.T) {
	accounts := domain.AccountSet{
		{Index: 0, Address: "addr0"},
		{Index: 1, Address: "addr1"},
		{Index: 2, Address: "addr2"},
		{Index: 3, Address: "addr3"},
	}

	sent := []string{}
	send := func(address string) (string, error) {
		if address == "addr2" {
			return "", errors.New("insufficient funds")
		}
		sent = append(sent, address)
		return "txid-" + address, nil
	}

	funded, err := fundInOrder(accounts, 10, send)
	require.Error(t, err)
	assert.Equal(t, 2, funded)
	assert.Equal(t, []string{"addr0", "addr1"}, sent)

	// the funded prefix carries the target balance, the rest stays zero
	assert.Equal(t, 10.0, accounts[0].Balance)
	assert.Equal(t, 10.0, accounts[1].Balance)
	assert.Equal(t, 0.0, accounts[2].Balance)
	assert.Equal(t, 0.0, accounts[3].Balance)
}

func TestFundInOrderFundsAll(t *testing.T) {
	accounts := domain.AccountSet{
		{Index: 0, Address: "addr0"},
		{Index: 1, Address: "addr1"},
	}

	send := func(address string) (string, error) { return "txid", nil }
	funded, err := fundInOrder(accounts, 2.5, send)
	require.NoError(t, err)
	assert.Equal(t, 2, funded)
	for _, account := range accounts {
		assert.Equal(t, 2.5, account.Balance)
	}
}

func TestFundInOrderSkipsZeroTarget(t *testing.T) {
	accounts := domain.AccountSet{{Index: 0, Address: "addr0"}}

	calls := 0
	send := func(address string) (string, error) {
		calls++
		return "txid", nil
	}
	funded, err := fundInOrder(accounts, 0, send)
	require.NoError(t, err)
	assert.Equal(t, 1, funded)
	assert.Equal(t, 0, calls)
}
