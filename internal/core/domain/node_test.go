package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChainKind(t *testing.T) {
	tests := []struct {
		in       string
		expected ChainKind
		wantErr  bool
	}{
		{"bitcoin", ChainBitcoin, false},
		{"btc", ChainBitcoin, false},
		{"BITCOIN", ChainBitcoin, false},
		{"solana", ChainSolana, false},
		{"sol", ChainSolana, false},
		{"ethereum", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		kind, err := ParseChainKind(tt.in)
		if tt.wantErr {
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, kind)
	}
}

func TestNodeStatusTransitions(t *testing.T) {
	assert.True(t, StatusStopped.CanTransition(StatusStarting))
	assert.True(t, StatusStarting.CanTransition(StatusReady))
	assert.True(t, StatusStarting.CanTransition(StatusFailed))
	assert.True(t, StatusReady.CanTransition(StatusStopping))
	assert.True(t, StatusReady.CanTransition(StatusFailed))
	assert.True(t, StatusStopping.CanTransition(StatusStopped))
	assert.True(t, StatusFailed.CanTransition(StatusStopping))

	assert.False(t, StatusStopped.CanTransition(StatusReady))
	assert.False(t, StatusFailed.CanTransition(StatusStarting))
	assert.False(t, StatusFailed.CanTransition(StatusReady))
	assert.False(t, StatusReady.CanTransition(StatusStarting))
}

func TestNewNodeInstance(t *testing.T) {
	node := NewNodeInstance(ChainSolana, "dev-1", "My Node", "http://localhost:8899", 8899, 0, 10)

	assert.Equal(t, "solana:dev-1", node.ID)
	assert.Equal(t, ChainSolana, node.Chain)
	assert.Equal(t, StatusReady, node.Status)
	assert.Equal(t, "My Node", node.DisplayName())
	require.NotNil(t, node.StartedAt)

	unnamed := NewNodeInstance(ChainBitcoin, "btc-dev", "", "http://localhost:18443", 18443, 18444, 5)
	assert.Equal(t, "btc-dev", unnamed.DisplayName())
	assert.Equal(t, "bitcoin:btc-dev", unnamed.ID)
}

func TestValidateInstanceName(t *testing.T) {
	valid := []string{"my-node", "dev-1", "test-server-2", "node", "a", "123"}
	for _, name := range valid {
		assert.NoError(t, ValidateInstanceName(name), name)
	}

	invalid := []string{"", "My Node", "my_node", "my node", "-node", "node-", "my--node", "MyNode", "node@1"}
	for _, name := range invalid {
		err := ValidateInstanceName(name)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrConfig, name)
	}
}

func TestSanitizeInstanceName(t *testing.T) {
	tests := map[string]string{
		"My Node":      "my-node",
		"my_node":      "my-node",
		"My  Node":     "my-node",
		"  my  node  ": "my-node",
		"MyNode123":    "mynode123",
		"node@#$%test": "nodetest",
		"--my--node--": "my-node",
	}
	for in, expected := range tests {
		assert.Equal(t, expected, SanitizeInstanceName(in), in)
	}
}

func TestAccountSet(t *testing.T) {
	set := AccountSet{
		{Index: 0, Address: "addr0"},
		{Index: 1, Address: "addr1"},
	}

	assert.Equal(t, []string{"addr0", "addr1"}, set.Addresses())

	acc, ok := set.ByAddress("addr1")
	require.True(t, ok)
	assert.Equal(t, uint32(1), acc.Index)

	_, ok = set.ByAddress("missing")
	assert.False(t, ok)
}
