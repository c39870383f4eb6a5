package solana

import (
	"context"

	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
)

// NodeClient attaches to a test validator launched by another process.
type NodeClient struct {
	rpc *RPCClient
}

// NewNodeClient returns a client for the validator at url.
func NewNodeClient(url string, fundingRate int) *NodeClient {
	return &NodeClient{rpc: NewRPCClient(url, fundingRate)}
}

func (c *NodeClient) Ready(ctx context.Context) bool {
	return c.rpc.Ping(ctx)
}

// Fund airdrops amount SOL to address and waits for the transfer to
// reach confirmed commitment.
func (c *NodeClient) Fund(ctx context.Context, address string, amount float64) (string, error) {
	return c.rpc.Airdrop(ctx, address, amount)
}

func (c *NodeClient) RefreshBalances(ctx context.Context, accounts domain.AccountSet) error {
	return c.rpc.RefreshBalances(ctx, accounts)
}

func (c *NodeClient) Transactions(
	ctx context.Context, accounts domain.AccountSet, limit int,
) ([]ports.TxSummary, error) {
	txs, err := c.rpc.SignaturesForAccounts(ctx, accounts, signaturesPerAccount)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (c *NodeClient) Transaction(ctx context.Context, txid string) (*ports.TxDetail, error) {
	return c.rpc.TransactionDetail(ctx, txid)
}

func (c *NodeClient) Close() {}

// Version returns the validator's software version.
func (c *NodeClient) Version(ctx context.Context) (string, error) {
	return c.rpc.Version(ctx)
}

// Balance returns the confirmed balance of an arbitrary address.
func (c *NodeClient) Balance(ctx context.Context, address string) (float64, error) {
	return c.rpc.Balance(ctx, address)
}
