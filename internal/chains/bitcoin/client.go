package bitcoin

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
)

// NodeClient attaches to a regtest instance launched by another process,
// using the connection material from its instance info file.
type NodeClient struct {
	rpc *RPCClient

	mu          sync.Mutex
	walletReady bool
}

// NewNodeClient returns a client for the instance described by info.
func NewNodeClient(info *domain.InstanceInfo, fundingRate int) (*NodeClient, error) {
	rpc, err := NewRPCClient(
		fmt.Sprintf("127.0.0.1:%d", info.RPCPort),
		info.RPCUser, info.RPCPass, fundingRate,
	)
	if err != nil {
		return nil, err
	}
	return &NodeClient{rpc: rpc}, nil
}

func (c *NodeClient) Ready(_ context.Context) bool {
	return c.rpc.Ping()
}

// Fund sends amount BTC to address and mines one block so the transfer
// confirms immediately.
func (c *NodeClient) Fund(_ context.Context, address string, amount float64) (string, error) {
	if err := c.ensureWallet(); err != nil {
		return "", err
	}
	txid, err := c.rpc.SendToAddress(address, amount)
	if err != nil {
		return "", err
	}

	miningAddr, err := c.rpc.NewAddress("mining")
	if err == nil {
		_, err = c.rpc.MineBlocks(1, miningAddr)
	}
	if err != nil {
		log.WithError(err).Warn("funding transaction sent but not confirmed")
	}
	return txid, nil
}

func (c *NodeClient) RefreshBalances(_ context.Context, accounts domain.AccountSet) error {
	return c.rpc.RefreshBalances(accounts)
}

func (c *NodeClient) Transactions(
	_ context.Context, _ domain.AccountSet, limit int,
) ([]ports.TxSummary, error) {
	if err := c.ensureWallet(); err != nil {
		return nil, err
	}
	return c.rpc.ListTransactions(limit)
}

func (c *NodeClient) Transaction(_ context.Context, txid string) (*ports.TxDetail, error) {
	if err := c.ensureWallet(); err != nil {
		return nil, err
	}
	return c.rpc.TransactionDetail(txid)
}

func (c *NodeClient) Close() {
	c.rpc.Close()
}

func (c *NodeClient) ensureWallet() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.walletReady {
		return nil
	}
	if err := c.rpc.EnsureWallet(); err != nil {
		return err
	}
	c.walletReady = true
	return nil
}

// Mine generates count blocks. Rewards go to a fresh wallet address
// when none is given so user accounts stay untouched.
func (c *NodeClient) Mine(_ context.Context, count uint32, address string) ([]string, error) {
	if err := c.ensureWallet(); err != nil {
		return nil, err
	}
	if address == "" {
		miningAddr, err := c.rpc.NewAddress("mining")
		if err != nil {
			return nil, err
		}
		address = miningAddr
	}
	return c.rpc.MineBlocks(count, address)
}

func (c *NodeClient) BlockCount(_ context.Context) (int64, error) {
	return c.rpc.BlockCount()
}

// AddressBalance scans the UTXO set for the confirmed balance of an
// arbitrary address.
func (c *NodeClient) AddressBalance(_ context.Context, address string) (float64, error) {
	return c.rpc.Balance(address)
}
