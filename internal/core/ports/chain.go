package ports

import (
	"context"

	"github.com/chainforge/forged/internal/core/domain"
)

// ChainProvider is the per-chain entrypoint. One provider instance is
// bound to one (chain, instance) pair for its whole lifecycle.
type ChainProvider interface {
	// Chain returns the backend this provider drives.
	Chain() domain.ChainKind
	// InstanceID returns the instance the provider is bound to.
	InstanceID() string
	// Start launches the node process, waits for RPC readiness, derives
	// the account set and funds it to the configured balance.
	Start(ctx context.Context) (*domain.NodeInstance, error)
	// Stop terminates the node process. Account data stays on disk so a
	// later start can reuse the derivation material.
	Stop(ctx context.Context) error
	// Accounts returns the persisted account set with balances refreshed
	// from the node when it is reachable.
	Accounts(ctx context.Context) (domain.AccountSet, error)
	// Fund tops up an arbitrary address with the given amount in the
	// chain's display unit.
	Fund(ctx context.Context, address string, amount float64) (string, error)
	// Mine produces count blocks. Chains without a mining primitive
	// return ErrNotSupported.
	Mine(ctx context.Context, count uint32) ([]string, error)
	// Ready probes the node's RPC endpoint.
	Ready(ctx context.Context) bool
}

// TransactionLister is implemented by providers whose backend exposes a
// wallet transaction history.
type TransactionLister interface {
	// Transactions returns recent wallet transactions, newest first.
	Transactions(ctx context.Context, limit int) ([]TxSummary, error)
	// Transaction returns the detail of a single wallet transaction.
	Transaction(ctx context.Context, txid string) (*TxDetail, error)
}

// TxSummary is one entry of a node's transaction history. Bitcoin
// fills the wallet category and confirmation count, Solana the slot and
// confirmation status.
type TxSummary struct {
	TxID          string  `json:"txid"`
	Category      string  `json:"category,omitempty"`
	Address       string  `json:"address,omitempty"`
	Amount        float64 `json:"amount,omitempty"`
	Confirmations int64   `json:"confirmations,omitempty"`
	Slot          uint64  `json:"slot,omitempty"`
	Status        string  `json:"status,omitempty"`
	Err           string  `json:"err,omitempty"`
	BlockTime     int64   `json:"blockTime,omitempty"`
}

// BalanceChange is one account's balance move within a transaction.
type BalanceChange struct {
	Account string  `json:"account"`
	Before  float64 `json:"before"`
	After   float64 `json:"after"`
	Change  float64 `json:"change"`
}

// TxDetail is the full record of a single transaction.
type TxDetail struct {
	TxSummary
	Fee            float64         `json:"fee,omitempty"`
	BlockHash      string          `json:"blockHash,omitempty"`
	RawHex         string          `json:"rawHex,omitempty"`
	BalanceChanges []BalanceChange `json:"balanceChanges,omitempty"`
}

// NodeClient is an RPC handle on a node the current process did not
// launch. The monitoring daemon attaches one per registry record using
// the connection material persisted by the instance that started the
// node.
type NodeClient interface {
	// Ready probes the node's RPC endpoint.
	Ready(ctx context.Context) bool
	// Fund sends amount to address and returns the txid or signature.
	Fund(ctx context.Context, address string, amount float64) (string, error)
	// RefreshBalances updates the balances of the given accounts in
	// place from the node.
	RefreshBalances(ctx context.Context, accounts domain.AccountSet) error
	// Transactions returns recent transactions touching the given
	// accounts, newest first.
	Transactions(ctx context.Context, accounts domain.AccountSet, limit int) ([]TxSummary, error)
	// Transaction returns the detail of a single transaction.
	Transaction(ctx context.Context, txid string) (*TxDetail, error)

	Close()
}
