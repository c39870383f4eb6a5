package bitcoin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"

	log "github.com/sirupsen/logrus"

	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
	"github.com/chainforge/forged/pkg/circuitbreaker"
)

// WalletName is the bitcoind wallet holding mining rewards and funding
// change for an instance.
const WalletName = "chain-forge"

// feePerSend is the fee buffer reserved per sendtoaddress call.
const feePerSend = 0.001

// RPCClient wraps the bitcoind JSON-RPC interface of one regtest node.
// Node-level calls go through the base endpoint, wallet calls through
// the wallet endpoint once EnsureWallet succeeded.
type RPCClient struct {
	node   *rpcclient.Client
	wallet *rpcclient.Client

	host    string
	user    string
	pass    string
	net     *chaincfg.Params
	cb      *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
}

// NewRPCClient connects to a bitcoind regtest node at host ("host:port").
// fundingRate caps the number of funding transactions per second.
func NewRPCClient(host, user, pass string, fundingRate int) (*RPCClient, error) {
	node, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	return &RPCClient{
		node:    node,
		host:    host,
		user:    user,
		pass:    pass,
		net:     &chaincfg.RegressionNetParams,
		cb:      circuitbreaker.NewCircuitBreaker("bitcoind"),
		limiter: ratelimit.New(fundingRate),
	}, nil
}

// Close shuts down both RPC endpoints.
func (c *RPCClient) Close() {
	if c.wallet != nil {
		c.wallet.Shutdown()
	}
	c.node.Shutdown()
}

// Ping reports whether the node answers a getblockchaininfo call.
func (c *RPCClient) Ping() bool {
	_, err := c.node.GetBlockChainInfo()
	return err == nil
}

// BlockCount returns the current chain height.
func (c *RPCClient) BlockCount() (int64, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.node.GetBlockCount()
	})
	if err != nil {
		return 0, rpcError(err)
	}
	return res.(int64), nil
}

// EnsureWallet makes sure the instance wallet exists, is loaded and a
// wallet endpoint is open for it.
func (c *RPCClient) EnsureWallet() error {
	var wallets []string
	if err := c.rawNode("listwallets", &wallets); err != nil {
		return err
	}

	loaded := false
	for _, w := range wallets {
		if w == WalletName {
			loaded = true
			break
		}
	}

	if !loaded {
		var res json.RawMessage
		if err := c.rawNode("loadwallet", &res, WalletName); err != nil {
			// wallet does not exist yet
			if _, err := c.cb.Execute(func() (interface{}, error) {
				return c.node.CreateWallet(WalletName)
			}); err != nil {
				return rpcError(err)
			}
		}
	}

	wallet, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         fmt.Sprintf("%s/wallet/%s", c.host, WalletName),
		User:         c.user,
		Pass:         c.pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	c.wallet = wallet
	return nil
}

// NewAddress returns a fresh bech32 wallet address with the given label.
func (c *RPCClient) NewAddress(label string) (string, error) {
	var address string
	if err := c.rawWallet("getnewaddress", &address, label, "bech32"); err != nil {
		return "", err
	}
	return address, nil
}

// MineBlocks generates count blocks paying the coinbase to address.
func (c *RPCClient) MineBlocks(count uint32, address string) ([]string, error) {
	addr, err := btcutil.DecodeAddress(address, c.net)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid address %s: %v", domain.ErrRPCRejected, address, err)
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.node.GenerateToAddress(int64(count), addr, nil)
	})
	if err != nil {
		return nil, rpcError(err)
	}

	hashes := res.([]*chainhash.Hash)
	blocks := make([]string, 0, len(hashes))
	for _, h := range hashes {
		blocks = append(blocks, h.String())
	}
	return blocks, nil
}

// SendToAddress sends amount BTC from the wallet to address.
func (c *RPCClient) SendToAddress(address string, amount float64) (string, error) {
	addr, err := btcutil.DecodeAddress(address, c.net)
	if err != nil {
		return "", fmt.Errorf("%w: invalid address %s: %v", domain.ErrRPCRejected, address, err)
	}
	btc, err := btcutil.NewAmount(amount)
	if err != nil {
		return "", fmt.Errorf("%w: invalid amount %f: %v", domain.ErrRPCRejected, amount, err)
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.wallet.SendToAddress(addr, btc)
	})
	if err != nil {
		return "", rpcError(err)
	}
	return res.(*chainhash.Hash).String(), nil
}

// Balance returns the confirmed UTXO balance of an arbitrary address by
// scanning the UTXO set, without relying on wallet tracking.
func (c *RPCClient) Balance(address string) (float64, error) {
	var res struct {
		TotalAmount float64 `json:"total_amount"`
	}
	descriptors := []string{fmt.Sprintf("addr(%s)", address)}
	if err := c.rawNode("scantxoutset", &res, "start", descriptors); err != nil {
		return 0, err
	}
	return res.TotalAmount, nil
}

// WalletBalance returns the spendable balance of the instance wallet.
func (c *RPCClient) WalletBalance() (float64, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.wallet.GetBalance("*")
	})
	if err != nil {
		return 0, rpcError(err)
	}
	return res.(btcutil.Amount).ToBTC(), nil
}

// SetBalance tops up address until it holds target BTC. It never
// reduces a balance.
func (c *RPCClient) SetBalance(address string, target float64) (string, error) {
	current, err := c.Balance(address)
	if err != nil {
		return "", err
	}
	if current >= target {
		return "", nil
	}
	return c.SendToAddress(address, target-current)
}

// ImportAccount imports a keypair into the wallet as a wpkh descriptor
// so its transactions show up in the wallet history.
func (c *RPCClient) ImportAccount(address, wif, label string) error {
	rawDesc := fmt.Sprintf("wpkh(%s)", wif)

	var descInfo struct {
		Checksum string `json:"checksum"`
	}
	if err := c.rawWallet("getdescriptorinfo", &descInfo, rawDesc); err != nil {
		return err
	}

	request := []map[string]interface{}{{
		"desc":      fmt.Sprintf("%s#%s", rawDesc, descInfo.Checksum),
		"timestamp": "now",
		"label":     label,
	}}
	var results []struct {
		Success bool `json:"success"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := c.rawWallet("importdescriptors", &results, request); err != nil {
		return err
	}

	for _, res := range results {
		if res.Success {
			continue
		}
		msg := "unknown error"
		if res.Error != nil {
			msg = res.Error.Message
		}
		// a failed rescan on a fresh chain still imports the descriptor
		if strings.Contains(msg, "Rescan failed") {
			continue
		}
		return fmt.Errorf("%w: importing %s: %s", domain.ErrRPCRejected, address, msg)
	}
	return nil
}

// FundAccounts sends each account its target balance in index order,
// pacing the sends. It stops at the first failing account and returns
// how many were funded before the failure.
func (c *RPCClient) FundAccounts(accounts domain.AccountSet, targetBalance float64) (int, error) {
	return fundInOrder(accounts, targetBalance, func(address string) (string, error) {
		c.limiter.Take()
		return c.SendToAddress(address, targetBalance)
	})
}

// fundInOrder walks the account set in index order sending each account
// its target balance. The first failure aborts the walk, so the funded
// accounts are always a prefix of the set.
func fundInOrder(
	accounts domain.AccountSet, target float64, send func(address string) (string, error),
) (int, error) {
	if target <= 0 {
		return len(accounts), nil
	}

	for i := range accounts {
		txid, err := send(accounts[i].Address)
		if err != nil {
			return i, fmt.Errorf("funding account %d (%s): %w", i, accounts[i].Address, err)
		}

		accounts[i].Balance = target
		log.WithFields(log.Fields{
			"account": i,
			"txid":    txid,
		}).Debugf("sent %f BTC", target)
	}
	return len(accounts), nil
}

// RefreshBalances reloads every account balance from the UTXO set,
// keeping the previous value for accounts whose query failed.
func (c *RPCClient) RefreshBalances(accounts domain.AccountSet) error {
	failures := make([]string, 0)
	for i := range accounts {
		balance, err := c.Balance(accounts[i].Address)
		if err != nil {
			failures = append(failures, accounts[i].Address)
			continue
		}
		accounts[i].Balance = balance
	}

	if len(failures) > 0 {
		return fmt.Errorf(
			"%w: refreshing balance of %d account(s): %s",
			domain.ErrRPCRejected, len(failures), strings.Join(failures, ", "),
		)
	}
	return nil
}

// ListTransactions returns the most recent wallet transactions, leaving
// out coinbase categories.
func (c *RPCClient) ListTransactions(count int) ([]ports.TxSummary, error) {
	var entries []struct {
		TxID          string  `json:"txid"`
		Address       string  `json:"address"`
		Category      string  `json:"category"`
		Amount        float64 `json:"amount"`
		Confirmations int64   `json:"confirmations"`
		BlockTime     int64   `json:"blocktime"`
	}
	if err := c.rawWallet("listtransactions", &entries, "*", count, 0, true); err != nil {
		return nil, err
	}

	txs := make([]ports.TxSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.Category == "generate" || entry.Category == "immature" {
			continue
		}
		txs = append(txs, ports.TxSummary{
			TxID:          entry.TxID,
			Category:      entry.Category,
			Address:       entry.Address,
			Amount:        entry.Amount,
			Confirmations: entry.Confirmations,
			BlockTime:     entry.BlockTime,
		})
	}
	return txs, nil
}

// TransactionDetail returns the wallet's view of a single transaction.
func (c *RPCClient) TransactionDetail(txid string) (*ports.TxDetail, error) {
	var res struct {
		TxID          string  `json:"txid"`
		Amount        float64 `json:"amount"`
		Fee           float64 `json:"fee"`
		Confirmations int64   `json:"confirmations"`
		BlockHash     string  `json:"blockhash"`
		BlockTime     int64   `json:"blocktime"`
		Hex           string  `json:"hex"`
		Details       []struct {
			Address  string  `json:"address"`
			Category string  `json:"category"`
			Amount   float64 `json:"amount"`
		} `json:"details"`
	}
	if err := c.rawWallet("gettransaction", &res, txid, true); err != nil {
		return nil, err
	}

	detail := &ports.TxDetail{
		TxSummary: ports.TxSummary{
			TxID:          res.TxID,
			Amount:        res.Amount,
			Confirmations: res.Confirmations,
			BlockTime:     res.BlockTime,
		},
		Fee:       res.Fee,
		BlockHash: res.BlockHash,
		RawHex:    res.Hex,
	}
	if len(res.Details) > 0 {
		detail.Category = res.Details[0].Category
		detail.Address = res.Details[0].Address
	}
	return detail, nil
}

func (c *RPCClient) rawNode(method string, result interface{}, params ...interface{}) error {
	return c.raw(c.node, method, result, params...)
}

func (c *RPCClient) rawWallet(method string, result interface{}, params ...interface{}) error {
	if c.wallet == nil {
		return fmt.Errorf("%w: wallet endpoint not open", domain.ErrNotRunning)
	}
	return c.raw(c.wallet, method, result, params...)
}

func (c *RPCClient) raw(
	client *rpcclient.Client, method string, result interface{}, params ...interface{},
) error {
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, param := range params {
		buf, err := json.Marshal(param)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrRPCRejected, err)
		}
		rawParams = append(rawParams, buf)
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return client.RawRequest(method, rawParams)
	})
	if err != nil {
		return rpcError(err)
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(res.(json.RawMessage), result); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", domain.ErrRPCRejected, method, err)
	}
	return nil
}

func rpcError(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrRPCRejected, err)
}
