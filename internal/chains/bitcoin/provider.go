package bitcoin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
	"github.com/chainforge/forged/internal/infrastructure/storage/filestore"
	"github.com/chainforge/forged/internal/infrastructure/supervisor"
	"github.com/chainforge/forged/pkg/wallet"
)

// settleDelay gives bitcoind time to settle its wallet and UTXO state
// between funding steps.
const settleDelay = 500 * time.Millisecond

// Config collects everything needed to run one regtest instance.
type Config struct {
	InstanceID     string
	Name           string
	Binary         string
	RPCPort        int
	P2PPort        int
	RPCUser        string
	RPCPass        string
	Accounts       uint32
	InitialBalance float64
	Mnemonic       []string
	// InstanceDir holds the node's chain data, log and account files.
	InstanceDir   string
	ReadyAttempts int
	ReadyInterval time.Duration
	FundingRate   int
}

func (c Config) validate() error {
	if err := domain.ValidateInstanceName(c.InstanceID); err != nil {
		return err
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("%w: rpc port %d out of range", domain.ErrConfig, c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("%w: p2p port %d out of range", domain.ErrConfig, c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("%w: rpc and p2p ports must differ", domain.ErrConfig)
	}
	if c.Accounts == 0 {
		return fmt.Errorf("%w: at least one account is required", domain.ErrConfig)
	}
	if c.InitialBalance < 0 {
		return fmt.Errorf("%w: initial balance must not be negative", domain.ErrConfig)
	}
	if c.InstanceDir == "" {
		return fmt.Errorf("%w: instance dir must not be null", domain.ErrConfig)
	}
	if c.ReadyAttempts <= 0 || c.ReadyInterval <= 0 {
		return fmt.Errorf("%w: readiness attempts and interval must be positive", domain.ErrConfig)
	}
	if c.FundingRate <= 0 {
		return fmt.Errorf("%w: funding rate must be positive", domain.ErrConfig)
	}
	return nil
}

// RPCURL is the node endpoint the instance listens on.
func (c Config) RPCURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.RPCPort)
}

func (c Config) rpcHost() string {
	return fmt.Sprintf("127.0.0.1:%d", c.RPCPort)
}

// Provider runs and operates one bitcoind regtest instance.
type Provider struct {
	cfg      Config
	sup      *supervisor.Supervisor
	accounts ports.AccountStore
	info     *filestore.InstanceInfoStore

	mu     sync.Mutex
	rpc    *RPCClient
	handle *supervisor.Handle
	sleep  func(time.Duration)
}

// NewProvider returns a provider bound to the instance named in cfg.
func NewProvider(
	cfg Config,
	sup *supervisor.Supervisor,
	accounts ports.AccountStore,
	info *filestore.InstanceInfoStore,
) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Provider{
		cfg:      cfg,
		sup:      sup,
		accounts: accounts,
		info:     info,
		sleep:    time.Sleep,
	}, nil
}

func (p *Provider) Chain() domain.ChainKind { return domain.ChainBitcoin }
func (p *Provider) InstanceID() string      { return p.cfg.InstanceID }

// Start launches bitcoind, derives the account set and funds every
// account to the configured balance. Previous instance data is cleared
// so a start always yields a fresh chain.
func (p *Provider) Start(ctx context.Context) (*domain.NodeInstance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != nil && !p.handle.Exited() {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyRunning, p.cfg.InstanceID)
	}

	for _, port := range []int{p.cfg.RPCPort, p.cfg.P2PPort} {
		if err := supervisor.CheckPortFree(port); err != nil {
			return nil, err
		}
	}

	if err := os.RemoveAll(p.cfg.InstanceDir); err != nil {
		return nil, fmt.Errorf("%w: clearing instance data: %v", domain.ErrStorage, err)
	}

	accounts, err := p.deriveAccounts()
	if err != nil {
		return nil, err
	}
	if err := p.accounts.Save(domain.ChainBitcoin, p.cfg.InstanceID, accounts); err != nil {
		return nil, err
	}

	datadir := filepath.Join(p.cfg.InstanceDir, "regtest-data")
	if err := os.MkdirAll(datadir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLaunchFailed, err)
	}

	handle, err := p.sup.Launch(supervisor.LaunchOpts{
		ID:     domain.NodeID(domain.ChainBitcoin, p.cfg.InstanceID),
		Binary: p.cfg.Binary,
		Args: []string{
			"-regtest",
			fmt.Sprintf("-rpcport=%d", p.cfg.RPCPort),
			fmt.Sprintf("-port=%d", p.cfg.P2PPort),
			fmt.Sprintf("-datadir=%s", datadir),
			fmt.Sprintf("-rpcuser=%s", p.cfg.RPCUser),
			fmt.Sprintf("-rpcpassword=%s", p.cfg.RPCPass),
			"-server=1",
			"-txindex=1",
			"-fallbackfee=0.0001",
			"-daemon=0",
			"-printtoconsole=0",
		},
		Dir:     p.cfg.InstanceDir,
		LogPath: filepath.Join(p.cfg.InstanceDir, "bitcoind.log"),
	})
	if err != nil {
		return nil, err
	}
	p.handle = handle

	node, err := p.initialize(ctx, accounts)
	if err != nil {
		p.teardownLocked()
		return nil, err
	}
	return node, nil
}

// initialize waits for the node, mines the funding supply and funds the
// account set. Called with the lock held and a live process.
func (p *Provider) initialize(
	ctx context.Context, accounts domain.AccountSet,
) (*domain.NodeInstance, error) {
	rpc, err := NewRPCClient(
		p.cfg.rpcHost(), p.cfg.RPCUser, p.cfg.RPCPass, p.cfg.FundingRate,
	)
	if err != nil {
		return nil, err
	}
	p.rpc = rpc

	log.WithField("instance", p.cfg.InstanceID).Info("waiting for bitcoind to be ready")
	probe := func(ctx context.Context) bool { return rpc.Ping() }
	if err := supervisor.WaitReady(
		ctx, p.handle, probe, p.cfg.ReadyAttempts, p.cfg.ReadyInterval, p.sleep,
	); err != nil {
		return nil, err
	}

	if err := rpc.EnsureWallet(); err != nil {
		return nil, err
	}
	p.sleep(settleDelay)

	// mining rewards go to a wallet address, never to a user account
	miningAddress, err := rpc.NewAddress("mining")
	if err != nil {
		return nil, err
	}

	blocks, required := miningPlan(int(p.cfg.Accounts), p.cfg.InitialBalance)
	log.WithFields(log.Fields{
		"instance": p.cfg.InstanceID,
		"blocks":   blocks,
	}).Info("mining initial block supply")
	if _, err := rpc.MineBlocks(blocks, miningAddress); err != nil {
		return nil, err
	}
	p.sleep(settleDelay)

	walletBalance, err := rpc.WalletBalance()
	if err != nil {
		return nil, err
	}
	if walletBalance < required {
		return nil, fmt.Errorf(
			"%w: wallet holds %f BTC, %f BTC required to fund %d accounts",
			domain.ErrRPCRejected, walletBalance, required, p.cfg.Accounts,
		)
	}

	// accounts are imported only after funding so the wallet does not
	// spend their fresh UTXOs for change
	log.WithFields(log.Fields{
		"instance": p.cfg.InstanceID,
		"accounts": len(accounts),
	}).Infof("funding accounts with %f BTC each", p.cfg.InitialBalance)
	funded, err := rpc.FundAccounts(accounts, p.cfg.InitialBalance)
	if err != nil {
		p.accounts.Save(domain.ChainBitcoin, p.cfg.InstanceID, accounts[:funded])
		return nil, fmt.Errorf("funded %d of %d accounts: %w", funded, len(accounts), err)
	}

	if _, err := rpc.MineBlocks(6, miningAddress); err != nil {
		return nil, err
	}
	p.sleep(settleDelay)

	for i, account := range accounts {
		label := fmt.Sprintf("account-%d", i)
		if err := rpc.ImportAccount(account.Address, account.WIF, label); err != nil {
			return nil, err
		}
	}
	p.sleep(settleDelay)

	if err := rpc.RefreshBalances(accounts); err != nil {
		log.WithError(err).Warn("could not refresh every account balance")
	}
	if err := p.accounts.Save(domain.ChainBitcoin, p.cfg.InstanceID, accounts); err != nil {
		return nil, err
	}

	if err := p.info.Save(domain.InstanceInfo{
		Chain:      domain.ChainBitcoin,
		InstanceID: p.cfg.InstanceID,
		RPCURL:     p.cfg.RPCURL(),
		RPCPort:    p.cfg.RPCPort,
		P2PPort:    p.cfg.P2PPort,
		RPCUser:    p.cfg.RPCUser,
		RPCPass:    p.cfg.RPCPass,
		Running:    true,
		StartedAt:  time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	node := domain.NewNodeInstance(
		domain.ChainBitcoin, p.cfg.InstanceID, p.cfg.Name, p.cfg.RPCURL(),
		p.cfg.RPCPort, p.cfg.P2PPort, p.cfg.Accounts,
	)
	log.WithField("instance", node.DisplayName()).Info("bitcoin regtest node is running")
	return &node, nil
}

// Stop terminates the node process. Stopping an already-stopped
// instance is a no-op. Chain and account data stay on disk so the
// instance can be inspected or restarted later.
func (p *Provider) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		return nil
	}

	p.teardownLocked()
	log.WithField("instance", p.cfg.InstanceID).Info("bitcoin regtest node stopped")
	return nil
}

func (p *Provider) teardownLocked() {
	if p.rpc != nil {
		p.rpc.Close()
		p.rpc = nil
	}
	if p.handle != nil {
		if err := p.sup.Terminate(p.handle); err != nil {
			log.WithError(err).Warn("could not terminate bitcoind cleanly")
		}
		p.handle = nil
	}
	if err := p.info.MarkStopped(domain.ChainBitcoin, p.cfg.InstanceID); err != nil {
		log.WithError(err).Warn("could not mark instance info stopped")
	}
}

// Accounts returns the persisted account set, refreshing balances from
// the node when it is reachable.
func (p *Provider) Accounts(ctx context.Context) (domain.AccountSet, error) {
	accounts, err := p.accounts.Load(domain.ChainBitcoin, p.cfg.InstanceID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	rpc := p.rpc
	p.mu.Unlock()
	if rpc == nil || len(accounts) == 0 {
		return accounts, nil
	}

	if err := rpc.RefreshBalances(accounts); err != nil {
		log.WithError(err).Warn("could not refresh every account balance")
		return accounts, nil
	}
	if err := p.accounts.Save(domain.ChainBitcoin, p.cfg.InstanceID, accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Fund sends amount BTC from the instance wallet to address.
func (p *Provider) Fund(ctx context.Context, address string, amount float64) (string, error) {
	rpc, err := p.liveRPC()
	if err != nil {
		return "", err
	}
	return rpc.SendToAddress(address, amount)
}

// SetBalance tops up address until it holds target BTC.
func (p *Provider) SetBalance(ctx context.Context, address string, target float64) (string, error) {
	rpc, err := p.liveRPC()
	if err != nil {
		return "", err
	}
	return rpc.SetBalance(address, target)
}

// Mine produces count blocks, paying rewards to the first account.
func (p *Provider) Mine(ctx context.Context, count uint32) ([]string, error) {
	rpc, err := p.liveRPC()
	if err != nil {
		return nil, err
	}

	accounts, err := p.accounts.Load(domain.ChainBitcoin, p.cfg.InstanceID)
	if err != nil {
		return nil, err
	}

	var address string
	if len(accounts) > 0 {
		address = accounts[0].Address
	} else {
		if address, err = rpc.NewAddress("mining"); err != nil {
			return nil, err
		}
	}
	return rpc.MineBlocks(count, address)
}

// Ready probes the node RPC endpoint.
func (p *Provider) Ready(ctx context.Context) bool {
	p.mu.Lock()
	rpc := p.rpc
	p.mu.Unlock()
	if rpc != nil {
		return rpc.Ping()
	}

	// attach to an externally started instance
	probe, err := NewRPCClient(
		p.cfg.rpcHost(), p.cfg.RPCUser, p.cfg.RPCPass, p.cfg.FundingRate,
	)
	if err != nil {
		return false
	}
	defer probe.Close()
	return probe.Ping()
}

// Transactions returns the most recent wallet transactions.
func (p *Provider) Transactions(ctx context.Context, limit int) ([]ports.TxSummary, error) {
	rpc, err := p.liveRPC()
	if err != nil {
		return nil, err
	}
	return rpc.ListTransactions(limit)
}

// Transaction returns the wallet's view of one transaction.
func (p *Provider) Transaction(ctx context.Context, txid string) (*ports.TxDetail, error) {
	rpc, err := p.liveRPC()
	if err != nil {
		return nil, err
	}
	return rpc.TransactionDetail(txid)
}

func (p *Provider) liveRPC() (*RPCClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rpc == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotRunning, p.cfg.InstanceID)
	}
	return p.rpc, nil
}

func (p *Provider) deriveAccounts() (domain.AccountSet, error) {
	mnemonic := p.cfg.Mnemonic
	if len(mnemonic) == 0 {
		var err error
		if mnemonic, err = wallet.NewMnemonic(wallet.NewMnemonicOpts{}); err != nil {
			return nil, err
		}
		log.Infof("generated mnemonic: %s", strings.Join(mnemonic, " "))
	}

	keychain, err := wallet.NewBitcoinKeychain(wallet.NewBitcoinKeychainOpts{
		Mnemonic: mnemonic,
	})
	if err != nil {
		return nil, err
	}

	derived, err := keychain.DeriveAccounts(p.cfg.Accounts)
	if err != nil {
		return nil, err
	}

	phrase := strings.Join(mnemonic, " ")
	accounts := make(domain.AccountSet, 0, len(derived))
	for _, d := range derived {
		accounts = append(accounts, domain.Account{
			Index:          d.Index,
			Address:        d.Address,
			PublicKey:      d.PublicKey,
			PrivateKey:     d.PrivateKey,
			WIF:            d.WIF,
			Mnemonic:       phrase,
			DerivationPath: d.DerivationPath,
		})
	}
	return accounts, nil
}

// miningPlan returns how many blocks to mine before funding and the
// total BTC the wallet must hold, including a fee buffer per send. On
// regtest the coinbase reward halves every 150 blocks and each coinbase
// needs 100 confirmations to become spendable.
func miningPlan(accounts int, balance float64) (uint32, float64) {
	feeBuffer := decimal.NewFromFloat(feePerSend).Mul(decimal.NewFromInt(int64(accounts)))
	required := decimal.NewFromFloat(balance).
		Mul(decimal.NewFromInt(int64(accounts))).
		Add(feeBuffer)

	dust := decimal.New(1, -8)
	accumulated := decimal.Zero
	coinbaseBlocks := uint32(0)
	for accumulated.LessThan(required) {
		era := coinbaseBlocks / 150
		reward := decimal.NewFromInt(50).Div(decimal.NewFromInt(1 << era))
		if reward.LessThan(dust) {
			break
		}
		accumulated = accumulated.Add(reward)
		coinbaseBlocks++
	}
	if coinbaseBlocks < 1 {
		coinbaseBlocks = 1
	}

	total, _ := required.Float64()
	return 100 + coinbaseBlocks, total
}
