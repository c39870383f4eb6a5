package solana

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
	"github.com/chainforge/forged/internal/infrastructure/storage/filestore"
	"github.com/chainforge/forged/internal/infrastructure/supervisor"
	"github.com/chainforge/forged/pkg/wallet"
)

const (
	// earlyExitDelay is how long the validator gets to crash on startup
	// misconfiguration before readiness polling begins.
	earlyExitDelay = time.Second

	// signaturesPerAccount bounds the history fetched per account when
	// listing transactions.
	signaturesPerAccount = 10

	ledgerDirname = "test-ledger"
)

// Config collects everything needed to run one test validator instance.
type Config struct {
	InstanceID     string
	Name           string
	Binary         string
	RPCPort        int
	Accounts       uint32
	InitialBalance float64
	Mnemonic       []string
	// InstanceDir holds the validator ledger and account files.
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
	// the derived port block must stay within the valid range
	if c.DynamicPortEnd() > 65535 {
		return fmt.Errorf(
			"%w: rpc port %d leaves no room for the derived port block",
			domain.ErrConfig, c.RPCPort,
		)
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

// RPCURL is the validator endpoint the instance listens on.
func (c Config) RPCURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.RPCPort)
}

// FaucetPort is derived from the RPC port so concurrent instances never
// collide.
func (c Config) FaucetPort() int { return c.RPCPort + 1002 }

// GossipPort sits right above the faucet port. The validator defaults
// it to 8000 and the dynamic range does not cover it, so it must be set
// explicitly.
func (c Config) GossipPort() int { return c.FaucetPort() + 1 }

// DynamicPortStart begins the 500-port block the validator picks its
// remaining sockets from.
func (c Config) DynamicPortStart() int { return c.FaucetPort() + 2 }

func (c Config) DynamicPortEnd() int { return c.DynamicPortStart() + 500 }

// Provider runs and operates one solana-test-validator instance.
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

func (p *Provider) Chain() domain.ChainKind { return domain.ChainSolana }
func (p *Provider) InstanceID() string      { return p.cfg.InstanceID }

// Start launches the validator, derives the account set and airdrops
// every account to the configured balance. Previous instance data is
// cleared so a start always yields a fresh ledger.
func (p *Provider) Start(ctx context.Context) (*domain.NodeInstance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != nil && !p.handle.Exited() {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyRunning, p.cfg.InstanceID)
	}

	for _, port := range []int{p.cfg.RPCPort, p.cfg.FaucetPort(), p.cfg.GossipPort()} {
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
	if err := p.accounts.Save(domain.ChainSolana, p.cfg.InstanceID, accounts); err != nil {
		return nil, err
	}

	ledgerDir := filepath.Join(p.cfg.InstanceDir, ledgerDirname)
	handle, err := p.sup.Launch(supervisor.LaunchOpts{
		ID:     domain.NodeID(domain.ChainSolana, p.cfg.InstanceID),
		Binary: p.cfg.Binary,
		Args: []string{
			"--rpc-port", fmt.Sprintf("%d", p.cfg.RPCPort),
			"--faucet-port", fmt.Sprintf("%d", p.cfg.FaucetPort()),
			"--gossip-port", fmt.Sprintf("%d", p.cfg.GossipPort()),
			"--dynamic-port-range", fmt.Sprintf("%d-%d", p.cfg.DynamicPortStart(), p.cfg.DynamicPortEnd()),
			"--ledger", ledgerDir,
			"--reset",
		},
		Dir:     p.cfg.InstanceDir,
		LogPath: filepath.Join(p.cfg.InstanceDir, "validator-output.log"),
	})
	if err != nil {
		return nil, err
	}
	p.handle = handle

	node, err := p.initialize(ctx, accounts, ledgerDir)
	if err != nil {
		p.teardownLocked()
		return nil, err
	}
	return node, nil
}

// initialize waits for the validator and funds the account set. Called
// with the lock held and a live process.
func (p *Provider) initialize(
	ctx context.Context, accounts domain.AccountSet, ledgerDir string,
) (*domain.NodeInstance, error) {
	// give startup misconfiguration (bad ports, stale ledger) a moment
	// to surface as a crash before polling readiness
	p.sleep(earlyExitDelay)
	if p.handle.Exited() {
		return nil, p.earlyExitError(ledgerDir)
	}

	rpc := NewRPCClient(p.cfg.RPCURL(), p.cfg.FundingRate)
	rpc.sleep = p.sleep
	p.rpc = rpc

	log.WithField("instance", p.cfg.InstanceID).Info("waiting for validator to be ready")
	probe := func(ctx context.Context) bool { return rpc.Ping(ctx) }
	if err := supervisor.WaitReady(
		ctx, p.handle, probe, p.cfg.ReadyAttempts, p.cfg.ReadyInterval, p.sleep,
	); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"instance": p.cfg.InstanceID,
		"accounts": len(accounts),
	}).Infof("airdropping %f SOL to each account", p.cfg.InitialBalance)
	funded, err := rpc.SetBalances(ctx, accounts, p.cfg.InitialBalance)
	if err != nil {
		p.accounts.Save(domain.ChainSolana, p.cfg.InstanceID, accounts[:funded])
		return nil, fmt.Errorf("funded %d of %d accounts: %w", funded, len(accounts), err)
	}
	if err := p.accounts.Save(domain.ChainSolana, p.cfg.InstanceID, accounts); err != nil {
		return nil, err
	}

	if err := p.info.Save(domain.InstanceInfo{
		Chain:      domain.ChainSolana,
		InstanceID: p.cfg.InstanceID,
		RPCURL:     p.cfg.RPCURL(),
		RPCPort:    p.cfg.RPCPort,
		FaucetPort: p.cfg.FaucetPort(),
		Running:    true,
		StartedAt:  time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	node := domain.NewNodeInstance(
		domain.ChainSolana, p.cfg.InstanceID, p.cfg.Name, p.cfg.RPCURL(),
		p.cfg.RPCPort, 0, p.cfg.Accounts,
	)
	log.WithField("instance", node.DisplayName()).Info("solana test validator is running")
	return &node, nil
}

// earlyExitError digs the actual failure out of the validator's own log
// file, where panics and startup errors land instead of stdout.
func (p *Provider) earlyExitError(ledgerDir string) error {
	logPath := filepath.Join(ledgerDir, "validator.log")
	content, err := os.ReadFile(logPath)
	if err == nil {
		lines := make([]string, 0)
		for _, line := range strings.Split(string(content), "\n") {
			if strings.Contains(line, "panicked at") ||
				(strings.Contains(line, "ERROR") && !strings.Contains(line, "metrics")) {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			return fmt.Errorf(
				"%w: validator failed to start: %s",
				domain.ErrLaunchFailed, strings.Join(lines, "\n"),
			)
		}
	}

	return fmt.Errorf(
		"%w: validator exited unexpectedly (%v), check logs at %s",
		domain.ErrLaunchFailed, p.handle.ExitErr(), logPath,
	)
}

// Stop terminates the validator. Stopping an already-stopped instance
// is a no-op. Ledger and account data stay on disk so the instance can
// be inspected or restarted later.
func (p *Provider) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		return nil
	}

	p.teardownLocked()
	log.WithField("instance", p.cfg.InstanceID).Info("solana test validator stopped")
	return nil
}

func (p *Provider) teardownLocked() {
	p.rpc = nil
	if p.handle != nil {
		if err := p.sup.Terminate(p.handle); err != nil {
			log.WithError(err).Warn("could not terminate validator cleanly")
		}
		p.handle = nil
	}
	if err := p.info.MarkStopped(domain.ChainSolana, p.cfg.InstanceID); err != nil {
		log.WithError(err).Warn("could not mark instance info stopped")
	}
}

// Accounts returns the persisted account set, refreshing balances from
// the validator when it is reachable.
func (p *Provider) Accounts(ctx context.Context) (domain.AccountSet, error) {
	accounts, err := p.accounts.Load(domain.ChainSolana, p.cfg.InstanceID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	rpc := p.rpc
	p.mu.Unlock()
	if rpc == nil || len(accounts) == 0 {
		return accounts, nil
	}

	if err := rpc.RefreshBalances(ctx, accounts); err != nil {
		return accounts, nil
	}
	if err := p.accounts.Save(domain.ChainSolana, p.cfg.InstanceID, accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Fund airdrops amount SOL to address.
func (p *Provider) Fund(ctx context.Context, address string, amount float64) (string, error) {
	rpc, err := p.liveRPC()
	if err != nil {
		return "", err
	}
	return rpc.Airdrop(ctx, address, amount)
}

// SetBalance tops up address until it holds target SOL.
func (p *Provider) SetBalance(ctx context.Context, address string, target float64) (string, error) {
	rpc, err := p.liveRPC()
	if err != nil {
		return "", err
	}
	return rpc.SetBalance(ctx, address, target)
}

// Mine is not supported: the test validator produces slots on its own.
func (p *Provider) Mine(ctx context.Context, count uint32) ([]string, error) {
	return nil, fmt.Errorf(
		"%w: the solana test validator produces blocks continuously", domain.ErrNotSupported,
	)
}

// Ready probes the validator RPC endpoint.
func (p *Provider) Ready(ctx context.Context) bool {
	p.mu.Lock()
	rpc := p.rpc
	p.mu.Unlock()
	if rpc == nil {
		// attach to an externally started instance
		rpc = NewRPCClient(p.cfg.RPCURL(), p.cfg.FundingRate)
	}
	return rpc.Ping(ctx)
}

// Transactions aggregates the recent signatures of all accounts.
func (p *Provider) Transactions(ctx context.Context, limit int) ([]ports.TxSummary, error) {
	rpc, err := p.liveRPC()
	if err != nil {
		return nil, err
	}

	accounts, err := p.accounts.Load(domain.ChainSolana, p.cfg.InstanceID)
	if err != nil {
		return nil, err
	}

	txs, err := rpc.SignaturesForAccounts(ctx, accounts, signaturesPerAccount)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// Transaction returns the detail of one confirmed transaction.
func (p *Provider) Transaction(ctx context.Context, txid string) (*ports.TxDetail, error) {
	rpc, err := p.liveRPC()
	if err != nil {
		return nil, err
	}
	return rpc.TransactionDetail(ctx, txid)
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

	keychain, err := wallet.NewSolanaKeychain(wallet.NewSolanaKeychainOpts{
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
			Mnemonic:       phrase,
			DerivationPath: d.DerivationPath,
		})
	}
	return accounts, nil
}
