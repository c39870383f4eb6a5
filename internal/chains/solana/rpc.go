package solana

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"

	log "github.com/sirupsen/logrus"

	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
	"github.com/chainforge/forged/pkg/circuitbreaker"
)

const (
	// airdropRetries is how often a rate-limited airdrop is retried
	// before giving up on the account.
	airdropRetries    = 3
	airdropRetryDelay = 2 * time.Second

	confirmAttempts = 30
	confirmInterval = 500 * time.Millisecond
)

// RPCClient wraps the JSON-RPC interface of one solana-test-validator.
// All queries use confirmed commitment, matching the validator's
// airdrop confirmation level.
type RPCClient struct {
	client  *solanarpc.Client
	url     string
	cb      *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
	sleep   func(time.Duration)
}

// NewRPCClient connects to a validator at url. fundingRate caps the
// number of airdrop requests per second.
func NewRPCClient(url string, fundingRate int) *RPCClient {
	return &RPCClient{
		client:  solanarpc.New(url),
		url:     url,
		cb:      circuitbreaker.NewCircuitBreaker("solana-validator"),
		limiter: ratelimit.New(fundingRate),
		sleep:   time.Sleep,
	}
}

// URL returns the validator endpoint.
func (c *RPCClient) URL() string { return c.url }

// Ping reports whether the validator answers a getVersion call.
func (c *RPCClient) Ping(ctx context.Context) bool {
	_, err := c.client.GetVersion(ctx)
	return err == nil
}

// Version returns the validator's solana-core version.
func (c *RPCClient) Version(ctx context.Context) (string, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.GetVersion(ctx)
	})
	if err != nil {
		return "", rpcError(err)
	}
	return res.(*solanarpc.GetVersionResult).SolanaCore, nil
}

// Balance returns the confirmed balance of address in SOL.
func (c *RPCClient) Balance(ctx context.Context, address string) (float64, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid public key %s: %v", domain.ErrRPCRejected, address, err)
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.GetBalance(ctx, pubkey, solanarpc.CommitmentConfirmed)
	})
	if err != nil {
		return 0, rpcError(err)
	}
	return lamportsToSol(res.(*solanarpc.GetBalanceResult).Value), nil
}

// Airdrop requests amount SOL for address and waits for the airdrop to
// confirm.
func (c *RPCClient) Airdrop(ctx context.Context, address string, amount float64) (string, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return "", fmt.Errorf("%w: invalid public key %s: %v", domain.ErrRPCRejected, address, err)
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.RequestAirdrop(
			ctx, pubkey, solToLamports(amount), solanarpc.CommitmentConfirmed,
		)
	})
	if err != nil {
		return "", rpcError(err)
	}

	sig := res.(solana.Signature)
	if err := c.confirmSignature(ctx, sig); err != nil {
		return "", err
	}
	return sig.String(), nil
}

// SetBalance tops up address until it holds target SOL. Balances are
// never reduced since the validator has no primitive for that.
func (c *RPCClient) SetBalance(ctx context.Context, address string, target float64) (string, error) {
	current, err := c.Balance(ctx, address)
	if err != nil {
		return "", err
	}
	if current >= target {
		return "", nil
	}
	return c.Airdrop(ctx, address, target-current)
}

// SetBalances tops up every account to target SOL in index order,
// retrying rate limited airdrops, then reloads the actual balances.
// Once the retries of one account are exhausted the walk aborts, so
// the funded accounts are always a prefix of the set. The prefix
// length is returned alongside the error.
func (c *RPCClient) SetBalances(
	ctx context.Context, accounts domain.AccountSet, target float64,
) (int, error) {
	for i := range accounts {
		c.limiter.Take()

		var lastErr error
		for attempt := 0; attempt < airdropRetries; attempt++ {
			if _, lastErr = c.SetBalance(ctx, accounts[i].Address, target); lastErr == nil {
				accounts[i].Balance = target
				break
			}
			if attempt < airdropRetries-1 {
				log.WithError(lastErr).Warnf(
					"airdrop for account %d failed, retrying", i,
				)
				c.sleep(airdropRetryDelay)
			}
		}
		if lastErr != nil {
			return i, fmt.Errorf(
				"funding account %d (%s): %w", i, accounts[i].Address, lastErr,
			)
		}
	}

	return len(accounts), c.RefreshBalances(ctx, accounts)
}

// RefreshBalances reloads every account balance, keeping the previous
// value for accounts whose query failed.
func (c *RPCClient) RefreshBalances(ctx context.Context, accounts domain.AccountSet) error {
	for i := range accounts {
		balance, err := c.Balance(ctx, accounts[i].Address)
		if err != nil {
			log.WithError(err).Warnf("could not refresh balance of account %d", i)
			continue
		}
		accounts[i].Balance = balance
	}
	return nil
}

// SignaturesForAccounts aggregates the recent transaction signatures of
// all accounts, newest slot first, one entry per signature.
func (c *RPCClient) SignaturesForAccounts(
	ctx context.Context, accounts domain.AccountSet, perAccount int,
) ([]ports.TxSummary, error) {
	limit := perAccount
	txs := make([]ports.TxSummary, 0)
	seen := make(map[string]struct{})

	for _, account := range accounts {
		pubkey, err := solana.PublicKeyFromBase58(account.Address)
		if err != nil {
			continue
		}

		res, err := c.cb.Execute(func() (interface{}, error) {
			return c.client.GetSignaturesForAddressWithOpts(
				ctx, pubkey, &solanarpc.GetSignaturesForAddressOpts{
					Limit:      &limit,
					Commitment: solanarpc.CommitmentConfirmed,
				},
			)
		})
		if err != nil {
			log.WithError(rpcError(err)).Warnf(
				"could not list signatures of %s", account.Address,
			)
			continue
		}

		for _, sig := range res.([]*solanarpc.TransactionSignature) {
			id := sig.Signature.String()
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			tx := ports.TxSummary{
				TxID:    id,
				Address: account.Address,
				Slot:    sig.Slot,
				Status:  string(sig.ConfirmationStatus),
			}
			if sig.Err != nil {
				tx.Err = fmt.Sprintf("%v", sig.Err)
			}
			if sig.BlockTime != nil {
				tx.BlockTime = sig.BlockTime.Time().Unix()
			}
			txs = append(txs, tx)
		}
	}

	sort.Slice(txs, func(i, j int) bool { return txs[i].Slot > txs[j].Slot })
	return txs, nil
}

// TransactionDetail returns slot, fee and per-account balance changes
// of one confirmed transaction.
func (c *RPCClient) TransactionDetail(ctx context.Context, signature string) (*ports.TxDetail, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signature %s: %v", domain.ErrRPCRejected, signature, err)
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.GetTransaction(ctx, sig, &solanarpc.GetTransactionOpts{
			Commitment: solanarpc.CommitmentConfirmed,
		})
	})
	if err != nil {
		return nil, rpcError(err)
	}

	result := res.(*solanarpc.GetTransactionResult)
	detail := &ports.TxDetail{
		TxSummary: ports.TxSummary{
			TxID: signature,
			Slot: result.Slot,
		},
	}
	if result.BlockTime != nil {
		detail.BlockTime = result.BlockTime.Time().Unix()
	}

	meta := result.Meta
	if meta == nil {
		return detail, nil
	}
	detail.Fee = lamportsToSol(meta.Fee)
	if meta.Err != nil {
		detail.Err = fmt.Sprintf("%v", meta.Err)
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil || tx == nil {
		return detail, nil
	}
	keys := tx.Message.AccountKeys
	for i := range keys {
		if i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			break
		}
		before := lamportsToSol(meta.PreBalances[i])
		after := lamportsToSol(meta.PostBalances[i])
		if before == after {
			continue
		}
		detail.BalanceChanges = append(detail.BalanceChanges, ports.BalanceChange{
			Account: keys[i].String(),
			Before:  before,
			After:   after,
			Change:  after - before,
		})
	}
	return detail, nil
}

// confirmSignature polls the signature status until it reaches
// confirmed commitment.
func (c *RPCClient) confirmSignature(ctx context.Context, sig solana.Signature) error {
	for attempt := 0; attempt < confirmAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := c.cb.Execute(func() (interface{}, error) {
			return c.client.GetSignatureStatuses(ctx, true, sig)
		})
		if err == nil {
			statuses := res.(*solanarpc.GetSignatureStatusesResult)
			if len(statuses.Value) > 0 && statuses.Value[0] != nil {
				status := statuses.Value[0].ConfirmationStatus
				if status == solanarpc.ConfirmationStatusConfirmed ||
					status == solanarpc.ConfirmationStatusFinalized {
					return nil
				}
			}
		}
		c.sleep(confirmInterval)
	}

	return fmt.Errorf(
		"%w: airdrop %s did not confirm after %d attempts",
		domain.ErrTimedOut, sig, confirmAttempts,
	)
}

func lamportsToSol(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}

func solToLamports(sol float64) uint64 {
	lamports := decimal.NewFromFloat(sol).
		Mul(decimal.NewFromInt(int64(solana.LAMPORTS_PER_SOL)))
	return uint64(lamports.IntPart())
}

func rpcError(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrRPCRejected, err)
}
