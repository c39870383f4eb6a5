package application

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
)

// txHistoryLimit bounds the node transaction listing.
const txHistoryLimit = 100

var (
	// ErrInvalidAmount ...
	ErrInvalidAmount = fmt.Errorf("amount must be a positive number")
	// ErrMissingAddress ...
	ErrMissingAddress = fmt.Errorf("address must not be empty")
)

// ClientFactory opens an RPC client for a registered node. The caller
// owns the returned client and must Close it.
type ClientFactory func(node *domain.NodeInstance) (ports.NodeClient, error)

// StartNodeRequest carries the parameters of a node start request.
type StartNodeRequest struct {
	Chain      string
	InstanceID string
	Name       string
	Port       int
	Accounts   uint32
	Balance    float64
}

// StartNodeReply tells the caller how to launch the requested node.
// The daemon does not spawn node processes itself, node lifecycles
// belong to the CLI session that started them.
type StartNodeReply struct {
	Message    string  `json:"message"`
	Command    string  `json:"command"`
	Chain      string  `json:"chain"`
	InstanceID string  `json:"instance"`
	Port       int     `json:"port"`
	Accounts   uint32  `json:"accounts"`
	Balance    float64 `json:"balance"`
}

// StopNodeReply reports the registry update and how to terminate the
// process owning the node.
type StopNodeReply struct {
	Message     string `json:"message"`
	Instruction string `json:"instruction"`
	NodeID      string `json:"nodeId"`
}

// FundReply reports a completed funding transfer.
type FundReply struct {
	TxID    string  `json:"txid"`
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// HealthReport summarizes a reachability sweep over all registered
// nodes.
type HealthReport struct {
	Total   int `json:"total"`
	Running int `json:"running"`
	Stopped int `json:"stopped"`
	Unknown int `json:"unknown"`
}

// CleanupReport lists the registry records removed by a cleanup sweep.
type CleanupReport struct {
	Removed      int      `json:"removed"`
	Remaining    int      `json:"remaining"`
	RemovedNodes []string `json:"removedNodes"`
}

type OperatorService interface {
	ListNodes(ctx context.Context) ([]domain.NodeInstance, error)
	GetNode(ctx context.Context, nodeID string) (*domain.NodeInstance, error)
	ListAccounts(ctx context.Context, nodeID string) (domain.AccountSet, error)
	StartNode(ctx context.Context, req StartNodeRequest) (*StartNodeReply, error)
	StopNode(ctx context.Context, nodeID string) (*StopNodeReply, error)
	FundAccount(
		ctx context.Context, nodeID, address string, amount float64,
	) (*FundReply, error)
	ListTransactions(ctx context.Context, nodeID string) ([]ports.TxSummary, error)
	GetTransaction(
		ctx context.Context, nodeID, txid string,
	) (*ports.TxDetail, error)
	CheckHealth(ctx context.Context) (*HealthReport, error)
	CleanupRegistry(ctx context.Context) (*CleanupReport, error)
}

type operatorService struct {
	registry  ports.NodeRegistry
	accounts  ports.AccountStore
	newClient ClientFactory
}

func NewOperatorService(
	registry ports.NodeRegistry,
	accounts ports.AccountStore,
	newClient ClientFactory,
) OperatorService {
	return &operatorService{
		registry:  registry,
		accounts:  accounts,
		newClient: newClient,
	}
}

func (s *operatorService) ListNodes(_ context.Context) ([]domain.NodeInstance, error) {
	return s.registry.List()
}

func (s *operatorService) GetNode(
	_ context.Context, nodeID string,
) (*domain.NodeInstance, error) {
	return s.registry.Get(nodeID)
}

// ListAccounts returns the persisted account set of a node. Balances
// are refreshed from the node when it is reachable, stale values are
// returned otherwise.
func (s *operatorService) ListAccounts(
	ctx context.Context, nodeID string,
) (domain.AccountSet, error) {
	node, err := s.registry.Get(nodeID)
	if err != nil {
		return nil, err
	}

	accounts, err := s.accounts.Load(node.Chain, node.InstanceID)
	if err != nil {
		return nil, err
	}

	if client, err := s.newClient(node); err == nil {
		defer client.Close()
		if client.Ready(ctx) {
			if err := client.RefreshBalances(ctx, accounts); err != nil {
				log.WithError(err).Warnf(
					"could not refresh balances of node %s", nodeID,
				)
			}
		}
	}
	return accounts, nil
}

// StartNode validates the request and returns the CLI command that
// launches the node. Node processes must run in their own terminal so
// their lifetime is not tied to the daemon's.
func (s *operatorService) StartNode(
	_ context.Context, req StartNodeRequest,
) (*StartNodeReply, error) {
	chain, err := domain.ParseChainKind(req.Chain)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateInstanceName(req.InstanceID); err != nil {
		return nil, err
	}

	portFlag := "--port"
	if chain == domain.ChainBitcoin {
		portFlag = "--rpc-port"
	}
	cmd := fmt.Sprintf(
		"forge %s start --instance %s %s %d --accounts %d --balance %g",
		chain, req.InstanceID, portFlag, req.Port, req.Accounts, req.Balance,
	)
	if req.Name != "" {
		cmd = fmt.Sprintf("%s --name %q", cmd, req.Name)
	}

	return &StartNodeReply{
		Message:    "node start requires running the CLI command in a separate terminal",
		Command:    cmd,
		Chain:      chain.String(),
		InstanceID: req.InstanceID,
		Port:       req.Port,
		Accounts:   req.Accounts,
		Balance:    req.Balance,
	}, nil
}

// StopNode marks a node stopped in the registry. The process itself
// belongs to the CLI session that launched it, so the reply carries the
// instruction to terminate it there.
func (s *operatorService) StopNode(
	_ context.Context, nodeID string,
) (*StopNodeReply, error) {
	node, err := s.registry.Get(nodeID)
	if err != nil {
		return nil, err
	}

	if err := s.setStatus(nodeID, node.Status, domain.StatusStopped); err != nil {
		return nil, err
	}

	return &StopNodeReply{
		Message: "node marked as stopped, to actually stop it:",
		Instruction: fmt.Sprintf(
			"press Ctrl+C in the terminal running 'forge %s start --instance %s'",
			node.Chain, node.InstanceID,
		),
		NodeID: nodeID,
	}, nil
}

func (s *operatorService) FundAccount(
	ctx context.Context, nodeID, address string, amount float64,
) (*FundReply, error) {
	if address == "" {
		return nil, ErrMissingAddress
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	node, err := s.registry.Get(nodeID)
	if err != nil {
		return nil, err
	}

	client, err := s.newClient(node)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if !client.Ready(ctx) {
		return nil, fmt.Errorf("%w: node %s", domain.ErrNotRunning, nodeID)
	}

	txid, err := client.Fund(ctx, address, amount)
	if err != nil {
		return nil, err
	}
	return &FundReply{TxID: txid, Address: address, Amount: amount}, nil
}

func (s *operatorService) ListTransactions(
	ctx context.Context, nodeID string,
) ([]ports.TxSummary, error) {
	_, accounts, client, err := s.attach(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return client.Transactions(ctx, accounts, txHistoryLimit)
}

func (s *operatorService) GetTransaction(
	ctx context.Context, nodeID, txid string,
) (*ports.TxDetail, error) {
	_, _, client, err := s.attach(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return client.Transaction(ctx, txid)
}

// CheckHealth probes every registered node and records the outcome in
// the registry.
func (s *operatorService) CheckHealth(ctx context.Context) (*HealthReport, error) {
	nodes, err := s.registry.List()
	if err != nil {
		return nil, err
	}

	report := &HealthReport{Total: len(nodes)}
	for _, node := range nodes {
		if s.reachable(ctx, &node) {
			report.Running++
			s.recordStatus(node, domain.StatusReady)
			continue
		}

		switch node.Status {
		case domain.StatusReady, domain.StatusStopped, domain.StatusStopping:
			report.Stopped++
			s.recordStatus(node, domain.StatusStopped)
		default:
			report.Unknown++
		}
	}
	return report, nil
}

// CleanupRegistry drops the records of all nodes that are no longer
// reachable.
func (s *operatorService) CleanupRegistry(ctx context.Context) (*CleanupReport, error) {
	nodes, err := s.registry.List()
	if err != nil {
		return nil, err
	}

	removedNodes := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if s.reachable(ctx, &node) {
			continue
		}
		s.recordStatus(node, domain.StatusStopped)
		removedNodes = append(removedNodes, node.ID)
	}

	removed, err := s.registry.ClearStopped()
	if err != nil {
		return nil, err
	}

	return &CleanupReport{
		Removed:      removed,
		Remaining:    len(nodes) - removed,
		RemovedNodes: removedNodes,
	}, nil
}

// attach resolves a node and opens a client on it, failing when the
// node does not answer RPC calls.
func (s *operatorService) attach(
	ctx context.Context, nodeID string,
) (*domain.NodeInstance, domain.AccountSet, ports.NodeClient, error) {
	node, err := s.registry.Get(nodeID)
	if err != nil {
		return nil, nil, nil, err
	}

	accounts, err := s.accounts.Load(node.Chain, node.InstanceID)
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := s.newClient(node)
	if err != nil {
		return nil, nil, nil, err
	}
	if !client.Ready(ctx) {
		client.Close()
		return nil, nil, nil, fmt.Errorf("%w: node %s", domain.ErrNotRunning, nodeID)
	}
	return node, accounts, client, nil
}

func (s *operatorService) reachable(ctx context.Context, node *domain.NodeInstance) bool {
	client, err := s.newClient(node)
	if err != nil {
		return false
	}
	defer client.Close()
	return client.Ready(ctx)
}

func (s *operatorService) recordStatus(node domain.NodeInstance, to domain.NodeStatus) {
	if err := s.setStatus(node.ID, node.Status, to); err != nil {
		log.WithError(err).Warnf("could not update status of node %s", node.ID)
	}
}

// setStatus walks the lifecycle state machine from one state to
// another, applying intermediate transitions where needed. States with
// no legal path to the target are left untouched.
func (s *operatorService) setStatus(nodeID string, from, to domain.NodeStatus) error {
	for _, step := range statusSteps(from, to) {
		if err := s.registry.UpdateStatus(nodeID, step); err != nil {
			return err
		}
	}
	return nil
}

func statusSteps(from, to domain.NodeStatus) []domain.NodeStatus {
	if from == to {
		return nil
	}
	if from.CanTransition(to) {
		return []domain.NodeStatus{to}
	}
	switch {
	case to == domain.StatusStopped && from.CanTransition(domain.StatusStopping):
		return []domain.NodeStatus{domain.StatusStopping, domain.StatusStopped}
	case to == domain.StatusReady && from == domain.StatusStopped:
		return []domain.NodeStatus{domain.StatusStarting, domain.StatusReady}
	}
	return nil
}
