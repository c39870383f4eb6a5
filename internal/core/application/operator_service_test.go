package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
)

func TestStartNode(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	reply, err := svc.StartNode(ctx, StartNodeRequest{
		Chain:      "bitcoin",
		InstanceID: "dev",
		Port:       18443,
		Accounts:   10,
		Balance:    10,
	})
	require.NoError(t, err)
	assert.Contains(t, reply.Command, "forge bitcoin start --instance dev")
	assert.Contains(t, reply.Command, "--rpc-port 18443")

	reply, err = svc.StartNode(ctx, StartNodeRequest{
		Chain:      "sol",
		InstanceID: "dev",
		Name:       "my validator",
		Port:       8899,
		Accounts:   5,
		Balance:    100,
	})
	require.NoError(t, err)
	assert.Equal(t, "solana", reply.Chain)
	assert.Contains(t, reply.Command, "--port 8899")
	assert.Contains(t, reply.Command, `--name "my validator"`)

	_, err = svc.StartNode(ctx, StartNodeRequest{Chain: "dogecoin", InstanceID: "dev"})
	require.Error(t, err)

	_, err = svc.StartNode(ctx, StartNodeRequest{Chain: "bitcoin", InstanceID: "Bad Name"})
	require.Error(t, err)
}

func TestStopNode(t *testing.T) {
	svc, registry, _ := newTestService(t)
	ctx := context.Background()

	node := domain.NewNodeInstance(
		domain.ChainBitcoin, "dev", "", "http://127.0.0.1:18443", 18443, 18444, 10,
	)
	require.NoError(t, registry.Upsert(node))

	reply, err := svc.StopNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, node.ID, reply.NodeID)
	assert.Contains(t, reply.Instruction, "forge bitcoin start --instance dev")

	stored, err := registry.Get(node.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, stored.Status)

	_, err = svc.StopNode(ctx, "bitcoin:missing")
	require.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestFundAccount(t *testing.T) {
	svc, registry, clients := newTestService(t)
	ctx := context.Background()

	node := domain.NewNodeInstance(
		domain.ChainSolana, "dev", "", "http://127.0.0.1:8899", 8899, 0, 10,
	)
	require.NoError(t, registry.Upsert(node))
	clients.ready = true
	clients.fundTx = "signature"

	reply, err := svc.FundAccount(ctx, node.ID, "somepubkey", 2.5)
	require.NoError(t, err)
	assert.Equal(t, "signature", reply.TxID)
	assert.Equal(t, 2.5, reply.Amount)

	_, err = svc.FundAccount(ctx, node.ID, "", 2.5)
	require.ErrorIs(t, err, ErrMissingAddress)

	_, err = svc.FundAccount(ctx, node.ID, "somepubkey", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	clients.ready = false
	_, err = svc.FundAccount(ctx, node.ID, "somepubkey", 2.5)
	require.ErrorIs(t, err, domain.ErrNotRunning)
}

func TestListAccounts(t *testing.T) {
	svc, registry, clients := newTestService(t)
	ctx := context.Background()

	node := domain.NewNodeInstance(
		domain.ChainSolana, "dev", "", "http://127.0.0.1:8899", 8899, 0, 2,
	)
	require.NoError(t, registry.Upsert(node))
	clients.store.sets["solana/dev"] = domain.AccountSet{
		{Index: 0, Address: "addr0", Balance: 1},
		{Index: 1, Address: "addr1", Balance: 2},
	}

	clients.ready = true
	accounts, err := svc.ListAccounts(ctx, node.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.True(t, clients.refreshed)

	// stale balances are still served when the node is down
	clients.ready = false
	clients.refreshed = false
	accounts, err = svc.ListAccounts(ctx, node.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.False(t, clients.refreshed)
}

func TestListTransactions(t *testing.T) {
	svc, registry, clients := newTestService(t)
	ctx := context.Background()

	node := domain.NewNodeInstance(
		domain.ChainBitcoin, "dev", "", "http://127.0.0.1:18443", 18443, 18444, 1,
	)
	require.NoError(t, registry.Upsert(node))

	clients.ready = false
	_, err := svc.ListTransactions(ctx, node.ID)
	require.ErrorIs(t, err, domain.ErrNotRunning)

	clients.ready = true
	clients.txs = []ports.TxSummary{{TxID: "aa"}, {TxID: "bb"}}
	txs, err := svc.ListTransactions(ctx, node.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
}

func TestCheckHealth(t *testing.T) {
	svc, registry, clients := newTestService(t)
	ctx := context.Background()

	up := domain.NewNodeInstance(
		domain.ChainSolana, "up", "", "http://127.0.0.1:8899", 8899, 0, 1,
	)
	down := domain.NewNodeInstance(
		domain.ChainBitcoin, "down", "", "http://127.0.0.1:18443", 18443, 18444, 1,
	)
	require.NoError(t, registry.Upsert(up))
	require.NoError(t, registry.Upsert(down))
	clients.readyByID = map[string]bool{up.ID: true, down.ID: false}

	report, err := svc.CheckHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Running)
	assert.Equal(t, 1, report.Stopped)

	stored, err := registry.Get(down.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, stored.Status)
}

func TestCleanupRegistry(t *testing.T) {
	svc, registry, clients := newTestService(t)
	ctx := context.Background()

	up := domain.NewNodeInstance(
		domain.ChainSolana, "up", "", "http://127.0.0.1:8899", 8899, 0, 1,
	)
	down := domain.NewNodeInstance(
		domain.ChainBitcoin, "down", "", "http://127.0.0.1:18443", 18443, 18444, 1,
	)
	require.NoError(t, registry.Upsert(up))
	require.NoError(t, registry.Upsert(down))
	clients.readyByID = map[string]bool{up.ID: true, down.ID: false}

	report, err := svc.CleanupRegistry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, report.Remaining)
	assert.Equal(t, []string{down.ID}, report.RemovedNodes)

	_, err = registry.Get(down.ID)
	require.ErrorIs(t, err, domain.ErrNodeNotFound)
	_, err = registry.Get(up.ID)
	require.NoError(t, err)
}

func TestStatusSteps(t *testing.T) {
	tests := []struct {
		from, to domain.NodeStatus
		steps    []domain.NodeStatus
	}{
		{domain.StatusReady, domain.StatusReady, nil},
		{
			domain.StatusReady, domain.StatusStopped,
			[]domain.NodeStatus{domain.StatusStopping, domain.StatusStopped},
		},
		{
			domain.StatusStopped, domain.StatusReady,
			[]domain.NodeStatus{domain.StatusStarting, domain.StatusReady},
		},
		{
			domain.StatusStarting, domain.StatusReady,
			[]domain.NodeStatus{domain.StatusReady},
		},
		{domain.StatusFailed, domain.StatusReady, nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.steps, statusSteps(tt.from, tt.to))
	}
}

func newTestService(t *testing.T) (OperatorService, ports.NodeRegistry, *fakeClients) {
	t.Helper()
	registry := newFakeRegistry()
	clients := &fakeClients{store: newFakeAccountStore()}
	svc := NewOperatorService(registry, clients.store, clients.factory)
	return svc, registry, clients
}

// fakeClients hands out stub node clients and records what they were
// asked to do.
type fakeClients struct {
	store     *fakeAccountStore
	ready     bool
	readyByID map[string]bool
	fundTx    string
	refreshed bool
	txs       []ports.TxSummary
}

func (f *fakeClients) factory(node *domain.NodeInstance) (ports.NodeClient, error) {
	ready := f.ready
	if f.readyByID != nil {
		ready = f.readyByID[node.ID]
	}
	return &fakeClient{parent: f, isReady: ready}, nil
}

type fakeClient struct {
	parent  *fakeClients
	isReady bool
}

func (c *fakeClient) Ready(context.Context) bool { return c.isReady }

func (c *fakeClient) Fund(_ context.Context, _ string, _ float64) (string, error) {
	return c.parent.fundTx, nil
}

func (c *fakeClient) RefreshBalances(context.Context, domain.AccountSet) error {
	c.parent.refreshed = true
	return nil
}

func (c *fakeClient) Transactions(
	context.Context, domain.AccountSet, int,
) ([]ports.TxSummary, error) {
	return c.parent.txs, nil
}

func (c *fakeClient) Transaction(context.Context, string) (*ports.TxDetail, error) {
	return &ports.TxDetail{}, nil
}

func (c *fakeClient) Close() {}

type fakeRegistry struct {
	nodes map[string]domain.NodeInstance
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{nodes: make(map[string]domain.NodeInstance)}
}

func (r *fakeRegistry) Upsert(node domain.NodeInstance) error {
	r.nodes[node.ID] = node
	return nil
}

func (r *fakeRegistry) Get(nodeID string) (*domain.NodeInstance, error) {
	node, ok := r.nodes[nodeID]
	if !ok {
		return nil, domain.ErrNodeNotFound
	}
	return &node, nil
}

func (r *fakeRegistry) List() ([]domain.NodeInstance, error) {
	nodes := make([]domain.NodeInstance, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (r *fakeRegistry) ListByChain(chain domain.ChainKind) ([]domain.NodeInstance, error) {
	nodes := make([]domain.NodeInstance, 0)
	for _, node := range r.nodes {
		if node.Chain == chain {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

func (r *fakeRegistry) UpdateStatus(nodeID string, status domain.NodeStatus) error {
	node, ok := r.nodes[nodeID]
	if !ok {
		return domain.ErrNodeNotFound
	}
	if !node.Status.CanTransition(status) {
		return domain.ErrConfig
	}
	node.Status = status
	r.nodes[nodeID] = node
	return nil
}

func (r *fakeRegistry) MarkAllStopped() error {
	for id, node := range r.nodes {
		node.Status = domain.StatusStopped
		r.nodes[id] = node
	}
	return nil
}

func (r *fakeRegistry) ClearStopped() (int, error) {
	removed := 0
	for id, node := range r.nodes {
		if node.Status != domain.StatusReady && node.Status != domain.StatusStarting {
			delete(r.nodes, id)
			removed++
		}
	}
	return removed, nil
}

func (r *fakeRegistry) Delete(nodeID string) error {
	delete(r.nodes, nodeID)
	return nil
}

func (r *fakeRegistry) Close() error { return nil }

type fakeAccountStore struct {
	sets map[string]domain.AccountSet
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{sets: make(map[string]domain.AccountSet)}
}

func (s *fakeAccountStore) Save(
	chain domain.ChainKind, instanceID string, accounts domain.AccountSet,
) error {
	s.sets[string(chain)+"/"+instanceID] = accounts
	return nil
}

func (s *fakeAccountStore) Load(
	chain domain.ChainKind, instanceID string,
) (domain.AccountSet, error) {
	return s.sets[string(chain)+"/"+instanceID], nil
}

func (s *fakeAccountStore) Delete(chain domain.ChainKind, instanceID string) error {
	delete(s.sets, string(chain)+"/"+instanceID)
	return nil
}