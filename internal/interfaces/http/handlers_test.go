package httpinterface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/forged/internal/core/application"
	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
)

func TestListNodes(t *testing.T) {
	node := domain.NewNodeInstance(
		domain.ChainBitcoin, "dev", "", "http://127.0.0.1:18443", 18443, 18444, 10,
	)
	srv := newTestServer(&stubOperator{nodes: []domain.NodeInstance{node}})

	res := doRequest(t, srv, http.MethodGet, "/api/v1/nodes", "")
	require.Equal(t, http.StatusOK, res.Code)

	body := decodeResponse(t, res)
	assert.True(t, body.Success)
	assert.Contains(t, res.Body.String(), `"nodeId":"bitcoin:dev"`)
}

func TestGetNodeNotFound(t *testing.T) {
	srv := newTestServer(&stubOperator{err: domain.ErrNodeNotFound})

	res := doRequest(t, srv, http.MethodGet, "/api/v1/nodes/bitcoin:missing", "")
	require.Equal(t, http.StatusNotFound, res.Code)

	body := decodeResponse(t, res)
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)
}

func TestStartNode(t *testing.T) {
	srv := newTestServer(&stubOperator{})

	res := doRequest(
		t, srv, http.MethodPost, "/api/v1/nodes",
		`{"chain": "bitcoin", "instance": "dev", "port": 18443, "accounts": 5, "balance": 10}`,
	)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "forge bitcoin start")

	res = doRequest(t, srv, http.MethodPost, "/api/v1/nodes", `{"chain": "dogecoin"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = doRequest(t, srv, http.MethodPost, "/api/v1/nodes", `not json`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestStopNode(t *testing.T) {
	srv := newTestServer(&stubOperator{})

	res := doRequest(t, srv, http.MethodDelete, "/api/v1/nodes/solana:dev", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "solana:dev")
}

func TestFundAccount(t *testing.T) {
	srv := newTestServer(&stubOperator{})

	res := doRequest(
		t, srv, http.MethodPost, "/api/v1/nodes/solana:dev/fund",
		`{"address": "somepubkey", "amount": 2.5}`,
	)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"txid"`)

	srv = newTestServer(&stubOperator{err: domain.ErrNotRunning})
	res = doRequest(
		t, srv, http.MethodPost, "/api/v1/nodes/solana:dev/fund",
		`{"address": "somepubkey", "amount": 2.5}`,
	)
	require.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestGetTransaction(t *testing.T) {
	srv := newTestServer(&stubOperator{
		tx: &ports.TxDetail{TxSummary: ports.TxSummary{TxID: "abcd"}},
	})

	res := doRequest(t, srv, http.MethodGet, "/api/v1/nodes/solana:dev/transactions/abcd", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"txid":"abcd"`)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(&stubOperator{})

	res := doRequest(t, srv, http.MethodOptions, "/api/v1/nodes", "")
	require.Equal(t, http.StatusNoContent, res.Code)
	assert.Equal(t, "*", res.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(&stubOperator{})

	res := doRequest(t, srv, http.MethodGet, "/api/v1/nodes", "")
	assert.NotEmpty(t, res.Header().Get("X-Request-Id"))
}

func newTestServer(svc application.OperatorService) *Server {
	return NewServer("127.0.0.1:0", svc)
}

func doRequest(
	t *testing.T, srv *Server, method, path, body string,
) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	res := httptest.NewRecorder()
	srv.Handler().ServeHTTP(res, req)
	return res
}

func decodeResponse(t *testing.T, res *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var body apiResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	return body
}

// stubOperator answers every call with canned data, or with err when
// set.
type stubOperator struct {
	nodes []domain.NodeInstance
	tx    *ports.TxDetail
	err   error
}

func (s *stubOperator) ListNodes(context.Context) ([]domain.NodeInstance, error) {
	return s.nodes, s.err
}

func (s *stubOperator) GetNode(
	_ context.Context, nodeID string,
) (*domain.NodeInstance, error) {
	if s.err != nil {
		return nil, s.err
	}
	node := domain.NewNodeInstance(
		domain.ChainSolana, "dev", "", "http://127.0.0.1:8899", 8899, 0, 10,
	)
	node.ID = nodeID
	return &node, nil
}

func (s *stubOperator) ListAccounts(
	context.Context, string,
) (domain.AccountSet, error) {
	return domain.AccountSet{{Index: 0, Address: "addr0", Balance: 1}}, s.err
}

func (s *stubOperator) StartNode(
	ctx context.Context, req application.StartNodeRequest,
) (*application.StartNodeReply, error) {
	if s.err != nil {
		return nil, s.err
	}
	chain, err := domain.ParseChainKind(req.Chain)
	if err != nil {
		return nil, err
	}
	return &application.StartNodeReply{
		Command: fmt.Sprintf("forge %s start --instance %s", chain, req.InstanceID),
	}, nil
}

func (s *stubOperator) StopNode(
	_ context.Context, nodeID string,
) (*application.StopNodeReply, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &application.StopNodeReply{NodeID: nodeID}, nil
}

func (s *stubOperator) FundAccount(
	_ context.Context, _, address string, amount float64,
) (*application.FundReply, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &application.FundReply{TxID: "txid", Address: address, Amount: amount}, nil
}

func (s *stubOperator) ListTransactions(
	context.Context, string,
) ([]ports.TxSummary, error) {
	return nil, s.err
}

func (s *stubOperator) GetTransaction(
	context.Context, string, string,
) (*ports.TxDetail, error) {
	return s.tx, s.err
}

func (s *stubOperator) CheckHealth(context.Context) (*application.HealthReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &application.HealthReport{}, nil
}

func (s *stubOperator) CleanupRegistry(context.Context) (*application.CleanupReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &application.CleanupReport{}, nil
}
