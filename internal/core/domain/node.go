package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChainKind identifies one of the supported chain backends. The set is
// closed: providers are selected at construction time, never via runtime
// type inspection.
type ChainKind string

const (
	ChainBitcoin ChainKind = "bitcoin"
	ChainSolana  ChainKind = "solana"
)

// ParseChainKind converts a user-supplied chain name.
func ParseChainKind(s string) (ChainKind, error) {
	switch strings.ToLower(s) {
	case "bitcoin", "btc":
		return ChainBitcoin, nil
	case "solana", "sol":
		return ChainSolana, nil
	default:
		return "", fmt.Errorf("%w: unknown chain %q", ErrConfig, s)
	}
}

func (c ChainKind) String() string { return string(c) }

// NodeStatus is the lifecycle state of a node instance.
type NodeStatus string

const (
	StatusStopped  NodeStatus = "stopped"
	StatusStarting NodeStatus = "starting"
	StatusReady    NodeStatus = "ready"
	StatusStopping NodeStatus = "stopping"
	// StatusFailed is reachable from starting or ready on an unrecoverable
	// supervisor or RPC error. A failed instance requires an explicit stop
	// before it can be started again.
	StatusFailed NodeStatus = "failed"
)

var validTransitions = map[NodeStatus][]NodeStatus{
	StatusStopped:  {StatusStarting},
	StatusStarting: {StatusReady, StatusStopping, StatusFailed},
	StatusReady:    {StatusStopping, StatusFailed},
	StatusStopping: {StatusStopped},
	StatusFailed:   {StatusStopping},
}

// CanTransition reports whether moving from s to next is a legal step of
// the lifecycle state machine.
func (s NodeStatus) CanTransition(next NodeStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NodeInstance describes one isolated node: an external process, its RPC
// endpoint and the account set derived for it. Instances with distinct
// IDs share no ports and no on-disk state.
type NodeInstance struct {
	// ID is "{chain}:{instance}" and is unique across chains.
	ID         string     `json:"nodeId" badgerhold:"key"`
	Chain      ChainKind  `json:"chain"`
	InstanceID string     `json:"instanceId"`
	Name       string     `json:"name,omitempty"`
	RPCURL     string     `json:"rpcUrl"`
	RPCPort    int        `json:"rpcPort"`
	P2PPort    int        `json:"p2pPort,omitempty"`
	Accounts   uint32     `json:"accountsCount"`
	Status     NodeStatus `json:"status"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
}

// NodeID builds the registry key for a (chain, instance) pair.
func NodeID(chain ChainKind, instanceID string) string {
	return fmt.Sprintf("%s:%s", chain, instanceID)
}

// NewNodeInstance returns a running instance record stamped with the
// current time.
func NewNodeInstance(
	chain ChainKind, instanceID, name, rpcURL string,
	rpcPort, p2pPort int, accounts uint32,
) NodeInstance {
	now := time.Now().UTC()
	return NodeInstance{
		ID:         NodeID(chain, instanceID),
		Chain:      chain,
		InstanceID: instanceID,
		Name:       name,
		RPCURL:     rpcURL,
		RPCPort:    rpcPort,
		P2PPort:    p2pPort,
		Accounts:   accounts,
		Status:     StatusReady,
		StartedAt:  &now,
	}
}

// DisplayName is the name if set, the instance ID otherwise.
func (n NodeInstance) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.InstanceID
}
