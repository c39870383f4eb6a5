package domain

import "time"

// InstanceInfo is the connection material of one launched node,
// persisted next to its ledger so external tools can attach to the
// instance without asking the daemon.
type InstanceInfo struct {
	Chain      ChainKind `json:"chain"`
	InstanceID string    `json:"instanceId"`
	RPCURL     string    `json:"rpcUrl"`
	RPCPort    int       `json:"rpcPort"`
	P2PPort    int       `json:"p2pPort,omitempty"`
	FaucetPort int       `json:"faucetPort,omitempty"`
	RPCUser    string    `json:"rpcUser,omitempty"`
	RPCPass    string    `json:"rpcPass,omitempty"`
	Running    bool      `json:"running"`
	StartedAt  time.Time `json:"startedAt"`
}
