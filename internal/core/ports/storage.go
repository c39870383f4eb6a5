package ports

import "github.com/chainforge/forged/internal/core/domain"

// NodeRegistry persists the node instances known across process restarts.
type NodeRegistry interface {
	// Upsert inserts or replaces a node record.
	Upsert(node domain.NodeInstance) error
	// Get returns the node with the given registry ID, ErrNodeNotFound
	// when absent.
	Get(nodeID string) (*domain.NodeInstance, error)
	// List returns all known nodes.
	List() ([]domain.NodeInstance, error)
	// ListByChain returns all known nodes of one chain.
	ListByChain(chain domain.ChainKind) ([]domain.NodeInstance, error)
	// UpdateStatus moves a node to the given status, enforcing the
	// lifecycle state machine.
	UpdateStatus(nodeID string, status domain.NodeStatus) error
	// MarkAllStopped force-marks every node stopped. Used on daemon
	// startup since no process survives it.
	MarkAllStopped() error
	// ClearStopped deletes all records not in ready or starting state and
	// returns how many were removed.
	ClearStopped() (int, error)
	// Delete removes one record. Deleting an absent record is not an error.
	Delete(nodeID string) error

	Close() error
}

// AccountStore persists the derived account set of one instance.
type AccountStore interface {
	// Save atomically replaces the account set of a (chain, instance) pair.
	Save(chain domain.ChainKind, instanceID string, accounts domain.AccountSet) error
	// Load returns the persisted set, empty when none was saved yet.
	Load(chain domain.ChainKind, instanceID string) (domain.AccountSet, error)
	// Delete removes the persisted set. Deleting an absent set is not an
	// error.
	Delete(chain domain.ChainKind, instanceID string) error
}
