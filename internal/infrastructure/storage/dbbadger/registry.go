package dbbadger

import (
	"bytes"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
)

type nodeRegistry struct {
	store *badgerhold.Store
}

// NewNodeRegistry opens (or creates) the badger-backed node registry at
// the given directory.
func NewNodeRegistry(dbDir string, logger badger.Logger) (ports.NodeRegistry, error) {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	store, err := badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening registry: %v", domain.ErrStorage, err)
	}

	return &nodeRegistry{store: store}, nil
}

func (r *nodeRegistry) Upsert(node domain.NodeInstance) error {
	if err := r.store.Upsert(node.ID, node); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *nodeRegistry) Get(nodeID string) (*domain.NodeInstance, error) {
	var node domain.NodeInstance
	if err := r.store.Get(nodeID, &node); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, nodeID)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return &node, nil
}

func (r *nodeRegistry) List() ([]domain.NodeInstance, error) {
	nodes := make([]domain.NodeInstance, 0)
	if err := r.store.Find(&nodes, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nodes, nil
}

func (r *nodeRegistry) ListByChain(chain domain.ChainKind) ([]domain.NodeInstance, error) {
	nodes := make([]domain.NodeInstance, 0)
	query := badgerhold.Where("Chain").Eq(chain)
	if err := r.store.Find(&nodes, query); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nodes, nil
}

func (r *nodeRegistry) UpdateStatus(nodeID string, status domain.NodeStatus) error {
	node, err := r.Get(nodeID)
	if err != nil {
		return err
	}
	if !node.Status.CanTransition(status) {
		return fmt.Errorf(
			"node %s cannot move from status %s to %s", nodeID, node.Status, status,
		)
	}

	node.Status = status
	if status == domain.StatusStopped {
		node.StartedAt = nil
	}
	return r.Upsert(*node)
}

func (r *nodeRegistry) MarkAllStopped() error {
	nodes, err := r.List()
	if err != nil {
		return err
	}
	for _, node := range nodes {
		if node.Status == domain.StatusStopped {
			continue
		}
		node.Status = domain.StatusStopped
		node.StartedAt = nil
		if err := r.Upsert(node); err != nil {
			return err
		}
	}
	return nil
}

func (r *nodeRegistry) ClearStopped() (int, error) {
	nodes, err := r.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, node := range nodes {
		if node.Status == domain.StatusReady || node.Status == domain.StatusStarting {
			continue
		}
		if err := r.Delete(node.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (r *nodeRegistry) Delete(nodeID string) error {
	err := r.store.Delete(nodeID, domain.NodeInstance{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *nodeRegistry) Close() error {
	return r.store.Close()
}

// JSONEncode is a custom JSON based encoder for the badger database
func JSONEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer

	en := json.NewEncoder(&buff)
	if err := en.Encode(value); err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for the badger database
func JSONDecode(data []byte, value interface{}) error {
	var buff bytes.Buffer
	de := json.NewDecoder(&buff)

	if _, err := buff.Write(data); err != nil {
		return err
	}

	return de.Decode(value)
}
