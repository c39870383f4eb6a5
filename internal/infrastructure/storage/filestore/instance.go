package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chainforge/forged/internal/core/domain"
)

// InstanceInfoStore persists per-instance connection info next to the
// instance's ledger data.
type InstanceInfoStore struct {
	baseDir string
}

func NewInstanceInfoStore(baseDir string) *InstanceInfoStore {
	return &InstanceInfoStore{baseDir: baseDir}
}

// Save writes the info file of a (chain, instance) pair.
func (s *InstanceInfoStore) Save(info domain.InstanceInfo) error {
	dir := filepath.Join(s.baseDir, info.Chain.String(), info.InstanceID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	buf, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return writeFileAtomic(filepath.Join(dir, infoFilename), buf)
}

// Load returns the info of a (chain, instance) pair, nil when none was
// saved.
func (s *InstanceInfoStore) Load(
	chain domain.ChainKind, instanceID string,
) (*domain.InstanceInfo, error) {
	path := filepath.Join(s.baseDir, chain.String(), instanceID, infoFilename)
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	info := &domain.InstanceInfo{}
	if err := json.Unmarshal(buf, info); err != nil {
		return nil, fmt.Errorf("%w: corrupted info file %s: %v", domain.ErrStorage, path, err)
	}
	return info, nil
}

// MarkStopped flips the running flag of a saved info file. A missing
// file is not an error since the instance may never have started.
func (s *InstanceInfoStore) MarkStopped(chain domain.ChainKind, instanceID string) error {
	info, err := s.Load(chain, instanceID)
	if err != nil || info == nil {
		return err
	}

	info.Running = false
	return s.Save(*info)
}
