package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thanhpk/randstr"

	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
	"github.com/chainforge/forged/pkg/wallet"
)

const (
	accountsFilename = "accounts.json"
	infoFilename     = "instance.json"
)

type accountStore struct {
	baseDir string
}

// NewAccountStore returns a store persisting each instance's account set
// as a JSON file under baseDir/{chain}/{instance}. The format is plain
// on purpose so accounts can be inspected and imported by other tools.
func NewAccountStore(baseDir string) ports.AccountStore {
	return &accountStore{baseDir: baseDir}
}

func (s *accountStore) Save(
	chain domain.ChainKind, instanceID string, accounts domain.AccountSet,
) error {
	dir := s.instanceDir(chain, instanceID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	buf, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return writeFileAtomic(filepath.Join(dir, accountsFilename), buf)
}

func (s *accountStore) Load(
	chain domain.ChainKind, instanceID string,
) (domain.AccountSet, error) {
	path := filepath.Join(s.instanceDir(chain, instanceID), accountsFilename)
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.AccountSet{}, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	accounts := domain.AccountSet{}
	if err := json.Unmarshal(buf, &accounts); err != nil {
		return nil, fmt.Errorf("%w: corrupted account file %s: %v", domain.ErrStorage, path, err)
	}

	// account files are plain JSON and may have been hand-edited, so
	// the persisted derivation paths are re-parsed before use
	for i := range accounts {
		if accounts[i].DerivationPath == "" {
			continue
		}
		if _, err := wallet.ParseDerivationPath(accounts[i].DerivationPath); err != nil {
			return nil, fmt.Errorf(
				"%w: account %d in %s has a malformed derivation path: %v",
				domain.ErrStorage, i, path, err,
			)
		}
	}
	return accounts, nil
}

func (s *accountStore) Delete(chain domain.ChainKind, instanceID string) error {
	path := filepath.Join(s.instanceDir(chain, instanceID), accountsFilename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *accountStore) instanceDir(chain domain.ChainKind, instanceID string) string {
	return filepath.Join(s.baseDir, chain.String(), instanceID)
}

// writeFileAtomic writes via a temp file plus rename so readers never
// observe a half-written account set.
func writeFileAtomic(path string, buf []byte) error {
	tmp := fmt.Sprintf("%s.%s.tmp", path, randstr.Hex(8))
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}
