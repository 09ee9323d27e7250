package varstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/metal3-community/uefi-settings/hii"
)

// EfivarsDir is the standard efivarfs mount point's variable directory.
const EfivarsDir = "/sys/firmware/efi/efivars"

// VarStore reads and writes the payload of a single EFI variable, addressed
// by its name and owning GUID. Implementations are expected to apply the
// full write-guard stack (advisory lock, mount-mode guard, immutable-flag
// guard) around WriteAtOffset; Read never needs guarding.
type VarStore interface {
	Read(name string, guid hii.GUID) ([]byte, error)
	WriteAtOffset(name string, guid hii.GUID, offset int, data []byte) error
}

// EfiVarStore is the production VarStore, backed by the kernel's efivarfs.
type EfiVarStore struct {
	log logr.Logger
	dir string
}

// NewEfiVarStore returns an EfiVarStore rooted at the standard efivarfs
// directory.
func NewEfiVarStore(log logr.Logger) *EfiVarStore {
	return &EfiVarStore{log: log, dir: EfivarsDir}
}

var _ VarStore = (*EfiVarStore)(nil)

func (s *EfiVarStore) path(name string, guid hii.GUID) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s", name, guid.StringLowercase()))
}

// Read returns the variable's payload, with the 4-byte kernel attribute
// prefix stripped.
func (s *EfiVarStore) Read(name string, guid hii.GUID) ([]byte, error) {
	path := s.path(name, guid)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", hii.ErrVarstoreMissing, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", hii.ErrVarstoreRead, path, err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: %s shorter than attribute prefix", hii.ErrVarstoreRead, path)
	}
	return raw[4:], nil
}

// WriteAtOffset writes data into the variable's payload at offset (relative
// to the payload, not the file), acquiring the full guard stack first:
// the cross-process file lock, then the efivarfs mount-mode guard, then the
// inode immutable-attribute guard, in that order. Guards are released in
// exact reverse order regardless of outcome.
func (s *EfiVarStore) WriteAtOffset(name string, guid hii.GUID, offset int, data []byte) error {
	path := s.path(name, guid)

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", hii.ErrVarstoreMissing, path)
		}
		return fmt.Errorf("%w: %s: %v", hii.ErrVarstoreRead, path, err)
	}

	lock, err := AcquireFileLock()
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			s.log.Error(err, "failed to release file lock", "path", LockPath)
		}
	}()

	mount, err := AcquireMountGuard()
	if err != nil {
		return fmt.Errorf("%w: %v", hii.ErrVarstoreWrite, err)
	}
	defer func() {
		if err := mount.Release(); err != nil {
			s.log.Error(err, "failed to restore efivarfs mount mode")
		}
	}()

	immutable, err := AcquireImmutabilityGuard(s.log, path)
	if err != nil {
		return fmt.Errorf("%w: %v", hii.ErrVarstoreWrite, err)
	}
	defer func() {
		if err := immutable.Release(); err != nil {
			s.log.Error(err, "failed to restore immutable flag", "path", path)
		}
	}()

	current, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s before write: %v", hii.ErrVarstoreRead, path, err)
	}
	if len(current) < 4 {
		return fmt.Errorf("%w: %s shorter than attribute prefix", hii.ErrVarstoreRead, path)
	}

	end := offset + 4 + len(data)
	if end > len(current) {
		grown := make([]byte, end)
		copy(grown, current)
		current = grown
	}
	copy(current[offset+4:end], data)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("%w: opening %s for write: %v", hii.ErrVarstoreWrite, path, err)
	}
	defer f.Close()

	if _, err := f.Write(current); err != nil {
		return fmt.Errorf("%w: writing %s: %v", hii.ErrVarstoreWrite, path, err)
	}

	return nil
}
