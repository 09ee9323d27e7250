package varstore

import (
	"fmt"

	"github.com/metal3-community/uefi-settings/hii"
)

// MemVarStore is an in-memory VarStore used by tests in place of real
// efivarfs files. It keeps one payload buffer per name+GUID pair and never
// touches the filesystem or any guard, so tests can exercise question
// resolution and value changes without root or a real EFI environment.
type MemVarStore struct {
	vars       map[string][]byte
	WriteErr   error // when set, WriteAtOffset always fails with this error
	writeCount int
}

var _ VarStore = (*MemVarStore)(nil)

// NewMemVarStore builds an empty store.
func NewMemVarStore() *MemVarStore {
	return &MemVarStore{vars: make(map[string][]byte)}
}

func memKey(name string, guid hii.GUID) string {
	return name + "-" + guid.StringLowercase()
}

// Set seeds the store with a variable's payload, for use in test setup.
func (s *MemVarStore) Set(name string, guid hii.GUID, payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.vars[memKey(name, guid)] = buf
}

// WriteCount reports how many times WriteAtOffset has succeeded, for tests
// asserting a write did or didn't happen.
func (s *MemVarStore) WriteCount() int { return s.writeCount }

func (s *MemVarStore) Read(name string, guid hii.GUID) ([]byte, error) {
	buf, ok := s.vars[memKey(name, guid)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", hii.ErrVarstoreMissing, memKey(name, guid))
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

func (s *MemVarStore) WriteAtOffset(name string, guid hii.GUID, offset int, data []byte) error {
	if s.WriteErr != nil {
		return s.WriteErr
	}
	key := memKey(name, guid)
	buf, ok := s.vars[key]
	if !ok {
		return fmt.Errorf("%w: %s", hii.ErrVarstoreMissing, key)
	}
	if offset+len(data) > len(buf) {
		return fmt.Errorf("%w: write past end of %s", hii.ErrVarstoreWrite, key)
	}
	copy(buf[offset:], data)
	s.writeCount++
	return nil
}
