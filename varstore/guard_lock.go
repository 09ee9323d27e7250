// Package varstore implements read and guarded write access to EFI
// variables backing HII varstores, exposed by the kernel through efivarfs.
package varstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/metal3-community/uefi-settings/hii"
	"golang.org/x/sys/unix"
)

// LockPath is the advisory lock file used to serialize concurrent writers
// across processes, mirroring the lock efibootmgr-style tools already take
// before touching efivarfs.
const LockPath = "/run/lock/efibootmgr-remount"

// FileLock is a non-blocking, cross-process exclusive lock taken before any
// other part of the guard stack. It is always the first guard acquired and
// the last released.
type FileLock struct {
	file *os.File
}

// AcquireFileLock opens (creating if necessary) and exclusively locks
// LockPath, failing immediately with ErrBusy rather than blocking if another
// process already holds it.
func AcquireFileLock() (*FileLock, error) {
	f, err := os.OpenFile(LockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", LockPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, hii.ErrBusy
		}
		return nil, fmt.Errorf("flock %s: %w", LockPath, err)
	}

	return &FileLock{file: f}, nil
}

// Release unlocks and closes the lock file, returning the first failure. The
// caller logs that error rather than propagating it, since by the time a
// guard is released a write has usually already completed or failed and the
// guard stack must still unwind.
func (l *FileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	return err
}
