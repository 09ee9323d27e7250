package varstore

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
)

// ImmutabilityGuard clears the inode FS_IMMUTABLE_FL attribute on an
// efivarfs file for the duration of a write, restoring it afterward. Unlike
// the file lock and mount guards, restore failures here are logged rather
// than surfaced: by the time this guard unwinds the write has already
// succeeded or failed, and a failed restore shouldn't mask that outcome.
type ImmutabilityGuard struct {
	file     *os.File
	wasFlags int
	log      logr.Logger
}

// AcquireImmutabilityGuard reads the target file's inode flags and, if
// FS_IMMUTABLE_FL is set, clears it so the subsequent write can succeed.
func AcquireImmutabilityGuard(log logr.Logger, path string) (*ImmutabilityGuard, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s for flag read: %w", path, err)
	}

	flags, err := unix.IoctlGetInt(int(f.Fd()), unix.FS_IOC_GETFLAGS)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("FS_IOC_GETFLAGS on %s: %w", path, err)
	}

	g := &ImmutabilityGuard{file: f, wasFlags: flags, log: log}

	if flags&unix.FS_IMMUTABLE_FL == 0 {
		return g, nil
	}

	cleared := flags &^ unix.FS_IMMUTABLE_FL
	if err := unix.IoctlSetPointerInt(int(f.Fd()), unix.FS_IOC_SETFLAGS, cleared); err != nil {
		f.Close()
		return nil, fmt.Errorf("FS_IOC_SETFLAGS clearing immutable on %s: %w", path, err)
	}

	return g, nil
}

// Release restores the inode's original immutable bit. Failures are logged,
// not returned.
func (g *ImmutabilityGuard) Release() error {
	if g == nil || g.file == nil {
		return nil
	}
	defer g.file.Close()

	if g.wasFlags&unix.FS_IMMUTABLE_FL != 0 {
		if err := unix.IoctlSetPointerInt(int(g.file.Fd()), unix.FS_IOC_SETFLAGS, g.wasFlags); err != nil {
			g.log.Error(err, "failed to restore immutable flag", "fd", g.file.Fd())
		}
	}
	return nil
}
