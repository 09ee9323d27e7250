package varstore

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// EfivarsMountPoint is the standard efivarfs mount point.
const EfivarsMountPoint = "/sys/firmware/efi/efivars"

// MountGuard remounts efivarfs read-write for the duration of a write,
// restoring the original mode (and its other mount options) on release. If
// the filesystem is already mounted read-write, acquiring the guard is a
// no-op and releasing it is too.
type MountGuard struct {
	wasReadOnly bool
	options     string
}

// AcquireMountGuard inspects /proc/mounts for the efivarfs entry and, if it
// is mounted read-only, remounts it read-write while preserving its other
// mount options.
func AcquireMountGuard() (*MountGuard, error) {
	ro, opts, err := readMountOptions(EfivarsMountPoint)
	if err != nil {
		return nil, err
	}

	g := &MountGuard{wasReadOnly: ro, options: opts}
	if !ro {
		return g, nil
	}

	if err := remount(opts, false); err != nil {
		return nil, fmt.Errorf("remounting %s rw: %w", EfivarsMountPoint, err)
	}
	return g, nil
}

// Release restores the mount's original read-only state if this guard
// changed it.
func (g *MountGuard) Release() error {
	if g == nil || !g.wasReadOnly {
		return nil
	}
	return remount(g.options, true)
}

func remount(options string, readOnly bool) error {
	flags := uintptr(unix.MS_REMOUNT)
	if readOnly {
		flags |= unix.MS_RDONLY
	}
	return unix.Mount("", EfivarsMountPoint, "efivarfs", flags, options)
}

// readMountOptions scans /proc/mounts for target, returning whether it's
// mounted read-only and its full comma-separated option string.
func readMountOptions(target string) (readOnly bool, options string, err error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return false, "", fmt.Errorf("opening /proc/mounts: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[1] != target {
			continue
		}
		options = fields[3]
		for _, opt := range strings.Split(options, ",") {
			if opt == "ro" {
				return true, options, nil
			}
		}
		return false, options, nil
	}
	if err := scanner.Err(); err != nil {
		return false, "", fmt.Errorf("scanning /proc/mounts: %w", err)
	}
	return false, "", fmt.Errorf("%s not found in /proc/mounts", target)
}
