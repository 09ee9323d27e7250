// Package backend dispatches settings reads and writes across the two
// supported platforms: direct HII varstore access, and HPE iLO's Redfish
// service reached over Blobstore2. The set of backends is closed by design;
// callers identify which one applies to the running machine and use that
// one directly rather than programming against an open interface
// hierarchy.
package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/metal3-community/uefi-settings/hii"
	"github.com/metal3-community/uefi-settings/transport"
)

// Kind identifies which backend produced a Get/Set result.
type Kind int

const (
	KindHii Kind = iota
	KindIlo
)

func (k Kind) String() string {
	if k == KindIlo {
		return "ilo"
	}
	return "hii"
}

// SettingsBackend is implemented by HiiBackend and IloBackend. Selector
// disambiguates where the question lives: for HiiBackend it's a package-list
// GUID rendered as a string; for IloBackend it's one of "bios", "debug", or
// "service".
type SettingsBackend interface {
	Set(question, newValue, selector string) ([]SetResponse, error)
	Get(question, selector string) ([]GetResponse, error)
}

// SetResponse reports the outcome of one question's write; Modified is false
// when nothing was written (for example, a HII question with no varstore).
type SetResponse struct {
	Selector     string
	Backend      Kind
	IsTranslated bool
	Question     string
	Modified     bool
}

// GetResponse reports one question's current value.
type GetResponse struct {
	Selector     string
	Backend      Kind
	IsTranslated bool
	Question     string
	Answer       string
}

// MachineInfo is read-only identification of which backend(s) apply to the
// running machine and the DMI fields that describe its firmware.
type MachineInfo struct {
	Backends      []Kind
	BiosVendor    string
	BiosVersion   string
	BiosRelease   string
	BiosDate      string
	ProductName   string
	ProductFamily string
	ProductVersion string
}

const dmiPath = "/sys/class/dmi/id"

// IdentifyMachine reports which settings backend(s) are usable on the
// running machine: the HII path is available when the HiiDB efivar exists,
// the iLO path is available when the chif library can reach an iLO
// channel. DMI fields are read best-effort; a missing field is left empty
// rather than failing the whole call.
func IdentifyMachine(chifLibPath string) MachineInfo {
	info := MachineInfo{
		BiosVendor:     readDMIField("bios_vendor"),
		BiosVersion:    readDMIField("bios_version"),
		BiosRelease:    readDMIField("bios_release"),
		BiosDate:       readDMIField("bios_date"),
		ProductName:    readDMIField("product_name"),
		ProductFamily:  readDMIField("product_family"),
		ProductVersion: readDMIField("product_version"),
	}

	if _, err := os.Stat(hii.OCPHiiDBPath); err == nil {
		info.Backends = append(info.Backends, KindHii)
	}

	if checkIloConnectivity(chifLibPath) {
		info.Backends = append(info.Backends, KindIlo)
	}

	return info
}

func checkIloConnectivity(libPath string) bool {
	path := libPath
	if path == "" {
		found, err := transport.FindLibrary()
		if err != nil {
			return false
		}
		path = found
	}

	chif, err := transport.NewChif(logr.Discard(), path)
	if err != nil {
		return false
	}
	defer chif.Close()

	return chif.Ping() == nil
}

// errQuestionNotFoundIlo reports that none of the device's attribute
// collections (optionally narrowed by selector) carried question.
func errQuestionNotFoundIlo(question, selector string) error {
	return fmt.Errorf("%w: %q under selector %q", hii.ErrQuestionNotFound, question, selector)
}

// readDMIField returns the trimmed contents of /sys/class/dmi/id/<field>,
// or an empty string if it can't be read. Missing DMI fields are common on
// virtualized or stripped-down firmware and shouldn't fail identification.
func readDMIField(field string) string {
	raw, err := os.ReadFile(filepath.Join(dmiPath, field))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
