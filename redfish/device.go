// Package redfish identifies which HPE iLO generation is reachable over
// Blobstore2 and resolves the bios/debug/service Redfish endpoints that
// generation exposes.
package redfish

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/metal3-community/uefi-settings/hii"
	"github.com/metal3-community/uefi-settings/rest"
)

// Device identifies the combination of iLO firmware and server generation
// reachable through a REST client. It is a best-effort guess: even when a
// Gen10 vs Gen10+ distinction can't be made, bios settings still work.
type Device int

const (
	Ilo4 Device = iota
	Ilo5
	Ilo5Gen10Plus
)

func (d Device) String() string {
	switch d {
	case Ilo4:
		return "ilo4"
	case Ilo5Gen10Plus:
		return "ilo5-gen10plus"
	default:
		return "ilo5"
	}
}

// detailsResponse mirrors the fields GET /redfish/v1/ returns that matter for
// device identification; Product is left as a raw string because some
// firmware versions omit it entirely.
type detailsResponse struct {
	Product        string `json:"Product"`
	RedfishVersion string `json:"RedfishVersion"`
}

// IdentifyDevice calls GET /redfish/v1/ and classifies the result: a
// RedfishVersion containing "1.0.0" means iLO4; otherwise a Product
// containing "Gen10 Plus" means Gen10+, and anything else is treated as
// plain iLO5/Gen10.
func IdentifyDevice(client *rest.Client) (Device, error) {
	status, body, err := client.Get("/redfish/v1/")
	if err != nil {
		return 0, err
	}
	if status != 200 {
		return 0, fmt.Errorf("%w: GET /redfish/v1/ returned %d", hii.ErrHttpBadStatus, status)
	}

	var details detailsResponse
	if err := json.Unmarshal(removeNullBytes(body), &details); err != nil {
		return 0, fmt.Errorf("%w: decoding redfish details: %v", hii.ErrMalformed, err)
	}

	if strings.Contains(details.RedfishVersion, "1.0.0") {
		return Ilo4, nil
	}
	if strings.Contains(details.Product, "Gen10 Plus") {
		return Ilo5Gen10Plus, nil
	}
	return Ilo5, nil
}

// removeNullBytes truncates body at its first NUL byte. The chif library
// pads immediate responses with trailing garbage past the JSON payload's own
// terminator, which a strict JSON decoder otherwise rejects.
func removeNullBytes(body []byte) []byte {
	if i := bytes.IndexByte(body, 0); i >= 0 {
		return body[:i]
	}
	return body
}
