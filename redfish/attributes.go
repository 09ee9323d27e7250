package redfish

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/metal3-community/uefi-settings/hii"
	"github.com/metal3-community/uefi-settings/rest"
)

// successMessage is the substring a PATCH's returned message must contain
// for the change to be considered applied; both generations report it as
// part of a reset-required notice.
const successMessage = "SystemResetRequired"

// ilo4IgnoredKeys are fields iLO4 mixes directly into its flat bios-settings
// map that aren't actual BIOS attributes.
var ilo4IgnoredKeys = []string{
	"links", "Type", "SettingsResult", "Modified", "Description",
	"AttributeRegistry", "SettingsObject", "Name",
}

// Attributes is a decoded set of BIOS/debug/service attribute name-value
// pairs, as returned by either generation's settings endpoint.
type Attributes map[string]any

type redfishSettings struct {
	AttributeRegistry string     `json:"AttributeRegistry"`
	Attributes        Attributes `json:"Attributes"`
	ID                string     `json:"Id"`
	Name              string     `json:"Name"`
}

type redfishMessage struct {
	MessageIDIlo5 string `json:"MessageId"`
	MessageIDIlo4 string `json:"MessageID"`
}

func (m redfishMessage) succeeded(d Device) bool {
	if d == Ilo4 {
		return strings.Contains(m.MessageIDIlo4, successMessage)
	}
	return strings.Contains(m.MessageIDIlo5, successMessage)
}

type redfishError struct {
	Code                string           `json:"code"`
	Message             string           `json:"message"`
	MessageExtendedInfo []redfishMessage `json:"@Message.ExtendedInfo"`
}

type redfishPatchResult struct {
	Error redfishError `json:"error"`
}

type redfishUpdateAttribute struct {
	Attributes Attributes `json:"Attributes"`
}

// Endpoints is the set of Redfish paths one question selector ("bios",
// "debug", "service") resolves to on a given Device. Debug and service are
// unavailable on Ilo4; Current carries no trailing slash for Ilo5Gen10Plus's
// debug/service paths, matching a quirk in its OEM routes.
type Endpoints struct {
	Current string
	Pending string
	Update  string
}

// ErrSelectorUnsupported is returned when a selector ("debug"/"service")
// isn't available on the identified device.
var ErrSelectorUnsupported = fmt.Errorf("%w: selector not supported on this device", hii.ErrUnknownBackend)

// Resolve returns the bios/debug/service endpoints for device and selector.
func Resolve(device Device, selector string) (Endpoints, error) {
	switch selector {
	case "bios":
		return Endpoints{
			Current: "/redfish/v1/systems/1/bios/",
			Pending: "/redfish/v1/systems/1/bios/settings/",
			Update:  "/redfish/v1/systems/1/bios/settings/",
		}, nil
	case "debug":
		switch device {
		case Ilo5:
			return Endpoints{
				Current: "/redfish/v1/systems/1/bios/gubed/",
				Pending: "/redfish/v1/systems/1/bios/gubed/settings/",
				Update:  "/redfish/v1/systems/1/bios/gubed/settings/",
			}, nil
		case Ilo5Gen10Plus:
			return Endpoints{
				Current: "/redfish/v1/systems/1/bios/oem/hpe/gubed",
				Pending: "/redfish/v1/systems/1/bios/oem/hpe/gubed/settings/",
				Update:  "/redfish/v1/systems/1/bios/oem/hpe/gubed/settings/",
			}, nil
		default:
			return Endpoints{}, ErrSelectorUnsupported
		}
	case "service":
		switch device {
		case Ilo5:
			return Endpoints{
				Current: "/redfish/v1/systems/1/bios/service/",
				Pending: "/redfish/v1/systems/1/bios/service/settings/",
				Update:  "/redfish/v1/systems/1/bios/service/settings/",
			}, nil
		case Ilo5Gen10Plus:
			return Endpoints{
				Current: "/redfish/v1/systems/1/bios/oem/hpe/service",
				Pending: "/redfish/v1/systems/1/bios/oem/hpe/service/settings/",
				Update:  "/redfish/v1/systems/1/bios/oem/hpe/service/settings/",
			}, nil
		default:
			return Endpoints{}, ErrSelectorUnsupported
		}
	default:
		return Endpoints{}, fmt.Errorf("%w: unknown selector %q", hii.ErrUnknownBackend, selector)
	}
}

// GetAttributes fetches endpoint and decodes it as a standardized Redfish
// settings resource (device != Ilo4) or, for Ilo4, as a flat attribute map
// with its non-attribute bookkeeping keys stripped.
func GetAttributes(client *rest.Client, device Device, endpoint string) (Attributes, error) {
	status, body, err := client.Get(endpoint)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("%w: GET %s returned %d", hii.ErrHttpBadStatus, endpoint, status)
	}
	clean := removeNullBytes(body)

	if device == Ilo4 {
		var attrs Attributes
		if err := json.Unmarshal(clean, &attrs); err != nil {
			return nil, fmt.Errorf("%w: decoding ilo4 attributes: %v", hii.ErrMalformed, err)
		}
		for _, k := range ilo4IgnoredKeys {
			delete(attrs, k)
		}
		return attrs, nil
	}

	var settings redfishSettings
	if err := json.Unmarshal(clean, &settings); err != nil {
		return nil, fmt.Errorf("%w: decoding redfish settings: %v", hii.ErrMalformed, err)
	}
	return settings.Attributes, nil
}

// UpdateAttribute PATCHes a single attribute at endpoint. Ilo4's body is a
// flat {attribute: value} map; every other device wraps it in
// {"Attributes": {...}}, matching the two generations' differing PATCH
// schemas. Success is determined by scanning the response's
// @Message.ExtendedInfo for a message containing "SystemResetRequired"
// under the field name the device actually populates.
func UpdateAttribute(client *rest.Client, device Device, endpoint, attribute, newValue string) error {
	var payload any
	if device == Ilo4 {
		payload = Attributes{attribute: newValue}
	} else {
		payload = redfishUpdateAttribute{Attributes: Attributes{attribute: newValue}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding patch body: %w", err)
	}

	status, respBody, err := client.Patch(endpoint, body)
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("%w: PATCH %s returned %d", hii.ErrHttpBadStatus, endpoint, status)
	}

	var result redfishPatchResult
	if err := json.Unmarshal(removeNullBytes(respBody), &result); err != nil {
		return fmt.Errorf("%w: decoding patch result: %v", hii.ErrMalformed, err)
	}

	for _, msg := range result.Error.MessageExtendedInfo {
		if msg.succeeded(device) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s did not report %s after updating %q", hii.ErrMalformed, endpoint, successMessage, attribute)
}
