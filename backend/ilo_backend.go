package backend

import (
	"sort"

	"github.com/go-logr/logr"
	"github.com/metal3-community/uefi-settings/redfish"
	"github.com/metal3-community/uefi-settings/rest"
	"github.com/metal3-community/uefi-settings/translation"
)

// IloBackend reads and writes BIOS, debug, and service attributes over
// Redfish tunneled through Blobstore2. Debug and service collections only
// exist on iLO5 and iLO5 Gen10+; iLO4 exposes bios settings alone.
type IloBackend struct {
	log    logr.Logger
	client *rest.Client
	table  translation.Table
	device redfish.Device
}

// NewIloBackend identifies the reachable iLO generation and builds an
// IloBackend bound to it.
func NewIloBackend(log logr.Logger, client *rest.Client, table translation.Table) (*IloBackend, error) {
	device, err := redfish.IdentifyDevice(client)
	if err != nil {
		return nil, err
	}
	return &IloBackend{log: log, client: client, table: table, device: device}, nil
}

var _ SettingsBackend = (*IloBackend)(nil)

// selectors lists every attribute collection this backend's device exposes,
// by the selector name Resolve accepts; Ilo4 exposes "bios" alone.
func (b *IloBackend) selectors() []string {
	if b.device == redfish.Ilo4 {
		return []string{"bios"}
	}
	return []string{"bios", "debug", "service"}
}

// currentAttributes fetches the named collection's current attribute set.
func (b *IloBackend) currentAttributes(selector string) (redfish.Attributes, error) {
	ep, err := redfish.Resolve(b.device, selector)
	if err != nil {
		return nil, err
	}
	return redfish.GetAttributes(b.client, b.device, ep.Current)
}

// pendingAttributes fetches the named collection's pending (not yet applied)
// attribute set.
func (b *IloBackend) pendingAttributes(selector string) (redfish.Attributes, error) {
	ep, err := redfish.Resolve(b.device, selector)
	if err != nil {
		return nil, err
	}
	return redfish.GetAttributes(b.client, b.device, ep.Pending)
}

// Get looks up question (through the translation table, if mapped) in every
// attribute collection the device exposes, optionally restricted to
// selector, and returns one GetResponse per collection where it was found.
func (b *IloBackend) Get(question, selector string) ([]GetResponse, error) {
	result := translation.VariationsIlo(b.table, question, "")

	var out []GetResponse
	for _, sel := range b.selectorsFiltered(selector) {
		attrs, err := b.currentAttributes(sel)
		if err != nil {
			return nil, err
		}
		raw, ok := attrs[result.TranslatedQuestion]
		s, isStr := raw.(string)
		if !ok || !isStr {
			continue
		}

		answer := s
		if result.Translated {
			answer = translation.ReverseTranslate(b.table, question, s, translation.Ilo)
		}

		out = append(out, GetResponse{
			Selector:     sel,
			Backend:      KindIlo,
			IsTranslated: result.Translated,
			Question:     result.TranslatedQuestion,
			Answer:       answer,
		})
	}

	if len(out) == 0 {
		return nil, errQuestionNotFoundIlo(question, selector)
	}
	return out, nil
}

// Set translates question and newValue, then PATCHes every attribute
// collection whose current value for the translated question is a string
// (i.e. the attribute exists there), returning one SetResponse per
// collection updated.
func (b *IloBackend) Set(question, newValue, selector string) ([]SetResponse, error) {
	result := translation.VariationsIlo(b.table, question, newValue)

	var out []SetResponse
	for _, sel := range b.selectorsFiltered(selector) {
		attrs, err := b.currentAttributes(sel)
		if err != nil {
			return nil, err
		}
		if _, ok := attrs[result.TranslatedQuestion].(string); !ok {
			continue
		}

		ep, err := redfish.Resolve(b.device, sel)
		if err != nil {
			return nil, err
		}
		if err := redfish.UpdateAttribute(b.client, b.device, ep.Update, result.TranslatedQuestion, result.TranslatedAnswer); err != nil {
			return nil, err
		}

		out = append(out, SetResponse{
			Selector:     sel,
			Backend:      KindIlo,
			IsTranslated: result.Translated,
			Question:     result.TranslatedQuestion,
			Modified:     true,
		})
	}

	if len(out) == 0 {
		return nil, errQuestionNotFoundIlo(question, selector)
	}
	return out, nil
}

func (b *IloBackend) selectorsFiltered(selector string) []string {
	if selector == "" {
		return b.selectors()
	}
	for _, s := range b.selectors() {
		if s == selector {
			return []string{s}
		}
	}
	return nil
}

// AttributeSet is one collection's attributes, reduced to string values.
// Attributes is a map, so it carries no key order.
type AttributeSet struct {
	Selector   string
	Attributes map[string]string
}

// ShowAttributes lists every string-valued attribute in every collection the
// device exposes, under its current (already applied) values.
func (b *IloBackend) ShowAttributes() ([]AttributeSet, error) {
	var out []AttributeSet
	for _, sel := range b.selectors() {
		attrs, err := b.currentAttributes(sel)
		if err != nil {
			return nil, err
		}
		out = append(out, AttributeSet{Selector: sel, Attributes: stringValues(attrs)})
	}
	return out, nil
}

// ShowPendingAttributes lists every attribute whose pending value differs
// from its current value, in every collection the device exposes.
func (b *IloBackend) ShowPendingAttributes() ([]AttributeSet, error) {
	var out []AttributeSet
	for _, sel := range b.selectors() {
		current, err := b.currentAttributes(sel)
		if err != nil {
			return nil, err
		}
		pending, err := b.pendingAttributes(sel)
		if err != nil {
			return nil, err
		}
		out = append(out, AttributeSet{Selector: sel, Attributes: diffAttributes(current, pending)})
	}
	return out, nil
}

func stringValues(attrs redfish.Attributes) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func diffAttributes(current, pending redfish.Attributes) map[string]string {
	out := make(map[string]string)
	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		newValue, ok := pending[k].(string)
		if !ok {
			continue
		}
		oldValue, ok := current[k].(string)
		if ok && oldValue == newValue {
			continue
		}
		out[k] = newValue
	}
	return out
}
