package backend

import (
	"fmt"
	"sort"

	"github.com/go-logr/logr"
	"github.com/metal3-community/uefi-settings/hii"
	"github.com/metal3-community/uefi-settings/translation"
	"github.com/metal3-community/uefi-settings/varstore"
)

// HiiBackend reads and writes questions directly out of the decoded HII
// database, splicing answers into the EFI varstore the question's form set
// declares. Selector, when non-empty, restricts a call to a single
// package-list GUID; when empty every package list in the database is
// searched.
type HiiBackend struct {
	log   logr.Logger
	store varstore.VarStore
	db    hii.ParsedHiiDB
	table translation.Table
}

// NewHiiBackend builds a HiiBackend over an already decoded database. table
// may be nil, in which case every question and answer is looked up under its
// literal HII spelling.
func NewHiiBackend(log logr.Logger, store varstore.VarStore, db hii.ParsedHiiDB, table translation.Table) *HiiBackend {
	return &HiiBackend{log: log, store: store, db: db, table: table}
}

var _ SettingsBackend = (*HiiBackend)(nil)

// packageListKeys returns the package-list GUID keys to search: just
// selector if it names one, otherwise every key the database has forms for,
// sorted for deterministic iteration order.
func (b *HiiBackend) packageListKeys(selector string) []string {
	if selector != "" {
		return []string{selector}
	}
	keys := make([]string, 0, len(b.db.Forms))
	for k := range b.db.Forms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stringsFor returns the string map paired with form package index i under
// key, falling back to the last available string map, or an empty one if
// the package list carries no strings at all.
func (b *HiiBackend) stringsFor(key string, i int) hii.StringMap {
	maps := b.db.Strings[key]
	if len(maps) == 0 {
		return hii.StringMap{}
	}
	if i < len(maps) {
		return maps[i]
	}
	return maps[len(maps)-1]
}

// Get resolves question (optionally passed through the translation table)
// against every form package under the given selector and returns one
// GetResponse per form package where a matching question was found. A
// question whose varstore is missing, unreadable, or too short to cover its
// value yields an answer of "Unknown" rather than failing the call.
func (b *HiiBackend) Get(question, selector string) ([]GetResponse, error) {
	result := translation.VariationsHii(b.table, question, "")

	var out []GetResponse
	for _, key := range b.packageListKeys(selector) {
		for i, fp := range b.db.Forms[key] {
			strs := b.stringsFor(key, i)

			qi, ok := hii.FindQuestion(fp, strs, result.QuestionVariations)
			if !ok {
				continue
			}

			raw := "Unknown"
			if qi.VarStore.Name != "" {
				if payload, err := b.store.Read(qi.VarStore.Name, qi.VarStore.GUID); err == nil {
					if v, err := qi.CurrentValue(payload, strs); err == nil {
						raw = v
					}
				}
			}

			answer := raw
			if result.Translated {
				answer = translation.ReverseTranslate(b.table, question, raw, translation.Hii)
			}

			out = append(out, GetResponse{
				Selector:     key,
				Backend:      KindHii,
				IsTranslated: result.Translated,
				Question:     question,
				Answer:       answer,
			})
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q under selector %q", hii.ErrQuestionNotFound, question, selector)
	}
	return out, nil
}

// Set resolves question and newValue the same way Get resolves question,
// then writes the matching raw value into every package list's varstore
// where the question exists. If newValue doesn't match any of the
// question's options (or, for an unmapped answer, any HII variation) in any
// package list, Set returns ErrInvalidOption without writing anywhere. A
// target whose varstore is missing is a no-op: it reports Modified: false
// rather than failing the call.
func (b *HiiBackend) Set(question, newValue, selector string) ([]SetResponse, error) {
	result := translation.VariationsHii(b.table, question, newValue)

	type target struct {
		key string
		qi  hii.QuestionInfo
		strs hii.StringMap
	}
	var targets []target
	for _, key := range b.packageListKeys(selector) {
		for i, fp := range b.db.Forms[key] {
			strs := b.stringsFor(key, i)
			if qi, ok := hii.FindQuestion(fp, strs, result.QuestionVariations); ok {
				targets = append(targets, target{key: key, qi: qi, strs: strs})
			}
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: %q under selector %q", hii.ErrQuestionNotFound, question, selector)
	}

	// Check newValue against every writable target before writing any, so a
	// rejected value leaves every varstore untouched.
	for _, t := range targets {
		if t.qi.VarStore.Name == "" {
			continue
		}
		var err error
		for _, answer := range result.AnswerVariations {
			if _, _, err = t.qi.ChangeValue(answer, t.strs); err == nil {
				break
			}
		}
		if err != nil {
			return nil, err
		}
	}

	var out []SetResponse
	for _, t := range targets {
		if t.qi.VarStore.Name == "" {
			out = append(out, SetResponse{
				Selector:     t.key,
				Backend:      KindHii,
				IsTranslated: result.Translated,
				Question:     question,
				Modified:     false,
			})
			continue
		}

		var (
			data   []byte
			offset int
			err    error
		)
		for _, answer := range result.AnswerVariations {
			data, offset, err = t.qi.ChangeValue(answer, t.strs)
			if err == nil {
				break
			}
		}
		if err != nil {
			return nil, err
		}

		if err := b.store.WriteAtOffset(t.qi.VarStore.Name, t.qi.VarStore.GUID, offset, data); err != nil {
			return nil, err
		}

		out = append(out, SetResponse{
			Selector:     t.key,
			Backend:      KindHii,
			IsTranslated: result.Translated,
			Question:     question,
			Modified:     true,
		})
	}

	return out, nil
}

// ShowIFR renders every form package under selector as indented text, for
// interactive inspection of a package list's opcode tree.
func (b *HiiBackend) ShowIFR(selector string) (string, error) {
	var out string
	for _, key := range b.packageListKeys(selector) {
		for i, fp := range b.db.Forms[key] {
			out += fmt.Sprintf("package-list %s\n", key)
			out += hii.Display(fp, b.stringsFor(key, i))
		}
	}
	return out, nil
}

// ListStrings returns every string value declared under selector's string
// packages, in package-list then block order.
func (b *HiiBackend) ListStrings(selector string) ([]string, error) {
	var out []string
	keys := []string{selector}
	if selector == "" {
		keys = keys[:0]
		for k := range b.db.Strings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	for _, key := range keys {
		for _, sm := range b.db.Strings[key] {
			ids := make([]int, 0, len(sm))
			for id := range sm {
				ids = append(ids, int(id))
			}
			sort.Ints(ids)
			for _, id := range ids {
				out = append(out, sm[uint16(id)])
			}
		}
	}
	return out, nil
}

// ListQuestions returns every addressable question under selector's form
// packages.
func (b *HiiBackend) ListQuestions(selector string) ([]hii.QuestionInfo, error) {
	var out []hii.QuestionInfo
	for _, key := range b.packageListKeys(selector) {
		for i, fp := range b.db.Forms[key] {
			out = append(out, hii.ListQuestions(fp, b.stringsFor(key, i))...)
		}
	}
	return out, nil
}
