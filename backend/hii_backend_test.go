package backend

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/metal3-community/uefi-settings/hii"
	"github.com/metal3-community/uefi-settings/varstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }

func opNode(op byte, opensScope bool, body []byte) []byte {
	length := byte(2 + len(body))
	if opensScope {
		length |= 0x80
	}
	return append([]byte{op, length}, body...)
}

func endNode() []byte { return []byte{hii.OpEnd, 2} }

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func fixedGUID(seed byte) hii.GUID {
	raw := make([]byte, 16)
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	g, _ := hii.ParseGUID(raw)
	return g
}

// buildDB assembles a one-question, one-package-list ParsedHiiDB: a
// FormSet with an EFI varstore "BootConfig" and a "Boot Mode" OneOf
// question with Disabled(0)/Enabled(1) options at varstore offset 0.
func buildDB(t *testing.T) (hii.ParsedHiiDB, hii.GUID, hii.GUID) {
	t.Helper()

	varStoreGUID := fixedGUID(0x40)
	formSetGUID := fixedGUID(0x20)

	varStore := opNode(hii.OpVarStoreEfi, false, cat(
		u16(1),
		varStoreGUID.Bytes(),
		[]byte{0x07, 0x00, 0x00, 0x00},
		u16(1),
		[]byte("BootConfig\x00"),
	))
	question := opNode(hii.OpOneOf, true, cat(
		u16(100), u16(0), u16(1), u16(1), u16(0), []byte{0x00},
		[]byte{0, 1, 1},
	))
	option1 := opNode(hii.OpOneOfOption, false, cat(u16(101), []byte{0x00, 0x00, 0x00}))
	option2 := opNode(hii.OpOneOfOption, false, cat(u16(102), []byte{0x00, 0x00, 0x01}))
	formSet := opNode(hii.OpFormSet, true, cat(
		formSetGUID.Bytes(), u16(1), u16(0), []byte{0x00}, fixedGUID(0x30).Bytes(),
	))

	data := cat(formSet, varStore, question, option1, option2, endNode(), endNode())
	fp, err := hii.ParseFormPackage(data)
	require.NoError(t, err)

	strs := hii.StringMap{1: "Boot Configuration", 100: "Boot Mode", 101: "Disabled", 102: "Enabled"}

	key := formSetGUID.String()
	db := hii.ParsedHiiDB{
		Strings: map[string][]hii.StringMap{key: {strs}},
		Forms:   map[string][]hii.FormPackage{key: {fp}},
	}
	return db, formSetGUID, varStoreGUID
}

// buildDBMissingVarStore assembles the same "Boot Mode" question as buildDB,
// but its FormSet declares no VarStore/VarStoreEfi opcode at all, so the
// question's VarStoreID never resolves.
func buildDBMissingVarStore(t *testing.T) hii.ParsedHiiDB {
	t.Helper()

	formSetGUID := fixedGUID(0x20)

	question := opNode(hii.OpOneOf, true, cat(
		u16(100), u16(0), u16(1), u16(1), u16(0), []byte{0x00},
		[]byte{0, 1, 1},
	))
	option1 := opNode(hii.OpOneOfOption, false, cat(u16(101), []byte{0x00, 0x00, 0x00}))
	option2 := opNode(hii.OpOneOfOption, false, cat(u16(102), []byte{0x00, 0x00, 0x01}))
	formSet := opNode(hii.OpFormSet, true, cat(
		formSetGUID.Bytes(), u16(1), u16(0), []byte{0x00}, fixedGUID(0x30).Bytes(),
	))

	data := cat(formSet, question, option1, option2, endNode(), endNode())
	fp, err := hii.ParseFormPackage(data)
	require.NoError(t, err)

	strs := hii.StringMap{1: "Boot Configuration", 100: "Boot Mode", 101: "Disabled", 102: "Enabled"}

	key := formSetGUID.String()
	return hii.ParsedHiiDB{
		Strings: map[string][]hii.StringMap{key: {strs}},
		Forms:   map[string][]hii.FormPackage{key: {fp}},
	}
}

func TestHiiBackendGetMissingVarStoreYieldsUnknown(t *testing.T) {
	db := buildDBMissingVarStore(t)
	store := varstore.NewMemVarStore()
	hb := NewHiiBackend(logr.Discard(), store, db, nil)

	resp, err := hb.Get("Boot Mode", "")
	require.NoError(t, err)
	require.Len(t, resp, 1)
	assert.Equal(t, "Unknown", resp[0].Answer)
}

func TestHiiBackendSetMissingVarStoreIsNoOp(t *testing.T) {
	db := buildDBMissingVarStore(t)
	store := varstore.NewMemVarStore()
	hb := NewHiiBackend(logr.Discard(), store, db, nil)

	resp, err := hb.Set("Boot Mode", "Disabled", "")
	require.NoError(t, err)
	require.Len(t, resp, 1)
	assert.False(t, resp[0].Modified)
	assert.Equal(t, 0, store.WriteCount())
}

func TestHiiBackendGet(t *testing.T) {
	db, _, varStoreGUID := buildDB(t)
	store := varstore.NewMemVarStore()
	store.Set("BootConfig", varStoreGUID, []byte{0x01})

	hb := NewHiiBackend(logr.Discard(), store, db, nil)

	resp, err := hb.Get("Boot Mode", "")
	require.NoError(t, err)
	require.Len(t, resp, 1)
	assert.Equal(t, "Enabled", resp[0].Answer)
	assert.Equal(t, KindHii, resp[0].Backend)
}

func TestHiiBackendSet(t *testing.T) {
	db, _, varStoreGUID := buildDB(t)
	store := varstore.NewMemVarStore()
	store.Set("BootConfig", varStoreGUID, []byte{0x01})

	hb := NewHiiBackend(logr.Discard(), store, db, nil)

	resp, err := hb.Set("Boot Mode", "Disabled", "")
	require.NoError(t, err)
	require.Len(t, resp, 1)
	assert.True(t, resp[0].Modified)
	assert.Equal(t, 1, store.WriteCount())

	payload, err := store.Read("BootConfig", varStoreGUID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, payload)
}

func TestHiiBackendSetInvalidOption(t *testing.T) {
	db, _, varStoreGUID := buildDB(t)
	store := varstore.NewMemVarStore()
	store.Set("BootConfig", varStoreGUID, []byte{0x01})

	hb := NewHiiBackend(logr.Discard(), store, db, nil)

	_, err := hb.Set("Boot Mode", "Bogus", "")
	assert.ErrorIs(t, err, hii.ErrInvalidOption)
	assert.Equal(t, 0, store.WriteCount())
}

func TestHiiBackendQuestionNotFound(t *testing.T) {
	db, _, _ := buildDB(t)
	store := varstore.NewMemVarStore()
	hb := NewHiiBackend(logr.Discard(), store, db, nil)

	_, err := hb.Get("Nonexistent", "")
	assert.ErrorIs(t, err, hii.ErrQuestionNotFound)
}

func TestHiiBackendListQuestionsAndShowIFR(t *testing.T) {
	db, _, _ := buildDB(t)
	store := varstore.NewMemVarStore()
	hb := NewHiiBackend(logr.Discard(), store, db, nil)

	questions, err := hb.ListQuestions("")
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "Boot Mode", questions[0].Prompt)

	out, err := hb.ShowIFR("")
	require.NoError(t, err)
	assert.Contains(t, out, "Boot Mode")

	strs, err := hb.ListStrings("")
	require.NoError(t, err)
	assert.Contains(t, strs, "Boot Mode")
}
