package translation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleTable() Table {
	return Table{
		"Secure Boot": QuestionEntry{
			HiiQuestionVariations: []string{"Secure Boot Control", "Secure Boot"},
			IloQuestionName:       "SecureBootStatus",
			AnswerReplacements: map[string]AnswerEntry{
				"On": {
					HiiVariations: []string{"Enabled", "Enable"},
					IloValue:      "Enabled",
				},
				"Off": {
					HiiVariations: []string{"Disabled", "Disable"},
					IloValue:      "Disabled",
				},
			},
		},
	}
}

func TestVariationsHiiTranslated(t *testing.T) {
	table := sampleTable()
	res := VariationsHii(table, "secure boot", "On")

	assert.True(t, res.Translated)
	assert.Equal(t, []string{"Secure Boot Control", "Secure Boot"}, res.QuestionVariations)
	assert.Equal(t, []string{"Enabled", "Enable"}, res.AnswerVariations)
}

func TestVariationsHiiUnmapped(t *testing.T) {
	table := sampleTable()
	res := VariationsHii(table, "Unrelated Question", "whatever")

	assert.False(t, res.Translated)
	assert.Equal(t, []string{"Unrelated Question"}, res.QuestionVariations)
	assert.Equal(t, []string{"whatever"}, res.AnswerVariations)
}

func TestVariationsIloTranslated(t *testing.T) {
	table := sampleTable()
	res := VariationsIlo(table, "Secure Boot", "Off")

	assert.True(t, res.Translated)
	assert.Equal(t, "SecureBootStatus", res.TranslatedQuestion)
	assert.Equal(t, "Disabled", res.TranslatedAnswer)
}

func TestReverseTranslate(t *testing.T) {
	table := sampleTable()

	assert.Equal(t, "On", ReverseTranslate(table, "Secure Boot", "Enable", Hii))
	assert.Equal(t, "Off", ReverseTranslate(table, "Secure Boot", "Disabled", Ilo))
	assert.Equal(t, "Unmapped", ReverseTranslate(table, "Secure Boot", "Unmapped", Hii))
}
