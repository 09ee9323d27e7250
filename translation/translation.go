// Package translation maps canonical, vendor-neutral question and answer
// names onto the HII or iLO-native spellings a specific backend expects, and
// maps answers back again.
package translation

import "strings"

// Backend identifies which backend's spelling a translation targets.
type Backend int

const (
	Hii Backend = iota
	Ilo
)

// QuestionEntry is one canonical question's known spellings: the HII phrase
// variations it may appear under, a single iLO-native question name, and any
// answer substitutions each backend expects in place of the canonical
// answer text.
type QuestionEntry struct {
	HiiQuestionVariations []string
	IloQuestionName       string
	AnswerReplacements    map[string]AnswerEntry
}

// AnswerEntry carries a canonical answer's backend-specific spellings.
type AnswerEntry struct {
	HiiVariations []string
	IloValue      string
}

// Table is an opaque canonical-name-to-backend-spelling dictionary. Its
// contents are populated by whoever constructs it; this package only
// defines how it is consulted.
type Table map[string]QuestionEntry

// HiiResult is the outcome of resolving a question/answer pair against the
// HII spelling table.
type HiiResult struct {
	Translated        bool
	QuestionVariations []string
	AnswerVariations   []string
}

// VariationsHii resolves the HII phrase variations to try for question and,
// if a mapping exists, the HII spellings to try for answer. When no mapping
// is found the original question and answer are returned unchanged.
func VariationsHii(table Table, question, answer string) HiiResult {
	entry, ok := lookup(table, question)
	if !ok || len(entry.HiiQuestionVariations) == 0 {
		return HiiResult{Translated: false, QuestionVariations: []string{question}, AnswerVariations: []string{answer}}
	}

	answerVariations := []string{answer}
	if repl, ok := lookupAnswer(entry.AnswerReplacements, answer); ok && len(repl.HiiVariations) > 0 {
		answerVariations = repl.HiiVariations
	}

	return HiiResult{
		Translated:         true,
		QuestionVariations: entry.HiiQuestionVariations,
		AnswerVariations:   answerVariations,
	}
}

// IloResult is the outcome of resolving a question/answer pair against the
// iLO-native spelling table.
type IloResult struct {
	Translated         bool
	TranslatedQuestion string
	TranslatedAnswer   string
}

// VariationsIlo resolves the single iLO-native question name and answer to
// send, falling back to the original values when no mapping exists.
func VariationsIlo(table Table, question, answer string) IloResult {
	entry, ok := lookup(table, question)
	if !ok || entry.IloQuestionName == "" {
		return IloResult{Translated: false, TranslatedQuestion: question, TranslatedAnswer: answer}
	}

	translatedAnswer := answer
	if repl, ok := lookupAnswer(entry.AnswerReplacements, answer); ok && repl.IloValue != "" {
		translatedAnswer = repl.IloValue
	}

	return IloResult{
		Translated:         true,
		TranslatedQuestion: entry.IloQuestionName,
		TranslatedAnswer:   translatedAnswer,
	}
}

// ReverseTranslate maps a real backend answer back to its canonical form.
// For the HII backend it checks membership in each answer's variation set;
// for the iLO backend it checks the single iLO value. If nothing matches,
// the answer is returned unchanged.
func ReverseTranslate(table Table, question, realAnswer string, backend Backend) string {
	entry, ok := lookup(table, question)
	if !ok {
		return realAnswer
	}

	for canonical, repl := range entry.AnswerReplacements {
		switch backend {
		case Hii:
			for _, v := range repl.HiiVariations {
				if strings.EqualFold(v, realAnswer) {
					return canonical
				}
			}
		case Ilo:
			if strings.EqualFold(repl.IloValue, realAnswer) {
				return canonical
			}
		}
	}

	return realAnswer
}

func lookup(table Table, question string) (QuestionEntry, bool) {
	for k, v := range table {
		if strings.EqualFold(k, question) {
			return v, true
		}
	}
	return QuestionEntry{}, false
}

func lookupAnswer(replacements map[string]AnswerEntry, answer string) (AnswerEntry, bool) {
	for k, v := range replacements {
		if strings.EqualFold(k, answer) {
			return v, true
		}
	}
	return AnswerEntry{}, false
}
