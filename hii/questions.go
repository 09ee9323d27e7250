package hii

import (
	"strconv"
	"strings"
)

// QuestionInfo is a fully resolved, user-addressable question: a value
// bearing opcode (OneOf, CheckBox, or Numeric) together with the prompt text
// and varstore binding needed to read or change its value.
type QuestionInfo struct {
	NodeIndex int
	OpCode    byte
	Prompt    string
	Header    QuestionHeader
	Range     Range
	HasRange  bool
	Options   []OneOfOption
	VarStore  VarStoreDecl
}

// ListQuestions walks a form package's arena and returns every value bearing
// question node, resolving its prompt text and enclosing varstore. Questions
// with no prompt text and no options are skipped, matching the read-only
// introspection behavior used for listing.
func ListQuestions(fp FormPackage, strs StringMap) []QuestionInfo {
	var out []QuestionInfo
	for i, n := range fp.Nodes {
		switch n.OpCode {
		case OpOneOf, OpCheckBox, OpNumeric:
		default:
			continue
		}
		qi, err := buildQuestionInfo(fp, i, strs)
		if err != nil {
			continue
		}
		if qi.Prompt == "" && len(qi.Options) == 0 {
			continue
		}
		out = append(out, qi)
	}
	return out
}

// FindQuestion looks up a question by prompt text, matching case
// insensitively and ignoring leading/trailing whitespace, trying every
// supplied phrase variation in order.
func FindQuestion(fp FormPackage, strs StringMap, phrases []string) (QuestionInfo, bool) {
	for _, phrase := range phrases {
		want := normalizePhrase(phrase)
		for i, n := range fp.Nodes {
			switch n.OpCode {
			case OpOneOf, OpCheckBox, OpNumeric:
			default:
				continue
			}
			qi, err := buildQuestionInfo(fp, i, strs)
			if err != nil {
				continue
			}
			if normalizePhrase(qi.Prompt) == want {
				return qi, true
			}
		}
	}
	return QuestionInfo{}, false
}

func normalizePhrase(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func buildQuestionInfo(fp FormPackage, idx int, strs StringMap) (QuestionInfo, error) {
	n := fp.Nodes[idx]
	hdr, err := ParseQuestionHeader(n.Data)
	if err != nil {
		return QuestionInfo{}, err
	}

	qi := QuestionInfo{
		NodeIndex: idx,
		OpCode:    n.OpCode,
		Prompt:    strs[hdr.PromptStringID],
		Header:    hdr,
	}

	rest := n.Data[11:]
	switch n.OpCode {
	case OpOneOf, OpNumeric:
		if rng, _, err := ParseRange(hdr.QuestionFlags, rest); err == nil {
			qi.Range = rng
			qi.HasRange = true
		}
	case OpCheckBox:
		qi.Range = Range{WidthBits: 8, Min: 0, Max: 1, Step: 1}
		qi.HasRange = true
	}

	for _, childIdx := range n.Children {
		child := fp.Nodes[childIdx]
		if child.OpCode != OpOneOfOption {
			continue
		}
		opt, err := ParseOneOfOption(child.Data)
		if err != nil {
			continue
		}
		qi.Options = append(qi.Options, opt)
	}

	if vs, ok := resolveVarStore(fp, idx, hdr.VarStoreID); ok {
		qi.VarStore = vs
	}

	return qi, nil
}

// resolveVarStore walks up from a question node to its enclosing FormSet and
// scans that FormSet's direct children for the VarStore/VarStoreEfi
// declaration matching varStoreID.
func resolveVarStore(fp FormPackage, nodeIdx int, varStoreID uint16) (VarStoreDecl, bool) {
	cur := fp.Nodes[nodeIdx].Parent
	for cur != -1 && fp.Nodes[cur].OpCode != OpFormSet {
		cur = fp.Nodes[cur].Parent
	}
	if cur == -1 {
		return VarStoreDecl{}, false
	}

	for _, childIdx := range fp.Nodes[cur].Children {
		child := fp.Nodes[childIdx]
		var decl VarStoreDecl
		var err error
		switch child.OpCode {
		case OpVarStore:
			decl, err = ParseVarStore(child.Data)
		case OpVarStoreEfi:
			decl, err = ParseVarStoreEfi(child.Data)
		default:
			continue
		}
		if err != nil {
			continue
		}
		if decl.VarStoreID == varStoreID {
			return decl, true
		}
	}
	return VarStoreDecl{}, false
}

// widthBytes returns the byte width implied by a range's WidthBits.
func widthBytes(bits int) int {
	switch bits {
	case 16:
		return 2
	case 32:
		return 4
	case 64:
		return 8
	default:
		return 1
	}
}

// CurrentValue reads and formats a question's present value out of raw
// varstore payload bytes (the bytes following the efivarfs attribute
// prefix). If the question has options, a matching option's display string
// is returned, or "Unknown" when no option carries the stored value;
// otherwise the numeric value is rendered in decimal.
func (qi QuestionInfo) CurrentValue(varstorePayload []byte, strs StringMap) (string, error) {
	off := int(qi.Header.VarStoreInfo)
	width := 1
	if qi.HasRange {
		width = widthBytes(qi.Range.WidthBits)
	}
	if off < 0 || off+width > len(varstorePayload) {
		return "", ErrVarstoreRead
	}

	raw := readWidth(varstorePayload[off:off+width], width)

	for _, opt := range qi.Options {
		if opt.Value.U64 == raw {
			return strs[opt.StringID], nil
		}
	}
	if len(qi.Options) > 0 {
		return "Unknown", nil
	}

	return strconv.FormatUint(raw, 10), nil
}

func readWidth(b []byte, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func writeWidth(v uint64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

// ChangeValue validates newValue against the question's options or numeric
// range and returns the raw bytes to splice into the varstore payload along
// with the byte offset to splice them at.
func (qi QuestionInfo) ChangeValue(newValue string, strs StringMap) (data []byte, offset int, err error) {
	offset = int(qi.Header.VarStoreInfo)
	width := 1
	if qi.HasRange {
		width = widthBytes(qi.Range.WidthBits)
	}

	if len(qi.Options) > 0 {
		want := normalizePhrase(newValue)
		for _, opt := range qi.Options {
			if normalizePhrase(strs[opt.StringID]) == want {
				return writeWidth(opt.Value.U64, width), offset, nil
			}
		}
		return nil, 0, ErrInvalidOption
	}

	n, parseErr := strconv.ParseUint(strings.TrimSpace(newValue), 10, 64)
	if parseErr != nil {
		return nil, 0, ErrInvalidOption
	}
	if qi.HasRange && n > qi.Range.Max {
		return nil, 0, ErrExceededMaxValue
	}
	return writeWidth(n, width), offset, nil
}
