package hii

import (
	"fmt"
	"strings"
)

// Display renders a form package's opcode tree as indented, human readable
// text, resolving string ids against strs wherever a node's parsed payload
// names one. It supplements spec.md's get/set-focused data model with the
// read-only introspection the original tooling's `show-ifr` exposes.
func Display(fp FormPackage, strs StringMap) string {
	var b strings.Builder
	for _, child := range fp.Nodes[fp.Root()].Children {
		displayNode(&b, fp, strs, child, 0)
	}
	return b.String()
}

func displayNode(b *strings.Builder, fp FormPackage, strs StringMap, idx, depth int) {
	n := fp.Nodes[idx]
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s%s\n", indent, describeNode(n, strs))
	for _, child := range n.Children {
		displayNode(b, fp, strs, child, depth+1)
	}
}

func describeNode(n Node, strs StringMap) string {
	switch v := n.ParsedData.(type) {
	case FormSetData:
		return fmt.Sprintf("FormSet %s: %q", v.GUID, strs[v.TitleStringID])
	case FormData:
		return fmt.Sprintf("Form %d: %q", v.FormID, strs[v.TitleStringID])
	case TextData:
		return fmt.Sprintf("Text: %q", strs[v.PromptStringID])
	case SubtitleData:
		return fmt.Sprintf("Subtitle: %q", strs[v.PromptStringID])
	case QuestionHeader:
		return fmt.Sprintf("%s: %q (question id %d)", opcodeName(n.OpCode), strs[v.PromptStringID], v.QuestionID)
	case OneOfOption:
		return fmt.Sprintf("OneOfOption: %q", strs[v.StringID])
	case VarStoreDecl:
		return fmt.Sprintf("%s %q: %s", opcodeName(n.OpCode), v.Name, v.GUID)
	case DefaultStoreData:
		return fmt.Sprintf("DefaultStore: %q", strs[v.NameStringID])
	case DefaultData:
		return fmt.Sprintf("Default id %d", v.DefaultID)
	case QuestionRef1Data:
		return fmt.Sprintf("QuestionRef1: question id %d", v.QuestionID)
	case EqIdValData:
		return fmt.Sprintf("EqIdVal: question id %d == %d", v.QuestionID, v.Value)
	case EqIdValListData:
		return fmt.Sprintf("EqIdValList: question id %d in %v", v.QuestionID, v.ValueList)
	default:
		return fmt.Sprintf("Unknown(0x%02X)", n.OpCode)
	}
}

func opcodeName(op byte) string {
	switch op {
	case OpOneOf:
		return "OneOf"
	case OpNumeric:
		return "Numeric"
	case OpCheckBox:
		return "CheckBox"
	case OpVarStore:
		return "VarStore"
	case OpVarStoreEfi:
		return "VarStoreEfi"
	default:
		return fmt.Sprintf("Op(0x%02X)", op)
	}
}
