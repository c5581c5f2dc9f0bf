package nbt

import (
	"fmt"
	"strings"
)

// maxInlineArray caps how many array elements Format prints before eliding.
const maxInlineArray = 8

// Format renders a tree as indented text for inspection tools.
func Format(name string, root *Compound) string {
	var b strings.Builder
	formatTag(&b, name, root, 0)
	return b.String()
}

func formatTag(b *strings.Builder, name string, t Tag, indent int) {
	pad := strings.Repeat("  ", indent)
	label := ""
	if name != "" {
		label = fmt.Sprintf("%q: ", name)
	}
	switch v := t.(type) {
	case *Compound:
		fmt.Fprintf(b, "%s%s{ // %d entries\n", pad, label, v.Len())
		for _, e := range v.Entries() {
			formatTag(b, e.Name, e.Value, indent+1)
		}
		fmt.Fprintf(b, "%s}\n", pad)
	case *List:
		fmt.Fprintf(b, "%s%s[ // %d x %v\n", pad, label, v.Len(), v.Elem)
		for _, it := range v.Items {
			formatTag(b, "", it, indent+1)
		}
		fmt.Fprintf(b, "%s]\n", pad)
	case ByteArray:
		fmt.Fprintf(b, "%s%sbyte[%d] %s\n", pad, label, len(v), head(v))
	case IntArray:
		fmt.Fprintf(b, "%s%sint[%d] %s\n", pad, label, len(v), head(v))
	case LongArray:
		fmt.Fprintf(b, "%s%slong[%d] %s\n", pad, label, len(v), head(v))
	case String:
		fmt.Fprintf(b, "%s%s%q\n", pad, label, string(v))
	default:
		fmt.Fprintf(b, "%s%s%v (%v)\n", pad, label, t, typeOf(t))
	}
}

func head[T any](v []T) string {
	if len(v) <= maxInlineArray {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(fmt.Sprint(v[:maxInlineArray]), "]") + " ...]"
}
