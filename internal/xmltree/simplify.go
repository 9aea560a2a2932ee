package xmltree

import (
	"strings"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
)

// Simplify returns a reduced copy for display. Synthetic keys are dropped, a
// mapping left holding only its text collapses to that text, and a wrapper
// whose single entry repeats the wrapper's own key collapses to the inner
// value.
func Simplify(n *confignode.Node) *confignode.Node {
	return simplify("", n)
}

func simplify(key string, n *confignode.Node) *confignode.Node {
	switch {
	case n.IsList():
		out := confignode.NewList()
		for _, it := range n.Items() {
			out.Append(simplify(key, it))
		}
		return out
	case !n.IsMap():
		return n.Strip()
	}

	out := confignode.NewMap()
	var text *confignode.Node
	for _, k := range n.Keys() {
		c, _ := n.Get(k)
		switch k {
		case OrderKey, ModifierKey, ListKey:
			continue
		case TextKey:
			text = c
			continue
		}
		out.Set(k, simplify(k, c))
	}
	if out.Len() == 0 && text != nil {
		return text.Strip()
	}

	if out.Len() == 1 {
		inner := out.Keys()[0]
		if tag, _ := splitKey(key); key != "" && (inner == key || inner == tag || strings.EqualFold(inner, tag)) {
			v, _ := out.Get(inner)
			return v
		}
	}
	return out
}
