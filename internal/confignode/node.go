// Package confignode models the neutral configuration tree shared by the
// overlay resolver, the XML adapter and every consumer of composed
// configuration: a node is a scalar, an insertion-ordered mapping or an
// ordered list.
package confignode

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies the shape of a Node.
type Kind int

const (
	KindScalar Kind = iota
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMap:
		return "mapping"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Lock is overlay protection carried by a node between merges. It is metadata,
// never a visible entry of the mapping or list it protects.
type Lock struct {
	// All shields every entry of a mapping (or the whole list) from later overlays.
	All bool
	// Keys shields the named mapping entries only.
	Keys []string
	// Parent shields the node from removal by its parent but leaves its
	// contents open to change.
	Parent bool
}

// Rigid reports whether the node may not be deleted by a parent overlay.
func (l *Lock) Rigid() bool {
	return l != nil && (l.All || len(l.Keys) > 0 || l.Parent)
}

// Shields reports whether the mapping entry key is protected.
func (l *Lock) Shields(key string) bool {
	if l == nil {
		return false
	}
	if l.All {
		return true
	}
	for _, k := range l.Keys {
		if k == key {
			return true
		}
	}
	return false
}

func (l *Lock) clone() *Lock {
	if l == nil {
		return nil
	}
	c := &Lock{All: l.All, Parent: l.Parent}
	if len(l.Keys) > 0 {
		c.Keys = append([]string(nil), l.Keys...)
	}
	return c
}

// Node is one value of a configuration tree.
type Node struct {
	kind  Kind
	value any
	keys  []string
	vals  map[string]*Node
	items []*Node
	lock  *Lock
}

// NewScalar wraps a string, bool, number or nil. Integer types normalize to
// int64 and floating types to float64.
func NewScalar(v any) *Node {
	return &Node{kind: KindScalar, value: normalizeScalar(v)}
}

// NewString is shorthand for a string scalar.
func NewString(s string) *Node {
	return &Node{kind: KindScalar, value: s}
}

// NewMap returns an empty ordered mapping.
func NewMap() *Node {
	return &Node{kind: KindMap, vals: map[string]*Node{}}
}

// NewList returns a list holding items in order.
func NewList(items ...*Node) *Node {
	n := &Node{kind: KindList}
	n.items = append(n.items, items...)
	return n
}

// Empty returns an empty node of the given kind.
func Empty(k Kind) *Node {
	switch k {
	case KindMap:
		return NewMap()
	case KindList:
		return NewList()
	default:
		return NewScalar(nil)
	}
}

func (n *Node) Kind() Kind { return n.kind }

func (n *Node) IsScalar() bool { return n != nil && n.kind == KindScalar }
func (n *Node) IsMap() bool    { return n != nil && n.kind == KindMap }
func (n *Node) IsList() bool   { return n != nil && n.kind == KindList }

// Value returns the scalar payload, or nil for containers.
func (n *Node) Value() any {
	if n == nil || n.kind != KindScalar {
		return nil
	}
	return n.value
}

// Str returns the scalar as a string when it is one.
func (n *Node) Str() (string, bool) {
	if n == nil || n.kind != KindScalar {
		return "", false
	}
	s, ok := n.value.(string)
	return s, ok
}

// Text renders any scalar as text; containers render empty.
func (n *Node) Text() string {
	if n == nil || n.kind != KindScalar || n.value == nil {
		return ""
	}
	switch v := n.value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Len is the number of entries of a mapping or items of a list.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	switch n.kind {
	case KindMap:
		return len(n.keys)
	case KindList:
		return len(n.items)
	default:
		return 0
	}
}

// Keys returns the mapping keys in insertion order.
func (n *Node) Keys() []string {
	if n == nil || n.kind != KindMap {
		return nil
	}
	return append([]string(nil), n.keys...)
}

// Get looks up a mapping entry.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.kind != KindMap {
		return nil, false
	}
	v, ok := n.vals[key]
	return v, ok
}

// Set stores a mapping entry, keeping the original position of an existing key.
func (n *Node) Set(key string, v *Node) {
	if n.kind != KindMap {
		panic("confignode: Set on " + n.kind.String())
	}
	if _, ok := n.vals[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.vals[key] = v
}

// Delete removes a mapping entry if present.
func (n *Node) Delete(key string) {
	if n == nil || n.kind != KindMap {
		return
	}
	if _, ok := n.vals[key]; !ok {
		return
	}
	delete(n.vals, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			break
		}
	}
}

// Items returns the list items; the slice is a copy, the nodes are shared.
func (n *Node) Items() []*Node {
	if n == nil || n.kind != KindList {
		return nil
	}
	return append([]*Node(nil), n.items...)
}

// Append adds items to the end of a list.
func (n *Node) Append(items ...*Node) {
	if n.kind != KindList {
		panic("confignode: Append on " + n.kind.String())
	}
	n.items = append(n.items, items...)
}

// SetItems replaces the list contents.
func (n *Node) SetItems(items []*Node) {
	if n.kind != KindList {
		panic("confignode: SetItems on " + n.kind.String())
	}
	n.items = append([]*Node(nil), items...)
}

// Lock returns the overlay protection attached to the node.
func (n *Node) Lock() *Lock {
	if n == nil {
		return nil
	}
	return n.lock
}

// SetLock attaches overlay protection. A nil lock clears it.
func (n *Node) SetLock(l *Lock) { n.lock = l }

// Clone deep-copies the tree including lock metadata.
func (n *Node) Clone() *Node {
	return n.copyTree(true)
}

// Strip deep-copies the tree dropping all lock metadata.
func (n *Node) Strip() *Node {
	return n.copyTree(false)
}

func (n *Node) copyTree(keepLocks bool) *Node {
	if n == nil {
		return nil
	}
	c := &Node{kind: n.kind, value: n.value}
	if keepLocks {
		c.lock = n.lock.clone()
	}
	switch n.kind {
	case KindMap:
		c.keys = make([]string, len(n.keys))
		copy(c.keys, n.keys)
		c.vals = make(map[string]*Node, len(n.vals))
		for k, v := range n.vals {
			c.vals[k] = v.copyTree(keepLocks)
		}
	case KindList:
		c.items = make([]*Node, len(n.items))
		for i, it := range n.items {
			c.items[i] = it.copyTree(keepLocks)
		}
	}
	return c
}

// Equal reports deep equality of values. Mapping key order and lock metadata
// are ignored; list order is significant.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindScalar:
		return scalarEqual(a.value, b.value)
	case KindMap:
		if len(a.keys) != len(b.keys) {
			return false
		}
		for k, av := range a.vals {
			bv, ok := b.vals[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	}
}

// OrderedEqual is Equal that also requires identical mapping key order.
func OrderedEqual(a, b *Node) bool {
	if !Equal(a, b) {
		return false
	}
	switch {
	case a == nil:
		return true
	case a.kind == KindMap:
		for i, k := range a.keys {
			if b.keys[i] != k || !OrderedEqual(a.vals[k], b.vals[k]) {
				return false
			}
		}
	case a.kind == KindList:
		for i := range a.items {
			if !OrderedEqual(a.items[i], b.items[i]) {
				return false
			}
		}
	}
	return true
}

// SameKeys reports whether two mappings carry exactly the same key set.
func SameKeys(a, b *Node) bool {
	if !a.IsMap() || !b.IsMap() || len(a.keys) != len(b.keys) {
		return false
	}
	for _, k := range a.keys {
		if _, ok := b.vals[k]; !ok {
			return false
		}
	}
	return true
}

func scalarEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func normalizeScalar(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return float64(x)
		}
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// FromValue converts plain Go data (as produced by encoding/json into any)
// into a tree. Go maps have no order, so their keys are sorted. Values that
// have no configuration representation are dropped; with robust set they are
// kept as their fmt rendering instead.
func FromValue(v any, robust bool) (*Node, bool) {
	switch x := v.(type) {
	case *Node:
		return x.Clone(), x != nil
	case nil, string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return NewScalar(x), true
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			if child, ok := FromValue(x[k], robust); ok {
				m.Set(k, child)
			}
		}
		return m, true
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.Set(k, NewString(x[k]))
		}
		return m, true
	case []any:
		l := NewList()
		for _, it := range x {
			if child, ok := FromValue(it, robust); ok {
				l.Append(child)
			}
		}
		return l, true
	case []string:
		l := NewList()
		for _, it := range x {
			l.Append(NewString(it))
		}
		return l, true
	default:
		if robust {
			return NewString(fmt.Sprint(v)), true
		}
		return nil, false
	}
}

// Interface converts the tree back to plain Go data. Mappings become
// map[string]any, so key order is lost.
func (n *Node) Interface() any {
	if n == nil {
		return nil
	}
	switch n.kind {
	case KindMap:
		m := make(map[string]any, len(n.keys))
		for _, k := range n.keys {
			m[k] = n.vals[k].Interface()
		}
		return m
	case KindList:
		l := make([]any, len(n.items))
		for i, it := range n.items {
			l[i] = it.Interface()
		}
		return l
	default:
		return n.value
	}
}
