package overlay

import (
	"strconv"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
	"github.com/couchcryptid/storm-data-vtec/internal/domain"
)

// merger composes one override onto one base. It never mutates its inputs.
type merger struct {
	diags []domain.Diagnostic
}

func (m *merger) warn(kind domain.DiagnosticKind, path, format string, args ...any) {
	if path == "" {
		path = "/"
	}
	m.diags = append(m.diags, domain.Diagnosef(kind, path, format, args...))
}

// merge returns the composition of o over b. A nil b means o is placed
// fresh, which still runs its directives against an empty base.
func (m *merger) merge(b, o *confignode.Node, path string) *confignode.Node {
	switch {
	case o == nil:
		return b.Clone()
	case b == nil:
		if o.IsScalar() {
			return o.Clone()
		}
		b = confignode.Empty(o.Kind())
	}
	if b.Kind() != o.Kind() || o.IsScalar() {
		if b.Lock() != nil && b.Lock().All {
			m.warn(domain.IncompatibleOverride, path, "locked %s cannot be replaced", b.Kind())
			return b.Clone()
		}
		return m.merge(nil, o, path)
	}
	if o.IsMap() {
		return m.mergeMap(b, o, path)
	}
	return m.mergeList(b, o, path)
}

func (m *merger) mergeMap(b, o *confignode.Node, path string) *confignode.Node {
	res := b.Clone()
	dirs, keys := splitMap(o)
	for _, k := range dirs.unknown {
		m.warn(domain.IncompatibleOverride, path, "unknown directive %q ignored", k)
	}

	if dirs.replace {
		for _, k := range res.Keys() {
			child, _ := res.Get(k)
			if res.Lock().Shields(k) || child.Lock().Rigid() {
				continue
			}
			res.Delete(k)
		}
	}

	if dirs.multiple != nil && !dirs.multiple.IsScalar() {
		for _, k := range res.Keys() {
			child, _ := res.Get(k)
			if res.Lock().Shields(k) || child.Kind() != dirs.multiple.Kind() {
				continue
			}
			res.Set(k, m.merge(child, dirs.multiple, path+"/"+k))
		}
	}

	for _, k := range keys {
		ov, _ := o.Get(k)
		childPath := path + "/" + k
		if res.Lock().Shields(k) {
			continue
		}
		cur, exists := res.Get(k)
		if isRemoveMarker(ov) {
			if exists && !cur.Lock().Rigid() {
				res.Delete(k)
			}
			continue
		}
		if exists {
			res.Set(k, m.merge(cur, ov, childPath))
			continue
		}
		res.Set(k, m.merge(nil, ov, childPath))
	}

	// Metadata locks arrive when an intermediate composition is re-used as
	// an overlay.
	if lock := unionLock(o.Lock(), dirs.lock); lock != nil {
		res.SetLock(unionLock(res.Lock(), lock))
	}
	return res
}

// listState is the interpreter state threaded through one list overlay.
type listState struct {
	prepend  bool
	additive bool
	match    MatchMode
	action   Action
	pending  []*confignode.Node
	// cursor is the insertion index, or -1 to append.
	cursor int
}

func (m *merger) mergeList(b, o *confignode.Node, path string) *confignode.Node {
	if b.Lock() != nil && b.Lock().All {
		return b.Clone()
	}
	items := o.Items()

	var lock *confignode.Lock
	replace := false
	start := 0
prefix:
	for ; start < len(items); start++ {
		s, ok := items[start].Str()
		if !ok {
			break
		}
		switch s {
		case TokReplace:
			replace = true
		case TokLock:
			lock = unionLock(lock, &confignode.Lock{All: true})
		case TokLockParent:
			lock = unionLock(lock, &confignode.Lock{Parent: true})
		default:
			break prefix
		}
	}

	buf := make([]*confignode.Node, 0, b.Len()+len(items))
	for _, it := range b.Items() {
		if replace && !it.Lock().Rigid() {
			continue
		}
		buf = append(buf, it.Clone())
	}

	// Against an empty base the operands are taken verbatim, duplicates included.
	st := &listState{cursor: -1, additive: len(buf) == 0}
	for i := start; i < len(items); i++ {
		item := items[i]
		if s, ok := item.Str(); ok && IsDirective(s) {
			d, known := ParseListToken(s)
			if !known {
				m.warn(domain.IncompatibleOverride, path, "unknown list directive %q ignored", s)
				continue
			}
			m.applyListDirective(st, d, path)
			continue
		}
		buf = m.applyOperand(st, buf, item, path+"["+strconv.Itoa(i)+"]")
	}
	if len(st.pending) > 0 {
		m.warn(domain.IncompatibleOverride, path, "%s missing its second operand", st.action)
	}

	res := confignode.NewList(buf...)
	res.SetLock(unionLock(unionLock(b.Lock(), o.Lock()), lock))
	return res
}

func (m *merger) applyListDirective(st *listState, d Directive, path string) {
	switch d := d.(type) {
	case Placement:
		st.prepend = d.Prepend
		st.cursor = -1
		if d.Prepend {
			st.cursor = 0
		}
	case Mode:
		st.additive = d.Additive
	case MatchMode:
		st.match = d
	case ListAction:
		if len(st.pending) > 0 {
			m.warn(domain.IncompatibleOverride, path, "%s missing its second operand", st.action)
		}
		st.action = d.Action
		st.pending = nil
	case Terminator:
		st.action = ActNone
		st.pending = nil
	case Replace, LockSpec:
		m.warn(domain.IncompatibleOverride, path, "list prefix directive after first operand ignored")
	}
}

func (m *merger) applyOperand(st *listState, buf []*confignode.Node, item *confignode.Node, path string) []*confignode.Node {
	switch st.action {
	case ActNone:
		return m.insert(st, buf, item, path)

	case ActRemoveOne, ActRemoveList:
		if idx := st.find(buf, item, 0, true); idx >= 0 {
			buf = st.removeAt(buf, idx)
		}
		if st.action == ActRemoveOne {
			st.action = ActNone
		}
		return buf

	case ActRemoveBefore:
		st.action = ActNone
		idx := st.find(buf, item, 0, true)
		for j := idx - 1; j >= 0; j-- {
			buf = st.removeAt(buf, j)
		}
		return buf

	case ActRemoveAfter:
		st.action = ActNone
		idx := st.find(buf, item, len(buf)-1, false)
		if idx < 0 {
			return buf
		}
		for j := len(buf) - 1; j > idx; j-- {
			buf = st.removeAt(buf, j)
		}
		return buf

	case ActRemoveRange, ActRemoveBetween:
		st.pending = append(st.pending, item)
		if len(st.pending) < st.action.operands() {
			return buf
		}
		first, second := st.pending[0], st.pending[1]
		inclusive := st.action == ActRemoveRange
		st.action, st.pending = ActNone, nil
		lo := st.find(buf, first, 0, true)
		if lo < 0 {
			return buf
		}
		hi := st.find(buf, second, lo, true)
		if hi < 0 {
			return buf
		}
		if !inclusive {
			lo, hi = lo+1, hi-1
		}
		for j := hi; j >= lo; j-- {
			buf = st.removeAt(buf, j)
		}
		return buf

	case ActInsertBefore:
		st.action = ActNone
		if idx := st.find(buf, item, 0, true); idx >= 0 {
			st.cursor = idx
		}
		return buf

	case ActInsertAfter:
		st.action = ActNone
		if idx := st.find(buf, item, len(buf)-1, false); idx >= 0 {
			st.cursor = idx + 1
		}
		return buf

	case ActLockOne:
		st.action = ActNone
		if idx := st.find(buf, item, 0, true); idx >= 0 {
			locked := buf[idx].Clone()
			locked.SetLock(unionLock(locked.Lock(), &confignode.Lock{All: true}))
			buf[idx] = locked
			return buf
		}
		fresh := m.merge(nil, item, path)
		fresh.SetLock(unionLock(fresh.Lock(), &confignode.Lock{All: true}))
		return st.place(buf, fresh)
	}
	return buf
}

// insert adds a plain operand. In unique mode a matching base item absorbs
// the operand instead of gaining a duplicate.
func (m *merger) insert(st *listState, buf []*confignode.Node, item *confignode.Node, path string) []*confignode.Node {
	if !st.additive {
		if idx := st.find(buf, item, 0, true); idx >= 0 {
			cur := buf[idx]
			if !cur.IsScalar() && cur.Kind() == item.Kind() {
				buf[idx] = m.merge(cur, item, path)
			}
			return buf
		}
	}
	return st.place(buf, m.merge(nil, item, path))
}

func (st *listState) place(buf []*confignode.Node, n *confignode.Node) []*confignode.Node {
	if st.cursor < 0 {
		return append(buf, n)
	}
	if st.cursor >= len(buf) {
		buf = append(buf, n)
		st.cursor = len(buf)
		return buf
	}
	buf = append(buf, nil)
	copy(buf[st.cursor+1:], buf[st.cursor:])
	buf[st.cursor] = n
	st.cursor++
	return buf
}

// removeAt deletes buf[idx] unless the item is rigid, keeping the insertion
// cursor pointed at the same neighbour.
func (st *listState) removeAt(buf []*confignode.Node, idx int) []*confignode.Node {
	if idx < 0 || idx >= len(buf) || buf[idx].Lock().Rigid() {
		return buf
	}
	buf = append(buf[:idx], buf[idx+1:]...)
	if st.cursor > idx {
		st.cursor--
	}
	return buf
}

// find locates operand in buf starting at from, scanning forward or backward.
func (st *listState) find(buf []*confignode.Node, operand *confignode.Node, from int, forward bool) int {
	if forward {
		for j := max(from, 0); j < len(buf); j++ {
			if st.matches(buf[j], operand) {
				return j
			}
		}
		return -1
	}
	for j := min(from, len(buf)-1); j >= 0; j-- {
		if st.matches(buf[j], operand) {
			return j
		}
	}
	return -1
}

func (st *listState) matches(item, operand *confignode.Node) bool {
	if item.IsMap() && operand.IsMap() {
		switch st.match.By {
		case ByKeys:
			return confignode.SameKeys(item, operand)
		case ByKey:
			iv, iok := item.Get(st.match.Key)
			ov, ook := operand.Get(st.match.Key)
			return iok && ook && confignode.Equal(iv, ov)
		}
	}
	return confignode.Equal(item, stripDirectives(operand))
}

// stripDirectives removes directive entries from a mapping operand so that a
// content match compares data only.
func stripDirectives(n *confignode.Node) *confignode.Node {
	if !n.IsMap() {
		return n
	}
	_, keys := splitMap(n)
	if len(keys) == n.Len() {
		return n
	}
	c := confignode.NewMap()
	for _, k := range keys {
		v, _ := n.Get(k)
		c.Set(k, v)
	}
	return c
}
