package overlay

import (
	"strings"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
)

// Directive tokens as they appear inside overlay documents.
const (
	Prefix = "_override_"

	TokReplace       = "_override_replace_"
	TokLock          = "_override_lock_"
	TokLockParent    = "_override_lock_parent_"
	TokRemove        = "_override_remove_"
	TokMultiple      = "_override_multiple_"
	TokPrepend       = "_override_prepend_"
	TokAppend        = "_override_append_"
	TokAdditive      = "_override_additive_"
	TokUnique        = "_override_unique_"
	TokByContent     = "_override_by_content_"
	TokByKeys        = "_override_by_keys_"
	TokByKeyPrefix   = "_override_by_key_"
	TokRemoveList    = "_override_remove_list_"
	TokRemoveBefore  = "_override_remove_before_"
	TokRemoveAfter   = "_override_remove_after_"
	TokRemoveRange   = "_override_remove_range_"
	TokRemoveBetween = "_override_remove_between_"
	TokInsertBefore  = "_override_insert_before_"
	TokInsertAfter   = "_override_insert_after_"
	TokLockOne       = "_override_lock_one_"
	TokNull          = "_override_null_"
	TokRemoveStop    = "_override_remove_stop_"
)

// Directive is an overlay instruction lifted out of a document before
// composition. Exactly one of the concrete types below.
type Directive interface {
	directive()
}

// Replace drops the unprotected contents of the base before merging.
type Replace struct{}

// LockSpec protects the composed node against later overlays.
type LockSpec struct{ Lock confignode.Lock }

// Remove deletes the base entry the directive is attached to.
type Remove struct{}

// Multiple merges one template node into every base child of the same kind.
type Multiple struct{ Node *confignode.Node }

// Placement selects where new list items go.
type Placement struct{ Prepend bool }

// Mode selects whether list operands are deduplicated against the base.
type Mode struct{ Additive bool }

// MatchMode selects how list operands are matched against base items.
type MatchMode struct {
	By  MatchBy
	Key string
}

// ListAction arms the list interpreter for the next operand(s).
type ListAction struct{ Action Action }

// Terminator ends a remove-list run.
type Terminator struct{}

func (Replace) directive()    {}
func (LockSpec) directive()   {}
func (Remove) directive()     {}
func (Multiple) directive()   {}
func (Placement) directive()  {}
func (Mode) directive()       {}
func (MatchMode) directive()  {}
func (ListAction) directive() {}
func (Terminator) directive() {}

// MatchBy is the list item matching strategy.
type MatchBy int

const (
	ByContent MatchBy = iota
	ByKeys
	ByKey
)

// Action is the pending list mutation.
type Action int

const (
	ActNone Action = iota
	ActRemoveOne
	ActRemoveList
	ActRemoveBefore
	ActRemoveAfter
	ActRemoveRange
	ActRemoveBetween
	ActInsertBefore
	ActInsertAfter
	ActLockOne
)

func (a Action) String() string {
	switch a {
	case ActRemoveOne:
		return "remove"
	case ActRemoveList:
		return "remove-list"
	case ActRemoveBefore:
		return "remove-before"
	case ActRemoveAfter:
		return "remove-after"
	case ActRemoveRange:
		return "remove-range"
	case ActRemoveBetween:
		return "remove-between"
	case ActInsertBefore:
		return "insert-before"
	case ActInsertAfter:
		return "insert-after"
	case ActLockOne:
		return "lock-one"
	default:
		return "none"
	}
}

// operands is how many operands the action consumes before disarming.
func (a Action) operands() int {
	switch a {
	case ActRemoveRange, ActRemoveBetween:
		return 2
	case ActNone, ActRemoveList:
		return 0
	default:
		return 1
	}
}

// IsDirective reports whether s is spelled like an overlay directive.
func IsDirective(s string) bool {
	return strings.HasPrefix(s, Prefix)
}

// ParseListToken maps a directive string found among list items to its typed
// form. Unknown directive spellings report false.
func ParseListToken(s string) (Directive, bool) {
	switch s {
	case TokReplace:
		return Replace{}, true
	case TokLock:
		return LockSpec{Lock: confignode.Lock{All: true}}, true
	case TokLockParent:
		return LockSpec{Lock: confignode.Lock{Parent: true}}, true
	case TokPrepend:
		return Placement{Prepend: true}, true
	case TokAppend:
		return Placement{}, true
	case TokAdditive:
		return Mode{Additive: true}, true
	case TokUnique:
		return Mode{}, true
	case TokByContent:
		return MatchMode{By: ByContent}, true
	case TokByKeys:
		return MatchMode{By: ByKeys}, true
	case TokRemove:
		return ListAction{Action: ActRemoveOne}, true
	case TokRemoveList:
		return ListAction{Action: ActRemoveList}, true
	case TokRemoveBefore:
		return ListAction{Action: ActRemoveBefore}, true
	case TokRemoveAfter:
		return ListAction{Action: ActRemoveAfter}, true
	case TokRemoveRange:
		return ListAction{Action: ActRemoveRange}, true
	case TokRemoveBetween:
		return ListAction{Action: ActRemoveBetween}, true
	case TokInsertBefore:
		return ListAction{Action: ActInsertBefore}, true
	case TokInsertAfter:
		return ListAction{Action: ActInsertAfter}, true
	case TokLockOne:
		return ListAction{Action: ActLockOne}, true
	case TokNull, TokRemoveStop:
		return Terminator{}, true
	}
	if strings.HasPrefix(s, TokByKeyPrefix) && strings.HasSuffix(s, "_") {
		key := strings.TrimSuffix(strings.TrimPrefix(s, TokByKeyPrefix), "_")
		if key != "" {
			return MatchMode{By: ByKey, Key: key}, true
		}
	}
	return nil, false
}

// mapDirectives are the directive entries of one mapping overlay.
type mapDirectives struct {
	replace  bool
	lock     *confignode.Lock
	multiple *confignode.Node
	unknown  []string
}

// splitMap separates the directive entries of a mapping overlay from its
// regular entries.
func splitMap(o *confignode.Node) (mapDirectives, []string) {
	var dirs mapDirectives
	keys := make([]string, 0, o.Len())
	for _, k := range o.Keys() {
		if !IsDirective(k) {
			keys = append(keys, k)
			continue
		}
		v, _ := o.Get(k)
		switch k {
		case TokReplace:
			dirs.replace = truthy(v)
		case TokLock:
			if l := lockFromValue(v); l != nil {
				dirs.lock = unionLock(dirs.lock, l)
			}
		case TokLockParent:
			if truthy(v) {
				dirs.lock = unionLock(dirs.lock, &confignode.Lock{Parent: true})
			}
		case TokMultiple:
			dirs.multiple = v
		default:
			dirs.unknown = append(dirs.unknown, k)
		}
	}
	return dirs, keys
}

// lockFromValue reads `_override_lock_: true | [keys...]`.
func lockFromValue(v *confignode.Node) *confignode.Lock {
	if v.IsList() {
		var keys []string
		for _, it := range v.Items() {
			if s := it.Text(); s != "" {
				keys = append(keys, s)
			}
		}
		if len(keys) == 0 {
			return nil
		}
		return &confignode.Lock{Keys: keys}
	}
	if truthy(v) {
		return &confignode.Lock{All: true}
	}
	return nil
}

func truthy(v *confignode.Node) bool {
	if v == nil || !v.IsScalar() {
		return v != nil && v.Len() > 0
	}
	switch x := v.Value().(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "false", "0", "no", "n":
			return false
		}
		return true
	case int64:
		return x != 0
	case float64:
		return x != 0
	default:
		return false
	}
}

func unionLock(a, b *confignode.Lock) *confignode.Lock {
	if a == nil {
		return copyLock(b)
	}
	if b == nil {
		return copyLock(a)
	}
	u := &confignode.Lock{All: a.All || b.All, Parent: a.Parent || b.Parent}
	seen := map[string]bool{}
	for _, k := range append(append([]string(nil), a.Keys...), b.Keys...) {
		if !seen[k] {
			seen[k] = true
			u.Keys = append(u.Keys, k)
		}
	}
	return u
}

func copyLock(l *confignode.Lock) *confignode.Lock {
	if l == nil {
		return nil
	}
	c := *l
	c.Keys = append([]string(nil), l.Keys...)
	return &c
}

func isRemoveMarker(v *confignode.Node) bool {
	s, ok := v.Str()
	return ok && s == TokRemove
}
