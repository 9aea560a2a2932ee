package hazard

import (
	_ "embed"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/overlay"
)

//go:embed hazard_types.json
var defaultTableJSON []byte

// TableKey is the top-level key of a hazard type table document.
const TableKey = "hazardTypes"

// Policy is one hazard type table entry.
type Policy struct {
	Headline           string
	PIL                string
	CombinableSegments bool
	AllowAreaChange    bool
	AllowTimeChange    bool
	// ExpirationPre and ExpirationPost bound the purge window around the end
	// time.
	ExpirationPre  time.Duration
	ExpirationPost time.Duration
	ReplacedBy     []string
}

// MayBeReplacedBy reports whether hazardType is a compatible successor.
func (p Policy) MayBeReplacedBy(hazardType string) bool {
	return slices.Contains(p.ReplacedBy, hazardType) ||
		slices.Contains(p.ReplacedBy, phenSigOf(hazardType))
}

// Table is the read-only hazard type policy table keyed by "PP.S[.sub]".
type Table struct {
	entries map[string]Policy
}

// NewTable builds a table from entries, mostly for tests.
func NewTable(entries map[string]Policy) *Table {
	t := &Table{entries: make(map[string]Policy, len(entries))}
	for k, v := range entries {
		t.entries[k] = v
	}
	return t
}

// Lookup returns the entry for hazardType, falling back from "PP.S.sub" to
// "PP.S".
func (t *Table) Lookup(hazardType string) (Policy, bool) {
	if p, ok := t.entries[hazardType]; ok {
		return p, true
	}
	p, ok := t.entries[phenSigOf(hazardType)]
	return p, ok
}

// Headline returns the display headline, or the hazard type when unknown.
func (t *Table) Headline(hazardType string) string {
	if p, ok := t.Lookup(hazardType); ok && p.Headline != "" {
		return p.Headline
	}
	return hazardType
}

// Types lists every key in sorted order.
func (t *Table) Types() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Len is the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// DefaultDocument is the embedded base-level table as a tree.
func DefaultDocument() *confignode.Node {
	n, err := confignode.ParseJSON(defaultTableJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded hazard table: %v", err))
	}
	return n
}

// DefaultTable is the embedded table with no overrides.
func DefaultTable() *Table {
	t, _, err := LoadTable()
	if err != nil {
		panic(fmt.Sprintf("embedded hazard table: %v", err))
	}
	return t
}

// LoadTable composes the embedded table with override documents (site and
// user levels, in order) and builds the policy table.
func LoadTable(overrides ...*confignode.Node) (*Table, []domain.Diagnostic, error) {
	docs := append([]*confignode.Node{DefaultDocument()}, overrides...)
	composed, diags, err := overlay.Resolve(docs...)
	if err != nil {
		return nil, diags, fmt.Errorf("compose hazard table: %w", err)
	}
	t, more := TableFromNode(composed)
	return t, append(diags, more...), nil
}

// TableFromNode reads a composed table document. Values may be typed (JSON,
// YAML) or strings (XML).
func TableFromNode(doc *confignode.Node) (*Table, []domain.Diagnostic) {
	t := &Table{entries: map[string]Policy{}}
	var diags []domain.Diagnostic
	root, ok := doc.Get(TableKey)
	if !ok || !root.IsMap() {
		diags = append(diags, domain.Diagnosef(domain.MalformedInput, TableKey, "no %s mapping in table document", TableKey))
		return t, diags
	}
	for _, ht := range root.Keys() {
		n, _ := root.Get(ht)
		if !n.IsMap() {
			diags = append(diags, domain.Diagnosef(domain.MalformedInput, ht, "hazard type entry is a %s", n.Kind()))
			continue
		}
		p := Policy{
			Headline:           text(n, "headline"),
			PIL:                text(n, "pil"),
			CombinableSegments: flag(n, "combinableSegments"),
			AllowAreaChange:    flag(n, "allowAreaChange"),
			AllowTimeChange:    flag(n, "allowTimeChange"),
			ReplacedBy:         strs(n, "replacedBy"),
		}
		if exp := strs(n, "expirationTime"); len(exp) == 2 {
			pre, err1 := strconv.Atoi(exp[0])
			post, err2 := strconv.Atoi(exp[1])
			if err1 != nil || err2 != nil {
				diags = append(diags, domain.Diagnosef(domain.MalformedInput, ht, "expirationTime %v is not two minute counts", exp))
			} else {
				p.ExpirationPre = time.Duration(pre) * time.Minute
				p.ExpirationPost = time.Duration(post) * time.Minute
			}
		}
		t.entries[ht] = p
	}
	return t, diags
}

func text(n *confignode.Node, key string) string {
	v, _ := n.Get(key)
	return strings.TrimSpace(v.Text())
}

func flag(n *confignode.Node, key string) bool {
	b, _ := strconv.ParseBool(text(n, key))
	return b
}

func strs(n *confignode.Node, key string) []string {
	v, ok := n.Get(key)
	if !ok {
		return nil
	}
	if !v.IsList() {
		if s := strings.TrimSpace(v.Text()); s != "" {
			return strings.Split(s, ",")
		}
		return nil
	}
	out := make([]string, 0, v.Len())
	for _, it := range v.Items() {
		out = append(out, strings.TrimSpace(it.Text()))
	}
	return out
}

func phenSigOf(hazardType string) string {
	parts := strings.SplitN(hazardType, ".", 3)
	if len(parts) < 2 {
		return hazardType
	}
	return parts[0] + "." + parts[1]
}
