// Package xmltree converts XML configuration documents to and from the
// ordered tree form composed by the overlay resolver.
//
// Elements become mappings and attributes become string entries. Elements
// that carry only text (no attributes, no children) become string scalars.
// Mixed elements keep their text under the synthetic key "___". Repeated
// sibling tags, and tags named in the hint table, become lists.
package xmltree

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
)

// Synthetic keys and hint attributes.
const (
	TextKey     = "___"
	OrderKey    = "__order__"
	ModifierKey = "__modifier__"
	ListKey     = "__list__"

	attrOverride = "override"
	attrModifier = "modifierAttribute"
)

// ErrUnrepresentable is returned by Encode for trees that have no XML form.
var ErrUnrepresentable = errors.New("tree has no xml form")

type element struct {
	name     string
	attrs    []xml.Attr
	children []*element
	text     strings.Builder
}

func (e *element) attr(name string) (string, bool) {
	for _, a := range e.attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Decode parses an XML document into a single-entry mapping keyed by the root
// tag.
func Decode(r io.Reader, h Hints) (*confignode.Node, error) {
	root, err := readElements(r)
	if err != nil {
		return nil, err
	}
	d := decoder{hints: h}
	key, val, tokens := d.convert(root)
	out := confignode.NewMap()
	out.Set(key, applyElementTokens(val, tokens))
	return out, nil
}

func readElements(r io.Reader) (*element, error) {
	dec := xml.NewDecoder(r)
	var stack []*element
	var root *element
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local, attrs: t.Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("read xml: multiple root elements")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("read xml: no root element")
	}
	return root, nil
}

type decoder struct {
	hints Hints
}

// convert turns one element into its entry key, value and raw override tokens.
func (d decoder) convert(el *element) (string, *confignode.Node, []string) {
	tokens := splitTokens(attrValue(el, attrOverride))

	modAttr, fromElement := attrValue(el, attrModifier), true
	if modAttr == "" {
		modAttr, fromElement = d.hints.Modifiers[el.name], false
	}
	key := el.name
	var modVal string
	hasMod := false
	if modAttr != "" {
		if v, ok := el.attr(modAttr); ok {
			key, modVal, hasMod = el.name+"#"+v, v, true
		}
	}

	text := strings.TrimSpace(el.text.String())
	if tl, ok := d.hints.TextLists[el.name]; ok {
		return key, splitText(text, tl), tokens
	}

	var attrs []xml.Attr
	for _, a := range el.attrs {
		switch a.Name.Local {
		case attrOverride, attrModifier, ListKey, OrderKey:
			continue
		}
		if hasMod && a.Name.Local == modAttr {
			continue
		}
		attrs = append(attrs, a)
	}

	if len(attrs) == 0 && len(el.children) == 0 && !hasMod {
		return key, confignode.NewString(text), tokens
	}

	m := confignode.NewMap()
	if hasMod {
		if fromElement {
			m.Set(ModifierKey, confignode.NewString(modAttr))
		}
		m.Set(modAttr, confignode.NewString(modVal))
	}
	for _, a := range attrs {
		m.Set(a.Name.Local, confignode.NewString(a.Value))
	}
	d.addChildren(m, el.children)
	if text != "" {
		m.Set(TextKey, confignode.NewString(text))
	}
	if order := attrValue(el, OrderKey); order != "" {
		m = reorder(m, splitTokens(order))
	}
	return key, m, tokens
}

type childGroup struct {
	key     string
	list    bool
	members []member
}

type member struct {
	value  *confignode.Node
	tokens []string
}

func (d decoder) addChildren(m *confignode.Node, children []*element) {
	var groups []*childGroup
	byKey := map[string]*childGroup{}
	for _, c := range children {
		key, val, tokens := d.convert(c)
		g, ok := byKey[key]
		if !ok {
			g = &childGroup{key: key, list: d.hints.ListTags[c.name]}
			byKey[key] = g
			groups = append(groups, g)
		}
		if v, ok := c.attr(ListKey); ok && strings.EqualFold(v, "true") {
			g.list = true
		}
		g.members = append(g.members, member{value: val, tokens: tokens})
	}

	for _, g := range groups {
		if !g.list && len(g.members) == 1 {
			m.Set(g.key, applyElementTokens(g.members[0].value, g.members[0].tokens))
			continue
		}
		list := confignode.NewList()
		for _, mem := range g.members {
			var elemToks []string
			for _, t := range mem.tokens {
				if isElementToken(t) {
					elemToks = append(elemToks, t)
					continue
				}
				list.Append(confignode.NewString(directive(t)))
			}
			list.Append(applyElementTokens(mem.value, elemToks))
		}
		m.Set(g.key, list)
	}
}

// isElementToken reports whether an override token applies to the element's
// own mapping rather than to its position in a list.
func isElementToken(t string) bool {
	switch t {
	case "replace", "lock", "lock_parent":
		return true
	}
	return false
}

// applyElementTokens attaches override tokens to a value that is not a list
// member.
func applyElementTokens(v *confignode.Node, tokens []string) *confignode.Node {
	if len(tokens) == 0 {
		return v
	}
	if slices.Contains(tokens, "remove") {
		return confignode.NewString(directive("remove"))
	}
	switch {
	case v.IsMap():
		out := confignode.NewMap()
		for _, t := range tokens {
			if isElementToken(t) {
				out.Set(directive(t), confignode.NewScalar(true))
			}
		}
		for _, k := range v.Keys() {
			c, _ := v.Get(k)
			out.Set(k, c)
		}
		return out
	case v.IsList():
		out := confignode.NewList()
		for _, t := range tokens {
			out.Append(confignode.NewString(directive(t)))
		}
		out.Append(v.Items()...)
		return out
	}
	return v
}

func directive(tok string) string { return "_override_" + tok + "_" }

func splitText(text string, tl TextList) *confignode.Node {
	var outer []string
	for _, p := range strings.Split(text, tl.Outer) {
		if p = strings.TrimSpace(p); p != "" {
			outer = append(outer, p)
		}
	}
	if tl.Inner == "" {
		list := confignode.NewList()
		for _, p := range outer {
			list.Append(confignode.NewString(p))
		}
		return list
	}

	if tl.KeyIndex >= 0 {
		m := confignode.NewMap()
		for _, p := range outer {
			parts := splitInner(p, tl.Inner)
			if tl.KeyIndex >= len(parts) {
				continue
			}
			rest := confignode.NewList()
			for i, s := range parts {
				if i != tl.KeyIndex {
					rest.Append(confignode.NewString(s))
				}
			}
			m.Set(parts[tl.KeyIndex], rest)
		}
		return m
	}

	list := confignode.NewList()
	for _, p := range outer {
		inner := confignode.NewList()
		for _, s := range splitInner(p, tl.Inner) {
			inner.Append(confignode.NewString(s))
		}
		list.Append(inner)
	}
	return list
}

func splitInner(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

func attrValue(el *element, name string) string {
	v, _ := el.attr(name)
	return strings.TrimSpace(v)
}

// reorder moves the named keys to the front in the given order.
func reorder(m *confignode.Node, order []string) *confignode.Node {
	out := confignode.NewMap()
	for _, k := range order {
		if v, ok := m.Get(k); ok {
			out.Set(k, v)
		}
	}
	for _, k := range m.Keys() {
		if _, done := out.Get(k); !done {
			v, _ := m.Get(k)
			out.Set(k, v)
		}
	}
	return out
}
