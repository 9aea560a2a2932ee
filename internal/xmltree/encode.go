package xmltree

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
)

// Encode writes a single-entry mapping as an XML document. Scalar entries of a
// mapping are written as text-only child elements, so sibling order survives
// a decode. Lists of lists and keys that are not XML names are rejected with
// ErrUnrepresentable.
func Encode(w io.Writer, n *confignode.Node, h Hints) error {
	if !n.IsMap() || n.Len() != 1 {
		return fmt.Errorf("%w: document must be a mapping with one root entry", ErrUnrepresentable)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	e := encoder{enc: enc, hints: h}
	key := n.Keys()[0]
	val, _ := n.Get(key)
	if err := e.entry(key, val); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

type encoder struct {
	enc   *xml.Encoder
	hints Hints
}

// entry writes one mapping entry; list values expand to repeated elements.
func (e encoder) entry(key string, v *confignode.Node) error {
	tag, _ := splitKey(key)
	if _, ok := e.hints.TextLists[tag]; ok && !v.IsScalar() {
		return e.textList(key, v)
	}
	if !v.IsList() {
		return e.element(key, v, nil, false)
	}

	operands := 0
	for _, it := range v.Items() {
		if s, ok := it.Str(); !ok || !strings.HasPrefix(s, "_override_") {
			operands++
		}
	}
	mark := operands == 1 && !e.hints.ListTags[tag]

	var pending []string
	for _, it := range v.Items() {
		if s, ok := it.Str(); ok && strings.HasPrefix(s, "_override_") {
			pending = append(pending, token(s))
			continue
		}
		if it.IsList() {
			return fmt.Errorf("%w: %s holds a list of lists", ErrUnrepresentable, key)
		}
		if err := e.element(key, it, pending, mark); err != nil {
			return err
		}
		pending = nil
	}
	return nil
}

func (e encoder) element(key string, v *confignode.Node, tokens []string, listMark bool) error {
	tag, modVal := splitKey(key)
	if !isName(tag) {
		return fmt.Errorf("%w: %q is not an xml name", ErrUnrepresentable, tag)
	}
	start := xml.StartElement{Name: xml.Name{Local: tag}}

	if !v.IsMap() {
		if modVal != "" {
			return fmt.Errorf("%w: %s is a scalar under a modifier key", ErrUnrepresentable, key)
		}
		start.Attr = e.hintAttrs(tokens, listMark)
		return e.leaf(start, v.Text())
	}

	var elemToks []string
	var children []string
	modAttr, text := "", ""
	for _, k := range v.Keys() {
		c, _ := v.Get(k)
		switch {
		case isElementToken(token(k)) && k == directive(token(k)) && isTrue(c):
			elemToks = append(elemToks, token(k))
		case k == ModifierKey:
			modAttr = c.Text()
		case k == TextKey && c.IsScalar():
			text = c.Text()
		case k == OrderKey || k == ListKey:
		default:
			children = append(children, k)
		}
	}
	if modAttr == "" && modVal != "" {
		modAttr = e.hints.Modifiers[tag]
	}

	start.Attr = e.hintAttrs(append(elemToks, tokens...), listMark)
	if modAttr != "" {
		val := modVal
		if c, ok := v.Get(modAttr); ok && c.IsScalar() {
			val = c.Text()
		}
		if _, explicit := v.Get(ModifierKey); explicit {
			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: attrModifier}, Value: modAttr})
		}
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: modAttr}, Value: val})
	}

	if err := e.enc.EncodeToken(start); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	for _, k := range children {
		if k == modAttr {
			continue
		}
		c, _ := v.Get(k)
		if err := e.entry(k, c); err != nil {
			return err
		}
	}
	if text != "" {
		if err := e.enc.EncodeToken(xml.CharData(text)); err != nil {
			return fmt.Errorf("write xml: %w", err)
		}
	}
	if err := e.enc.EncodeToken(start.End()); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	return nil
}

func (e encoder) textList(key string, v *confignode.Node) error {
	tag, _ := splitKey(key)
	tl := e.hints.TextLists[tag]
	var tokens, parts []string

	if v.IsMap() {
		for _, k := range v.Keys() {
			rest, _ := v.Get(k)
			var inner []string
			for _, it := range rest.Items() {
				inner = append(inner, it.Text())
			}
			at := min(max(tl.KeyIndex, 0), len(inner))
			inner = append(inner[:at], append([]string{k}, inner[at:]...)...)
			parts = append(parts, strings.Join(inner, tl.Inner))
		}
	} else {
		for _, it := range v.Items() {
			if s, ok := it.Str(); ok && strings.HasPrefix(s, "_override_") {
				tokens = append(tokens, token(s))
				continue
			}
			if it.IsList() {
				var inner []string
				for _, x := range it.Items() {
					inner = append(inner, x.Text())
				}
				parts = append(parts, strings.Join(inner, tl.Inner))
				continue
			}
			parts = append(parts, it.Text())
		}
	}

	start := xml.StartElement{Name: xml.Name{Local: tag}, Attr: e.hintAttrs(tokens, false)}
	return e.leaf(start, strings.Join(parts, tl.Outer))
}

func (e encoder) leaf(start xml.StartElement, text string) error {
	if err := e.enc.EncodeToken(start); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	if text != "" {
		if err := e.enc.EncodeToken(xml.CharData(text)); err != nil {
			return fmt.Errorf("write xml: %w", err)
		}
	}
	if err := e.enc.EncodeToken(start.End()); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	return nil
}

func (e encoder) hintAttrs(tokens []string, listMark bool) []xml.Attr {
	var attrs []xml.Attr
	if len(tokens) > 0 {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: attrOverride}, Value: strings.Join(tokens, ",")})
	}
	if listMark {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: ListKey}, Value: "true"})
	}
	return attrs
}

// splitKey separates a modifier-qualified key "tag#value".
func splitKey(key string) (string, string) {
	tag, val, _ := strings.Cut(key, "#")
	return tag, val
}

// token is the inverse of directive.
func token(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(s, "_override_"), "_")
}

func isTrue(n *confignode.Node) bool {
	switch v := n.Value().(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '.' || r == '-' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return true
}
