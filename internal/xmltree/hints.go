package xmltree

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
)

// TextList describes a tag whose text content is a delimited list.
type TextList struct {
	Outer string
	// Inner splits each outer token further; empty leaves tokens whole.
	Inner string
	// KeyIndex, when >= 0 with Inner set, turns the list into a mapping keyed
	// by the inner token at that position.
	KeyIndex int
}

// Hints is the parsing hint table normally read from xml2Json.xml.
type Hints struct {
	ListTags  map[string]bool
	TextLists map[string]TextList
	Modifiers map[string]string
}

// NoHints parses every element purely from document structure.
func NoHints() Hints {
	return Hints{
		ListTags:  map[string]bool{},
		TextLists: map[string]TextList{},
		Modifiers: map[string]string{},
	}
}

// DefaultHints covers the tags used by the hazard and product tables shipped
// with this repository.
func DefaultHints() Hints {
	h := NoHints()
	for _, tag := range []string{"hazardType", "product", "partner", "include", "segment"} {
		h.ListTags[tag] = true
	}
	h.TextLists["ugcs"] = TextList{Outer: ",", KeyIndex: -1}
	h.TextLists["replacedBy"] = TextList{Outer: ",", KeyIndex: -1}
	h.TextLists["phenSigs"] = TextList{Outer: ",", KeyIndex: -1}
	h.TextLists["expirationTime"] = TextList{Outer: ",", KeyIndex: -1}
	h.Modifiers["include"] = "file"
	return h
}

// ParseHints reads an xml2Json.xml hint document:
//
//	<xml2Json>
//	  <listTag>hazardType</listTag>
//	  <textList tag="ugcs" outer="," inner=":" keyIndex="0"/>
//	  <modifier tag="include" attribute="file"/>
//	</xml2Json>
func ParseHints(data []byte) (Hints, error) {
	tree, err := Decode(bytes.NewReader(data), NoHints())
	if err != nil {
		return Hints{}, err
	}
	root, ok := tree.Get("xml2Json")
	if !ok || !root.IsMap() {
		return Hints{}, fmt.Errorf("xml2Json hints: missing <xml2Json> root")
	}

	h := NoHints()
	if v, ok := root.Get("listTag"); ok {
		for _, it := range members(v) {
			if tag := it.Text(); tag != "" {
				h.ListTags[tag] = true
			}
		}
	}
	if v, ok := root.Get("textList"); ok {
		for _, it := range members(v) {
			tag := field(it, "tag")
			if tag == "" {
				return Hints{}, fmt.Errorf("xml2Json hints: textList without tag")
			}
			tl := TextList{Outer: field(it, "outer"), Inner: field(it, "inner"), KeyIndex: -1}
			if tl.Outer == "" {
				tl.Outer = ","
			}
			if ki := field(it, "keyIndex"); ki != "" {
				n, err := strconv.Atoi(ki)
				if err != nil {
					return Hints{}, fmt.Errorf("xml2Json hints: textList %s keyIndex: %w", tag, err)
				}
				tl.KeyIndex = n
			}
			h.TextLists[tag] = tl
		}
	}
	if v, ok := root.Get("modifier"); ok {
		for _, it := range members(v) {
			tag, attr := field(it, "tag"), field(it, "attribute")
			if tag == "" || attr == "" {
				return Hints{}, fmt.Errorf("xml2Json hints: modifier needs tag and attribute")
			}
			h.Modifiers[tag] = attr
		}
	}
	return h, nil
}

func members(n *confignode.Node) []*confignode.Node {
	if n.IsList() {
		return n.Items()
	}
	return []*confignode.Node{n}
}

func field(n *confignode.Node, key string) string {
	v, _ := n.Get(key)
	return v.Text()
}
