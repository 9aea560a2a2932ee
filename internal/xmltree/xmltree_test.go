package xmltree

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
	"github.com/couchcryptid/storm-data-vtec/internal/overlay"
)

func decodeString(t *testing.T, s string, h Hints) *confignode.Node {
	t.Helper()
	n, err := Decode(strings.NewReader(s), h)
	require.NoError(t, err)
	return n
}

func jsonOf(t *testing.T, n *confignode.Node) string {
	t.Helper()
	b, err := n.MarshalJSON()
	require.NoError(t, err)
	return string(b)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		xml   string
		hints Hints
		want  string
	}{
		{
			name: "attributes and text children",
			xml:  `<hazardTypes><FF.W headline="FLASH FLOOD WARNING"><allowAreaChange>true</allowAreaChange></FF.W></hazardTypes>`,
			want: `{"hazardTypes":{"FF.W":{"headline":"FLASH FLOOD WARNING","allowAreaChange":"true"}}}`,
		},
		{
			name: "repeated siblings become a list",
			xml:  `<p><site>KOAX</site><site>KDMX</site></p>`,
			want: `{"p":{"site":["KOAX","KDMX"]}}`,
		},
		{
			name:  "hinted list tag with one member",
			xml:   `<p><product pil="FFW"/></p>`,
			hints: DefaultHints(),
			want:  `{"p":{"product":[{"pil":"FFW"}]}}`,
		},
		{
			name:  "text list",
			xml:   `<p><ugcs>NEZ033, NEZ034</ugcs></p>`,
			hints: DefaultHints(),
			want:  `{"p":{"ugcs":["NEZ033","NEZ034"]}}`,
		},
		{
			name: "text list with key index",
			xml:  `<p><pairs>a:1:x;b:2:y</pairs></p>`,
			hints: Hints{TextLists: map[string]TextList{
				"pairs": {Outer: ";", Inner: ":", KeyIndex: 0},
			}},
			want: `{"p":{"pairs":{"a":["1","x"],"b":["2","y"]}}}`,
		},
		{
			name: "mixed content keeps text",
			xml:  `<p kind="x">hello<q>1</q></p>`,
			want: `{"p":{"kind":"x","q":"1","___":"hello"}}`,
		},
		{
			name: "modifier attribute",
			xml:  `<p><include modifierAttribute="file" file="a.xml"/><include modifierAttribute="file" file="b.xml"/></p>`,
			want: `{"p":{"include#a.xml":{"__modifier__":"file","file":"a.xml"},"include#b.xml":{"__modifier__":"file","file":"b.xml"}}}`,
		},
		{
			name: "order attribute",
			xml:  `<p __order__="c,a"><a>1</a><b>2</b><c>3</c></p>`,
			want: `{"p":{"c":"3","a":"1","b":"2"}}`,
		},
		{
			name: "override on mapping",
			xml:  `<p><x override="replace,lock"><v>1</v></x></p>`,
			want: `{"p":{"x":{"_override_replace_":true,"_override_lock_":true,"v":"1"}}}`,
		},
		{
			name: "override remove on entry",
			xml:  `<p><x override="remove"/></p>`,
			want: `{"p":{"x":"_override_remove_"}}`,
		},
		{
			name: "override on list members",
			xml:  `<p><s>a</s><s override="remove_range">b</s><s>d</s></p>`,
			want: `{"p":{"s":["a","_override_remove_range_","b","d"]}}`,
		},
		{
			name: "by key on list member",
			xml:  `<p><s override="by_key_id"><id>1</id><v>z</v></s><s><id>2</id></s></p>`,
			want: `{"p":{"s":["_override_by_key_id_",{"id":"1","v":"z"},{"id":"2"}]}}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := tc.hints
			if h.ListTags == nil && h.TextLists == nil {
				h = NoHints()
			}
			got := decodeString(t, tc.xml, h)
			assert.Equal(t, tc.want, jsonOf(t, got))
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(strings.NewReader(""), NoHints())
	require.Error(t, err)

	_, err = Decode(strings.NewReader("<a><b></a>"), NoHints())
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	docs := []string{
		`<hazardTypes><FF.W headline="FLASH FLOOD WARNING" combinableSegments="false"><expirationTime>-10,10</expirationTime></FF.W><FL.A><replacedBy>FL.W</replacedBy></FL.A></hazardTypes>`,
		`<p kind="x">hello<q>1</q><q>2</q><r a="b"/></p>`,
		`<p><include modifierAttribute="file" file="a.xml" extra="1"><z>9</z></include></p>`,
		`<p><product pil="FFW"/><ugcs override="prepend">NEZ033,NEZ034</ugcs></p>`,
		`<p><one __list__="true">x</one><x override="lock"><v>1</v></x><s>a</s><s override="remove">b</s></p>`,
		`<cfg><include file="base.xml"/><include file="site.xml"/></cfg>`,
	}
	for _, src := range docs {
		t.Run(src, func(t *testing.T) {
			h := DefaultHints()
			first := decodeString(t, src, h)

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, first, h))

			second := decodeString(t, buf.String(), h)
			if !confignode.OrderedEqual(first, second) {
				t.Fatalf("round trip drifted (-first +second):\n%s\nxml:\n%s",
					cmp.Diff(first.Interface(), second.Interface()), buf.String())
			}
		})
	}
}

func TestEncode_Unrepresentable(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"list of lists", `{"p":{"s":[[1,2]]}}`},
		{"bad name", `{"p":{"0001":"x"}}`},
		{"two roots", `{"a":1,"b":2}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, err := confignode.ParseJSON([]byte(tc.json))
			require.NoError(t, err)
			err = Encode(&bytes.Buffer{}, n, NoHints())
			assert.True(t, errors.Is(err, ErrUnrepresentable))
		})
	}
}

func TestSimplify(t *testing.T) {
	n := decodeString(t,
		`<root __order__="b,a"><a>1</a><b kind="k">text</b><c>only<!-- note --></c><wrap><wrap>v</wrap></wrap><include modifierAttribute="file" file="x"/></root>`,
		NoHints())
	got := Simplify(n)
	assert.Equal(t,
		`{"root":{"b":{"kind":"k"},"a":"1","c":"only","wrap":"v","include#x":{"file":"x"}}}`,
		jsonOf(t, got))
}

func TestParseHints(t *testing.T) {
	h, err := ParseHints([]byte(`<xml2Json>
  <listTag>hazardType</listTag>
  <listTag>segment</listTag>
  <textList tag="ugcs" outer=","/>
  <textList tag="pairs" outer=";" inner=":" keyIndex="1"/>
  <modifier tag="include" attribute="file"/>
</xml2Json>`))
	require.NoError(t, err)
	assert.True(t, h.ListTags["hazardType"])
	assert.True(t, h.ListTags["segment"])
	assert.Equal(t, TextList{Outer: ",", KeyIndex: -1}, h.TextLists["ugcs"])
	assert.Equal(t, TextList{Outer: ";", Inner: ":", KeyIndex: 1}, h.TextLists["pairs"])
	assert.Equal(t, "file", h.Modifiers["include"])

	_, err = ParseHints([]byte(`<other/>`))
	require.Error(t, err)
}

func TestDecodedOverridesCompose(t *testing.T) {
	base := decodeString(t, `<p><s>a</s><s>b</s><s>c</s><s>d</s><s>e</s></p>`, NoHints())
	site := decodeString(t, `<p><s override="remove_range">b</s><s>d</s></p>`, NoHints())

	out, _, err := overlay.Resolve(base, site)
	require.NoError(t, err)
	assert.Equal(t, `{"p":{"s":["a","e"]}}`, jsonOf(t, out))
}

func TestDecodedRemoveDropsMappingEntry(t *testing.T) {
	site := decodeString(t, `<p><x override="remove" a="1"/></p>`, NoHints())
	assert.Equal(t, `{"p":{"x":"_override_remove_"}}`, jsonOf(t, site))

	nested := decodeString(t, `<p><x override="remove"><v>1</v></x></p>`, NoHints())
	assert.Equal(t, `{"p":{"x":"_override_remove_"}}`, jsonOf(t, nested))

	base := decodeString(t, `<p><x a="1"><v>2</v></x><y>3</y></p>`, NoHints())
	out, _, err := overlay.Resolve(base, site)
	require.NoError(t, err)
	assert.Equal(t, `{"p":{"y":"3"}}`, jsonOf(t, out))
}
