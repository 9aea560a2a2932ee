package overlay

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
	"github.com/couchcryptid/storm-data-vtec/internal/domain"
)

func doc(t *testing.T, s string) *confignode.Node {
	t.Helper()
	n, err := confignode.ParseJSON([]byte(s))
	require.NoError(t, err)
	return n
}

func resolveJSON(t *testing.T, docs ...string) string {
	t.Helper()
	nodes := make([]*confignode.Node, len(docs))
	for i, d := range docs {
		nodes[i] = doc(t, d)
	}
	out, _, err := Resolve(nodes...)
	require.NoError(t, err)
	b, err := out.MarshalJSON()
	require.NoError(t, err)
	return string(b)
}

func TestResolve_Mappings(t *testing.T) {
	tests := []struct {
		name string
		docs []string
		want string
	}{
		{"scalar override", []string{`{"a":1,"b":2}`, `{"b":3,"c":4}`}, `{"a":1,"b":3,"c":4}`},
		{"replace", []string{`{"a":1,"b":2}`, `{"_override_replace_":true,"a":9}`}, `{"a":9}`},
		{"lock whole mapping", []string{`{"x":{"_override_lock_":true,"v":1}}`, `{"x":{"v":9}}`}, `{"x":{"v":1}}`},
		{"lock named keys", []string{`{"_override_lock_":["a"],"a":1,"b":2}`, `{"a":9,"b":9}`}, `{"a":1,"b":9}`},
		{"remove entry", []string{`{"a":1,"b":2}`, `{"b":"_override_remove_"}`}, `{"a":1}`},
		{"remove missing entry", []string{`{"a":1}`, `{"b":"_override_remove_"}`}, `{"a":1}`},
		{"remove rigid entry", []string{`{"x":{"_override_lock_parent_":true,"v":1}}`, `{"x":"_override_remove_"}`}, `{"x":{"v":1}}`},
		{"parent lock leaves contents open", []string{`{"x":{"_override_lock_parent_":true,"v":1}}`, `{"x":{"v":2}}`}, `{"x":{"v":2}}`},
		{"replace keeps rigid children", []string{`{"a":1,"x":{"_override_lock_":true,"v":1}}`, `{"_override_replace_":true,"b":2}`}, `{"x":{"v":1},"b":2}`},
		{"multiple", []string{`{"a":{"n":1},"b":{"n":2},"c":3}`, `{"_override_multiple_":{"flag":true}}`}, `{"a":{"n":1,"flag":true},"b":{"n":2,"flag":true},"c":3}`},
		{"kind change replaces", []string{`{"a":{"n":1}}`, `{"a":[1,2]}`}, `{"a":[1,2]}`},
		{"empty key is regular", []string{`{"":1}`, `{"":2}`}, `{"":2}`},
		{"nested", []string{`{"p":{"q":{"r":1,"s":2}}}`, `{"p":{"q":{"s":"_override_remove_","t":3}}}`}, `{"p":{"q":{"r":1,"t":3}}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.JSONEq(t, tc.want, resolveJSON(t, tc.docs...))
		})
	}
}

func TestResolve_Lists(t *testing.T) {
	tests := []struct {
		name string
		docs []string
		want string
	}{
		{"remove range", []string{`["a","b","c","d","e"]`, `["_override_remove_range_","b","d"]`}, `["a","e"]`},
		{"remove between", []string{`["a","b","c","d","e"]`, `["_override_remove_between_","b","d"]`}, `["a","b","d","e"]`},
		{"remove one", []string{`["a","b","c"]`, `["_override_remove_","b"]`}, `["a","c"]`},
		{"remove unmatched", []string{`["a","b"]`, `["_override_remove_","z","c"]`}, `["a","b","c"]`},
		{"remove list", []string{`["a","b","c","d"]`, `["_override_remove_list_","a","c","_override_null_","x"]`}, `["b","d","x"]`},
		{"remove list stop alias", []string{`["a","b","c"]`, `["_override_remove_list_","a","_override_remove_stop_","a"]`}, `["b","c","a"]`},
		{"remove before", []string{`["a","b","c","d"]`, `["_override_remove_before_","c"]`}, `["c","d"]`},
		{"remove after", []string{`["a","b","c","d"]`, `["_override_remove_after_","b"]`}, `["a","b"]`},
		{"insert before", []string{`["a","b","c"]`, `["_override_insert_before_","b","x","y"]`}, `["a","x","y","b","c"]`},
		{"insert after", []string{`["a","b","c"]`, `["_override_insert_after_","b","x"]`}, `["a","b","x","c"]`},
		{"prepend", []string{`["a","b"]`, `["_override_prepend_","x","y"]`}, `["x","y","a","b"]`},
		{"unique", []string{`["a","b"]`, `["b","c"]`}, `["a","b","c"]`},
		{"additive", []string{`["a","b"]`, `["_override_additive_","b"]`}, `["a","b","b"]`},
		{"replace", []string{`["a","b"]`, `["_override_replace_","c"]`}, `["c"]`},
		{"fresh list keeps duplicates", []string{`["a","a"]`}, `["a","a"]`},
		{"lock whole list", []string{`["_override_lock_","a"]`, `["b"]`}, `["a"]`},
		{"lock one survives replace", []string{`["a","b"]`, `["_override_lock_one_","a"]`, `["_override_replace_","c"]`}, `["a","c"]`},
		{"lock one survives remove", []string{`["a","b"]`, `["_override_lock_one_","b"]`, `["_override_remove_","b"]`}, `["a","b"]`},
		{"match by key merges", []string{
			`[{"id":1,"v":"a"},{"id":2,"v":"b"}]`,
			`["_override_by_key_id_",{"id":2,"v":"z"}]`,
		}, `[{"id":1,"v":"a"},{"id":2,"v":"z"}]`},
		{"match by key removes", []string{
			`[{"id":1,"v":"a"},{"id":2,"v":"b"}]`,
			`["_override_by_key_id_","_override_remove_",{"id":1}]`,
		}, `[{"id":2,"v":"b"}]`},
		{"match by keys merges", []string{
			`[{"id":1,"v":"a"},{"name":"n"}]`,
			`["_override_by_keys_",{"id":1,"v":"q"}]`,
		}, `[{"id":1,"v":"q"},{"name":"n"}]`},
		{"content match leaves differing maps apart", []string{
			`[{"id":1,"v":"a"}]`,
			`[{"id":1,"v":"q"}]`,
		}, `[{"id":1,"v":"a"},{"id":1,"v":"q"}]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.JSONEq(t, tc.want, resolveJSON(t, tc.docs...))
		})
	}
}

func TestResolve_ListParentLock(t *testing.T) {
	base := `{"l":["_override_lock_parent_","a"]}`
	assert.JSONEq(t, `{"l":["a"]}`, resolveJSON(t, base, `{"l":"_override_remove_"}`))
	assert.JSONEq(t, `{"l":["a","b"]}`, resolveJSON(t, base, `{"l":["b"]}`))
}

func TestAccumulate_IncompatibleKind(t *testing.T) {
	r := New()
	require.NoError(t, r.Accumulate(doc(t, `{"a":1}`)))

	err := r.Accumulate(doc(t, `["a"]`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompatibleKind))

	// The earlier composition is untouched.
	out, err := r.Combine().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(out))
	require.Len(t, r.Diagnostics(), 1)
	assert.Equal(t, domain.IncompatibleOverride, r.Diagnostics()[0].Kind)
}

func TestCombine_StripsLocksAndIsIdempotent(t *testing.T) {
	r := New()
	require.NoError(t, r.Accumulate(doc(t, `{"x":{"_override_lock_":true,"v":1}}`)))

	first := r.Combine()
	second := r.Combine()
	assert.True(t, confignode.OrderedEqual(first, second))

	x, ok := first.Get("x")
	require.True(t, ok)
	assert.Nil(t, x.Lock())

	composed := r.Composed()
	x, _ = composed.Get("x")
	require.NotNil(t, x.Lock())
	assert.True(t, x.Lock().All)
}

func TestResolve_IdentityProperties(t *testing.T) {
	docs := []string{
		`{"a":1,"b":{"c":[1,2,2,{"d":"e"}],"f":null},"g":"h"}`,
		`[1,"two",{"three":3},[4,5]]`,
		`{"hazardTypes":{"FF.W":{"headline":"FLASH FLOOD WARNING","allowAreaChange":true}}}`,
	}
	for _, d := range docs {
		t.Run(d, func(t *testing.T) {
			plain := doc(t, d)

			// resolve(D) == D
			out, _, err := Resolve(plain)
			require.NoError(t, err)
			if !confignode.OrderedEqual(plain, out) {
				t.Fatalf("resolve changed a directive-free document:\n%s", cmp.Diff(plain.Interface(), out.Interface()))
			}

			// resolve(C, identity) == C
			again, _, err := Resolve(out, confignode.Empty(out.Kind()))
			require.NoError(t, err)
			assert.True(t, confignode.OrderedEqual(out, again))
		})
	}
}

func TestResolve_NoOpOverlayOnComposedStack(t *testing.T) {
	base := doc(t, `{"a":{"_override_lock_":["k"],"k":1,"m":[1,2]},"b":2}`)
	site := doc(t, `{"a":{"k":5,"m":["_override_append_",3]},"b":"_override_remove_"}`)

	r := New()
	require.NoError(t, r.Accumulate(base))
	require.NoError(t, r.Accumulate(site))
	composed := r.Combine()

	r2 := New()
	require.NoError(t, r2.Accumulate(r.Composed()))
	require.NoError(t, r2.Accumulate(confignode.NewMap()))
	assert.True(t, confignode.OrderedEqual(composed, r2.Combine()))

	out, err := composed.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"k":1,"m":[1,2,3]}}`, string(out))
}

func TestResolve_Diagnostics(t *testing.T) {
	_, diags, err := Resolve(
		doc(t, `{"l":["a","b"],"m":{}}`),
		doc(t, `{"l":["_override_bogus_","_override_remove_range_","a"],"m":{"_override_strange_":1}}`),
	)
	require.NoError(t, err)
	require.Len(t, diags, 3)
	for _, d := range diags {
		assert.Equal(t, domain.IncompatibleOverride, d.Kind)
	}
}

func TestAccumulateValue_Robust(t *testing.T) {
	type opaque struct{ n int }

	r := New()
	require.NoError(t, r.AccumulateValue(map[string]any{"a": 1, "bad": opaque{n: 1}}))
	out, err := r.Combine().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(out))

	robust := New(WithRobust())
	require.NoError(t, robust.AccumulateValue(map[string]any{"a": 1, "bad": opaque{n: 1}}))
	out, err = robust.Combine().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"bad":"{1}"}`, string(out))
}

func TestParseListToken(t *testing.T) {
	d, ok := ParseListToken("_override_by_key_pointID_")
	require.True(t, ok)
	assert.Equal(t, MatchMode{By: ByKey, Key: "pointID"}, d)

	_, ok = ParseListToken("_override_by_key__")
	assert.False(t, ok)

	d, ok = ParseListToken(TokNull)
	require.True(t, ok)
	assert.Equal(t, Terminator{}, d)
}
