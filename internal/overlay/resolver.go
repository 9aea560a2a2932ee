// Package overlay composes an ordered stack of configuration documents (base
// first, then site and user overrides) into one document.
//
// Directives embedded in the documents (`_override_replace_`,
// `_override_lock_`, `_override_remove_`, `_override_multiple_` and the list
// mutation tokens) are lifted into typed [Directive] values as each overlay is
// applied. Lock protection survives between overlays as node metadata and is
// dropped when [Resolver.Combine] materializes the result.
package overlay

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
	"github.com/couchcryptid/storm-data-vtec/internal/domain"
)

// ErrIncompatibleKind is returned when an overlay's top-level kind differs
// from the base document's.
var ErrIncompatibleKind = errors.New("incompatible overlay kind")

// Resolver accumulates documents and composes them. It keeps no state beyond
// the documents given to it.
type Resolver struct {
	composed *confignode.Node
	layers   int
	robust   bool
	diags    []domain.Diagnostic
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRobust coerces values with no configuration form to strings in
// AccumulateValue instead of dropping them.
func WithRobust() Option {
	return func(r *Resolver) { r.robust = true }
}

// New creates an empty Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Accumulate applies doc on top of everything accumulated so far. A nil doc is
// ignored.
func (r *Resolver) Accumulate(doc *confignode.Node) error {
	if doc == nil {
		return nil
	}
	if r.composed != nil && r.composed.Kind() != doc.Kind() {
		err := fmt.Errorf("%w: base is a %s, overlay %d is a %s",
			ErrIncompatibleKind, r.composed.Kind(), r.layers, doc.Kind())
		r.diags = append(r.diags, domain.Diagnostic{
			Kind:    domain.IncompatibleOverride,
			Subject: fmt.Sprintf("layer %d", r.layers),
			Message: err.Error(),
		})
		return err
	}
	m := &merger{}
	r.composed = m.merge(r.composed, doc, "")
	r.diags = append(r.diags, m.diags...)
	r.layers++
	return nil
}

// AccumulateValue converts plain Go data (for example the result of
// json.Unmarshal into any) and accumulates it.
func (r *Resolver) AccumulateValue(v any) error {
	n, ok := confignode.FromValue(v, r.robust)
	if !ok {
		r.diags = append(r.diags, domain.Diagnosef(domain.IncompatibleOverride,
			fmt.Sprintf("layer %d", r.layers), "value of type %T has no configuration form", v))
		return nil
	}
	return r.Accumulate(n)
}

// Combine returns the composed document with every directive and lock
// removed. It may be called repeatedly; the result is a fresh copy each time.
// Combine returns nil when nothing was accumulated.
func (r *Resolver) Combine() *confignode.Node {
	return r.composed.Strip()
}

// Composed returns the intermediate composition with lock metadata intact,
// suitable as the base of a further overlay stack.
func (r *Resolver) Composed() *confignode.Node {
	return r.composed.Clone()
}

// Layers is the number of documents accumulated.
func (r *Resolver) Layers() int { return r.layers }

// Diagnostics lists tolerated problems met while composing.
func (r *Resolver) Diagnostics() []domain.Diagnostic {
	return append([]domain.Diagnostic(nil), r.diags...)
}

// Resolve composes docs in order and returns the materialized result.
func Resolve(docs ...*confignode.Node) (*confignode.Node, []domain.Diagnostic, error) {
	r := New()
	for _, d := range docs {
		if err := r.Accumulate(d); err != nil {
			return nil, r.Diagnostics(), err
		}
	}
	return r.Combine(), r.Diagnostics(), nil
}
