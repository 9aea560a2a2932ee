package localization

import (
	"errors"

	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/hazard"
)

// HazardTypesPath holds site and user overrides of the hazard type table.
const HazardTypesPath = "hazardTypes"

// HazardTable composes the hazard type overrides for c on top of the built-in
// table. With no override files the built-in table is returned.
func (s *Store) HazardTable(c Context) (*hazard.Table, []domain.Diagnostic, error) {
	doc, diags, err := s.Compose(HazardTypesPath, c)
	if errors.Is(err, ErrNotFound) {
		return hazard.DefaultTable(), diags, nil
	}
	if err != nil {
		return nil, diags, err
	}
	t, more, err := hazard.LoadTable(doc)
	return t, append(diags, more...), err
}

// Headlines looks up hazard headlines from the composed table for one
// context. Each lookup recomposes, so override edits picked up by a Watcher
// apply without a restart.
type Headlines struct {
	store *Store
	ctx   Context
}

// Headlines returns a headline source for c.
func (s *Store) Headlines(c Context) *Headlines {
	return &Headlines{store: s, ctx: c}
}

// Headline returns the headline for hazardType, falling back to the
// built-in table when the overrides cannot be loaded.
func (h *Headlines) Headline(hazardType string) string {
	t, _, err := h.store.HazardTable(h.ctx)
	if err != nil {
		h.store.logger.Warn("hazard table unavailable, using built-in", "error", err)
		t = hazard.DefaultTable()
	}
	return t.Headline(hazardType)
}
