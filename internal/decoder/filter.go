package decoder

import (
	"strings"

	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

// OfficeFilter is the set of offices whose records are kept. The nil filter
// keeps everything.
type OfficeFilter map[string]bool

// NewOfficeFilter builds the filter for site plus its partners and any extra
// offices.
func NewOfficeFilter(site string, partners []vtec.Partner, extra ...string) OfficeFilter {
	f := OfficeFilter{site: true}
	for _, p := range partners {
		f[p.Office] = true
	}
	for _, o := range extra {
		if o = strings.TrimSpace(o); o != "" {
			f[o] = true
		}
	}
	return f
}

// Allows reports whether records from office pass.
func (f OfficeFilter) Allows(office string) bool {
	return f == nil || f[office]
}
