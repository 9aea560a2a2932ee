package vtec

import "slices"

// Partner is an office whose products carry ETNs that local products adopt
// instead of minting their own.
type Partner struct {
	Name     string   `json:"name"`
	Office   string   `json:"office"`
	PhenSigs []string `json:"phenSigs"`
}

// Issues reports whether the partner owns ETNs for phenSig.
func (p Partner) Issues(phenSig string) bool {
	return slices.Contains(p.PhenSigs, phenSig)
}

// DefaultPartners are the Storm Prediction Center (watches) and the Tropical
// Prediction Center (tropical products).
func DefaultPartners() []Partner {
	return []Partner{
		{Name: "SPC", Office: "KWNS", PhenSigs: []string{"TO.A", "SV.A"}},
		{Name: "TPC", Office: "KNHC", PhenSigs: []string{"HU.A", "HU.W", "TR.A", "TR.W", "SS.A", "SS.W"}},
	}
}

// PartnerFor returns the partner owning ETNs for phenSig.
func PartnerFor(partners []Partner, phenSig string) (Partner, bool) {
	for _, p := range partners {
		if p.Issues(phenSig) {
			return p, true
		}
	}
	return Partner{}, false
}

// PartnerByOffice returns the partner with the given office id.
func PartnerByOffice(partners []Partner, office string) (Partner, bool) {
	for _, p := range partners {
		if p.Office == office {
			return p, true
		}
	}
	return Partner{}, false
}
