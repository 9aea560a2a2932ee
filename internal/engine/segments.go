package engine

import (
	"cmp"
	"slices"
	"strings"

	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

// segment groups planned records into products by PIL. Zones whose records
// carry identical VTEC share a segment. Records of combinable hazard types
// are pooled across events; other events segment on their own.
func segment(plans []planned) []Product {
	byPIL := map[string][]planned{}
	for _, p := range plans {
		if len(p.recs) > 0 {
			byPIL[p.pil] = append(byPIL[p.pil], p)
		}
	}

	pils := make([]string, 0, len(byPIL))
	for pil := range byPIL {
		pils = append(pils, pil)
	}
	slices.Sort(pils)

	products := make([]Product, 0, len(pils))
	for _, pil := range pils {
		var pooled []vtec.Record
		var segs []Segment
		for _, p := range byPIL[pil] {
			if p.pol.CombinableSegments {
				pooled = append(pooled, p.recs...)
				continue
			}
			segs = append(segs, groupByVTEC(p.recs)...)
		}
		segs = append(segs, groupByVTEC(pooled)...)
		slices.SortStableFunc(segs, compareSegments)

		for i := range segs {
			segs[i].Index = i + 1
			for j := range segs[i].Records {
				segs[i].Records[j].PIL = pil
				segs[i].Records[j].Seg = i + 1
			}
		}
		products = append(products, Product{PIL: pil, Segments: segs})
	}
	return products
}

// groupByVTEC forms one segment per distinct set of VTEC lines.
func groupByVTEC(recs []vtec.Record) []Segment {
	byUGC := map[string][]vtec.Record{}
	var order []string
	for _, r := range recs {
		if _, ok := byUGC[r.UGC]; !ok {
			order = append(order, r.UGC)
		}
		byUGC[r.UGC] = append(byUGC[r.UGC], r)
	}

	index := map[string]int{}
	var segs []Segment
	for _, ugc := range order {
		zone := byUGC[ugc]
		slices.SortStableFunc(zone, compareRecords)
		sig := signature(zone)
		i, ok := index[sig]
		if !ok {
			i = len(segs)
			index[sig] = i
			segs = append(segs, Segment{VTEC: lines(zone)})
		}
		s := &segs[i]
		s.UGCs = append(s.UGCs, ugc)
		s.Records = append(s.Records, zone...)
		for _, r := range zone {
			for _, id := range r.EventIDs {
				if !slices.Contains(s.EventIDs, id) {
					s.EventIDs = append(s.EventIDs, id)
				}
			}
			if s.PurgeTime.IsZero() || r.PurgeTime.Before(s.PurgeTime) {
				s.PurgeTime = r.PurgeTime
			}
		}
	}

	for i := range segs {
		s := &segs[i]
		slices.Sort(s.UGCs)
		slices.Sort(s.EventIDs)
		slices.SortStableFunc(s.Records, func(a, b vtec.Record) int {
			if c := compareRecords(a, b); c != 0 {
				return c
			}
			return cmp.Compare(a.UGC, b.UGC)
		})
	}
	return segs
}

// compareRecords puts terminal actions first, then orders by event.
func compareRecords(a, b vtec.Record) int {
	if at, bt := a.Action.Terminal(), b.Action.Terminal(); at != bt {
		if at {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.PhenSig(), b.PhenSig()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ETN, b.ETN); c != 0 {
		return c
	}
	return slices.Compare(a.EventIDs, b.EventIDs)
}

func signature(zone []vtec.Record) string {
	return strings.Join(lines(zone), "\n")
}

// lines lists a zone's P-VTEC strings, each followed by its H-VTEC string.
func lines(zone []vtec.Record) []string {
	var out []string
	for _, r := range zone {
		out = append(out, r.VTECStr)
		if r.HVTEC != nil {
			out = append(out, vtec.FormatH(*r.HVTEC))
		}
	}
	return out
}

// compareSegments orders by zone set then by lowest event id.
func compareSegments(a, b Segment) int {
	if c := slices.Compare(a.UGCs, b.UGCs); c != 0 {
		return c
	}
	return cmp.Compare(minID(a.EventIDs), minID(b.EventIDs))
}

func minID(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return slices.Min(ids)
}
