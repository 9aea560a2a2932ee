// Package domain holds the types shared across the VTEC subsystem's packages
// and adapters.
//
// # Products
//
// NWS text products arrive as WMO bulletins:
//
//	WFUS53 KOAX 121800
//	FFWOAX
//
//	NEC055-153-121900-
//	/O.NEW.KOAX.FF.W.0001.260512T1800Z-260512T1900Z/
//	...
//	$$
//
// The first line is the WMO abbreviated heading (data type, office, DDHHMM
// and an optional BBB correction indicator) and the second is the AWIPS
// identifier (PIL). Each "$$"-terminated segment opens with a UGC line and
// carries zero or more P-VTEC lines, each optionally followed by an H-VTEC
// line. The day-hour-minute stamp is resolved against the receipt time.
//
// # Messages
//
// The service reads a [RawProduct] per bulletin and writes [OutputEvent]
// values: one change summary per product that altered the VTEC store and one
// notification per partner record that touches the local office. Keys come
// from [MessageKey] so a replayed product keeps its key.
//
// # Diagnostics
//
// Data-level problems (a malformed segment, a layer of the wrong shape, a
// locked hazard type asked to change area, a late update to a closed record,
// an event missing its required fields) are not errors. They are reported as
// [Diagnostic] values next to the result and processing continues.
//
// # Time
//
// [Now] reads a package-level clockwork clock. Displaced real time (running
// against an archived case) replaces it with a fake clock set to the case
// time.
package domain
