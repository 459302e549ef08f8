// Package l4zonal owns Layer 4 (Zonal) of the canopy data model.
//
// Responsibilities: wrapping caller-supplied reductions so that a bad zone
// never aborts a run, and binning point observations into grid or polygon
// zones before reducing them.
// Key types: Adapter, StatFunc, ZoneSpec, Request, Result, Table.
//
// Dependency rule: L4 may depend on L1, but never on L2-L3 directly. Callers
// convert treetops and crowns to l1grid.Point before summarising.
package l4zonal
