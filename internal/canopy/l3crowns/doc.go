// Package l3crowns owns Layer 3 (Crowns) of the canopy data model.
//
// Responsibilities: marker-controlled region growing from treetops over the
// height raster, producing non-overlapping crowns and their attributes.
// Key types: Params, Result, Region.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
//
// Growth runs as a single pass over one shared priority frontier and is
// therefore sequential; splitting it per tree would let crowns race for
// the same cells.
package l3crowns
