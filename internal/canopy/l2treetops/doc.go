// Package l2treetops owns Layer 2 (Treetops) of the canopy data model.
//
// Responsibilities: variable window local maximum filtering of a canopy
// height raster and promotion of accepted cells to treetop points.
// Key types: Params, WindowFunc, Detector, Treetop.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2treetops
