// Package l1grid owns Layer 1 (Grid) of the canopy data model.
//
// Responsibilities: the height raster and its affine transform, the
// coordinate-to-cell GridIndex, attributed points, and the error sentinels
// shared by every higher layer.
// Key types: Raster, Transform, Extent, GridIndex, Point.
//
// Dependency rule: L1 depends on nothing else in internal/canopy.
// No file or database I/O is allowed in this package.
package l1grid
