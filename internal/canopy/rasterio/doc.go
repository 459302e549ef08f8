// Package rasterio reads and writes height rasters as ESRI ASCII grids
// (.asc), preserving the transform and the no-data value.
package rasterio
