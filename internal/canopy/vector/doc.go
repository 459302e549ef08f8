// Package vector converts between GeoJSON and the canopy types: polygon
// zones in, treetops, crowns and zone summaries out.
package vector
