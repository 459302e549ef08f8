// Package pipeline runs the canopy layers end to end: treetop detection,
// crown delineation and zonal summaries of both.
//
// It holds no state between calls. File formats, plotting and persistence
// are handled by the callers in cmd/canopy.
package pipeline
