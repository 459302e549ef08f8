// Package sqlite contains SQLite repository implementations for canopy
// runs, treetops, crowns and zone statistics.
//
// All database reads and writes for canopy results belong here rather than
// in the layer packages (L1-L4), which stay free of SQL.
package sqlite
