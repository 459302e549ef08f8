package l2treetops

import "github.com/banshee-data/canopy.report/internal/monitoring"

var logf = monitoring.Prefixed("l2treetops")
