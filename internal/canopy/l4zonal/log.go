package l4zonal

import "github.com/banshee-data/canopy.report/internal/monitoring"

var logf = monitoring.Prefixed("l4zonal")
