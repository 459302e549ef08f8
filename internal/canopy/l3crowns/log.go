package l3crowns

import "github.com/banshee-data/canopy.report/internal/monitoring"

var logf = monitoring.Prefixed("l3crowns")
