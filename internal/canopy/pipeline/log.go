package pipeline

import "github.com/banshee-data/canopy.report/internal/monitoring"

var logf = monitoring.Prefixed("pipeline")
