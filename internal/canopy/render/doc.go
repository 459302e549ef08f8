// Package render draws canopy products for inspection: PNG height maps with
// treetops via gonum/plot and HTML charts of heights and zone statistics via
// go-echarts.
package render
