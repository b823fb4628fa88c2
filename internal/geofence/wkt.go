// Package geofence parses the well-known-text areas attached to geofences.
// Parsing is permissive: anything outside the three supported shapes is
// reported as unrecognised rather than as an error.
package geofence

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind is the geometry of a geofence area.
type Kind string

const (
	KindCircle   Kind = "circle"
	KindPolygon  Kind = "polygon"
	KindPolyline Kind = "polyline"
)

// Point is a latitude/longitude pair in the order the WKT source uses.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Shape is a parsed area. Center and Radius (metres) are set for circles,
// Points for polygons and polylines.
type Shape struct {
	Kind   Kind    `json:"kind"`
	Center Point   `json:"center,omitempty"`
	Radius float64 `json:"radius,omitempty"`
	Points []Point `json:"points,omitempty"`
}

const number = `[-+]?\d+(?:\.\d+)?`

var (
	circlePattern     = regexp.MustCompile(`(?i)^\s*CIRCLE\s*\(\s*(` + number + `)\s+(` + number + `)\s*,\s*(` + number + `)\s*\)\s*$`)
	polygonPattern    = regexp.MustCompile(`(?i)^\s*POLYGON\s*\(\s*\(([^()]*)\)\s*\)\s*$`)
	lineStringPattern = regexp.MustCompile(`(?i)^\s*LINESTRING\s*\(([^()]*)\)\s*$`)
	pointPattern      = regexp.MustCompile(`^\s*(` + number + `)\s+(` + number + `)\s*$`)
)

// Parse extracts a shape from a WKT area string. ok is false for
// unrecognised syntax.
func Parse(area string) (Shape, bool) {
	if m := circlePattern.FindStringSubmatch(area); m != nil {
		lat, _ := strconv.ParseFloat(m[1], 64)
		lng, _ := strconv.ParseFloat(m[2], 64)
		radius, _ := strconv.ParseFloat(m[3], 64)
		return Shape{Kind: KindCircle, Center: Point{Lat: lat, Lng: lng}, Radius: radius}, true
	}
	if m := polygonPattern.FindStringSubmatch(area); m != nil {
		points, ok := parsePoints(m[1])
		if !ok || len(points) < 3 {
			return Shape{}, false
		}
		return Shape{Kind: KindPolygon, Points: points}, true
	}
	if m := lineStringPattern.FindStringSubmatch(area); m != nil {
		points, ok := parsePoints(m[1])
		if !ok || len(points) < 2 {
			return Shape{}, false
		}
		return Shape{Kind: KindPolyline, Points: points}, true
	}
	return Shape{}, false
}

func parsePoints(list string) ([]Point, bool) {
	parts := strings.Split(list, ",")
	points := make([]Point, 0, len(parts))
	for _, part := range parts {
		m := pointPattern.FindStringSubmatch(part)
		if m == nil {
			return nil, false
		}
		lat, _ := strconv.ParseFloat(m[1], 64)
		lng, _ := strconv.ParseFloat(m[2], 64)
		points = append(points, Point{Lat: lat, Lng: lng})
	}
	return points, true
}
