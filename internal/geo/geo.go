// Package geo validates farm geometries and builds the GeoJSON and tile
// configuration consumed by the farms map.
package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

const (
	TypePoint   = "Point"
	TypePolygon = "Polygon"
)

// Geometry is a GeoJSON geometry in WGS84 (lon, lat). Farms accept Point and
// Polygon only.
type Geometry = geojson.Geometry

var (
	ErrUnsupportedType = errors.New("geometry type must be Point or Polygon")
	ErrBadCoordinates  = errors.New("geometry coordinates are malformed")
)

var world = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// NewPoint returns a Point geometry at lon, lat.
func NewPoint(lon, lat float64) *Geometry {
	return geojson.NewGeometry(orb.Point{lon, lat})
}

// NewPolygon returns a Polygon geometry with the given rings, outer ring first.
func NewPolygon(rings ...orb.Ring) *Geometry {
	return geojson.NewGeometry(orb.Polygon(rings))
}

// ValidateGeometry checks coordinate ranges and, for polygons, that every ring is
// closed and has at least four positions.
func ValidateGeometry(g *Geometry) error {
	if g == nil || g.Coordinates == nil {
		return fmt.Errorf("%w: missing coordinates", ErrBadCoordinates)
	}
	switch shape := g.Coordinates.(type) {
	case orb.Point:
		return checkPosition(shape)
	case orb.Polygon:
		if len(shape) == 0 {
			return fmt.Errorf("%w: polygon has no rings", ErrBadCoordinates)
		}
		for i, ring := range shape {
			if len(ring) < 4 {
				return fmt.Errorf("%w: ring %d needs at least 4 positions", ErrBadCoordinates, i)
			}
			if !ring.Closed() {
				return fmt.Errorf("%w: ring %d is not closed", ErrBadCoordinates, i)
			}
			for _, p := range ring {
				if err := checkPosition(p); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return ErrUnsupportedType
	}
}

func checkPosition(p orb.Point) error {
	if !world.Contains(p) {
		return fmt.Errorf("%w: position %v out of range", ErrBadCoordinates, p)
	}
	return nil
}

// Centroid returns a representative point: the point itself, or the
// area-weighted centroid of a polygon.
func Centroid(g *Geometry) (orb.Point, error) {
	if g == nil || g.Coordinates == nil {
		return orb.Point{}, ErrBadCoordinates
	}
	switch g.Coordinates.(type) {
	case orb.Point, orb.Polygon:
		c, _ := planar.CentroidArea(g.Coordinates)
		return c, nil
	default:
		return orb.Point{}, ErrUnsupportedType
	}
}
