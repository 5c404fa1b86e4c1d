package geo

import (
	"github.com/paulmach/orb/geojson"
)

// Located is anything that can be drawn on the map.
type Located interface {
	MapID() string
	MapGeometry() *Geometry
	MapProperties() map[string]any
}

// FeatureCollection emits one feature per item that carries a geometry. Each
// feature's properties gain a "center" [lon, lat] for label placement.
func FeatureCollection[T Located](items []T) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(items))
	for _, item := range items {
		g := item.MapGeometry()
		if g == nil || g.Coordinates == nil {
			continue
		}
		f := geojson.NewFeature(g.Coordinates)
		f.ID = item.MapID()
		for k, v := range item.MapProperties() {
			f.Properties[k] = v
		}
		if c, err := Centroid(g); err == nil {
			f.Properties["center"] = []float64{c.Lon(), c.Lat()}
		}
		fc.Append(f)
	}
	return fc
}

// View selects the base map layer.
type View string

const (
	ViewStreet    View = "street"
	ViewSatellite View = "satellite"
)

// Tiles describes an XYZ tile source.
type Tiles struct {
	View        View   `json:"view"`
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	MaxZoom     int    `json:"maxZoom"`
}

// TileSource returns the tile layer for view, defaulting to street.
func TileSource(view string) Tiles {
	if View(view) == ViewSatellite {
		return Tiles{
			View:        ViewSatellite,
			URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
			Attribution: "Tiles © Esri",
			MaxZoom:     19,
		}
	}
	return Tiles{
		View:        ViewStreet,
		URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "© OpenStreetMap contributors",
		MaxZoom:     19,
	}
}
