package geo

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) *Geometry {
	t.Helper()
	var g Geometry
	require.NoError(t, json.Unmarshal([]byte(body), &g))
	return &g
}

func TestValidateGeometry(t *testing.T) {
	cases := []struct {
		name string
		geom *Geometry
		ok   bool
	}{
		{name: "point", geom: NewPoint(85.32, 27.7), ok: true},
		{name: "decoded point", geom: decode(t, `{"type":"Point","coordinates":[85.32,27.7]}`), ok: true},
		{name: "point out of range", geom: NewPoint(200, 27.7)},
		{name: "closed polygon", geom: NewPolygon(orb.Ring{{85, 27}, {85.1, 27}, {85.1, 27.1}, {85, 27}}), ok: true},
		{name: "open polygon", geom: NewPolygon(orb.Ring{{85, 27}, {85.1, 27}, {85.1, 27.1}, {85, 27.2}})},
		{name: "short ring", geom: NewPolygon(orb.Ring{{85, 27}, {85.1, 27}, {85, 27}})},
		{name: "no rings", geom: NewPolygon()},
		{name: "line string", geom: decode(t, `{"type":"LineString","coordinates":[[0,0],[1,1]]}`)},
		{name: "nil", geom: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateGeometry(tc.geom)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBadCoordinates) || errors.Is(err, ErrUnsupportedType))
		})
	}
}

func TestMalformedCoordinatesFailToDecode(t *testing.T) {
	var g Geometry
	assert.Error(t, json.Unmarshal([]byte(`{"type":"Point","coordinates":"x"}`), &g))
}

func TestGeometryJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(NewPoint(85.3, 27.7))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Point","coordinates":[85.3,27.7]}`, string(data))
}

func TestCentroid(t *testing.T) {
	c, err := Centroid(NewPolygon(orb.Ring{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}))
	require.NoError(t, err)
	assert.InDelta(t, 1, c.Lon(), 1e-9)
	assert.InDelta(t, 1, c.Lat(), 1e-9)

	c, err = Centroid(NewPoint(85.3, 27.7))
	require.NoError(t, err)
	assert.Equal(t, orb.Point{85.3, 27.7}, c)

	_, err = Centroid(decode(t, `{"type":"LineString","coordinates":[[0,0],[1,1]]}`))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

type pin struct {
	id   string
	geom *Geometry
}

func (p pin) MapID() string                 { return p.id }
func (p pin) MapGeometry() *Geometry        { return p.geom }
func (p pin) MapProperties() map[string]any { return map[string]any{"name": p.id} }

func TestFeatureCollectionSkipsItemsWithoutGeometry(t *testing.T) {
	fc := FeatureCollection([]pin{{id: "a", geom: NewPoint(85.3, 27.7)}, {id: "b"}})
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Equal(t, "a", fc.Features[0].ID)
	assert.Equal(t, "Feature", fc.Features[0].Type)
	assert.Equal(t, "a", fc.Features[0].Properties["name"])
	assert.Equal(t, []float64{85.3, 27.7}, fc.Features[0].Properties["center"])

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	var out struct {
		Type     string `json:"type"`
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "FeatureCollection", out.Type)
	require.Len(t, out.Features, 1)
	assert.Equal(t, "a", out.Features[0].ID)
	assert.Equal(t, TypePoint, out.Features[0].Geometry.Type)
}

func TestTileSource(t *testing.T) {
	assert.Equal(t, ViewSatellite, TileSource("satellite").View)
	assert.Equal(t, ViewStreet, TileSource("street").View)
	assert.Equal(t, ViewStreet, TileSource("hybrid").View)
	assert.NotEqual(t, TileSource("satellite").URL, TileSource("street").URL)
}
