package catalog

import (
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func unitSquare() *shp.Polygon {
	return &shp.Polygon{
		NumParts:  1,
		NumPoints: 5,
		Parts:     []int32{0},
		Points: []shp.Point{
			{X: 0, Y: 0},
			{X: 0, Y: 1},
			{X: 1, Y: 1},
			{X: 1, Y: 0},
			{X: 0, Y: 0},
		},
	}
}

func TestEncodePolygonRoundTrip(t *testing.T) {
	data, cx, cy, err := EncodePolygon(unitSquare())
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.InDelta(t, 0.5, cx, 1e-9)
	assert.InDelta(t, 0.5, cy, 1e-9)

	g, err := DecodeGeom(data)
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, boundarySRID, mp.SRID())
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 5, mp.Polygon(0).LinearRing(0).NumCoords())
}

func TestEncodePolygonMultiPart(t *testing.T) {
	p := &shp.Polygon{
		NumParts:  2,
		NumPoints: 10,
		Parts:     []int32{0, 5},
		Points: []shp.Point{
			{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0},
			{X: 10, Y: 10}, {X: 10, Y: 11}, {X: 11, Y: 11}, {X: 11, Y: 10}, {X: 10, Y: 10},
		},
	}

	data, cx, cy, err := EncodePolygon(p)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	g, err := DecodeGeom(data)
	require.NoError(t, err)
	mp := g.(*geom.MultiPolygon)
	assert.Equal(t, 2, mp.NumPolygons())

	// Equal-area parts pull the centroid to their midpoint.
	assert.InDelta(t, 5.5, cx, 1e-9)
	assert.InDelta(t, 5.5, cy, 1e-9)
}

func TestEncodePolygonDegenerate(t *testing.T) {
	data, _, _, err := EncodePolygon(&shp.Polygon{})
	require.NoError(t, err)
	assert.Nil(t, data)

	data, _, _, err = EncodePolygon(&shp.Point{X: 1, Y: 2})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestCentroidDegenerateFallsBackToBounds(t *testing.T) {
	// Collinear ring has zero area; centroid falls back to the bounds
	// midpoint.
	mp := geom.NewMultiPolygon(geom.XY)
	poly := geom.NewPolygon(geom.XY)
	require.NoError(t, poly.Push(geom.NewLinearRingFlat(geom.XY, []float64{
		0, 0, 2, 0, 4, 0, 0, 0,
	})))
	require.NoError(t, mp.Push(poly))

	cx, cy := Centroid(mp)
	assert.InDelta(t, 2, cx, 1e-9)
	assert.InDelta(t, 0, cy, 1e-9)
}
