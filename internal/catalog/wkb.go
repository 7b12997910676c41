package catalog

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// Boundary datasets are pre-projected to a common equal-area projection; the
// SRID tags the blobs so downstream consumers can tell them apart from
// geographic coordinates.
const boundarySRID = 5070 // NAD83 / Conus Albers

// EncodePolygon converts a shapefile polygon to an EWKB MultiPolygon blob and
// its area-weighted centroid. Returns nil bytes for empty or non-areal shapes.
func EncodePolygon(shape shp.Shape) ([]byte, float64, float64, error) {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil, 0, 0, nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(boundarySRID)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil, 0, 0, nil
	}

	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, 0, 0, eris.Wrap(err, "catalog: encode EWKB")
	}

	cx, cy := Centroid(mp)
	return data, cx, cy, nil
}

// DecodeGeom decodes an EWKB blob back into a go-geom geometry.
func DecodeGeom(data []byte) (geom.T, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: decode EWKB")
	}
	return g, nil
}

// Centroid computes the area-weighted centroid of a MultiPolygon using the
// shoelace formula over each outer ring. Degenerate (zero-area) geometry
// falls back to the bounds midpoint.
func Centroid(mp *geom.MultiPolygon) (float64, float64) {
	var sumA, sumX, sumY float64

	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		ring := poly.LinearRing(0)
		coords := ring.FlatCoords()
		stride := ring.Stride()
		n := len(coords) / stride
		if n < 3 {
			continue
		}

		for j := 0; j < n; j++ {
			x0 := coords[j*stride]
			y0 := coords[j*stride+1]
			k := (j + 1) % n
			x1 := coords[k*stride]
			y1 := coords[k*stride+1]

			cross := x0*y1 - x1*y0
			sumA += cross
			sumX += (x0 + x1) * cross
			sumY += (y0 + y1) * cross
		}
	}

	if sumA == 0 {
		b := mp.Bounds()
		return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2
	}

	area := sumA / 2
	return sumX / (6 * area), sumY / (6 * area)
}
