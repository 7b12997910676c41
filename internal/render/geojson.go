package render

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/ratemap/internal/catalog"
)

// GeoJSON renders a map as a FeatureCollection with the legend and the
// unmatched-identifier report embedded as top-level members. Regions without
// geometry (degraded partitions) are skipped.
type GeoJSON struct {
	// Indent pretty-prints the output when set.
	Indent bool
}

type featureCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
	Legend   *Legend           `json:"legend,omitempty"`
	Report   []reportEntry     `json:"unmatched,omitempty"`
}

type reportEntry struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Render implements Renderer.
func (g *GeoJSON) Render(ctx context.Context, m *Map, w io.Writer) error {
	fc := featureCollection{
		Type:   "FeatureCollection",
		Legend: &m.Legend,
	}

	for _, r := range m.Regions {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "render: cancelled")
		}
		raw, err := featureJSON(r)
		if err != nil {
			return eris.Wrapf(err, "render: region %s", r.ID)
		}
		if raw != nil {
			fc.Features = append(fc.Features, raw)
		}
	}

	for _, e := range m.Report.Entries {
		fc.Report = append(fc.Report, reportEntry{ID: e.ID, Reason: e.Reason, Detail: e.Detail})
	}

	enc := json.NewEncoder(w)
	if g.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(fc); err != nil {
		return eris.Wrap(err, "render: encode feature collection")
	}
	return nil
}

func featureJSON(r Region) (json.RawMessage, error) {
	if len(r.Geom) == 0 {
		return nil, nil
	}
	g, err := catalog.DecodeGeom(r.Geom)
	if err != nil {
		return nil, err
	}

	geometry, err := geojson.Marshal(g)
	if err != nil {
		return nil, eris.Wrap(err, "marshal geometry")
	}

	props := map[string]any{
		"id":      r.ID,
		"level":   r.Level.String(),
		"hasData": r.HasData,
	}
	if r.Name != "" {
		props["name"] = r.Name
	}
	if r.StateFIPS != "" {
		props["state"] = r.StateFIPS
	}
	if r.Registry != "" {
		props["registry"] = r.Registry
	}
	if r.HasData {
		props["value"] = r.Value
		props["category"] = r.Category
		props["hatched"] = r.Hatched
	}
	if r.Color != "" {
		props["color"] = r.Color
	}

	feature := map[string]any{
		"type":       "Feature",
		"geometry":   json.RawMessage(geometry),
		"properties": props,
	}
	data, err := json.Marshal(feature)
	if err != nil {
		return nil, eris.Wrap(err, "marshal feature")
	}
	return data, nil
}
