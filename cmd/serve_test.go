package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ratemap/internal/catalog"
	"github.com/sells-group/ratemap/internal/classify"
	"github.com/sells-group/ratemap/internal/fips"
	"github.com/sells-group/ratemap/internal/pipeline"
)

func ptr(v float64) *float64 { return &v }

// testRouter builds a router over a seeded sqlite catalog.
func testRouter(t *testing.T) http.Handler {
	t.Helper()

	store, err := catalog.NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	square := &shp.Polygon{
		NumParts:  1,
		NumPoints: 5,
		Parts:     []int32{0},
		Points: []shp.Point{
			{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0},
		},
	}
	geom, cx, cy, err := catalog.EncodePolygon(square)
	require.NoError(t, err)

	counties := []catalog.Boundary{
		{Key: "06037", Level: fips.LevelCounty, StateFIPS: "06", Name: "Los Angeles", Registry: "CA-LA", HSA: "018", CentroidX: cx, CentroidY: cy, Geom: geom},
		{Key: "06001", Level: fips.LevelCounty, StateFIPS: "06", Name: "Alameda", Registry: "CA-SF", HSA: "014", CentroidX: cx, CentroidY: cy, Geom: geom},
		{Key: "06075", Level: fips.LevelCounty, StateFIPS: "06", Name: "San Francisco", Registry: "CA-SF", HSA: "014", CentroidX: cx, CentroidY: cy, Geom: geom},
	}
	_, err = store.BulkInsert(ctx, fips.LevelCounty, "06", 2000, counties)
	require.NoError(t, err)

	return buildRouter(catalog.NewCache(store), pipeline.Options{
		Year:     2000,
		Category: classify.CategorySpec{Count: 3},
		Palette:  "blues",
	})
}

func TestRouter_Health(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Palettes(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/palettes", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body["palettes"], "blues")
	assert.Contains(t, body["palettes"], "reds")
}

func TestRouter_Render(t *testing.T) {
	router := testRouter(t)

	v1, v2, v3 := 1.2, 3.4, 5.6
	payload := renderRequest{
		Rows: []renderRow{
			{ID: "06037", Value: &v1},
			{ID: "06001", Value: &v2},
			{ID: "06075", Value: &v3},
		},
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/render", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/geo+json")
	assert.NotEmpty(t, rr.Header().Get("X-Job-ID"))

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 3)
}

func TestRouter_Render_NullValueIsNoData(t *testing.T) {
	router := testRouter(t)

	v := 2.5
	payload := renderRequest{
		Rows: []renderRow{
			{ID: "06037", Value: &v},
			{ID: "06001", Value: nil},
		},
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/render", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestRouter_Render_NoRows(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/render", bytes.NewReader([]byte(`{"rows":[]}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "rows are required")
}

func TestRouter_Render_InvalidJSON(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/render", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestRouter_Render_BadPolicy(t *testing.T) {
	router := testRouter(t)

	v := 1.0
	payload := renderRequest{
		Rows:    []renderRow{{ID: "06037", Value: &v}},
		CountyB: "BOGUS",
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/render", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_Render_BadCategories(t *testing.T) {
	router := testRouter(t)

	v := 1.0
	payload := renderRequest{
		Rows:       []renderRow{{ID: "06037", Value: &v}},
		Categories: 2,
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/render", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestRenderRequest_OptionsMerge(t *testing.T) {
	defaults := pipeline.Options{
		Year:     2000,
		Category: classify.CategorySpec{Count: 5},
		Palette:  "blues",
	}

	req := renderRequest{
		Year:        2010,
		Breakpoints: []float64{0.5, 1.0},
		Palette:     "reds",
		Hatch:       &hatchReq{Op: "<", Threshold: ptr(0.01)},
		SEERB:       "SEER",
	}

	opts, err := req.options(defaults)
	require.NoError(t, err)
	assert.Equal(t, 2010, opts.Year)
	assert.Equal(t, []float64{0.5, 1.0}, opts.Category.Breakpoints)
	assert.Zero(t, opts.Category.Count)
	assert.Equal(t, "reds", opts.Palette)
	require.NotNil(t, opts.Hatch)
	assert.Equal(t, "<", opts.Hatch.Op)
	assert.InDelta(t, 0.01, opts.Hatch.Threshold, 1e-9)
	assert.Equal(t, "SEER", opts.RegistryOverlay.String())
}

func TestRenderRequest_OptionsHatchZeroThreshold(t *testing.T) {
	req := renderRequest{
		Hatch: &hatchReq{Threshold: ptr(0)},
	}

	opts, err := req.options(pipeline.Options{})
	require.NoError(t, err)
	require.NotNil(t, opts.Hatch)
	assert.Zero(t, opts.Hatch.Threshold)
	// Omitted fields keep the defaults.
	assert.Equal(t, ">", opts.Hatch.Op)

	// An absent threshold keeps the default, not zero.
	noThreshold := renderRequest{Hatch: &hatchReq{Op: "<"}}
	opts, err = noThreshold.options(pipeline.Options{})
	require.NoError(t, err)
	assert.InDelta(t, 0.05, opts.Hatch.Threshold, 1e-9)
}
