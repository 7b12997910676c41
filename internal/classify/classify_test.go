package classify

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorySpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    CategorySpec
		wantErr bool
	}{
		{name: "minimum count", spec: CategorySpec{Count: 3}},
		{name: "maximum count", spec: CategorySpec{Count: 11}},
		{name: "count too small", spec: CategorySpec{Count: 2}, wantErr: true},
		{name: "count too large", spec: CategorySpec{Count: 12}, wantErr: true},
		{name: "explicit breakpoints", spec: CategorySpec{Breakpoints: []float64{1, 2, 3}}},
		{name: "minimum explicit breakpoints", spec: CategorySpec{Breakpoints: []float64{1, 2}}},
		{name: "single breakpoint below category floor", spec: CategorySpec{Breakpoints: []float64{1}}, wantErr: true},
		{name: "max explicit breakpoints", spec: CategorySpec{Breakpoints: []float64{1, 2, 3, 4, 5}}},
		{name: "too many breakpoints", spec: CategorySpec{Breakpoints: []float64{1, 2, 3, 4, 5, 6}}, wantErr: true},
		{name: "non-increasing breakpoints", spec: CategorySpec{Breakpoints: []float64{1, 3, 2}}, wantErr: true},
		{name: "duplicate breakpoints", spec: CategorySpec{Breakpoints: []float64{1, 2, 2}}, wantErr: true},
		{name: "count and breakpoints both set", spec: CategorySpec{Count: 4, Breakpoints: []float64{1, 2}}, wantErr: true},
		{name: "empty spec", spec: CategorySpec{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQuantileFiveCategories(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	c, err := New(values, CategorySpec{Count: 5})
	require.NoError(t, err)
	require.Len(t, c.Breakpoints, 4)

	// Breakpoints must be monotonically increasing.
	for i := 1; i < len(c.Breakpoints); i++ {
		assert.Greater(t, c.Breakpoints[i], c.Breakpoints[i-1])
	}

	// Each category holds exactly two of the ten values.
	counts := make(map[int]int)
	for _, v := range values {
		cat := c.CategoryOf(v)
		require.GreaterOrEqual(t, cat, 0)
		require.Less(t, cat, 5)
		counts[cat]++
	}
	for cat := 0; cat < 5; cat++ {
		assert.Equal(t, 2, counts[cat], "category %d", cat)
	}
}

func TestExplicitBreakpoints(t *testing.T) {
	c, err := New(nil, CategorySpec{Breakpoints: []float64{0.6, 0.8, 1.0, 1.2, 1.4}})
	require.NoError(t, err)
	assert.Equal(t, 6, c.Count)

	tests := []struct {
		value float64
		want  int
	}{
		{value: 0.5, want: 0},
		{value: 0.6, want: 0}, // tie takes the lower category
		{value: 0.8, want: 1},
		{value: 0.9, want: 2},
		{value: 1.4, want: 4},
		{value: 1.5, want: 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.CategoryOf(tt.value), "value %v", tt.value)
	}
}

func TestNoDataCategory(t *testing.T) {
	c, err := New([]float64{1, 2, math.NaN(), 3, 4, 5, 6}, CategorySpec{Count: 3})
	require.NoError(t, err)
	assert.Equal(t, NoData, c.CategoryOf(math.NaN()))
	assert.GreaterOrEqual(t, c.CategoryOf(1), 0)
}

func TestQuantileAllValuesEqual(t *testing.T) {
	c, err := New([]float64{5, 5, 5, 5}, CategorySpec{Count: 3})
	require.NoError(t, err)
	// Degenerate distribution: everything lands in category 0.
	assert.Equal(t, 0, c.CategoryOf(5))
}

func TestNewRejectsEmptyInput(t *testing.T) {
	_, err := New(nil, CategorySpec{Count: 3})
	assert.Error(t, err)

	_, err = New([]float64{math.NaN()}, CategorySpec{Count: 3})
	assert.Error(t, err)
}

func TestHatchDefault(t *testing.T) {
	spec := DefaultHatchSpec()
	require.NoError(t, spec.Validate())

	assert.False(t, spec.Hatch(0.05))
	assert.True(t, spec.Hatch(0.051))
	assert.False(t, spec.Hatch(0.01))
	assert.False(t, spec.Hatch(math.NaN()))
}

func TestHatchOperators(t *testing.T) {
	tests := []struct {
		op    string
		value float64
		want  bool
	}{
		{op: ">", value: 2, want: true},
		{op: ">", value: 1, want: false},
		{op: ">=", value: 1, want: true},
		{op: "<", value: 0.5, want: true},
		{op: "<=", value: 1, want: true},
		{op: "==", value: 1, want: true},
		{op: "==", value: 1.1, want: false},
		{op: "!=", value: 1.1, want: true},
	}
	for _, tt := range tests {
		spec := HatchSpec{Op: tt.op, Threshold: 1}
		require.NoError(t, spec.Validate())
		assert.Equal(t, tt.want, spec.Hatch(tt.value), "%s %v", tt.op, tt.value)
	}

	assert.Error(t, HatchSpec{Op: "~"}.Validate())
}
