package curve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolatePassesThroughSamples(t *testing.T) {
	samples := []Point{{0, 0}, {1, 3}, {2, -2}}
	path := Interpolate(samples)
	require.Len(t, path.Segments, 2)

	for _, s := range samples {
		y, ok := path.YAt(s.X)
		require.True(t, ok, "x=%v should be on the path", s.X)
		assert.InDelta(t, s.Y, y, 1e-9, "y at x=%v", s.X)
	}
	assert.Equal(t, samples[0], path.Segments[0].At(0))
	assert.Equal(t, samples[2], path.Segments[1].At(1))
}

func TestInterpolateFlatHandles(t *testing.T) {
	path := Interpolate([]Point{{0, 0}, {1, 3}, {2, -2}})
	first := path.Segments[0]
	assert.Equal(t, Point{X: 0.5, Y: 0}, first.Control1)
	assert.Equal(t, Point{X: 0.5, Y: 3}, first.Control2)
	second := path.Segments[1]
	assert.Equal(t, Point{X: 1.5, Y: 3}, second.Control1)
	assert.Equal(t, Point{X: 1.5, Y: -2}, second.Control2)
}

func TestInterpolateDoesNotOvershootEndpoints(t *testing.T) {
	path := Interpolate([]Point{{0, 0}, {1, 3}, {2, -2}})
	for _, pt := range path.Sample(32) {
		assert.GreaterOrEqual(t, pt.Y, -2.0-1e-9)
		assert.LessOrEqual(t, pt.Y, 3.0+1e-9)
	}
}

func TestInterpolateDegenerateInputs(t *testing.T) {
	assert.True(t, Interpolate(nil).Empty())
	assert.True(t, Interpolate([]Point{{0, 1}}).Empty())
	assert.Equal(t, "", Interpolate([]Point{{0, 1}}).SVG())
	assert.Nil(t, Interpolate(nil).Sample(4))

	_, ok := Interpolate(nil).YAt(0)
	assert.False(t, ok)
}

func TestSampleCount(t *testing.T) {
	path := Interpolate([]Point{{0, 0}, {1, 1}, {2, 0}, {3, 2}})
	pts := path.Sample(4)
	assert.Len(t, pts, 3*4+1)
	assert.Equal(t, Point{X: 3, Y: 2}, pts[len(pts)-1])
}

func TestSVG(t *testing.T) {
	path := Interpolate([]Point{{0, 0}, {1, 3}})
	assert.Equal(t, "M 0,0 C 0.5,0 0.5,3 1,3", path.SVG())
}

func TestLayoutsAgreeOnShape(t *testing.T) {
	values := []float64{2, -1, 0, 5}
	chart := FromValues(values, ChartLayout(400, 200))
	editor := FromValues(values, EditorLayout(240, 120))
	raw := FromValues(values, Identity())
	require.Len(t, chart.Segments, 3)
	require.Len(t, editor.Segments, 3)

	// The same stage ordering of peaks and troughs appears in every projection.
	// Screen y grows downward, so higher scores have smaller y.
	for i := 0; i < len(values)-1; i++ {
		rawUp := raw.Points[i+1].Y > raw.Points[i].Y
		assert.Equal(t, rawUp, chart.Points[i+1].Y < chart.Points[i].Y, "chart segment %d", i)
		assert.Equal(t, rawUp, editor.Points[i+1].Y < editor.Points[i].Y, "editor segment %d", i)
	}
	assert.InDelta(t, 120.0, editor.Points[0].X, 1e-9)
	assert.InDelta(t, 24.0, chart.Points[0].X, 1e-9)
	assert.InDelta(t, 376.0, chart.Points[3].X, 1e-9)
	assert.InDelta(t, 24.0, chart.Points[3].Y, 1e-9)
}

func TestLayoutClampsOutOfRangeScores(t *testing.T) {
	pts := ChartLayout(100, 100).Project([]float64{99, -99})
	assert.InDelta(t, 24.0, pts[0].Y, 1e-9)
	assert.InDelta(t, 76.0, pts[1].Y, 1e-9)
}
