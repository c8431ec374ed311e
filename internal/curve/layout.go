package curve

import "github.com/hylla/journeymap/internal/domain"

// Layout maps stage indices and scores onto a drawing plane whose y axis grows downward.
type Layout struct {
	// ColumnWidth, when positive, places each sample at the center of its stage column.
	// Otherwise samples are spread evenly across Width.
	ColumnWidth float64 `json:"column_width"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Padding     float64 `json:"padding"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
}

// EditorLayout lines samples up with stage columns in the map editor.
func EditorLayout(columnWidth, rowHeight float64) Layout {
	return Layout{
		ColumnWidth: columnWidth,
		Height:      rowHeight,
		Padding:     8,
		Min:         domain.SentimentMin,
		Max:         domain.SentimentMax,
	}
}

// ChartLayout spreads samples across a fixed-size analytics chart.
func ChartLayout(width, height float64) Layout {
	return Layout{
		Width:   width,
		Height:  height,
		Padding: 24,
		Min:     domain.SentimentMin,
		Max:     domain.SentimentMax,
	}
}

// Identity keeps stage index as x and the score as y.
func Identity() Layout {
	return Layout{}
}

func (l Layout) isIdentity() bool {
	return l == Layout{}
}

// Project maps per-stage values to points. Values[i] belongs to stage i.
func (l Layout) Project(values []float64) []Point {
	out := make([]Point, len(values))
	for i, v := range values {
		out[i] = Point{X: l.x(i, len(values)), Y: l.y(v)}
	}
	return out
}

func (l Layout) x(i, n int) float64 {
	switch {
	case l.isIdentity():
		return float64(i)
	case l.ColumnWidth > 0:
		return float64(i)*l.ColumnWidth + l.ColumnWidth/2
	case n < 2:
		return l.Width / 2
	default:
		span := l.Width - 2*l.Padding
		return l.Padding + float64(i)*span/float64(n-1)
	}
}

func (l Layout) y(v float64) float64 {
	if l.isIdentity() {
		return v
	}
	lo, hi := l.Min, l.Max
	if hi <= lo {
		return l.Height / 2
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	span := l.Height - 2*l.Padding
	return l.Padding + (hi-v)/(hi-lo)*span
}

// FromValues projects per-stage values through the layout and interpolates them.
func FromValues(values []float64, layout Layout) Path {
	return Interpolate(layout.Project(values))
}
