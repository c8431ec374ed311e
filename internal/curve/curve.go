// Package curve turns per-stage sentiment scores into a smooth cubic bezier path.
//
// Each segment between consecutive samples uses flat handles: both control points sit at the
// horizontal midpoint of the segment, the first at the start sample's height and the second at
// the end sample's height. The path therefore passes exactly through every sample and never
// overshoots at the ends. The editor overlay and the analytics trend both call Interpolate, so
// they agree on shape regardless of the coordinate scale each one projects onto.
package curve

import (
	"math"
	"strconv"
	"strings"
)

// Point is one coordinate on the drawing plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is one cubic bezier piece of a path.
type Segment struct {
	Start    Point `json:"start"`
	Control1 Point `json:"control1"`
	Control2 Point `json:"control2"`
	End      Point `json:"end"`
}

// Path is an interpolated curve through a sequence of samples.
type Path struct {
	Points   []Point   `json:"points"`
	Segments []Segment `json:"segments"`
}

// Interpolate builds the flat-handle path through points, which must be ordered by X.
// Fewer than two points produce an empty path.
func Interpolate(points []Point) Path {
	if len(points) < 2 {
		return Path{}
	}
	out := Path{
		Points:   append([]Point(nil), points...),
		Segments: make([]Segment, 0, len(points)-1),
	}
	for i := 0; i < len(points)-1; i++ {
		start, end := points[i], points[i+1]
		midX := (start.X + end.X) / 2
		out.Segments = append(out.Segments, Segment{
			Start:    start,
			Control1: Point{X: midX, Y: start.Y},
			Control2: Point{X: midX, Y: end.Y},
			End:      end,
		})
	}
	return out
}

// Empty reports whether the path has no segments.
func (p Path) Empty() bool {
	return len(p.Segments) == 0
}

// At evaluates the segment at parameter t in [0, 1].
func (s Segment) At(t float64) Point {
	t = math.Min(1, math.Max(0, t))
	u := 1 - t
	a := u * u * u
	b := 3 * u * u * t
	c := 3 * u * t * t
	d := t * t * t
	return Point{
		X: a*s.Start.X + b*s.Control1.X + c*s.Control2.X + d*s.End.X,
		Y: a*s.Start.Y + b*s.Control1.Y + c*s.Control2.Y + d*s.End.Y,
	}
}

// Sample returns perSegment evenly spaced parameter samples from every segment, plus the final
// end point. Values below 1 are raised to 1.
func (p Path) Sample(perSegment int) []Point {
	if p.Empty() {
		return nil
	}
	if perSegment < 1 {
		perSegment = 1
	}
	out := make([]Point, 0, len(p.Segments)*perSegment+1)
	for _, seg := range p.Segments {
		for i := 0; i < perSegment; i++ {
			out = append(out, seg.At(float64(i)/float64(perSegment)))
		}
	}
	return append(out, p.Segments[len(p.Segments)-1].End)
}

// YAt returns the curve height at horizontal position x. The second result is false when x is
// outside the path.
func (p Path) YAt(x float64) (float64, bool) {
	for _, seg := range p.Segments {
		lo, hi := seg.Start.X, seg.End.X
		if lo > hi {
			lo, hi = hi, lo
		}
		if x < lo || x > hi {
			continue
		}
		// X(t) is monotone for flat handles, so bisection converges.
		tLo, tHi := 0.0, 1.0
		increasing := seg.End.X >= seg.Start.X
		for range 60 {
			mid := (tLo + tHi) / 2
			px := seg.At(mid).X
			if (px < x) == increasing {
				tLo = mid
			} else {
				tHi = mid
			}
		}
		return seg.At((tLo + tHi) / 2).Y, true
	}
	return 0, false
}

// SVG renders the path as SVG path data ("M x,y C x1,y1 x2,y2 x,y ...").
// An empty path renders as an empty string.
func (p Path) SVG() string {
	if p.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteString("M ")
	b.WriteString(formatPoint(p.Segments[0].Start))
	for _, seg := range p.Segments {
		b.WriteString(" C ")
		b.WriteString(formatPoint(seg.Control1))
		b.WriteByte(' ')
		b.WriteString(formatPoint(seg.Control2))
		b.WriteByte(' ')
		b.WriteString(formatPoint(seg.End))
	}
	return b.String()
}

func formatPoint(pt Point) string {
	return formatFloat(pt.X) + "," + formatFloat(pt.Y)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
