package publishable

import (
	"math"

	"github.com/c360/netpublish/publish"
)

// Contour is one found contour, measured in pixels of the source image.
type Contour struct {
	Area     float64 `json:"area" mapstructure:"area"`
	CenterX  float64 `json:"centerX" mapstructure:"centerX"`
	CenterY  float64 `json:"centerY" mapstructure:"centerY"`
	Width    float64 `json:"width" mapstructure:"width"`
	Height   float64 `json:"height" mapstructure:"height"`
	Solidity float64 `json:"solidity" mapstructure:"solidity"`
	Angle    float64 `json:"angle" mapstructure:"angle"`
}

// ContoursReport is the set of contours found in an image of Rows x Cols pixels.
type ContoursReport struct {
	Rows     int       `json:"rows" mapstructure:"rows"`
	Cols     int       `json:"cols" mapstructure:"cols"`
	Contours []Contour `json:"contours" mapstructure:"contours"`
}

// Line is a segment from (X1, Y1) to (X2, Y2).
type Line struct {
	X1 float64 `json:"x1" mapstructure:"x1"`
	Y1 float64 `json:"y1" mapstructure:"y1"`
	X2 float64 `json:"x2" mapstructure:"x2"`
	Y2 float64 `json:"y2" mapstructure:"y2"`
}

// Length returns the segment length.
func (l Line) Length() float64 {
	return math.Hypot(l.X2-l.X1, l.Y2-l.Y1)
}

// Angle returns the segment direction in degrees, in (-180, 180].
func (l Line) Angle() float64 {
	return math.Atan2(l.Y2-l.Y1, l.X2-l.X1) * 180 / math.Pi
}

// LinesReport is the set of lines found in an image.
type LinesReport struct {
	Lines []Line `json:"lines" mapstructure:"lines"`
}

// Blob is a detected blob centered at (X, Y) with diameter Size.
type Blob struct {
	X    float64 `json:"x" mapstructure:"x"`
	Y    float64 `json:"y" mapstructure:"y"`
	Size float64 `json:"size" mapstructure:"size"`
}

// BlobsReport is the set of blobs found in an image.
type BlobsReport struct {
	Blobs []Blob `json:"blobs" mapstructure:"blobs"`
}

// column projects items into a column. An empty report yields an empty, non-nil
// column so it encodes as [] rather than null.
func column[T any](items []T, f func(T) float64) []float64 {
	out := make([]float64, len(items))
	for i, item := range items {
		out[i] = f(item)
	}
	return out
}

func contourColumn(f func(Contour) float64) func(ContoursReport) []float64 {
	return func(r ContoursReport) []float64 { return column(r.Contours, f) }
}

func lineColumn(f func(Line) float64) func(LinesReport) []float64 {
	return func(r LinesReport) []float64 { return column(r.Lines, f) }
}

func blobColumn(f func(Blob) float64) func(BlobsReport) []float64 {
	return func(r BlobsReport) []float64 { return column(r.Blobs, f) }
}

func init() {
	publish.MustRegister(
		publish.Provide("area", 0, contourColumn(func(c Contour) float64 { return c.Area })),
		publish.Provide("centerX", 1, contourColumn(func(c Contour) float64 { return c.CenterX })),
		publish.Provide("centerY", 2, contourColumn(func(c Contour) float64 { return c.CenterY })),
		publish.Provide("width", 3, contourColumn(func(c Contour) float64 { return c.Width })),
		publish.Provide("height", 4, contourColumn(func(c Contour) float64 { return c.Height })),
		publish.Provide("solidity", 5, contourColumn(func(c Contour) float64 { return c.Solidity })),
		publish.Provide("angle", 6, contourColumn(func(c Contour) float64 { return c.Angle })),
	)
	publish.MustRegister(
		publish.Provide("x1", 0, lineColumn(func(l Line) float64 { return l.X1 })),
		publish.Provide("y1", 1, lineColumn(func(l Line) float64 { return l.Y1 })),
		publish.Provide("x2", 2, lineColumn(func(l Line) float64 { return l.X2 })),
		publish.Provide("y2", 3, lineColumn(func(l Line) float64 { return l.Y2 })),
		publish.Provide("length", 4, lineColumn(Line.Length)),
		publish.Provide("angle", 5, lineColumn(Line.Angle)),
	)
	publish.MustRegister(
		publish.Provide("x", 0, blobColumn(func(b Blob) float64 { return b.X })),
		publish.Provide("y", 1, blobColumn(func(b Blob) float64 { return b.Y })),
		publish.Provide("size", 2, blobColumn(func(b Blob) float64 { return b.Size })),
	)
}
