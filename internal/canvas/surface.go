// Package canvas holds the raster buffer a user draws digits into.
package canvas

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// kappa places cubic control points so that four curves approximate a circle.
const kappa = 0.5522847498

type Point struct {
	X, Y float64
}

type Options struct {
	Width      int
	Height     int
	BrushWidth float64
	Background color.Color
	Ink        color.Color
}

// DefaultOptions matches the page: a 280x280 white canvas and a 15px black brush.
func DefaultOptions() Options {
	return Options{
		Width:      280,
		Height:     280,
		BrushWidth: 15,
		Background: color.White,
		Ink:        color.Black,
	}
}

// Surface is a fixed-size raster buffer mutated only through stroke calls.
// It is not safe for concurrent use; a page controller owns one surface.
type Surface struct {
	buf        *image.RGBA
	background *image.Uniform
	ink        *image.Uniform
	brush      float64
	margin     int
	mask       *image.Alpha
	z          *vector.Rasterizer

	drawing bool
	last    Point
}

func New(opts Options) *Surface {
	if opts.Width <= 0 || opts.Height <= 0 {
		panic("canvas: non-positive surface size")
	}
	if opts.Background == nil {
		opts.Background = color.White
	}
	if opts.Ink == nil {
		opts.Ink = color.Black
	}

	// the mask is padded so a capsule around any in-bounds point fits in it
	margin := int(math.Ceil(opts.BrushWidth/2)) + 1
	mw, mh := opts.Width+2*margin, opts.Height+2*margin

	s := &Surface{
		buf:        image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height)),
		background: image.NewUniform(opts.Background),
		ink:        image.NewUniform(opts.Ink),
		brush:      opts.BrushWidth,
		margin:     margin,
		mask:       image.NewAlpha(image.Rect(0, 0, mw, mh)),
		z:          vector.NewRasterizer(mw, mh),
	}
	s.fill()
	return s
}

func (s *Surface) fill() {
	draw.Draw(s.buf, s.buf.Bounds(), s.background, image.Point{}, draw.Src)
}

// BeginStroke starts a stroke at p. Nothing is drawn until the stroke is extended.
// Points outside the surface are pulled onto its edge.
func (s *Surface) BeginStroke(p Point) {
	s.drawing = true
	s.last = s.clamp(p)
}

// ExtendStroke draws a segment from the previous point to p.
func (s *Surface) ExtendStroke(p Point) {
	if !s.drawing {
		return
	}
	p = s.clamp(p)
	s.segment(s.last, p)
	s.last = p
}

func (s *Surface) EndStroke() {
	s.drawing = false
}

// Drawing reports whether a stroke is active.
func (s *Surface) Drawing() bool {
	return s.drawing
}

// Reset refills the buffer with the background color and drops any active stroke.
func (s *Surface) Reset() {
	s.drawing = false
	s.fill()
}

// Image exposes the buffer for reading. Callers must not modify it.
func (s *Surface) Image() image.Image {
	return s.buf
}

func (s *Surface) clamp(p Point) Point {
	b := s.buf.Bounds()
	p.X = math.Max(float64(b.Min.X), math.Min(p.X, float64(b.Max.X)))
	p.Y = math.Max(float64(b.Min.Y), math.Min(p.Y, float64(b.Max.Y)))
	return p
}

// segment fills the capsule around a->b. Consecutive capsules share their
// end circles, which gives the stroke round caps and round joins.
func (s *Surface) segment(a, b Point) {
	r := s.brush / 2
	if r <= 0 {
		return
	}

	ux, uy := 1.0, 0.0
	if l := math.Hypot(b.X-a.X, b.Y-a.Y); l > 0 {
		ux, uy = (b.X-a.X)/l, (b.Y-a.Y)/l
	}
	nx, ny := -uy*r, ux*r
	tx, ty := ux*r, uy*r

	m := float64(s.margin)
	a.X, a.Y = a.X+m, a.Y+m
	b.X, b.Y = b.X+m, b.Y+m

	mb := s.mask.Bounds()
	z := s.z
	z.Reset(mb.Dx(), mb.Dy())
	z.DrawOp = draw.Src

	z.MoveTo(f32(a.X+nx), f32(a.Y+ny))
	z.LineTo(f32(b.X+nx), f32(b.Y+ny))
	z.CubeTo(
		f32(b.X+nx+kappa*tx), f32(b.Y+ny+kappa*ty),
		f32(b.X+tx+kappa*nx), f32(b.Y+ty+kappa*ny),
		f32(b.X+tx), f32(b.Y+ty),
	)
	z.CubeTo(
		f32(b.X+tx-kappa*nx), f32(b.Y+ty-kappa*ny),
		f32(b.X-nx+kappa*tx), f32(b.Y-ny+kappa*ty),
		f32(b.X-nx), f32(b.Y-ny),
	)
	z.LineTo(f32(a.X-nx), f32(a.Y-ny))
	z.CubeTo(
		f32(a.X-nx-kappa*tx), f32(a.Y-ny-kappa*ty),
		f32(a.X-tx-kappa*nx), f32(a.Y-ty-kappa*ny),
		f32(a.X-tx), f32(a.Y-ty),
	)
	z.CubeTo(
		f32(a.X-tx+kappa*nx), f32(a.Y-ty+kappa*ny),
		f32(a.X+nx-kappa*tx), f32(a.Y+ny-kappa*ty),
		f32(a.X+nx), f32(a.Y+ny),
	)
	z.ClosePath()
	z.Draw(s.mask, mb, image.Opaque, image.Point{})

	draw.DrawMask(s.buf, s.buf.Bounds(), s.ink, image.Point{}, s.mask, image.Pt(s.margin, s.margin), draw.Over)
}

func f32(v float64) float32 {
	return float32(v)
}
