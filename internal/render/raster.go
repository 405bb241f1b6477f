package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/starford/marginalia/internal/geom"
)

// Raster draws commands onto an RGBA image. Text uses the fixed 7x13
// bitmap face regardless of FontSize.
type Raster struct {
	img *image.RGBA
	z   *vector.Rasterizer
}

// NewRaster creates a white canvas of the given size.
func NewRaster(width, height int) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("render: invalid raster size %dx%d", width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return &Raster{img: img, z: vector.NewRasterizer(width, height)}, nil
}

// Image returns the drawn image.
func (r *Raster) Image() *image.RGBA { return r.img }

// Draw executes every command in order.
func (r *Raster) Draw(cmds []Command) {
	for _, c := range cmds {
		r.exec(c)
	}
}

// EncodePNG writes the image as PNG.
func (r *Raster) EncodePNG(w io.Writer) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, r.img); err != nil {
		return fmt.Errorf("render: encode png: %w", err)
	}
	return nil
}

// WritePNG rasterizes cmds and writes a PNG.
func WritePNG(w io.Writer, cmds []Command, width, height int) error {
	r, err := NewRaster(width, height)
	if err != nil {
		return err
	}
	r.Draw(cmds)
	return r.EncodePNG(w)
}

func (r *Raster) exec(c Command) {
	switch c.Op {
	case OpLine, OpPolyline:
		r.stroke(c.Points, c.Style, false)
	case OpPolygon:
		if col, ok := parseHex(c.Style.Fill); ok {
			r.fill(c.Points, col)
		}
		r.stroke(c.Points, c.Style, true)
	case OpRect:
		r.shape(rectPoints(c.Rect), c.Style)
	case OpRoundRect:
		r.shape(roundRectPoints(c.Rect, c.Radius), c.Style)
	case OpCircle:
		if len(c.Points) > 0 {
			r.shape(circlePoints(c.Points[0], c.Radius, 24), c.Style)
		}
	case OpText:
		r.text(c)
	}
}

func (r *Raster) shape(pts []geom.Point, s Style) {
	if col, ok := parseHex(s.Fill); ok {
		r.fill(pts, col)
	}
	r.stroke(pts, s, true)
}

func (r *Raster) fill(pts []geom.Point, col color.Color) {
	b := r.img.Bounds()
	pts = clip(pts, float64(b.Dx()), float64(b.Dy()))
	if len(pts) < 3 {
		return
	}
	r.z.Reset(b.Dx(), b.Dy())
	r.z.DrawOp = draw.Over
	r.z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		r.z.LineTo(float32(p.X), float32(p.Y))
	}
	r.z.ClosePath()
	r.z.Draw(r.img, b, image.NewUniform(col), image.Point{})
}

// stroke draws each segment as a filled quad, honoring the dash pattern.
func (r *Raster) stroke(pts []geom.Point, s Style, closed bool) {
	col, ok := parseHex(s.Stroke)
	if !ok || len(pts) < 2 {
		return
	}
	if closed {
		pts = append(append([]geom.Point{}, pts...), pts[0])
	}
	width := math.Max(s.Width, 1)
	for _, seg := range dashSegments(pts, s.Dash) {
		r.fill(segmentQuad(seg[0], seg[1], width), col)
	}
}

func (r *Raster) text(c Command) {
	col, ok := parseHex(c.Style.Fill)
	if !ok || len(c.Points) == 0 || c.Text == "" {
		return
	}
	p := c.Points[0]
	d := &font.Drawer{
		Dst:  r.img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(int(p.X), int(p.Y)),
	}
	d.DrawString(c.Text)
}

// dashSegments splits a polyline into the visible pieces of a dash
// pattern. An empty pattern returns the original segments.
func dashSegments(pts []geom.Point, dash []float64) [][2]geom.Point {
	var out [][2]geom.Point
	if len(dash) < 2 || dash[0] <= 0 || dash[1] < 0 {
		for i := 1; i < len(pts); i++ {
			out = append(out, [2]geom.Point{pts[i-1], pts[i]})
		}
		return out
	}
	idx, left, on := 0, dash[0], true
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		segLen := geom.Dist(a, b)
		if segLen == 0 {
			continue
		}
		dir := b.Sub(a).Scale(1 / segLen)
		pos := 0.0
		for pos < segLen {
			step := math.Min(left, segLen-pos)
			if on {
				out = append(out, [2]geom.Point{a.Add(dir.Scale(pos)), a.Add(dir.Scale(pos + step))})
			}
			pos += step
			left -= step
			if left <= 1e-9 {
				idx = (idx + 1) % len(dash)
				left = dash[idx]
				on = !on
				if left <= 0 {
					left = 1e-3
				}
			}
		}
	}
	return out
}

// clip keeps the part of a polygon inside [0,w]x[0,h]
// (Sutherland-Hodgman against each image border).
func clip(pts []geom.Point, w, h float64) []geom.Point {
	edges := []struct {
		inside func(p geom.Point) bool
		cross  func(a, b geom.Point) geom.Point
	}{
		{func(p geom.Point) bool { return p.X >= 0 }, func(a, b geom.Point) geom.Point { return lerpAt(a, b, (0-a.X)/(b.X-a.X)) }},
		{func(p geom.Point) bool { return p.X <= w }, func(a, b geom.Point) geom.Point { return lerpAt(a, b, (w-a.X)/(b.X-a.X)) }},
		{func(p geom.Point) bool { return p.Y >= 0 }, func(a, b geom.Point) geom.Point { return lerpAt(a, b, (0-a.Y)/(b.Y-a.Y)) }},
		{func(p geom.Point) bool { return p.Y <= h }, func(a, b geom.Point) geom.Point { return lerpAt(a, b, (h-a.Y)/(b.Y-a.Y)) }},
	}
	out := pts
	for _, e := range edges {
		if len(out) == 0 {
			return nil
		}
		in := out
		out = nil
		prev := in[len(in)-1]
		for _, cur := range in {
			switch {
			case e.inside(cur) && e.inside(prev):
				out = append(out, cur)
			case e.inside(cur):
				out = append(out, e.cross(prev, cur), cur)
			case e.inside(prev):
				out = append(out, e.cross(prev, cur))
			}
			prev = cur
		}
	}
	return out
}

func lerpAt(a, b geom.Point, t float64) geom.Point {
	return a.Add(b.Sub(a).Scale(t))
}

func segmentQuad(a, b geom.Point, width float64) []geom.Point {
	d := b.Sub(a)
	l := d.Len()
	if l == 0 {
		return nil
	}
	n := geom.Point{X: -d.Y / l, Y: d.X / l}.Scale(width / 2)
	return []geom.Point{a.Add(n), b.Add(n), b.Sub(n), a.Sub(n)}
}

func rectPoints(r geom.Rect) []geom.Point {
	return []geom.Point{{X: r.X, Y: r.Y}, {X: r.X + r.W, Y: r.Y}, {X: r.X + r.W, Y: r.Y + r.H}, {X: r.X, Y: r.Y + r.H}}
}

func roundRectPoints(r geom.Rect, radius float64) []geom.Point {
	radius = math.Min(radius, math.Min(r.W, r.H)/2)
	if radius <= 0 {
		return rectPoints(r)
	}
	corners := []struct {
		c     geom.Point
		start float64
	}{
		{geom.Point{X: r.X + r.W - radius, Y: r.Y + radius}, -math.Pi / 2},
		{geom.Point{X: r.X + r.W - radius, Y: r.Y + r.H - radius}, 0},
		{geom.Point{X: r.X + radius, Y: r.Y + r.H - radius}, math.Pi / 2},
		{geom.Point{X: r.X + radius, Y: r.Y + radius}, math.Pi},
	}
	const steps = 6
	var out []geom.Point
	for _, k := range corners {
		for i := 0; i <= steps; i++ {
			a := k.start + (math.Pi/2)*float64(i)/steps
			out = append(out, geom.Point{X: k.c.X + radius*math.Cos(a), Y: k.c.Y + radius*math.Sin(a)})
		}
	}
	return out
}

func circlePoints(c geom.Point, radius float64, n int) []geom.Point {
	out := make([]geom.Point, n)
	for i := range out {
		a := 2 * math.Pi * float64(i) / float64(n)
		out[i] = geom.Point{X: c.X + radius*math.Cos(a), Y: c.Y + radius*math.Sin(a)}
	}
	return out
}

// parseHex decodes #rrggbb.
func parseHex(s string) (color.RGBA, bool) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}
