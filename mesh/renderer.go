package mesh

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"sort"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PreviewConfig controls the 2D deviation previews.
type PreviewConfig struct {
	Axis             Axis    `yaml:"axis" json:"axis"`                         // Projection drops this axis (x, y or z)
	MaxSize          int     `yaml:"maxSize" json:"maxSize"`                   // Longest raster side in pixels
	Padding          int     `yaml:"padding" json:"padding"`                   // Raster padding in pixels
	PointRadius      int     `yaml:"pointRadius" json:"pointRadius"`           // Raster dot radius in pixels
	VectorResolution float64 `yaml:"vectorResolution" json:"vectorResolution"` // Vector PNG DPI
}

// DefaultPreviewConfig returns the preview defaults.
func DefaultPreviewConfig() PreviewConfig {
	return PreviewConfig{
		Axis:             AxisZ,
		MaxSize:          800,
		Padding:          30,
		PointRadius:      2,
		VectorResolution: 150,
	}
}

// Validate checks the preview settings.
func (c PreviewConfig) Validate() error {
	switch c.Axis {
	case AxisX, AxisY, AxisZ:
	default:
		return invalidInputf("preview axis must be x, y or z, got %q", c.Axis)
	}
	if c.MaxSize < 16 {
		return invalidInputf("preview maxSize must be >= 16, got %d", c.MaxSize)
	}
	if c.Padding < 0 || c.PointRadius < 0 {
		return invalidInputf("preview padding and pointRadius must be >= 0")
	}
	if c.VectorResolution <= 0 {
		return invalidInputf("preview vectorResolution must be > 0, got %v", c.VectorResolution)
	}
	return nil
}

var (
	previewBackground = color.RGBA{240, 240, 240, 255}
	previewOutline    = color.RGBA{90, 90, 90, 255}
	previewText       = color.RGBA{0, 0, 0, 255}
)

// PreviewRenderer draws an orthographic view of a deviation field: every
// query point painted with its heatmap color over the reference silhouette.
type PreviewRenderer struct {
	Points     PointSet
	Deviations []float64
	Stats      DeviationStatistics
	Scheme     ColorScheme
	Reference  Silhouette
	Title      string
	Config     PreviewConfig
}

// NewPreviewRenderer checks that deviations index-align with points.
func NewPreviewRenderer(points PointSet, deviations []float64, stats DeviationStatistics, scheme ColorScheme, config PreviewConfig) (*PreviewRenderer, error) {
	if points.IsEmpty() {
		return nil, invalidInputf("nothing to render")
	}
	if len(deviations) != points.Len() {
		return nil, invalidInputf("%d deviations for %d points", len(deviations), points.Len())
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &PreviewRenderer{
		Points:     points,
		Deviations: deviations,
		Stats:      stats,
		Scheme:     scheme,
		Config:     config,
	}, nil
}

// bounds covers the projected points and the reference silhouette.
func (r *PreviewRenderer) bounds() orb.Bound {
	b := projectSet(r.Points, r.Config.Axis).Bound()
	if len(r.Reference.Ring) > 0 {
		b = b.Union(r.Reference.Ring.Bound())
	}
	return b
}

// drawOrder returns point indices sorted by ascending deviation so the
// worst points are painted last.
func (r *PreviewRenderer) drawOrder() []int {
	order := make([]int, len(r.Deviations))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return r.Deviations[order[a]] < r.Deviations[order[b]]
	})
	return order
}

// Render creates the raster preview.
func (r *PreviewRenderer) Render() *image.RGBA {
	b := r.bounds()
	spanX := b.Max[0] - b.Min[0]
	spanY := b.Max[1] - b.Min[1]
	span := math.Max(spanX, spanY)

	inner := r.Config.MaxSize - 2*r.Config.Padding
	if inner < 1 {
		inner = 1
	}
	scale := 1.0
	if span > 0 {
		scale = float64(inner) / span
	}
	width := int(spanX*scale) + 2*r.Config.Padding + 1
	height := int(spanY*scale) + 2*r.Config.Padding + 1

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, previewBackground)
		}
	}

	// Image rows grow downwards; flip so +Y points up.
	toImage := func(p orb.Point) (int, int) {
		x := int((p[0]-b.Min[0])*scale) + r.Config.Padding
		y := height - 1 - (int((p[1]-b.Min[1])*scale) + r.Config.Padding)
		return x, y
	}

	for i := 1; i < len(r.Reference.Ring); i++ {
		x0, y0 := toImage(r.Reference.Ring[i-1])
		x1, y1 := toImage(r.Reference.Ring[i])
		drawLine(img, x0, y0, x1, y1, previewOutline)
	}

	for _, i := range r.drawOrder() {
		x, y := toImage(project(r.Points.points[i], r.Config.Axis))
		c := toRGBA(ColorFor(r.Deviations[i], r.Stats, r.Scheme))
		drawCircle(img, x, y, r.Config.PointRadius, c)
	}

	r.drawLegend(img)
	return img
}

// WritePNG encodes the raster preview.
func (r *PreviewRenderer) WritePNG(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG saves the raster preview to a file
func (r *PreviewRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return r.WritePNG(f)
}

// caption is the one-line summary drawn above the legend.
func (r *PreviewRenderer) caption() string {
	return fmt.Sprintf("max %.4f  mean %.4f  match %.1f%%", r.Stats.Max, r.Stats.Mean, r.Stats.MatchingFraction*100)
}

// drawLegend adds the title, caption and color bands in the top-left corner.
func (r *PreviewRenderer) drawLegend(img *image.RGBA) {
	y := 15
	if r.Title != "" {
		drawText(img, 10, y, r.Title, previewText)
		y += 16
	}
	drawText(img, 10, y, r.caption(), previewText)
	y += 18

	for _, band := range LegendBands(r.Stats, r.Scheme) {
		drawSquare(img, 16, y-4, 12, toRGBA(band.Color))
		drawText(img, 28, y, fmt.Sprintf("%s %.4f-%.4f", band.Label, band.Lower, band.Upper), previewText)
		y += 16
	}
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawSquare draws a filled square
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			x, y := cx+dx, cy+dy
			if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
				img.Set(x, y, c)
			}
		}
	}
}

// drawLine draws a one-pixel line with Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		if x0 >= 0 && x0 < img.Bounds().Max.X && y0 >= 0 && y0 < img.Bounds().Max.Y {
			img.Set(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
