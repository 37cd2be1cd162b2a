package mesh

import (
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// vectorPageSize is the longest side of the vector preview in millimeters.
const vectorPageSize = 200.0

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// vectorLayout maps projected world coordinates onto the page.
type vectorLayout struct {
	minX, minY    float64
	scale         float64
	padding       float64
	width, height float64
}

func (r *PreviewRenderer) vectorLayout() vectorLayout {
	b := r.bounds()
	spanX := b.Max[0] - b.Min[0]
	spanY := b.Max[1] - b.Min[1]
	span := math.Max(spanX, spanY)

	padding := vectorPageSize * 0.05
	scale := 1.0
	if span > 0 {
		scale = (vectorPageSize - 2*padding) / span
	}
	return vectorLayout{
		minX:    b.Min[0],
		minY:    b.Min[1],
		scale:   scale,
		padding: padding,
		width:   spanX*scale + 2*padding,
		height:  spanY*scale + 2*padding,
	}
}

// RenderSVG writes the preview as an SVG to the provided writer
func (r *PreviewRenderer) RenderSVG(w io.Writer) error {
	layout := r.vectorLayout()

	svgRenderer := svg.New(w, layout.width, layout.height, nil)
	r.renderToCanvas(svgRenderer, layout)

	// Close writes the closing tags.
	return svgRenderer.Close()
}

// RenderVectorPNG rasterizes the vector preview at Config.VectorResolution
// and writes it as a PNG.
func (r *PreviewRenderer) RenderVectorPNG(w io.Writer) error {
	layout := r.vectorLayout()

	rast := rasterizer.New(layout.width, layout.height, canvas.DPI(r.Config.VectorResolution), canvas.DefaultColorSpace)
	r.renderToCanvas(rast, layout)

	// Rasterizer implements draw.Image interface, which embeds image.Image
	return png.Encode(w, rast)
}

// renderToCanvas renders the preview to a canvas renderer (shared logic for SVG and PNG)
func (r *PreviewRenderer) renderToCanvas(renderer canvasRenderer, layout vectorLayout) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(layout.width, layout.height), bgStyle, canvas.Identity)

	// Canvas coordinates grow upwards, so no flip is needed.
	toCanvas := func(x, y float64) (float64, float64) {
		return (x-layout.minX)*layout.scale + layout.padding, (y-layout.minY)*layout.scale + layout.padding
	}

	if len(r.Reference.Ring) > 1 {
		outlineStyle := canvas.DefaultStyle
		outlineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		outlineStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		outlineStyle.StrokeWidth = 0.4
		outlineStyle.Dashes = []float64{2.0, 1.0}

		cp := &canvas.Path{}
		for i, pt := range r.Reference.Ring {
			cx, cy := toCanvas(pt[0], pt[1])
			if i == 0 {
				cp.MoveTo(cx, cy)
			} else {
				cp.LineTo(cx, cy)
			}
		}
		cp.Close()
		renderer.RenderPath(cp, outlineStyle, canvas.Identity)
	}

	radius := vectorPageSize / 400
	for _, i := range r.drawOrder() {
		p := project(r.Points.points[i], r.Config.Axis)
		cx, cy := toCanvas(p[0], p[1])

		pointStyle := canvas.DefaultStyle
		pointStyle.Fill = canvas.Paint{Color: toRGBA(ColorFor(r.Deviations[i], r.Stats, r.Scheme))}
		pointStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

		renderer.RenderPath(canvas.Circle(radius).Translate(cx, cy), pointStyle, canvas.Identity)
	}

	// Legend swatches along the top edge, lowest band first.
	bands := LegendBands(r.Stats, r.Scheme)
	swatch := layout.padding * 0.6
	for i, band := range bands {
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: toRGBA(band.Color)}
		style.Stroke = canvas.Paint{Color: canvas.Black}
		style.StrokeWidth = 0.2

		x := layout.padding + float64(i)*swatch*1.5
		y := layout.height - layout.padding*0.8
		renderer.RenderPath(canvas.Rectangle(swatch, swatch).Translate(x, y), style, canvas.Identity)
	}
}
