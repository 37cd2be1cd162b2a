package mesh

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorScheme selects how deviations map to colors.
type ColorScheme int

const (
	// Binary paints matching points one fixed color and ramps deviating
	// points by deviation / max.
	Binary ColorScheme = iota
	// FiveBand buckets deviation / max into five ordinal bands.
	FiveBand
)

func (s ColorScheme) String() string {
	switch s {
	case Binary:
		return "binary"
	case FiveBand:
		return "fiveBand"
	default:
		return fmt.Sprintf("scheme(%d)", int(s))
	}
}

// ParseColorScheme accepts the names produced by String.
func ParseColorScheme(name string) (ColorScheme, error) {
	switch name {
	case "binary", "":
		return Binary, nil
	case "fiveBand", "fiveband", "five_band":
		return FiveBand, nil
	default:
		return Binary, invalidInputf("unknown color scheme %q", name)
	}
}

func (s ColorScheme) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ColorScheme) UnmarshalText(text []byte) error {
	parsed, err := ParseColorScheme(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

var (
	// MatchColor is used for deviations within the matching threshold.
	MatchColor = colorful.Color{R: 0.2, G: 1.0, B: 0.7}

	deviationLow  = colorful.Color{R: 0.65, G: 0.13, B: 0.36}
	deviationHigh = colorful.Color{R: 1.0, G: 0.23, B: 0.58}

	bandColors = [5]colorful.Color{
		{R: 0.20, G: 1.00, B: 0.70},
		{R: 0.60, G: 0.90, B: 0.30},
		{R: 1.00, G: 0.85, B: 0.20},
		{R: 1.00, G: 0.50, B: 0.15},
		{R: 0.90, G: 0.15, B: 0.20},
	}
	bandEdges  = [4]float64{0.10, 0.25, 0.50, 0.75}
	bandLabels = [5]string{"minimal", "low", "medium", "high", "critical"}
)

const maxEpsilon = 1e-12

// ColorFor maps one deviation to an RGB color in [0,1]^3. It is pure; a
// stats.Max of zero always yields MatchColor.
func ColorFor(deviation float64, stats DeviationStatistics, scheme ColorScheme) colorful.Color {
	if stats.Max <= 0 {
		return MatchColor
	}
	switch scheme {
	case FiveBand:
		return bandColors[bandFor(deviation/stats.Max)]
	default:
		if deviation <= stats.MatchingThreshold {
			return MatchColor
		}
		t := deviation / math.Max(stats.Max, maxEpsilon)
		t = math.Max(0, math.Min(1, t))
		return deviationLow.BlendRgb(deviationHigh, t)
	}
}

func bandFor(ratio float64) int {
	for i, edge := range bandEdges {
		if ratio <= edge {
			return i
		}
	}
	return len(bandEdges)
}

// ColorBuffer colors every deviation and returns a flat RGB buffer with
// three components per point, the layout vertex-color attributes expect.
func ColorBuffer(deviations []float64, stats DeviationStatistics, scheme ColorScheme) []float32 {
	buf := make([]float32, 0, len(deviations)*3)
	for _, d := range deviations {
		c := ColorFor(d, stats, scheme)
		buf = append(buf, float32(c.R), float32(c.G), float32(c.B))
	}
	return buf
}

// LegendBand is one entry of a heatmap legend. Lower is exclusive except for
// the first band.
type LegendBand struct {
	Label string         `json:"label"`
	Lower float64        `json:"lower"`
	Upper float64        `json:"upper"`
	Color colorful.Color `json:"-"`
	Hex   string         `json:"color"`
}

// LegendBands describes the deviation ranges a scheme paints.
func LegendBands(stats DeviationStatistics, scheme ColorScheme) []LegendBand {
	if scheme == FiveBand {
		bands := make([]LegendBand, len(bandColors))
		lower := 0.0
		for i, c := range bandColors {
			upper := stats.Max
			if i < len(bandEdges) {
				upper = bandEdges[i] * stats.Max
			}
			bands[i] = LegendBand{Label: bandLabels[i], Lower: lower, Upper: upper, Color: c, Hex: c.Hex()}
			lower = upper
		}
		return bands
	}

	upper := math.Max(stats.Max, stats.MatchingThreshold)
	return []LegendBand{
		{Label: "match", Lower: 0, Upper: stats.MatchingThreshold, Color: MatchColor, Hex: MatchColor.Hex()},
		{Label: "deviation", Lower: stats.MatchingThreshold, Upper: upper, Color: deviationHigh, Hex: deviationHigh.Hex()},
	}
}

// toRGBA converts to an opaque 8-bit color for image and canvas output.
func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
