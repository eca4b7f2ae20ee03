package pipeline

import (
	"fmt"
	"math"
	"strconv"
)

// Gradient is a named multi-stop color list used for route strokes, walls
// and overlay accents. Stops are spread evenly along [0,1].
type Gradient struct {
	Name   string   `json:"name"`
	Colors []string `json:"colors"`
}

var gradients = map[string]Gradient{
	"fire":    {Name: "fire", Colors: []string{"#FF3366", "#FF9933"}},
	"ocean":   {Name: "ocean", Colors: []string{"#0055FF", "#00D1FF"}},
	"sunset":  {Name: "sunset", Colors: []string{"#FF7E5F", "#FEB47B"}},
	"forest":  {Name: "forest", Colors: []string{"#1D976C", "#93F9B9"}},
	"violet":  {Name: "violet", Colors: []string{"#8E2DE2", "#4A00E0"}},
	"rideviz": {Name: "rideviz", Colors: []string{"#00C2FF", "#00FF94"}},
	"white":   {Name: "white", Colors: []string{"#FFFFFF", "#FFFFFF"}},
	"black":   {Name: "black", Colors: []string{"#000000", "#000000"}},
}

// GradientByName looks up a registered gradient.
func GradientByName(name string) (Gradient, bool) {
	g, ok := gradients[name]
	return g, ok
}

func DefaultGradient() Gradient {
	return gradients["fire"]
}

// ColorAt interpolates the gradient at t in [0,1] and returns a #rrggbb hex
// color.
func (g Gradient) ColorAt(t float64) string {
	if len(g.Colors) == 0 {
		return "#FFFFFF"
	}
	if len(g.Colors) == 1 {
		return g.Colors[0]
	}
	t = clamp01(t)

	span := t * float64(len(g.Colors)-1)
	idx := int(span)
	if idx >= len(g.Colors)-1 {
		return g.Colors[len(g.Colors)-1]
	}
	local := span - float64(idx)

	r1, g1, b1 := parseHexColor(g.Colors[idx])
	r2, g2, b2 := parseHexColor(g.Colors[idx+1])
	return fmt.Sprintf("#%02X%02X%02X",
		lerpChannel(r1, r2, local),
		lerpChannel(g1, g2, local),
		lerpChannel(b1, b2, local))
}

// wallColorBuckets bounds the number of distinct colors used for color-by
// strokes so the generated SVG stays tractable.
const wallColorBuckets = 48

// BucketedColorAt snaps t to one of wallColorBuckets discrete gradient
// samples.
func (g Gradient) BucketedColorAt(t float64) string {
	t = clamp01(t)
	bucket := math.Round(t * float64(wallColorBuckets-1))
	return g.ColorAt(bucket / float64(wallColorBuckets-1))
}

// ContrastRemap widens the spread of normalized color values around the
// midpoint before gradient lookup.
func ContrastRemap(v float64) float64 {
	return clamp01((v-0.5)*1.55 + 0.5)
}

func parseHexColor(s string) (uint8, uint8, uint8) {
	if len(s) != 7 || s[0] != '#' {
		return 255, 255, 255
	}
	r, err1 := strconv.ParseUint(s[1:3], 16, 8)
	g, err2 := strconv.ParseUint(s[3:5], 16, 8)
	b, err3 := strconv.ParseUint(s[5:7], 16, 8)
	if err1 != nil || err2 != nil || err3 != nil {
		return 255, 255, 255
	}
	return uint8(r), uint8(g), uint8(b)
}

func lerpChannel(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
