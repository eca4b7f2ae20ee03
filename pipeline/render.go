package pipeline

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	svg "github.com/ajstarks/svgo/float"
)

// The projection basis is a fixed camera so the scene keeps its shape
// across output aspect ratios; the fitted result is rescaled into the
// requested viewport afterwards.
const (
	cameraWidth  = 1920.0
	cameraHeight = 1080.0

	isoAngleDegrees = 30.0
	elevationGamma  = 0.82
	extrusionFactor = 0.24

	defaultSubdivisions = 4

	wallFillOpacity     = 0.24
	groundStrokeOpacity = 0.14
	glowStrokeOpacity   = 0.6

	routeGradientID = "routeGradient"
	glowFilterID    = "glow"
)

type vec2 struct {
	X, Y float64
}

type scenePoint struct {
	Ground   vec2
	Top      vec2
	Progress float64
	Value    *float64
}

// RouteScene is the projected, fitted route geometry shared by every frame
// of an animation.
type RouteScene struct {
	points []scenePoint
}

// PrecomputeRouteScene simplifies, projects and fits the route once so the
// per-frame work is reveal + emit only.
func PrecomputeRouteScene(data *VizData, options *RenderOptions) (*RouteScene, error) {
	simplified := simplifyRoute(data.Points, options.Simplify)
	if len(simplified) < 2 {
		return nil, &RenderError{Reason: "not enough route points after simplification"}
	}

	minElev, elevRange := elevationRange(simplified)
	elevationScale := math.Min(1.4, math.Max(0.7, elevRange/600))

	padding := float64(options.Padding)
	projWidth := cameraWidth - 2*padding
	projHeight := cameraHeight - 2*padding
	extrusion := projHeight * extrusionFactor * elevationScale

	sin, cos := math.Sincos(toRadians(isoAngleDegrees))

	points := make([]scenePoint, len(simplified))
	for i, p := range simplified {
		px := p.X * projWidth
		py := (1 - p.Y) * projHeight

		ground := vec2{X: px*cos + py*sin, Y: -px*sin + py*cos}

		var normElev float64
		if p.Elevation != nil && elevRange > 0 {
			normElev = (*p.Elevation - minElev) / elevRange
		}
		top := vec2{X: ground.X, Y: ground.Y - math.Pow(normElev, elevationGamma)*extrusion}

		points[i] = scenePoint{
			Ground:   ground,
			Top:      top,
			Progress: p.RouteProgress,
			Value:    p.Value,
		}
	}

	fitSceneToViewport(points, options)
	return &RouteScene{points: points}, nil
}

// RenderSVGFrame renders a complete SVG document for one progress fraction.
func RenderSVGFrame(data *VizData, options *RenderOptions, progress float64, stats []StatOverlayItem) (string, error) {
	scene, err := PrecomputeRouteScene(data, options)
	if err != nil {
		return "", err
	}
	return scene.RenderFrame(options, progress, stats)
}

// RenderFrame emits the SVG scene at the given progress using the shared
// precomputed geometry.
func (s *RouteScene) RenderFrame(options *RenderOptions, progress float64, stats []StatOverlayItem) (string, error) {
	revealed := revealScene(s.points, clamp01(progress))

	subdivided := revealed
	if len(revealed) >= 3 && defaultSubdivisions >= 2 {
		curvature := clamp01(options.CurveTension * 2)
		subdivided = subdivideCatmullRom(revealed, defaultSubdivisions, curvature)
	}

	var buf bytes.Buffer
	canvas := svg.New(&buf)
	width := float64(options.Width)
	height := float64(options.Height)
	canvas.Startview(width, height, 0, 0, width, height)

	canvas.Def()
	writeGradientDef(&buf, options.Gradient)
	if options.Glow {
		writeGlowFilterDef(&buf)
	}
	canvas.DefEnd()

	drawWalls(canvas, subdivided, options)
	drawGroundStroke(canvas, subdivided, options)
	if options.Glow {
		drawGlowStroke(canvas, subdivided, options)
	}
	drawTopStroke(canvas, subdivided, options)
	if options.ShowEndpoints {
		drawEndpointDots(canvas, s.points, revealed, options)
	}
	drawStatsOverlay(canvas, stats, options, width, height)

	canvas.End()
	return buf.String(), nil
}

func simplifyRoute(points []RoutePoint, stride int) []RoutePoint {
	if stride < 1 {
		stride = 1
	}
	var out []RoutePoint
	for i := range points {
		if i%stride == 0 || i == len(points)-1 {
			out = append(out, points[i])
		}
	}
	return out
}

func elevationRange(points []RoutePoint) (float64, float64) {
	minElev, maxElev := math.Inf(1), math.Inf(-1)
	for i := range points {
		if points[i].Elevation != nil {
			minElev = math.Min(minElev, *points[i].Elevation)
			maxElev = math.Max(maxElev, *points[i].Elevation)
		}
	}
	if math.IsInf(minElev, 1) {
		return 0, 0
	}
	return minElev, maxElev - minElev
}

// fitSceneToViewport uniformly scales and centers ground+top geometry into
// the padded viewport.
func fitSceneToViewport(points []scenePoint, options *RenderOptions) {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i := range points {
		for _, v := range [2]vec2{points[i].Ground, points[i].Top} {
			minX = math.Min(minX, v.X)
			maxX = math.Max(maxX, v.X)
			minY = math.Min(minY, v.Y)
			maxY = math.Max(maxY, v.Y)
		}
	}

	padding := float64(options.Padding)
	availWidth := float64(options.Width) - 2*padding
	availHeight := float64(options.Height) - 2*padding

	boxWidth := maxX - minX
	boxHeight := maxY - minY

	scale := 1.0
	if boxWidth > 0 && boxHeight > 0 {
		scale = math.Min(availWidth/boxWidth, availHeight/boxHeight)
	}

	offsetX := padding + (availWidth-boxWidth*scale)/2 - minX*scale
	offsetY := padding + (availHeight-boxHeight*scale)/2 - minY*scale

	for i := range points {
		points[i].Ground.X = points[i].Ground.X*scale + offsetX
		points[i].Ground.Y = points[i].Ground.Y*scale + offsetY
		points[i].Top.X = points[i].Top.X*scale + offsetX
		points[i].Top.Y = points[i].Top.Y*scale + offsetY
	}
}

// revealScene returns the scene prefix visible at progress p, interpolating
// the straddling segment.
func revealScene(points []scenePoint, p float64) []scenePoint {
	if len(points) == 0 {
		return nil
	}
	revealed := []scenePoint{points[0]}
	for i := 1; i < len(points); i++ {
		if points[i].Progress < p {
			revealed = append(revealed, points[i])
			continue
		}
		prev := &points[i-1]
		span := points[i].Progress - prev.Progress
		if span > 0 {
			t := (p - prev.Progress) / span
			if t > 0 {
				revealed = append(revealed, lerpScenePoint(prev, &points[i], clamp01(t)))
			}
		}
		return revealed
	}
	return revealed
}

func lerpScenePoint(a, b *scenePoint, t float64) scenePoint {
	out := scenePoint{
		Ground:   lerpVec2(a.Ground, b.Ground, t),
		Top:      lerpVec2(a.Top, b.Top, t),
		Progress: a.Progress + (b.Progress-a.Progress)*t,
	}
	if a.Value != nil && b.Value != nil {
		v := *a.Value + (*b.Value-*a.Value)*t
		out.Value = &v
	} else if a.Value != nil {
		v := *a.Value
		out.Value = &v
	} else if b.Value != nil {
		v := *b.Value
		out.Value = &v
	}
	return out
}

func lerpVec2(a, b vec2, t float64) vec2 {
	return vec2{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}

// subdivideCatmullRom resamples the scene polyline with a cardinal spline.
// Endpoints use the p1/p2 reflection convention for the missing neighbors.
func subdivideCatmullRom(points []scenePoint, subdivisions int, curvature float64) []scenePoint {
	n := len(points)
	out := make([]scenePoint, 0, (n-1)*subdivisions+1)
	out = append(out, points[0])

	for i := 0; i < n-1; i++ {
		p1 := &points[i]
		p2 := &points[i+1]

		var p0, p3 *scenePoint
		if i > 0 {
			p0 = &points[i-1]
		} else {
			reflected := reflectScenePoint(p1, p2)
			p0 = &reflected
		}
		if i+2 < n {
			p3 = &points[i+2]
		} else {
			reflected := reflectScenePoint(p2, p1)
			p3 = &reflected
		}

		for s := 1; s <= subdivisions; s++ {
			t := float64(s) / float64(subdivisions)
			sub := scenePoint{
				Ground:   hermite(p0.Ground, p1.Ground, p2.Ground, p3.Ground, t, curvature),
				Top:      hermite(p0.Top, p1.Top, p2.Top, p3.Top, t, curvature),
				Progress: p1.Progress + (p2.Progress-p1.Progress)*t,
			}
			interp := lerpScenePoint(p1, p2, t)
			sub.Value = interp.Value
			out = append(out, sub)
		}
	}
	return out
}

// reflectScenePoint mirrors b through a, supplying the virtual neighbor at
// an open end of the spline.
func reflectScenePoint(a, b *scenePoint) scenePoint {
	return scenePoint{
		Ground:   vec2{X: 2*a.Ground.X - b.Ground.X, Y: 2*a.Ground.Y - b.Ground.Y},
		Top:      vec2{X: 2*a.Top.X - b.Top.X, Y: 2*a.Top.Y - b.Top.Y},
		Progress: a.Progress,
		Value:    a.Value,
	}
}

func hermite(p0, p1, p2, p3 vec2, t, curvature float64) vec2 {
	m1 := vec2{X: curvature * (p2.X - p0.X) / 2, Y: curvature * (p2.Y - p0.Y) / 2}
	m2 := vec2{X: curvature * (p3.X - p1.X) / 2, Y: curvature * (p3.Y - p1.Y) / 2}

	t2 := t * t
	t3 := t2 * t
	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2

	return vec2{
		X: h00*p1.X + h10*m1.X + h01*p2.X + h11*m2.X,
		Y: h00*p1.Y + h10*m1.Y + h01*p2.Y + h11*m2.Y,
	}
}

func writeGradientDef(buf *bytes.Buffer, gradient Gradient) {
	fmt.Fprintf(buf, `<linearGradient id="%s" x1="0%%" y1="0%%" x2="100%%" y2="0%%">`, routeGradientID)
	n := len(gradient.Colors)
	for i, color := range gradient.Colors {
		offset := 0.0
		if n > 1 {
			offset = float64(i) / float64(n-1) * 100
		}
		fmt.Fprintf(buf, `<stop offset="%.0f%%" stop-color="%s" stop-opacity="1"/>`, offset, color)
	}
	buf.WriteString(`</linearGradient>`)
}

func writeGlowFilterDef(buf *bytes.Buffer) {
	fmt.Fprintf(buf, `<filter id="%s" x="-20%%" y="-20%%" width="140%%" height="140%%">`, glowFilterID)
	buf.WriteString(`<feGaussianBlur stdDeviation="6" result="blur"/>`)
	buf.WriteString(`<feMerge><feMergeNode in="blur"/><feMergeNode in="blur"/><feMergeNode in="SourceGraphic"/></feMerge>`)
	buf.WriteString(`</filter>`)
}

// drawWalls emits one extrusion polygon per segment, painted back to front
// by mean ground depth.
func drawWalls(canvas *svg.SVG, points []scenePoint, options *RenderOptions) {
	if len(points) < 2 {
		return
	}

	type wall struct {
		depth float64
		xs    []float64
		ys    []float64
		fill  string
	}

	walls := make([]wall, 0, len(points)-1)
	for i := 0; i < len(points)-1; i++ {
		a, b := &points[i], &points[i+1]
		walls = append(walls, wall{
			depth: (a.Ground.Y + b.Ground.Y) / 2,
			xs:    []float64{a.Ground.X, a.Top.X, b.Top.X, b.Ground.X},
			ys:    []float64{a.Ground.Y, a.Top.Y, b.Top.Y, b.Ground.Y},
			fill:  options.Gradient.ColorAt(ContrastRemap(segmentColorValue(a, b, i, len(points)-1))),
		})
	}

	sort.SliceStable(walls, func(i, j int) bool { return walls[i].depth < walls[j].depth })

	for _, w := range walls {
		canvas.Polygon(w.xs, w.ys,
			fmt.Sprintf(`fill="%s"`, w.fill),
			fmt.Sprintf(`fill-opacity="%.2f"`, wallFillOpacity))
	}
}

// segmentColorValue picks the color parameter for a segment: the mean of
// its endpoint color-by samples, or the positional fraction along the
// route when no channel is active.
func segmentColorValue(a, b *scenePoint, index, segments int) float64 {
	switch {
	case a.Value != nil && b.Value != nil:
		return (*a.Value + *b.Value) / 2
	case a.Value != nil:
		return *a.Value
	case b.Value != nil:
		return *b.Value
	}
	if segments <= 1 {
		return 0.5
	}
	return float64(index) / float64(segments-1)
}

func drawGroundStroke(canvas *svg.SVG, points []scenePoint, options *RenderOptions) {
	if len(points) < 2 {
		return
	}
	canvas.Path(groundPath(points),
		`fill="none"`,
		`stroke="#FFFFFF"`,
		fmt.Sprintf(`stroke-opacity="%.2f"`, groundStrokeOpacity),
		fmt.Sprintf(`stroke-width="%.2f"`, options.StrokeWidth*0.9),
		`stroke-linecap="round"`,
		`stroke-linejoin="round"`)
}

func drawGlowStroke(canvas *svg.SVG, points []scenePoint, options *RenderOptions) {
	if len(points) < 2 {
		return
	}
	canvas.Path(topPath(points),
		`fill="none"`,
		fmt.Sprintf(`stroke="url(#%s)"`, routeGradientID),
		fmt.Sprintf(`stroke-width="%.2f"`, options.StrokeWidth*3),
		fmt.Sprintf(`stroke-opacity="%.2f"`, glowStrokeOpacity),
		`stroke-linecap="round"`,
		`stroke-linejoin="round"`,
		fmt.Sprintf(`filter="url(#%s)"`, glowFilterID))
}

// drawTopStroke paints the elevated route line: one gradient path without
// color-by, discrete bucketed segment paths with it.
func drawTopStroke(canvas *svg.SVG, points []scenePoint, options *RenderOptions) {
	if len(points) < 2 {
		return
	}

	if options.ColorBy == nil {
		canvas.Path(topPath(points),
			`fill="none"`,
			fmt.Sprintf(`stroke="url(#%s)"`, routeGradientID),
			fmt.Sprintf(`stroke-width="%.2f"`, options.StrokeWidth),
			`stroke-linecap="round"`,
			`stroke-linejoin="round"`)
		return
	}

	for i := 0; i < len(points)-1; i++ {
		a, b := &points[i], &points[i+1]
		color := options.Gradient.BucketedColorAt(ContrastRemap(segmentColorValue(a, b, i, len(points)-1)))
		canvas.Path(fmt.Sprintf("M %.2f %.2f L %.2f %.2f", a.Top.X, a.Top.Y, b.Top.X, b.Top.Y),
			`fill="none"`,
			fmt.Sprintf(`stroke="%s"`, color),
			fmt.Sprintf(`stroke-width="%.2f"`, options.StrokeWidth),
			`stroke-linecap="round"`)
	}
}

func drawEndpointDots(canvas *svg.SVG, scene, revealed []scenePoint, options *RenderOptions) {
	if len(scene) < 2 || len(revealed) == 0 {
		return
	}
	radius := options.StrokeWidth * 2.5
	start := scene[0].Top
	tip := revealed[len(revealed)-1].Top

	startColor := options.Gradient.Colors[0]
	endColor := options.Gradient.Colors[len(options.Gradient.Colors)-1]

	canvas.Circle(start.X, start.Y, radius,
		fmt.Sprintf(`fill="%s"`, startColor), `opacity="0.95"`)
	canvas.Circle(tip.X, tip.Y, radius,
		fmt.Sprintf(`fill="%s"`, endColor), `opacity="0.95"`)
}

const overlayFontFamily = "Geist, DejaVu Sans, sans-serif"

// drawStatsOverlay stacks formatted stat lines up from the bottom-left
// corner. Label and value are separate text nodes so the rasterizer text
// pass can place them independently.
func drawStatsOverlay(canvas *svg.SVG, stats []StatOverlayItem, options *RenderOptions, width, height float64) {
	if len(stats) == 0 {
		return
	}

	valueSize := math.Max(18, height*0.030)
	labelSize := math.Max(11, height*0.016)
	blockHeight := valueSize + labelSize*1.6
	x := float64(options.Padding)

	for i, item := range stats {
		baseY := height - float64(options.Padding) - float64(len(stats)-1-i)*blockHeight
		canvas.Text(x, baseY-valueSize*1.15, item.Label,
			fmt.Sprintf(`font-family="%s"`, overlayFontFamily),
			fmt.Sprintf(`font-size="%.1f"`, labelSize),
			`fill="#FFFFFF"`,
			`fill-opacity="0.55"`,
			`letter-spacing="1.5"`)
		canvas.Text(x, baseY, item.Value,
			fmt.Sprintf(`font-family="%s"`, overlayFontFamily),
			fmt.Sprintf(`font-size="%.1f"`, valueSize),
			fmt.Sprintf(`fill="%s"`, options.Gradient.ColorAt(item.ColorT)))
	}
}

func groundPath(points []scenePoint) string {
	return polylinePath(points, func(p *scenePoint) vec2 { return p.Ground })
}

func topPath(points []scenePoint) string {
	return polylinePath(points, func(p *scenePoint) vec2 { return p.Top })
}

func polylinePath(points []scenePoint, at func(*scenePoint) vec2) string {
	var b strings.Builder
	for i := range points {
		v := at(&points[i])
		if i == 0 {
			fmt.Fprintf(&b, "M %.2f %.2f", v.X, v.Y)
		} else {
			fmt.Fprintf(&b, " L %.2f %.2f", v.X, v.Y)
		}
	}
	return b.String()
}
