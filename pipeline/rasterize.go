package pipeline

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// The font database is loaded once at startup and read-only afterwards.
var (
	fontOnce sync.Once
	fontDB   *truetype.Font
)

var defaultFontPaths = []string{
	"/app/assets/fonts/Geist-Regular.ttf",
	"./assets/fonts/Geist-Regular.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSansMono.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
}

// InitFonts loads the first parseable TrueType font from the configured
// paths followed by the known system locations. Safe to call more than
// once; only the first call loads.
func InitFonts(extraPaths []string) {
	fontOnce.Do(func() {
		for _, path := range append(append([]string{}, extraPaths...), defaultFontPaths...) {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			f, err := truetype.Parse(data)
			if err != nil {
				continue
			}
			fontDB = f
			return
		}
	})
}

// Rasterize parses the SVG document and paints it onto a pixmap of exactly
// the configured size, then encodes PNG. Vector content goes through
// oksvg/rasterx; text nodes are drawn in a second pass through the shared
// font database.
func Rasterize(svgText string, config *OutputConfig) ([]byte, error) {
	if config.Watermark {
		svgText = InjectWatermark(svgText, config.Width, config.Height)
	}

	icon, err := oksvg.ReadIconStream(strings.NewReader(svgText), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, &RasterError{Reason: fmt.Sprintf("failed to parse SVG: %v", err)}
	}

	if config.Width <= 0 || config.Height <= 0 {
		return nil, &RasterError{Reason: "failed to create pixmap"}
	}
	img := image.NewRGBA(image.Rect(0, 0, config.Width, config.Height))

	if bg := config.Background; bg != nil {
		draw.Draw(img, img.Bounds(),
			image.NewUniform(color.RGBA{R: bg.R, G: bg.G, B: bg.B, A: bg.A}),
			image.Point{}, draw.Src)
	}

	// Scale transform from the document size to the pixmap size.
	icon.SetTarget(0, 0, float64(config.Width), float64(config.Height))
	scanner := rasterx.NewScannerGV(config.Width, config.Height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(config.Width, config.Height, scanner), 1.0)

	if err := drawTextElements(img, svgText, icon.ViewBox.W, icon.ViewBox.H, config); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &RasterError{Reason: fmt.Sprintf("failed to encode PNG: %v", err)}
	}
	return buf.Bytes(), nil
}

type svgTextNode struct {
	x, y     float64
	fontSize float64
	fill     color.RGBA
	anchor   string
	content  string
}

// drawTextElements rasterizes the document's <text> nodes. oksvg does not
// paint text, so the renderer's overlay and the watermark are drawn here
// with the shared font database.
func drawTextElements(img *image.RGBA, svgText string, svgWidth, svgHeight float64, config *OutputConfig) error {
	if fontDB == nil {
		return nil
	}
	nodes, err := collectTextNodes(svgText)
	if err != nil {
		return &RasterError{Reason: fmt.Sprintf("failed to parse SVG text nodes: %v", err)}
	}
	if len(nodes) == 0 {
		return nil
	}

	scaleX, scaleY := 1.0, 1.0
	if svgWidth > 0 && svgHeight > 0 {
		scaleX = float64(config.Width) / svgWidth
		scaleY = float64(config.Height) / svgHeight
	}

	for _, node := range nodes {
		size := node.fontSize * scaleY
		if size <= 0 {
			continue
		}
		face := truetype.NewFace(fontDB, &truetype.Options{Size: size})
		drawer := font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(node.fill),
			Face: face,
		}
		x := node.x * scaleX
		if node.anchor == "middle" {
			width := drawer.MeasureString(node.content)
			x -= float64(width>>6) / 2
		}
		drawer.Dot = fixed.Point26_6{
			X: fixed.Int26_6(x * 64),
			Y: fixed.Int26_6(node.y * scaleY * 64),
		}
		drawer.DrawString(node.content)
		face.Close()
	}
	return nil
}

func collectTextNodes(svgText string) ([]svgTextNode, error) {
	dec := xml.NewDecoder(strings.NewReader(svgText))
	var nodes []svgTextNode
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "text" {
			continue
		}

		node := svgTextNode{fontSize: 16, fill: color.RGBA{A: 255}}
		opacity := 1.0
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "x":
				node.x, _ = strconv.ParseFloat(attr.Value, 64)
			case "y":
				node.y, _ = strconv.ParseFloat(attr.Value, 64)
			case "font-size":
				node.fontSize, _ = strconv.ParseFloat(attr.Value, 64)
			case "fill":
				node.fill = parseSVGColor(attr.Value)
			case "fill-opacity":
				opacity, _ = strconv.ParseFloat(attr.Value, 64)
			case "text-anchor":
				node.anchor = attr.Value
			}
		}
		node.fill.A = uint8(clamp01(opacity) * 255)

		var content strings.Builder
		for {
			inner, err := dec.Token()
			if err != nil {
				return nil, err
			}
			if char, ok := inner.(xml.CharData); ok {
				content.Write(char)
			}
			if end, ok := inner.(xml.EndElement); ok && end.Name.Local == "text" {
				break
			}
		}
		node.content = strings.TrimSpace(content.String())
		if node.content != "" {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

func parseSVGColor(s string) color.RGBA {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")") {
		parts := strings.Split(s[4:len(s)-1], ",")
		if len(parts) == 3 {
			r, _ := strconv.Atoi(strings.TrimSpace(parts[0]))
			g, _ := strconv.Atoi(strings.TrimSpace(parts[1]))
			b, _ := strconv.Atoi(strings.TrimSpace(parts[2]))
			return color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}
		}
	}
	r, g, b := parseHexColor(s)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

const (
	watermarkText = "rideviz.online"
	watermarkID   = "rideviz-watermark"
)

// InjectWatermark adds the rideviz.online badge near the bottom of the SVG
// document. Injection is idempotent: a document already carrying the
// watermark group id is returned unchanged.
func InjectWatermark(svgText string, width, height int) string {
	if strings.Contains(svgText, watermarkID) {
		return svgText
	}

	fontSize := max(int(float64(height)*0.020), 13)
	paddingX := max(int(float64(fontSize)*0.7), 8)
	paddingY := max(int(float64(fontSize)*0.5), 6)
	marginBottom := max(int(float64(fontSize)*1.15), 16)

	textX := width / 2
	textY := max(height-marginBottom, 0)

	approxTextWidth := float64(len(watermarkText)) * float64(fontSize) * 0.62
	boxWidth := min(int(approxTextWidth)+paddingX*2+1, max(width-12, 0))
	boxHeight := min(fontSize+paddingY*2, max(height-12, 0))
	boxX := max(textX-boxWidth/2, 0)
	boxY := max(textY-fontSize-paddingY, 0)
	radius := min(max(int(float64(fontSize)*0.3+0.5), 3), 6)
	borderWidth := max(int(float64(fontSize)*0.08+0.5), 1)

	nodes := fmt.Sprintf(`<g id="%s">`+
		`<rect x="%d" y="%d" width="%d" height="%d" rx="%d" fill="rgb(255,255,255)" fill-opacity="0.90" stroke="rgb(0,0,0)" stroke-opacity="0.92" stroke-width="%d" />`+
		`<text x="%d" y="%d" font-family="Geist, DejaVu Sans Mono, DejaVu Sans, sans-serif" font-size="%d" text-anchor="middle" fill="rgb(0,0,0)" fill-opacity="0.92">%s</text>`+
		`</g>`,
		watermarkID, boxX, boxY, boxWidth, boxHeight, radius, borderWidth,
		textX, textY, fontSize, watermarkText)

	if strings.Contains(svgText, "</svg>") {
		return strings.Replace(svgText, "</svg>", nodes+"</svg>", 1)
	}
	return svgText + nodes
}
