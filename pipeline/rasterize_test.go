package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestInjectWatermarkIsIdempotent(t *testing.T) {
	doc := `<svg xmlns="http://www.w3.org/2000/svg" width="100" height="100"></svg>`

	injected := InjectWatermark(doc, 100, 100)
	assert.Contains(t, injected, `id="rideviz-watermark"`)
	assert.Contains(t, injected, "rideviz.online")

	twice := InjectWatermark(injected, 100, 100)
	assert.Equal(t, 1, strings.Count(twice, `id="rideviz-watermark"`))
}

func TestInjectWatermarkWithoutClosingTag(t *testing.T) {
	injected := InjectWatermark("<svg>", 400, 400)
	assert.Contains(t, injected, "rideviz.online")
}

func TestRasterizeProducesPNG(t *testing.T) {
	viz := testVizData(t, 150)
	options := Route3DDefaults()
	svgText, err := RenderSVGFrame(viz, &options, 1.0, nil)
	require.NoError(t, err)

	output := OutputConfig{Width: 640, Height: 640}
	pngBytes, err := Rasterize(svgText, &output)
	require.NoError(t, err)

	require.Greater(t, len(pngBytes), 100)
	assert.Equal(t, pngMagic, pngBytes[:4])
}

func TestRasterizeIsDeterministic(t *testing.T) {
	viz := testVizData(t, 150)
	options := Route3DDefaults()
	svgText, err := RenderSVGFrame(viz, &options, 1.0, nil)
	require.NoError(t, err)

	output := OutputConfig{Width: 480, Height: 480, Background: &RGBA{R: 255, G: 255, B: 255, A: 255}}
	first, err := Rasterize(svgText, &output)
	require.NoError(t, err)
	second, err := Rasterize(svgText, &output)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRasterizeRejectsInvalidSVG(t *testing.T) {
	output := OutputConfig{Width: 100, Height: 100}
	_, err := Rasterize("<not-svg>", &output)
	var rasterErr *RasterError
	require.ErrorAs(t, err, &rasterErr)
}

func TestRasterizeRejectsZeroPixmap(t *testing.T) {
	viz := testVizData(t, 50)
	options := Route3DDefaults()
	svgText, err := RenderSVGFrame(viz, &options, 1.0, nil)
	require.NoError(t, err)

	output := OutputConfig{Width: 0, Height: 0}
	_, err = Rasterize(svgText, &output)
	var rasterErr *RasterError
	require.ErrorAs(t, err, &rasterErr)
}

func TestCollectTextNodes(t *testing.T) {
	doc := `<svg xmlns="http://www.w3.org/2000/svg" width="100" height="100">` +
		`<text x="50" y="90" font-size="14" fill="#FF0000" text-anchor="middle">hello</text>` +
		`<text x="10" y="20" font-size="11" fill="rgb(0,0,0)" fill-opacity="0.5">world</text>` +
		`</svg>`

	nodes, err := collectTextNodes(doc)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, "hello", nodes[0].content)
	assert.Equal(t, 50.0, nodes[0].x)
	assert.Equal(t, "middle", nodes[0].anchor)
	assert.Equal(t, uint8(255), nodes[0].fill.R)

	assert.Equal(t, "world", nodes[1].content)
	assert.Equal(t, uint8(127), nodes[1].fill.A)
}
