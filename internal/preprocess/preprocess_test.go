package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucijabrocic/digit-recognizer/internal/canvas"
	"github.com/lucijabrocic/digit-recognizer/internal/model"
)

func uniform(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// resampling rounds through 8-bit gray, so exact values can be off by one level
const level = 1.0/255 + 1e-6

func assertShapeAndRange(t *testing.T, in *model.Tensor) {
	t.Helper()
	require.Equal(t, []int64{1, 28, 28, 1}, in.Shape)
	require.Len(t, in.Data, 28*28)
	for i, v := range in.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %d = %f outside [0,1]", i, v)
		}
	}
}

func TestBlankCanvasIsZero(t *testing.T) {
	in := Preprocess(uniform(280, 280, color.White))
	defer in.Release()

	assertShapeAndRange(t, in)
	for _, v := range in.Data {
		assert.InDelta(t, 0, v, level)
	}
}

func TestFullInkIsOne(t *testing.T) {
	in := Preprocess(uniform(280, 280, color.Black))
	defer in.Release()

	for _, v := range in.Data {
		assert.InDelta(t, 1, v, level)
	}
}

func TestTransparentImageIsBackground(t *testing.T) {
	in := Preprocess(image.NewNRGBA(image.Rect(0, 0, 56, 56)))
	defer in.Release()

	for _, v := range in.Data {
		assert.InDelta(t, 0, v, level)
	}
}

func TestStrokeIsBright(t *testing.T) {
	opts := canvas.DefaultOptions()
	opts.BrushWidth = 40
	s := canvas.New(opts)
	s.BeginStroke(canvas.Point{X: 140, Y: 100})
	s.ExtendStroke(canvas.Point{X: 140, Y: 240})
	s.EndStroke()

	in := Preprocess(s.Image())
	defer in.Release()

	assertShapeAndRange(t, in)
	// the vertical bar lands in the middle columns
	assert.Greater(t, in.Data[14*28+14], float32(0.5))
	assert.InDelta(t, 0, in.Data[14*28+2], level)
	assert.InDelta(t, 0, in.Data[1*28+14], level)
}

func TestPreprocessDoesNotMutateInput(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	rng.Read(img.Pix)
	before := append([]byte(nil), img.Pix...)

	in := Preprocess(img)
	in.Release()

	assert.Equal(t, before, img.Pix)
}

func TestAnySizeGivesFixedShape(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	sizes := [][2]int{{28, 28}, {280, 280}, {17, 300}, {640, 90}, {1, 1}}
	for _, sz := range sizes {
		img := image.NewRGBA(image.Rect(0, 0, sz[0], sz[1]))
		rng.Read(img.Pix)

		in := Preprocess(img)
		assertShapeAndRange(t, in)
		in.Release()
	}
}

func TestOffsetBounds(t *testing.T) {
	img := uniform(300, 300, color.White).SubImage(image.Rect(10, 10, 290, 290))

	in := Preprocess(img)
	defer in.Release()
	assertShapeAndRange(t, in)
	assert.InDelta(t, 0, in.Data[0], level)
}

func TestPreprocessPanicsOnEmpty(t *testing.T) {
	assert.Panics(t, func() { Preprocess(nil) })
	assert.Panics(t, func() { Preprocess(image.NewRGBA(image.Rectangle{})) })
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, uniform(40, 40, color.Black)))

	img, format, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 40, img.Bounds().Dx())

	_, _, err = Decode(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}
