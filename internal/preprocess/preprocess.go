// Package preprocess turns a drawing into the classifier's input tensor.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/lucijabrocic/digit-recognizer/internal/model"
)

const maxIntensity = 255.0

// Preprocess converts img to a [1,28,28,1] tensor: grayscale, bilinear
// resample to 28x28, inverted so ink is bright, scaled into [0,1].
// img is not modified. The caller owns the returned tensor and must
// release it. A nil or empty image is a programming error.
func Preprocess(img image.Image) *model.Tensor {
	if img == nil || img.Bounds().Empty() {
		panic("preprocess: nil or empty image")
	}

	gray := toGray(img)
	small := resize.Resize(model.ImageSize, model.ImageSize, gray, resize.Bilinear)

	t := model.NewTensor()
	b := small.Bounds()
	for y := 0; y < model.ImageSize; y++ {
		for x := 0; x < model.ImageSize; x++ {
			v := color.GrayModel.Convert(small.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
			t.Data[y*model.ImageSize+x] = float32(maxIntensity-float64(v)) / maxIntensity
		}
	}
	return t
}

// toGray composites img over white and keeps a single luminance channel.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()

	flat := image.NewRGBA(b)
	draw.Draw(flat, b, image.White, image.Point{}, draw.Src)
	draw.Draw(flat, b, img, b.Min, draw.Over)

	gray := image.NewGray(b)
	draw.Draw(gray, b, flat, b.Min, draw.Src)
	return gray
}

// Decode reads a PNG or JPEG upload.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("decode image: empty %s image", format)
	}
	return img, format, nil
}
