package embed

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode decodes an encoded image honoring EXIF orientation.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Preprocess turns encoded image bytes into the CLIP vision input: a
// 224x224 center crop (shorter side scaled to 224), per-channel normalized
// with ClipMean/ClipStd, laid out planar as [R..., G..., B...].
func Preprocess(data []byte) ([]float32, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return PreprocessImage(img), nil
}

// PreprocessImage is Preprocess for an already decoded image.
func PreprocessImage(img image.Image) []float32 {
	crop := imaging.Fill(img, InputSize, InputSize, imaging.Center, imaging.Lanczos)

	const plane = InputSize * InputSize
	out := make([]float32, 3*plane)
	for y := 0; y < InputSize; y++ {
		row := crop.Pix[y*crop.Stride:]
		for x := 0; x < InputSize; x++ {
			px := row[x*4 : x*4+3]
			idx := y*InputSize + x
			for c := 0; c < 3; c++ {
				out[c*plane+idx] = (float32(px[c])/255 - ClipMean[c]) / ClipStd[c]
			}
		}
	}
	return out
}
