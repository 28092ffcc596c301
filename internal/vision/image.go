package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// channel normalisation: pixel = (pixel - mean) / std
type normalization struct {
	mean, std float32
}

var (
	detectorNorm = normalization{mean: 127.5, std: 128.0}
	embedderNorm = normalization{mean: 127.5, std: 127.5}
)

// decodeImage decodes any registered format. Failures wrap ErrInvalidImage.
func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}
	return img, nil
}

// letterbox scales img to fit a size×size canvas anchored at the top-left,
// preserving aspect ratio. It returns the canvas and the factor that maps
// canvas coordinates back to img.
func letterbox(img image.Image, size int) (*image.RGBA, float32) {
	b := img.Bounds()
	ratio := min(float64(size)/float64(b.Dx()), float64(size)/float64(b.Dy()))
	w := max(1, int(float64(b.Dx())*ratio))
	h := max(1, int(float64(b.Dy())*ratio))

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(canvas, image.Rect(0, 0, w, h), img, b, draw.Src, nil)
	return canvas, float32(1 / ratio)
}

// cropFace cuts the face box out of img with 10% padding on each side and
// resizes it to size×size. It returns nil for degenerate boxes.
func cropFace(img image.Image, box [4]float32, size int) *image.RGBA {
	b := img.Bounds()
	x1, y1 := int(box[0]), int(box[1])
	x2, y2 := int(box[2]), int(box[3])
	if x2-x1 <= 0 || y2-y1 <= 0 {
		return nil
	}

	padW := (x2 - x1) / 10
	padH := (y2 - y1) / 10
	region := image.Rect(x1-padW, y1-padH, x2+padW, y2+padH).Add(b.Min).Intersect(b)
	if region.Empty() {
		return nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, region, draw.Src, nil)
	return dst
}

// toCHW converts an RGBA image into planar float32 RGB.
func toCHW(img *image.RGBA, n normalization) []float32 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	plane := w * h
	out := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4:]
			i := y*w + x
			out[i] = (float32(px[0]) - n.mean) / n.std
			out[plane+i] = (float32(px[1]) - n.mean) / n.std
			out[2*plane+i] = (float32(px[2]) - n.mean) / n.std
		}
	}
	return out
}
