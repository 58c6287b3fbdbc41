package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/your-org/presence/internal/models"
)

// DecodeImage decodes JPEG or PNG bytes.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes an image as JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func emptyImage(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	return b.Dx() <= 0 || b.Dy() <= 0
}

// imageToFloat32CHW converts an image to CHW float32 format with normalization:
//
//	pixel = (pixel - mean) / std
func imageToFloat32CHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := resizeImage(img, targetW, targetH)
	w, h := targetW, targetH

	data := make([]float32, 3*h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := resized.PixOffset(x, y)
			rf := float32(resized.Pix[off])
			gf := float32(resized.Pix[off+1])
			bf := float32(resized.Pix[off+2])

			idx := y*w + x
			data[0*h*w+idx] = (rf - mean[0]) / std[0]
			data[1*h*w+idx] = (gf - mean[1]) / std[1]
			data[2*h*w+idx] = (bf - mean[2]) / std[2]
		}
	}
	return data
}

// resizeImage scales img to exactly targetW x targetH with bilinear interpolation.
func resizeImage(img image.Image, targetW, targetH int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// cropFace extracts a face region with 10% padding on each side, clamped to the image.
func cropFace(img image.Image, box models.BoundingBox) image.Image {
	bounds := img.Bounds()
	r := box.Rect().Intersect(bounds)
	if r.Empty() {
		return nil
	}

	padW := int(float32(r.Dx()) * 0.1)
	padH := int(float32(r.Dy()) * 0.1)
	r = image.Rect(r.Min.X-padW, r.Min.Y-padH, r.Max.X+padW, r.Max.Y+padH).Intersect(bounds)

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}
