package logo

import (
	"bytes"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// decodeAndFit decodes raw image bytes and scales the result to fit within
// maxW x maxH preserving aspect ratio. Images already inside the box pass
// through unscaled.
func decodeAndFit(raw []byte, maxW, maxH int) (image.Image, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return fitWithin(src, maxW, maxH), nil
}

func fitWithin(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW <= 0 || srcH <= 0 {
		return src
	}
	if srcW <= maxW && srcH <= maxH {
		return src
	}

	// Large sources are first halved in powers of two with the cheap kernel;
	// the final pass uses Catmull-Rom for quality at the target size.
	for srcW/2 >= maxW && srcH/2 >= maxH {
		srcW /= 2
		srcH /= 2
	}
	if srcW != b.Dx() {
		half := image.NewRGBA(image.Rect(0, 0, srcW, srcH))
		draw.ApproxBiLinear.Scale(half, half.Bounds(), src, b, draw.Src, nil)
		src = half
		b = half.Bounds()
	}

	dstW, dstH := fitDims(srcW, srcH, maxW, maxH)
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// fitDims scales (w, h) down to fit inside (maxW, maxH) keeping aspect ratio.
func fitDims(w, h, maxW, maxH int) (int, int) {
	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	if scale >= 1 {
		return w, h
	}
	dw := int(float64(w)*scale + 0.5)
	dh := int(float64(h)*scale + 0.5)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	return dw, dh
}
