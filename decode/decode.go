// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// Package decode implements the external Decoder collaborator the
// segment package's documentation describes: turning an arbitrary image
// file into the 8-bit grayscale, working-resolution byte grid that
// segment.SegmenterState.Extract expects, and turning a segment.SegmentInfo
// back into a cropped, de-rotated sub-image of the original source.
package decode

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"rescribe.xyz/fpsegment/segment"
)

// Decode reads an image of any format registered with the standard
// image package (JPEG, PNG, plus BMP, TIFF and WebP registered by this
// package's side-effect imports), and returns both the original decoded
// image and the working-resolution 8-bit grayscale grid ready to pass to
// segment.SegmenterState.Extract.
func Decode(r io.Reader, hint int) (src image.Image, state *segment.SegmenterState, gray []byte, err error) {
	src, _, err = image.Decode(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	state = segment.NewSegmenterStateWithHint(b.Dx(), b.Dy(), hint)

	gray = toWorkingGray(src, state.W, state.H)

	return src, state, gray, nil
}

// toWorkingGray reduces src to luminance and downscales it to w x h using
// bicubic interpolation.
func toWorkingGray(src image.Image, w, h int) []byte {
	b := src.Bounds()
	grayFull := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			// RGBA() returns 16-bit-scaled components; reduce to 8-bit
			// before applying the luminance weights.
			lum := 0.30*float64(r>>8) + 0.59*float64(g>>8) + 0.11*float64(bl>>8)
			grayFull.SetGray(x, y, color.Gray{Y: clampByte(lum)})
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), grayFull, grayFull.Bounds(), xdraw.Over, nil)

	out := make([]byte, w*h)
	copy(out, dst.Pix)
	return out
}

func clampByte(v float64) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint8(math.Round(v))
}
