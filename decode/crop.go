// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package decode

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"rescribe.xyz/fpsegment/segment"
)

// Crop renders a de-rotated, cropped sub-image of src for the given
// segment, sampling at full source resolution with bicubic
// interpolation. The returned image is segment.Size.Width x
// segment.Size.Height, with the segment's centroid at its center and its
// long axis rotated to vertical.
func Crop(src image.Image, info segment.SegmentInfo) image.Image {
	w, h := info.Size.Width, info.Size.Height
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}

	theta := float64(info.Rotation) * math.Pi / 180
	cosT, sinT := math.Cos(theta), math.Sin(theta)
	cx, cy := float64(info.Centroid.X), float64(info.Centroid.Y)
	halfW, halfH := float64(w)/2, float64(h)/2

	// m maps source coordinates to destination (cropped, de-rotated)
	// coordinates, as Transform expects: translate the segment's centroid
	// to the origin, rotate by -theta, and shift to the destination's
	// center.
	m := f64.Aff3{
		cosT, sinT, halfW - cosT*cx - sinT*cy,
		-sinT, cosT, halfH + sinT*cx - cosT*cy,
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Transform(dst, m, src, src.Bounds(), xdraw.Over, nil)

	return dst
}
