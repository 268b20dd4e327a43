// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package segment

// minFilter applies a single pass of grayscale erosion: each pixel is
// replaced with the minimum sample in its (2r+1)x(2r+1) neighbourhood,
// clipped to the image bounds. Samples outside the image contribute
// nothing (the window simply shrinks at the edges, it is not padded).
//
// work holds the input on entry and the eroded result on return. scratch
// must have the same length as work; it is overwritten with a copy of the
// input and used as the read buffer so the write into work does not see
// its own output.
func minFilter(work, scratch []byte, w, h, r int) {
	copy(scratch, work)

	for y := 0; y < h; y++ {
		ylo := y - r
		if ylo < 0 {
			ylo = 0
		}
		yhi := y + r
		if yhi > h-1 {
			yhi = h - 1
		}
		for x := 0; x < w; x++ {
			xlo := x - r
			if xlo < 0 {
				xlo = 0
			}
			xhi := x + r
			if xhi > w-1 {
				xhi = w - 1
			}

			min := byte(255)
			for ny := ylo; ny <= yhi; ny++ {
				row := ny * w
				for nx := xlo; nx <= xhi; nx++ {
					v := scratch[row+nx]
					if v < min {
						min = v
					}
				}
			}
			work[y*w+x] = min
		}
	}
}
