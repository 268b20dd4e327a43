// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package segment

import "math"

// denoise applies steps iterations of an 8-neighbour weighted-average
// smoothing pass, each neighbour contributing weight 1/8 and the centre
// pixel contributing nothing. Samples outside the image are treated as
// white (255), matching the assumption that fingerprint cards are scanned
// against a white background and never touch the image border.
//
// work holds the input on entry and the denoised result on return.
// scratch must have the same length as work and is used as the read
// buffer for each iteration.
func denoise(work, scratch []byte, w, h int, steps uint32) {
	const weight = 1.0 / 8.0

	for i := uint32(0); i < steps; i++ {
		copy(scratch, work)

		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				sum := 0.0
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						nx, ny := x+dx, y+dy
						var v byte
						if nx < 0 || nx >= w || ny < 0 || ny >= h {
							v = 255
						} else {
							v = scratch[ny*w+nx]
						}
						sum += weight * float64(v)
					}
				}
				work[y*w+x] = byte(math.Ceil(sum))
			}
		}
	}
}
