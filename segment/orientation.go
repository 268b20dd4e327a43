// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package segment

import "math"

// estimateOrientation computes the oriented bounding box of one
// foreground component: its principal axis via the eigendecomposition of
// the covariance of its border points, refined by a small angular search,
// then scaled back to source-image coordinates. Returns ok=false if the
// Jacobi eigendecomposition fails to converge, in which case the caller
// should drop this component rather than fail the whole extraction.
func estimateOrientation(labels []byte, w int, c component, scale, boxInflation, angleStepDeg, angleWindowDeg float64) (SegmentInfo, bool) {
	m00, m01, m11 := borderCovariance(labels, w, c)

	mat := [3][3]float64{
		{m00, m01, 0},
		{m01, m11, 0},
		{0, 0, 0},
	}

	_, eigvecs, ok := jacobiEigen(mat)
	if !ok {
		return SegmentInfo{}, false
	}

	// eigvals is sorted descending; column 0 is the principal axis.
	vx, vy := eigvecs[0][0], eigvecs[1][0]

	if math.Abs(vx) < math.Abs(vy) {
		vx, vy = vy, vx
	}
	if vx < 0 {
		vx, vy = -vx, -vy
	}

	theta := math.Atan2(vy, vx)

	bw, bh := computeBox(labels, w, c, theta)
	best := bw * bh

	improved := true
	for improved {
		improved = false
		for betaDeg := angleStepDeg; betaDeg < angleWindowDeg; betaDeg += angleStepDeg {
			beta := betaDeg * math.Pi / 180
			for _, sign := range [2]float64{1, -1} {
				nt := theta + sign*beta
				nw, nh := computeBox(labels, w, c, nt)
				if nw*nh < best {
					best = nw * nh
					theta = nt
					bw, bh = nw, nh
					improved = true
					break
				}
			}
			if improved {
				break
			}
		}
	}

	boxW, boxH := bw, bh
	if boxW > boxH {
		boxW, boxH = boxH, boxW
		theta += math.Pi / 2
	}

	if theta > math.Pi/2 {
		theta -= math.Pi
	}
	if theta < -math.Pi/2 {
		theta += math.Pi
	}

	info := SegmentInfo{
		Size: Size{
			Width:  int(math.Floor(boxInflation * scale * boxW)),
			Height: int(math.Floor(boxInflation * scale * boxH)),
		},
		Centroid: Point{
			X: int(math.Floor(scale * c.cx)),
			Y: int(math.Floor(scale * c.cy)),
		},
		Rotation: float32(180 * theta / math.Pi),
	}

	return info, true
}

// borderCovariance computes the covariance of the leftmost/rightmost
// foreground pixel of c.label in each row of its bounding box, centered
// on the component's centroid. Rows with no foreground pixel of this
// label are skipped.
func borderCovariance(labels []byte, w int, c component) (m00, m01, m11 float64) {
	var sxx, sxy, syy float64
	count := 0

	for y := c.ymin; y <= c.ymax; y++ {
		left := -1
		right := -1
		for x := c.xmin; x <= c.xmax; x++ {
			if int(labels[y*w+x]) == c.label {
				if left == -1 {
					left = x
				}
				right = x
			}
		}
		if left == -1 {
			continue
		}

		dxL, dyL := float64(left)-c.cx, float64(y)-c.cy
		sxx += dxL * dxL
		sxy += dxL * dyL
		syy += dyL * dyL
		count++

		if right != left {
			dxR, dyR := float64(right)-c.cx, float64(y)-c.cy
			sxx += dxR * dxR
			sxy += dxR * dyR
			syy += dyR * dyR
			count++
		}
	}

	if count == 0 {
		return 0, 0, 0
	}

	n := float64(count)
	return sxx / n, sxy / n, syy / n
}

// computeBox returns the width and height, in working-resolution pixels,
// of the axis-aligned bounding box of c's pixels after rotating them by
// theta about the component's centroid (that is, measured in a coordinate
// frame rotated by -theta).
func computeBox(labels []byte, w int, c component, theta float64) (float64, float64) {
	cosT, sinT := math.Cos(theta), math.Sin(theta)

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)

	for y := c.ymin; y <= c.ymax; y++ {
		for x := c.xmin; x <= c.xmax; x++ {
			if int(labels[y*w+x]) != c.label {
				continue
			}
			dx, dy := float64(x)-c.cx, float64(y)-c.cy
			xp := dx*cosT - dy*sinT
			yp := dx*sinT + dy*cosT
			if xp < minX {
				minX = xp
			}
			if xp > maxX {
				maxX = xp
			}
			if yp < minY {
				minY = yp
			}
			if yp > maxY {
				maxY = yp
			}
		}
	}

	return maxX - minX, maxY - minY
}
