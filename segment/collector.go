// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package segment

// componentAcc accumulates bounding-box, centroid and area statistics
// for a single labeled component during a single pass over the label
// grid.
type componentAcc struct {
	label            int
	xmin, xmax       int
	ymin, ymax       int
	sumx, sumy, area int64
}

// component is a filtered, finalized componentAcc with its centroid
// resolved to a float.
type component struct {
	label      int
	xmin, xmax int
	ymin, ymax int
	cx, cy     float64
	area       int64
}

// collectComponents scans labels once and accumulates bounding box,
// centroid-sum and area statistics for each of the numComponents labels
// present (1..numComponents). The returned slice is indexed by
// label-1.
func collectComponents(labels []byte, w, h, numComponents int) []componentAcc {
	accs := make([]componentAcc, numComponents)
	for i := range accs {
		accs[i] = componentAcc{
			label: i + 1,
			xmin:  w, ymin: h,
			xmax: -1, ymax: -1,
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lbl := int(labels[y*w+x])
			if lbl == 0 {
				continue
			}
			a := &accs[lbl-1]
			if x < a.xmin {
				a.xmin = x
			}
			if x > a.xmax {
				a.xmax = x
			}
			if y < a.ymin {
				a.ymin = y
			}
			if y > a.ymax {
				a.ymax = y
			}
			a.sumx += int64(x)
			a.sumy += int64(y)
			a.area++
		}
	}

	return accs
}

// filterComponents keeps only the components whose area and bounding-box
// dimensions are at least areaThresh/sizeThresh of the largest component
// present, relative to the whole set of accumulated components (§4.6).
func filterComponents(accs []componentAcc, areaThresh, sizeThresh float64) []component {
	var maxArea int64
	var maxW, maxH int
	for _, a := range accs {
		if a.area == 0 {
			continue
		}
		if a.area > maxArea {
			maxArea = a.area
		}
		if w := a.xmax - a.xmin + 1; w > maxW {
			maxW = w
		}
		if h := a.ymax - a.ymin + 1; h > maxH {
			maxH = h
		}
	}

	if maxArea == 0 {
		return nil
	}

	var kept []component
	for _, a := range accs {
		if a.area == 0 {
			continue
		}
		width := a.xmax - a.xmin + 1
		height := a.ymax - a.ymin + 1

		if float64(a.area) < areaThresh*float64(maxArea) {
			continue
		}
		if float64(width) < sizeThresh*float64(maxW) {
			continue
		}
		if float64(height) < sizeThresh*float64(maxH) {
			continue
		}

		kept = append(kept, component{
			label: a.label,
			xmin:  a.xmin, xmax: a.xmax,
			ymin: a.ymin, ymax: a.ymax,
			cx: float64(a.sumx) / float64(a.area),
			cy: float64(a.sumy) / float64(a.area),
			area: a.area,
		})
	}

	return kept
}
