// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package segment

// maxLabels is the largest number of provisional labels the two-scan
// labeler will allocate before giving up. A fingerprint card with more
// than 255 foreground blobs is not a card this pipeline can usefully
// handle, so the caller treats this as a hard failure.
const maxLabels = 255

// labelComponents performs two-scan 8-connected component labeling over a
// binarized image (0 = foreground/black, 255 = background/white) using
// union-find with full-sweep path compression on every union. img is
// read but not modified. Returns the dense label grid (0 = background,
// 1..numComponents = component ids), the number of components, and
// ok=false if more than maxLabels provisional labels were required.
func labelComponents(img []byte, w, h int) (labels []byte, numComponents int, ok bool) {
	provisional := make([]int, w*h)

	var parent [maxLabels + 1]int
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			x = parent[x]
		}
		return x
	}

	nextLabel := 0

	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		lo, hi := ra, rb
		if hi < lo {
			lo, hi = hi, lo
		}
		parent[hi] = lo
		for i := 1; i <= nextLabel; i++ {
			parent[i] = find(i)
		}
	}

	get := func(x, y int) int {
		if x < 0 || x >= w || y < 0 || y >= h {
			return 0
		}
		return provisional[y*w+x]
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img[y*w+x] != 0 {
				continue
			}

			left := get(x-1, y)
			upleft := get(x-1, y-1)
			up := get(x, y-1)
			upright := get(x+1, y-1)

			lbl := 0
			switch {
			case left != 0:
				lbl = left
			case upleft != 0:
				lbl = upleft
			case up != 0:
				lbl = up
			}

			if lbl != 0 {
				if upright != 0 && upright != lbl {
					union(lbl, upright)
				}
				provisional[y*w+x] = lbl
				continue
			}

			nextLabel++
			if nextLabel > maxLabels {
				return nil, 0, false
			}
			provisional[y*w+x] = nextLabel
		}
	}

	if nextLabel == 0 {
		return make([]byte, w*h), 0, true
	}

	denseID := make([]int, nextLabel+1)
	m := 0
	for i := 1; i <= nextLabel; i++ {
		if find(i) == i {
			m++
			denseID[i] = m
		}
	}
	for i := 1; i <= nextLabel; i++ {
		if find(i) != i {
			denseID[i] = denseID[find(i)]
		}
	}

	labels = make([]byte, w*h)
	for i, p := range provisional {
		if p != 0 {
			labels[i] = byte(denseID[p])
		}
	}

	return labels, m, true
}
