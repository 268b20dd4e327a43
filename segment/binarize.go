// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package segment

// binarize converts work to pure black (0, foreground) and white (255,
// background) in place, using Otsu's method to pick a threshold k in
// [1,255] that maximises between-class variance, then biasing that
// threshold upward by bias before applying it. The bias compensates for
// Otsu's tendency to pick a threshold that is too dark for lightly-inked
// fingerprint impressions, at the cost of occasionally dropping very
// faint ridge detail. Returns the unbiased threshold chosen, for
// diagnostics.
func binarize(work []byte, bias float64) int {
	var hist [256]int
	for _, v := range work {
		hist[v]++
	}

	total := len(work)
	if total == 0 {
		return 0
	}

	var norm [256]float64
	for i, c := range hist {
		norm[i] = float64(c) / float64(total)
	}

	bestK := 1
	bestVar := -1.0

	var p1 float64
	var sum1 float64
	var fullSum float64
	for i := 0; i < 256; i++ {
		fullSum += float64(i) * norm[i]
	}

	for k := 1; k <= 255; k++ {
		p1 += norm[k-1]
		sum1 += float64(k-1) * norm[k-1]
		p2 := 1 - p1
		if p1 <= 0 || p2 <= 0 {
			continue
		}
		mu1 := sum1 / p1
		mu2 := (fullSum - sum1) / p2

		d := mu1 - mu2
		v := p1 * p2 * d * d
		if v > bestVar {
			bestVar = v
			bestK = k
		}
	}

	t := bias * float64(bestK)

	for i, v := range work {
		if float64(v) >= t {
			work[i] = 255
		} else {
			work[i] = 0
		}
	}

	return bestK
}
