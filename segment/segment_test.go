// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package segment

import (
	"math"
	"testing"
)

func blankGray(w, h int, v byte) []byte {
	buf := make([]byte, w*h)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

func fillRect(buf []byte, w, x0, y0, x1, y1 int, v byte) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			buf[y*w+x] = v
		}
	}
}

func TestExtractBlankWhite(t *testing.T) {
	s := NewSegmenterState(200, 200)
	gray := blankGray(s.W, s.H, 255)

	ok, segs := s.Extract(gray)
	if !ok {
		t.Fatalf("Extract returned ok=false for a blank white image")
	}
	if len(segs) != 0 {
		t.Fatalf("expected no segments for a blank white image, got %d", len(segs))
	}
}

func TestExtractMalformedInput(t *testing.T) {
	s := NewSegmenterState(200, 200)
	ok, segs := s.Extract(make([]byte, s.W*s.H-1))
	if ok {
		t.Fatalf("expected ok=false for a mis-sized buffer")
	}
	if segs != nil {
		t.Fatalf("expected nil segments for a mis-sized buffer")
	}
}

func TestExtractSolidBlack(t *testing.T) {
	s := NewSegmenterState(200, 200)
	s.SetDenoiseSteps(0)
	gray := blankGray(s.W, s.H, 0)

	ok, segs := s.Extract(gray)
	if !ok {
		t.Fatalf("Extract returned ok=false for a solid black image")
	}
	if len(segs) != 1 {
		t.Fatalf("expected exactly one segment for a solid black image, got %d", len(segs))
	}

	seg := segs[0]
	if seg.Rotation <= -90 || seg.Rotation > 90 {
		t.Errorf("rotation %v out of range (-90, 90]", seg.Rotation)
	}
	if seg.Size.Width > seg.Size.Height {
		t.Errorf("expected width <= height for a square source, got %dx%d", seg.Size.Width, seg.Size.Height)
	}
}

func TestExtractCenteredRectangle(t *testing.T) {
	s := NewSegmenterState(200, 200)
	s.SetDenoiseSteps(0)
	gray := blankGray(s.W, s.H, 255)

	cx, cy := s.W/2, s.H/2
	halfW, halfH := s.W/10, s.W/5
	fillRect(gray, s.W, cx-halfW, cy-halfH, cx+halfW, cy+halfH, 0)

	ok, segs := s.Extract(gray)
	if !ok {
		t.Fatalf("Extract returned ok=false")
	}
	if len(segs) != 1 {
		t.Fatalf("expected exactly one segment, got %d", len(segs))
	}

	seg := segs[0]
	wantCX, wantCY := int(s.Scale*float64(cx)), int(s.Scale*float64(cy))
	if abs(seg.Centroid.X-wantCX) > 5 || abs(seg.Centroid.Y-wantCY) > 5 {
		t.Errorf("centroid %v far from expected (%d,%d)", seg.Centroid, wantCX, wantCY)
	}
	if seg.Size.Height <= seg.Size.Width {
		t.Errorf("expected a taller-than-wide box (rotated to canonical form), got %dx%d", seg.Size.Width, seg.Size.Height)
	}
}

func TestExtractTwoDisksAreaFiltered(t *testing.T) {
	s := NewSegmenterState(200, 200)
	s.SetDenoiseSteps(0)
	s.SetAreaThreshold(0.4)
	s.SetSizeThreshold(0.4)
	gray := blankGray(s.W, s.H, 255)

	drawDisk(gray, s.W, s.H, s.W/4, s.H/2, 20)
	drawDisk(gray, s.W, s.H, 3*s.W/4, s.H/2, 5)

	ok, segs := s.Extract(gray)
	if !ok {
		t.Fatalf("Extract returned ok=false")
	}
	if len(segs) != 1 {
		t.Fatalf("expected only the larger disk to survive filtering, got %d segments", len(segs))
	}
}

func TestExtractTooManyComponents(t *testing.T) {
	s := NewSegmenterState(200, 200)
	s.SetDenoiseSteps(0)
	gray := blankGray(s.W, s.H, 255)

	// Scatter 256 isolated single-pixel blobs, far enough apart that
	// they never touch and never get eroded into each other: the
	// radius-1 minimum filter grows each blob to 3x3, so a spacing of 4
	// still leaves a white gap between neighbours.
	placed := 0
	for y := 1; y < s.H-1 && placed < 256; y += 4 {
		for x := 1; x < s.W-1 && placed < 256; x += 4 {
			gray[y*s.W+x] = 0
			placed++
		}
	}
	if placed < 256 {
		t.Fatalf("test fixture too small to place 256 components (placed %d)", placed)
	}

	ok, segs := s.Extract(gray)
	if ok {
		t.Fatalf("expected ok=false when more than 255 components are found")
	}
	if segs != nil {
		t.Fatalf("expected nil segments on failure")
	}
}

func TestExtractDeterministic(t *testing.T) {
	s := NewSegmenterState(200, 200)
	gray := blankGray(s.W, s.H, 255)
	fillRect(gray, s.W, 40, 40, 120, 90, 0)

	_, first := s.Extract(gray)
	_, second := s.Extract(gray)

	if len(first) != len(second) {
		t.Fatalf("non-deterministic segment count across identical calls")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("segment %d differs across identical calls: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestExtractScratchBufferLength(t *testing.T) {
	s := NewSegmenterState(200, 200)
	gray := blankGray(s.W, s.H, 255)
	s.Extract(gray)
	if len(s.scratch) != s.W*s.H {
		t.Errorf("scratch buffer length changed: got %d, want %d", len(s.scratch), s.W*s.H)
	}
}

func TestExtractCentroidWithinBounds(t *testing.T) {
	s := NewSegmenterState(400, 300)
	s.SetDenoiseSteps(0)
	gray := blankGray(s.W, s.H, 255)
	fillRect(gray, s.W, 10, 10, s.W-10, s.H-10, 0)

	ok, segs := s.Extract(gray)
	if !ok || len(segs) != 1 {
		t.Fatalf("unexpected result ok=%v segs=%d", ok, len(segs))
	}

	seg := segs[0]
	if seg.Centroid.X < 0 || seg.Centroid.X > s.SrcW || seg.Centroid.Y < 0 || seg.Centroid.Y > s.SrcH {
		t.Errorf("centroid %v outside source bounds %dx%d", seg.Centroid, s.SrcW, s.SrcH)
	}
}

func drawDisk(buf []byte, w, h, cx, cy, radius int) {
	r2 := radius * radius
	for y := cy - radius; y <= cy+radius; y++ {
		if y < 0 || y >= h {
			continue
		}
		for x := cx - radius; x <= cx+radius; x++ {
			if x < 0 || x >= w {
				continue
			}
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r2 {
				buf[y*w+x] = 0
			}
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func TestJacobiEigenDiagonal(t *testing.T) {
	a := [3][3]float64{
		{3, 0, 0},
		{0, 1, 0},
		{0, 0, 2},
	}
	vals, _, ok := jacobiEigen(a)
	if !ok {
		t.Fatalf("jacobiEigen failed to converge on a diagonal matrix")
	}
	want := [3]float64{3, 2, 1}
	for i := range want {
		if math.Abs(vals[i]-want[i]) > 1e-9 {
			t.Errorf("eigenvalue %d: got %v, want %v", i, vals[i], want[i])
		}
	}
}

func TestJacobiEigenSymmetric(t *testing.T) {
	a := [3][3]float64{
		{2, 1, 0},
		{1, 2, 0},
		{0, 0, 1},
	}
	vals, vecs, ok := jacobiEigen(a)
	if !ok {
		t.Fatalf("jacobiEigen failed to converge")
	}
	if vals[0] < vals[1] || vals[1] < vals[2] {
		t.Errorf("eigenvalues not sorted descending: %v", vals)
	}
	// Sanity check: Av ~= lambda v for the top eigenpair.
	v := [3]float64{vecs[0][0], vecs[1][0], vecs[2][0]}
	for i := 0; i < 3; i++ {
		var av float64
		for j := 0; j < 3; j++ {
			av += a[i][j] * v[j]
		}
		if math.Abs(av-vals[0]*v[i]) > 1e-6 {
			t.Errorf("Av != lambda*v at row %d: %v vs %v", i, av, vals[0]*v[i])
		}
	}
}

func TestBinarizeProducesPureBlackWhite(t *testing.T) {
	buf := make([]byte, 100)
	for i := range buf {
		if i%2 == 0 {
			buf[i] = 40
		} else {
			buf[i] = 220
		}
	}
	binarize(buf, DefaultOtsuBias)
	for _, v := range buf {
		if v != 0 && v != 255 {
			t.Fatalf("binarize left a non-binary value: %d", v)
		}
	}
}

func TestMinFilterErodes(t *testing.T) {
	w, h := 10, 10
	work := blankGray(w, h, 255)
	work[5*w+5] = 0
	scratch := make([]byte, w*h)

	minFilter(work, scratch, w, h, 1)

	for y := 4; y <= 6; y++ {
		for x := 4; x <= 6; x++ {
			if work[y*w+x] != 0 {
				t.Errorf("expected pixel (%d,%d) to be eroded to 0, got %d", x, y, work[y*w+x])
			}
		}
	}
	if work[0] != 255 {
		t.Errorf("expected far corner to remain 255, got %d", work[0])
	}
}

func TestLabelComponentsSimple(t *testing.T) {
	w, h := 5, 5
	img := blankGray(w, h, 255)
	img[1*w+1] = 0
	img[3*w+3] = 0

	labels, n, ok := labelComponents(img, w, h)
	if !ok {
		t.Fatalf("labelComponents failed")
	}
	if n != 2 {
		t.Fatalf("expected 2 components, got %d", n)
	}
	if labels[1*w+1] == 0 || labels[3*w+3] == 0 {
		t.Fatalf("expected foreground pixels to be labeled")
	}
	if labels[1*w+1] == labels[3*w+3] {
		t.Fatalf("expected disjoint pixels to have different labels")
	}
}

func TestLabelComponentsUnionAcrossUpperRight(t *testing.T) {
	// A "V" shape whose two arms first meet via the upper-right neighbour
	// relationship rather than a direct left/up chain, to exercise the
	// union-only role of the upper-right neighbour.
	w, h := 4, 3
	img := blankGray(w, h, 255)
	img[0*w+0] = 0 // (0,0)
	img[1*w+1] = 0 // (1,1)
	img[0*w+2] = 0 // (2,0)

	labels, n, ok := labelComponents(img, w, h)
	if !ok {
		t.Fatalf("labelComponents failed")
	}
	if n != 1 {
		t.Fatalf("expected the diagonal chain to merge into one component, got %d", n)
	}
	if labels[0] == 0 || labels[1*w+1] == 0 || labels[0*w+2] == 0 {
		t.Fatalf("expected all three pixels labeled")
	}
}
