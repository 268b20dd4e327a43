// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package segment

import "math"

// DefaultWorkingSizeHint is the working-size hint used by NewSegmenterState.
const DefaultWorkingSizeHint = 200

// Defaults for the pipeline's empirical constants (spec.md Design Notes
// asks that these be configurable even though the defaults are kept).
const (
	DefaultDenoiseSteps  = 3
	DefaultAreaThreshold = 0.4
	DefaultSizeThreshold = 0.4
	DefaultOtsuBias      = 1.2
	DefaultBoxInflation  = 1.12
	DefaultAngleStepDeg  = 5.0
	DefaultAngleWindow   = 45.0
)

// SegmenterState owns the working-resolution dimensions derived from a
// source image size, the scale factor back to source coordinates, and a
// scratch buffer reused across every call to Extract. It is configured
// once at construction; the thresholds and iteration count below may be
// changed by the caller between extractions.
type SegmenterState struct {
	SrcW, SrcH int
	W, H       int
	Scale      float64
	Radius     int

	DenoiseSteps  uint32
	AreaThreshold float64
	SizeThreshold float64
	OtsuBias      float64
	BoxInflation  float64
	AngleStepDeg  float64
	AngleWindow   float64

	scratch []byte
}

// NewSegmenterState creates a segmenter for a source image of the given
// dimensions, using the default working-size hint of 200.
func NewSegmenterState(srcW, srcH int) *SegmenterState {
	return NewSegmenterStateWithHint(srcW, srcH, DefaultWorkingSizeHint)
}

// NewSegmenterStateWithHint creates a segmenter for a source image of the
// given dimensions, targeting a minimum working dimension of
// workingSizeHint pixels (§4.1). Computes the scale factor s, the working
// dimensions (W, H) and the min-filter radius r.
func NewSegmenterStateWithHint(srcW, srcH, workingSizeHint int) *SegmenterState {
	minSrc := srcW
	if srcH < minSrc {
		minSrc = srcH
	}

	s := float64(minSrc) / float64(workingSizeHint)
	if s < 1 {
		s = 1
	}

	w := int(float64(srcW) / s)
	h := int(float64(srcH) / s)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	r := int(math.Ceil(0.005 * float64(workingSizeHint)))
	if r < 1 {
		r = 1
	}

	return &SegmenterState{
		SrcW: srcW, SrcH: srcH,
		W: w, H: h,
		Scale:  s,
		Radius: r,

		DenoiseSteps:  DefaultDenoiseSteps,
		AreaThreshold: DefaultAreaThreshold,
		SizeThreshold: DefaultSizeThreshold,
		OtsuBias:      DefaultOtsuBias,
		BoxInflation:  DefaultBoxInflation,
		AngleStepDeg:  DefaultAngleStepDeg,
		AngleWindow:   DefaultAngleWindow,

		scratch: make([]byte, w*h),
	}
}

// SetDenoiseSteps sets the number of denoise iterations. Default 3.
func (s *SegmenterState) SetDenoiseSteps(n uint32) {
	s.DenoiseSteps = n
}

// SetAreaThreshold sets the relative-area keep threshold, clamped to >= 0.
// Default 0.4.
func (s *SegmenterState) SetAreaThreshold(t float64) {
	if t < 0 {
		t = 0
	}
	s.AreaThreshold = t
}

// SetSizeThreshold sets the relative-size keep threshold, clamped to >= 0.
// Default 0.4.
func (s *SegmenterState) SetSizeThreshold(t float64) {
	if t < 0 {
		t = 0
	}
	s.SizeThreshold = t
}

// SetOtsuBias sets the multiplier applied to the Otsu threshold before
// binarization (spec.md §4.4). Default 1.2.
func (s *SegmenterState) SetOtsuBias(b float64) {
	s.OtsuBias = b
}

// SetBoxInflation sets the padding factor applied to the refined oriented
// bounding box (spec.md §4.7). Default 1.12.
func (s *SegmenterState) SetBoxInflation(f float64) {
	s.BoxInflation = f
}

// SetAngleStep sets the angular refinement step, in degrees. Default 5.
func (s *SegmenterState) SetAngleStep(deg float64) {
	s.AngleStepDeg = deg
}

// SetAngleWindow sets the angular refinement search window, in degrees
// either side of the principal axis. Default 45.
func (s *SegmenterState) SetAngleWindow(deg float64) {
	s.AngleWindow = deg
}

// Extract runs the full pipeline over a working-resolution 8-bit
// grayscale buffer of length W*H and returns the detected fingerprint
// regions, back-scaled to source-image coordinates. It never panics and
// never returns an error: any internal failure collapses to ok=false with
// an empty segment list, and the scratch buffer is left in a usable state
// for the next call regardless of outcome.
func (s *SegmenterState) Extract(gray []byte) (ok bool, segments []SegmentInfo) {
	if len(gray) != s.W*s.H {
		return false, nil
	}

	work := make([]byte, len(gray))
	copy(work, gray)

	minFilter(work, s.scratch, s.W, s.H, s.Radius)

	if s.DenoiseSteps > 0 {
		denoise(work, s.scratch, s.W, s.H, s.DenoiseSteps)
	}

	binarize(work, s.OtsuBias)

	labels, numComponents, ok := labelComponents(work, s.W, s.H)
	if !ok {
		return false, nil
	}
	if numComponents == 0 {
		return true, nil
	}

	accs := collectComponents(labels, s.W, s.H, numComponents)
	kept := filterComponents(accs, s.AreaThreshold, s.SizeThreshold)

	for _, c := range kept {
		info, ok := estimateOrientation(labels, s.W, c, s.Scale, s.BoxInflation, s.AngleStepDeg, s.AngleWindow)
		if !ok {
			continue
		}
		segments = append(segments, info)
	}

	return true, segments
}

// ExtractImage is a convenience wrapper around Extract that validates the
// image's dimensions match the segmenter's working resolution.
func (s *SegmenterState) ExtractImage(img Image) (bool, []SegmentInfo) {
	if img.W != s.W || img.H != s.H {
		return false, nil
	}
	return s.Extract(img.Pix)
}
