// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// Package segment extracts individual fingerprint regions from a
// scanned image containing multiple inked impressions, such as a
// tenprint card or a four-finger slap.
//
// Given a working-resolution 8-bit grayscale buffer, SegmenterState.Extract
// runs a fixed pipeline of passes (minimum-filter erosion, iterated
// denoising, Otsu binarization, 8-connected component labeling and
// principal-axis orientation estimation) and returns an oriented bounding
// box for each detected fingerprint: a centroid, a size and a rotation in
// degrees.
//
// The package has no knowledge of image file formats, color spaces or
// GUIs; it works purely on byte grids. Decoding a source image and
// reducing it to grayscale at working resolution is the caller's job (see
// the sibling decode package for one implementation of this), as is
// producing a cropped, de-rotated sub-image from a SegmentInfo once one
// has been found.
//
// A SegmenterState is created once per source image size and reused
// across many extractions; it owns a scratch buffer sized to the working
// resolution that is overwritten, not reallocated, on every call to
// Extract.
package segment
