// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package fpsegment

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nickjwhite/gofpdf"

	"rescribe.xyz/fpsegment/segment"
)

const pageWidth = 5 // pageWidth in inches

// pxToPt converts a pixel value into a pt value (72 pts per inch)
// This uses pageWidth to determine the appropriate value
func pxToPt(i int) float64 {
	return float64(i) / pageWidth
}

// Fpdf wraps gofpdf to render a one-page-per-card contact sheet: the
// card image with each detected segment's oriented bounding box drawn
// and numbered.
type Fpdf struct {
	fpdf *gofpdf.Fpdf
}

// Setup creates a new PDF with appropriate settings and fonts
func (p *Fpdf) Setup() error {
	p.fpdf = gofpdf.New("P", "pt", "A4", "")
	p.fpdf.AddUTF8Font("dejavu", "", "DejaVuSansCondensed.ttf")
	p.fpdf.SetFont("dejavu", "", 10)
	p.fpdf.SetAutoPageBreak(false, float64(0))
	return p.fpdf.Error()
}

// AddPage adds a page to the pdf with a card image and the oriented
// bounding box of each of its detected segments drawn over it in red,
// numbered in the order given.
func (p *Fpdf) AddPage(imgpath string, segs []segment.SegmentInfo) error {
	f, err := os.Open(imgpath)
	if err != nil {
		return fmt.Errorf("could not open file %s: %w", imgpath, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("could not decode image %s: %w", imgpath, err)
	}
	b := img.Bounds()
	p.fpdf.AddPageFormat("P", gofpdf.SizeType{Wd: pxToPt(b.Dx()), Ht: pxToPt(b.Dy())})

	_ = p.fpdf.RegisterImageOptions(imgpath, gofpdf.ImageOptions{})
	p.fpdf.ImageOptions(imgpath, 0, 0, pxToPt(b.Dx()), pxToPt(b.Dy()), false, gofpdf.ImageOptions{}, 0, "")

	p.fpdf.SetDrawColor(220, 30, 30)
	p.fpdf.SetLineWidth(1.2)
	p.fpdf.SetTextColor(220, 30, 30)

	for i, seg := range segs {
		x := pxToPt(seg.Centroid.X)
		y := pxToPt(seg.Centroid.Y)
		w := pxToPt(seg.Size.Width)
		h := pxToPt(seg.Size.Height)

		p.fpdf.TransformBegin()
		p.fpdf.TransformRotate(float64(-seg.Rotation), x, y)
		p.fpdf.Rect(x-w/2, y-h/2, w, h, "D")
		p.fpdf.TransformEnd()

		p.fpdf.SetXY(x-w/2, y-h/2-10)
		p.fpdf.CellFormat(w, 10, fmt.Sprintf("%d", i+1), "", 0, "LT", false, 0, "")
	}

	return p.fpdf.Error()
}

// Save saves the PDF to the file at path
func (p *Fpdf) Save(path string) error {
	return p.fpdf.OutputFileAndClose(path)
}
