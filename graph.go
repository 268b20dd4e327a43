// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package fpsegment

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const maxticks = 40
const goodCutoff = 30
const mediumCutoff = 15
const badCutoff = 5
const yticknum = 40

// CardYield records how much of one card's image area was covered by the
// oriented boxes of the segments kept after filtering (§4.6), as a
// percentage.
type CardYield struct {
	Path  string
	Yield float64
}

type yieldPoint struct {
	Cardnum, Yield float64
}

// createLine creates a horizontal line with a particular y value for
// a graph
func createLine(xvalues []float64, y float64, c drawing.Color) chart.ContinuousSeries {
	var yvalues []float64
	for range xvalues {
		yvalues = append(yvalues, y)
	}
	return chart.ContinuousSeries{
		XValues: xvalues,
		YValues: yvalues,
		Style: chart.Style{
			StrokeColor: c,
		},
	}
}

// Graph creates a graph of the segmentation yield of each card in a batch
func Graph(yields map[string]*CardYield, batchname string, w io.Writer) error {
	return GraphOpts(yields, batchname, "Card number", true, w)
}

// GraphOpts creates a graph of per-card segmentation yields
func GraphOpts(yields map[string]*CardYield, batchname string, xaxis string, guidelines bool, w io.Writer) error {
	if len(yields) < 2 {
		return errors.New("not enough valid yields")
	}

	// Organise yields to sort them by card number
	var points []yieldPoint
	for _, y := range yields {
		name := filepath.Base(y.Path)
		var numend int
		numend = strings.Index(name, "_")
		if numend == -1 {
			numend = strings.Index(name, ".")
		}
		cardnum, err := strconv.ParseFloat(name[0:numend], 64)
		if err != nil {
			continue
		}
		points = append(points, yieldPoint{Cardnum: cardnum, Yield: y.Yield})
	}

	// If we failed to get any card numbers, just fake the lot
	if len(points) == 0 {
		i := float64(1)
		for _, y := range yields {
			points = append(points, yieldPoint{Cardnum: i, Yield: y.Yield})
			i++
		}
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Cardnum < points[j].Cardnum })

	// Create main xvalues, yvalues ticks
	var xvalues, yvalues []float64
	var ticks []chart.Tick
	var yticks []chart.Tick
	tickevery := len(points) / maxticks
	if tickevery < 1 {
		tickevery = 1
	}
	for i, p := range points {
		xvalues = append(xvalues, p.Cardnum)
		yvalues = append(yvalues, p.Yield)
		if i%tickevery == 0 {
			ticks = append(ticks, chart.Tick{Value: p.Cardnum, Label: fmt.Sprintf("%.0f", p.Cardnum)})
		}
	}
	// Make last tick the final card
	final := points[len(points)-1]
	ticks[len(ticks)-1] = chart.Tick{Value: final.Cardnum, Label: fmt.Sprintf("%.0f", final.Cardnum)}
	for i := 0; i <= yticknum; i++ {
		n := float64(i*100) / yticknum
		yticks = append(yticks, chart.Tick{Value: n, Label: fmt.Sprintf("%.1f", n)})
	}

	mainSeries := chart.ContinuousSeries{
		Style: chart.Style{
			StrokeColor: chart.ColorBlue,
			FillColor:   chart.ColorAlternateBlue,
		},
		XValues: xvalues,
		YValues: yvalues,
	}

	// Create lines
	goodCutoffSeries := createLine(xvalues, goodCutoff, chart.ColorAlternateGreen)
	mediumCutoffSeries := createLine(xvalues, mediumCutoff, chart.ColorOrange)
	badCutoffSeries := createLine(xvalues, badCutoff, chart.ColorRed)

	// Create lines marking top and bottom 10% yield
	sort.Slice(points, func(i, j int) bool { return points[i].Yield < points[j].Yield })
	lowyield := points[int(len(points)/10)].Yield
	highyield := points[int((len(points)/10)*9)].Yield
	yvalues = []float64{}
	for range points {
		yvalues = append(yvalues, lowyield)
	}
	minSeries := &chart.ContinuousSeries{
		Style: chart.Style{
			StrokeColor:     chart.ColorAlternateGray,
			StrokeDashArray: []float64{5.0, 5.0},
		},
		XValues: xvalues,
		YValues: yvalues,
	}
	yvalues = []float64{}
	for range points {
		yvalues = append(yvalues, highyield)
	}
	maxSeries := &chart.ContinuousSeries{
		Style: chart.Style{
			StrokeColor:     chart.ColorAlternateGray,
			StrokeDashArray: []float64{5.0, 5.0},
		},
		XValues: xvalues,
		YValues: yvalues,
	}

	// Create annotations
	var annotations []chart.Value2
	for _, p := range points {
		if !guidelines || (p.Yield > highyield || p.Yield < lowyield) {
			annotations = append(annotations, chart.Value2{Label: fmt.Sprintf("%.0f", p.Cardnum), XValue: p.Cardnum, YValue: p.Yield})
		}
	}
	annotations = append(annotations, chart.Value2{Label: fmt.Sprintf("%.0f", lowyield), XValue: xvalues[len(xvalues)-1], YValue: lowyield})
	annotations = append(annotations, chart.Value2{Label: fmt.Sprintf("%.0f", highyield), XValue: xvalues[len(xvalues)-1], YValue: highyield})

	graph := chart.Chart{
		Title:  batchname,
		Width:  3840,
		Height: 2160,
		XAxis: chart.XAxis{
			Name: xaxis,
			Range: &chart.ContinuousRange{
				Min: 0.0,
			},
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Name: "Segment Yield (%)",
			Range: &chart.ContinuousRange{
				Min: 0.0,
				Max: 100.0,
			},
			Ticks: yticks,
		},
		Series: []chart.Series{
			mainSeries,
			chart.AnnotationSeries{
				Annotations: annotations,
			},
		},
	}
	if guidelines {
		for _, s := range []chart.Series{
			minSeries,
			maxSeries,
			goodCutoffSeries,
			mediumCutoffSeries,
			badCutoffSeries,
		} {
			graph.Series = append(graph.Series, s)
		}
	}
	return graph.Render(chart.PNG, w)
}
