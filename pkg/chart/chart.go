// Package chart renders latency histograms as images.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ccollicutt/latlog/pkg/histogram"
)

// Default image size.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 5 * vg.Inch
)

// ErrEmpty is returned for a histogram without any pairs.
var ErrEmpty = errors.New("histogram has no pairs to plot")

var (
	barColor  = color.RGBA{R: 0x7C, G: 0x3A, B: 0xED, A: 0xFF} // Purple
	lossColor = color.RGBA{R: 0xEF, G: 0x44, B: 0x44, A: 0xFF} // Red
)

// Histogram builds a bar chart with one bar per latency bucket followed
// by the loss bar and, when present, the invalid bar.
func Histogram(h histogram.Histogram, title string) (*plot.Plot, error) {
	if h.Total() == 0 {
		return nil, ErrEmpty
	}

	labels := h.Labels()
	counts := h.Map()

	latency := make(plotter.Values, len(labels))
	missing := make(plotter.Values, len(labels))
	for i, label := range labels {
		if label == histogram.LabelLoss || label == histogram.LabelInvalid {
			missing[i] = float64(counts[label])
			continue
		}
		latency[i] = float64(counts[label])
	}

	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = "latency (ms)"
	p.Y.Label.Text = "pairs"
	p.Y.Min = 0

	width := vg.Points(30)
	bars, err := plotter.NewBarChart(latency, width)
	if err != nil {
		return nil, fmt.Errorf("building latency bars: %w", err)
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)

	lost, err := plotter.NewBarChart(missing, width)
	if err != nil {
		return nil, fmt.Errorf("building loss bars: %w", err)
	}
	lost.Color = lossColor
	lost.LineStyle.Width = vg.Length(0)
	lost.StackOn(bars)

	p.Add(bars, lost)
	p.Legend.Add("matched", bars)
	p.Legend.Add("loss / invalid", lost)
	p.Legend.Top = true
	p.NominalX(labels...)

	return p, nil
}

// Save renders the histogram to path. The image format follows the file
// extension: png, svg, pdf, eps, jpg or tiff.
func Save(h histogram.Histogram, title, path string) error {
	p, err := Histogram(h, title)
	if err != nil {
		return err
	}
	if err := p.Save(DefaultWidth, DefaultHeight, path); err != nil {
		return fmt.Errorf("saving plot %s: %w", path, err)
	}
	return nil
}

// Write renders the histogram in format ("png", "svg", ...) to w.
func Write(h histogram.Histogram, title, format string, w io.Writer) error {
	p, err := Histogram(h, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(DefaultWidth, DefaultHeight, format)
	if err != nil {
		return fmt.Errorf("creating %s writer: %w", format, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing plot: %w", err)
	}
	return nil
}

// PairPath returns the image path of one node pair inside dir, keeping
// the extension of base.
func PairPath(dir, base, pair string) string {
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".png"
	}
	stem := strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, pair)
	return filepath.Join(dir, stem+"_"+safe+ext)
}
