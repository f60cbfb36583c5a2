// Package render draws attribution charts as standalone SVG documents.
// Every aggregation decision (order, buckets, offsets, colors, legend) comes
// from the Chart; the renderer only maps values to pixels.
package render

import (
	"bytes"
	"fmt"
	"html"
	"math"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

const (
	fallbackColor = "#808080"
	axisColor     = "#333333"
	gridColor     = "#e0e0e0"
)

// Options controls the canvas.
type Options struct {
	Width  int
	Height int
	Title  string
}

func (o Options) withDefaults(c *attribution.Chart) Options {
	if o.Width <= 0 {
		o.Width = 960
	}
	if o.Height <= 0 {
		o.Height = 540
	}
	if o.Title == "" {
		o.Title = c.Spec.Title
	}
	if o.Title == "" {
		o.Title = c.Spec.Name
	}
	return o
}

// margins of the plot area
const (
	marginTop    = 40.0
	marginBottom = 70.0
	marginLeft   = 60.0
	legendWidth  = 140.0
)

// SVG renders c as a stacked bar chart or a line chart depending on its kind.
func SVG(c *attribution.Chart, opts Options) ([]byte, error) {
	if c == nil {
		return nil, pkgerrors.InvalidParam("nil chart")
	}
	opts = opts.withDefaults(c)
	if c.Spec.Kind == attribution.KindLine {
		return lineSVG(c, opts), nil
	}
	if c.Layout == nil {
		return nil, pkgerrors.New(pkgerrors.ErrCodeInvalidChartSpec, "bar chart has no layout").WithDetail(c.Spec.Name)
	}
	return barSVG(c, opts), nil
}

type frame struct {
	x0, y0, w, h float64
}

func newFrame(opts Options) frame {
	return frame{
		x0: marginLeft,
		y0: marginTop,
		w:  float64(opts.Width) - marginLeft - legendWidth,
		h:  float64(opts.Height) - marginTop - marginBottom,
	}
}

func header(buf *bytes.Buffer, opts Options) {
	fmt.Fprintf(buf, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d">`+"\n",
		opts.Width, opts.Height, opts.Width, opts.Height)
	fmt.Fprintf(buf, `  <rect x="0" y="0" width="%d" height="%d" fill="#ffffff"/>`+"\n", opts.Width, opts.Height)
	fmt.Fprintf(buf, `  <text x="%d" y="24" font-size="16" font-weight="bold" fill="%s" text-anchor="middle">%s</text>`+"\n",
		opts.Width/2, axisColor, html.EscapeString(opts.Title))
}

func colorOf(c *attribution.Chart, category string) string {
	if slot, ok := c.Colors[category]; ok && slot.Color != "" {
		return slot.Color
	}
	return fallbackColor
}

func legend(buf *bytes.Buffer, c *attribution.Chart, categories []string, opts Options) {
	x := float64(opts.Width) - legendWidth + 16
	for i, cat := range categories {
		y := marginTop + float64(i)*18
		fmt.Fprintf(buf, `  <rect class="legend" x="%.1f" y="%.1f" width="12" height="12" fill="%s"/>`+"\n", x, y, colorOf(c, cat))
		fmt.Fprintf(buf, `  <text x="%.1f" y="%.1f" font-size="11" fill="%s">%s</text>`+"\n", x+18, y+10, axisColor, html.EscapeString(cat))
	}
}

// entityLabel writes the 1-based display position under a bar or point;
// the entity id goes into the tooltip.
func entityLabel(buf *bytes.Buffer, x, y float64, position int, entity string) {
	id := html.EscapeString(entity)
	fmt.Fprintf(buf, `  <text class="entity" data-entity="%s" data-position="%d" x="%.1f" y="%.1f" font-size="10" fill="%s" text-anchor="end" transform="rotate(-45 %.1f %.1f)">%d<title>%s</title></text>`+"\n",
		id, position, x, y, axisColor, x, y, position, id)
}

// niceMax rounds v up to 1, 2 or 5 times a power of ten.
func niceMax(v float64) float64 {
	if v <= 0 {
		return 1
	}
	exp := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{1, 2, 5, 10} {
		if v <= m*exp {
			return m * exp
		}
	}
	return 10 * exp
}

func formatTick(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2g", v)
}
