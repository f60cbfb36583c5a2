package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
)

// lineSVG draws one polyline per kept category across the chart's entity
// order. Others is carried in the table but not drawn.
func lineSVG(c *attribution.Chart, opts Options) []byte {
	var buf bytes.Buffer
	header(&buf, opts)
	f := newFrame(opts)

	type series struct {
		side     attribution.SideResult
		category string
	}
	var all []series
	var peak float64
	for _, s := range c.Sides {
		t := s.Table()
		if s.Empty || t == nil {
			continue
		}
		for _, cat := range s.Plan.Kept {
			all = append(all, series{side: s, category: cat})
			for _, e := range c.Order.Entities {
				if v := t.Value(e, cat); v > peak {
					peak = v
				}
			}
		}
	}

	top := niceMax(peak)
	scale := f.h / top
	zeroY := f.y0 + f.h
	axes(&buf, f, zeroY, scale, top, 0)

	n := len(c.Order.Entities)
	step := f.w / float64(maxInt(n, 1))
	xOf := func(i int) float64 { return f.x0 + step*(float64(i)+0.5) }

	legendCats := make([]string, 0, len(all))
	for _, s := range all {
		t := s.side.Table()
		pts := make([]string, 0, n)
		for i, e := range c.Order.Entities {
			pts = append(pts, fmt.Sprintf("%.2f,%.2f", xOf(i), zeroY-t.Value(e, s.category)*scale))
		}
		fmt.Fprintf(&buf, `  <polyline class="series" data-category="%s" fill="none" stroke="%s" stroke-width="2" points="%s"/>`+"\n",
			html.EscapeString(s.category), colorOf(c, s.category), strings.Join(pts, " "))
		legendCats = append(legendCats, s.category)
	}
	for i, e := range c.Order.Entities {
		entityLabel(&buf, xOf(i), f.y0+f.h+14, c.Order.Position(e), e)
	}

	legend(&buf, c, legendCats, opts)
	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
