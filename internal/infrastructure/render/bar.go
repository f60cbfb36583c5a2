package render

import (
	"bytes"
	"fmt"
	"html"
	"math"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
)

// barGroup is one bar slot per entity. Sides sharing a group stack into the
// same bar: positive sides upward, negative sides downward.
type barGroup struct {
	key   string
	sides []int
}

func groupsOf(c *attribution.Chart) []barGroup {
	var groups []barGroup
	index := make(map[string]int)
	for i, s := range c.Sides {
		key := s.Group
		if key == "" {
			key = s.Name
		}
		g, ok := index[key]
		if !ok {
			g = len(groups)
			index[key] = g
			groups = append(groups, barGroup{key: key})
		}
		groups[g].sides = append(groups[g].sides, i)
	}
	return groups
}

// extent is the largest positive and negative stack height over all bars.
func extent(l *attribution.Layout) (pos, neg float64) {
	for _, e := range l.Entities {
		for _, st := range e.Stacks {
			if st.Polarity == attribution.Negative {
				neg = math.Max(neg, st.Total)
			} else {
				pos = math.Max(pos, st.Total)
			}
		}
	}
	return pos, neg
}

func barSVG(c *attribution.Chart, opts Options) []byte {
	var buf bytes.Buffer
	header(&buf, opts)
	f := newFrame(opts)

	pos, neg := extent(c.Layout)
	if c.Spec.Normalize {
		// ratio stacks top out at 100
		if pos > 0 {
			pos = 100
		}
		if neg > 0 {
			neg = 100
		}
	}
	pos, neg = niceMaxOrZero(pos), niceMaxOrZero(neg)
	span := pos + neg
	if span == 0 {
		span = 1
	}
	scale := f.h / span
	zeroY := f.y0 + pos*scale

	axes(&buf, f, zeroY, scale, pos, neg)

	groups := groupsOf(c)
	n := len(c.Layout.Entities)
	slot := f.w / math.Max(float64(n), 1)
	barW := slot * 0.8 / float64(len(groups))

	for i, e := range c.Layout.Entities {
		slotX := f.x0 + float64(i)*slot + slot*0.1
		for g, grp := range groups {
			x := slotX + float64(g)*barW
			for _, si := range grp.sides {
				if si >= len(e.Stacks) {
					continue
				}
				stack(&buf, c, e.Stacks[si], x, barW, zeroY, scale)
			}
		}
		entityLabel(&buf, slotX+slot*0.4, f.y0+f.h+14, e.Position, e.Entity)
	}

	legend(&buf, c, c.Layout.Legend, opts)
	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

func niceMaxOrZero(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return niceMax(v)
}

func stack(buf *bytes.Buffer, c *attribution.Chart, st attribution.Stack, x, w, zeroY, scale float64) {
	for _, seg := range st.Segments {
		if seg.Value <= 0 {
			continue
		}
		h := seg.Value * scale
		var y float64
		if st.Polarity == attribution.Negative {
			// offsets run downward from zero
			y = zeroY - seg.Offset*scale
		} else {
			y = zeroY - (seg.Offset+seg.Value)*scale
		}
		fmt.Fprintf(buf, `  <rect class="segment" data-side="%s" data-category="%s" x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s"><title>%s: %s</title></rect>`+"\n",
			html.EscapeString(st.Side), html.EscapeString(seg.Category),
			x, y, w, h, colorOf(c, seg.Category),
			html.EscapeString(seg.Category), formatTick(seg.Value))
	}
}

func axes(buf *bytes.Buffer, f frame, zeroY, scale, pos, neg float64) {
	ticks := 5
	for i := 0; i <= ticks; i++ {
		for _, side := range []struct {
			max  float64
			sign float64
		}{{pos, 1}, {neg, -1}} {
			if side.max == 0 || (i == 0 && side.sign < 0) {
				continue
			}
			v := side.max * float64(i) / float64(ticks)
			y := zeroY - side.sign*v*scale
			fmt.Fprintf(buf, `  <line x1="%.1f" y1="%.2f" x2="%.1f" y2="%.2f" stroke="%s" stroke-dasharray="3,3"/>`+"\n",
				f.x0, y, f.x0+f.w, y, gridColor)
			fmt.Fprintf(buf, `  <text x="%.1f" y="%.2f" font-size="10" fill="%s" text-anchor="end">%s</text>`+"\n",
				f.x0-6, y+3, axisColor, formatTick(v))
		}
	}
	fmt.Fprintf(buf, `  <line class="zero" x1="%.1f" y1="%.2f" x2="%.1f" y2="%.2f" stroke="%s"/>`+"\n",
		f.x0, zeroY, f.x0+f.w, zeroY, axisColor)
}
