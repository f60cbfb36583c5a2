package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"path"
	"strconv"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/render"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// ChartDocument is the JSON rendering of a chart: every table in split
// orientation plus the order, colors and layout a frontend needs.
type ChartDocument struct {
	Name     string                      `json:"name"`
	Title    string                      `json:"title,omitempty"`
	Kind     attribution.Kind            `json:"kind"`
	Order    attribution.EntityOrder     `json:"order"`
	Sides    []SideDocument              `json:"sides"`
	Colors   map[string]attribution.Slot `json:"colors"`
	Layout   *attribution.Layout         `json:"layout,omitempty"`
	Warnings []attribution.Warning       `json:"warnings,omitempty"`
}

// SideDocument is one side of a ChartDocument.
type SideDocument struct {
	Name     string               `json:"name"`
	Group    string               `json:"group,omitempty"`
	Polarity attribution.Polarity `json:"polarity"`
	Empty    bool                 `json:"empty"`
	Kept     []string             `json:"kept,omitempty"`
	Folded   []string             `json:"folded,omitempty"`
	Table    *attribution.Split   `json:"table,omitempty"`
}

func documentOf(c *attribution.Chart) ChartDocument {
	doc := ChartDocument{
		Name:     c.Spec.Name,
		Title:    c.Spec.Title,
		Kind:     kindOf(c),
		Order:    c.Order,
		Colors:   c.Colors,
		Layout:   c.Layout,
		Warnings: c.Warnings,
	}
	for _, side := range c.Sides {
		sd := SideDocument{Name: side.Name, Group: side.Group, Polarity: side.Polarity, Empty: side.Empty}
		if side.Plan != nil {
			split := attribution.ToSplit(side.Table(), c.Order.Entities)
			sd.Kept = side.Plan.Kept
			sd.Folded = side.Plan.Folded
			sd.Table = &split
		}
		doc.Sides = append(doc.Sides, sd)
	}
	return doc
}

// chartCSV writes one row per side, entity and category, entities in
// display order.
func chartCSV(c *attribution.Chart) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"side", "entity", "category", "value"}); err != nil {
		return nil, err
	}
	for _, side := range nonEmptySides(c) {
		split := attribution.ToSplit(side.Table(), c.Order.Entities)
		for i, entity := range split.Index {
			for j, category := range split.Columns {
				row := []string{side.Name, entity, category, strconv.FormatFloat(split.Data[i][j], 'f', -1, 64)}
				if err := w.Write(row); err != nil {
					return nil, err
				}
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func statsCSV(st family.Stats) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{
		{"metric", "value"},
		{"families", strconv.Itoa(st.Families)},
		{"persons", strconv.Itoa(st.Persons)},
		{"countries", strconv.Itoa(st.Countries)},
		{"families_with_individual_applicant", strconv.Itoa(st.FamiliesWithIndividual)},
		{"families_only_individual_applicants", strconv.Itoa(st.FamiliesOnlyIndividuals)},
		{"only_individual_ratio", strconv.FormatFloat(st.OnlyIndividualRatio, 'f', -1, 64)},
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeArtifacts stores the data tables, chart documents, layouts and SVGs
// of every built chart plus the run statistics.
func (s *service) writeArtifacts(ctx context.Context, report *Report, charts []*attribution.Chart) error {
	stats, err := json.MarshalIndent(report.Stats, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeSerialization, "marshal stats")
	}
	if err := s.put(ctx, report, "data/stats.json", stats, "application/json", "data"); err != nil {
		return err
	}
	statsTable, err := statsCSV(report.Stats)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeSerialization, "encode stats csv")
	}
	if err := s.put(ctx, report, "data/stats.csv", statsTable, "text/csv", "data"); err != nil {
		return err
	}

	for _, c := range charts {
		name := c.Spec.Name

		table, err := chartCSV(c)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrCodeSerialization, "encode csv").WithDetail(name)
		}
		if err := s.put(ctx, report, "data/"+name+".csv", table, "text/csv", "data"); err != nil {
			return err
		}

		doc, err := json.MarshalIndent(documentOf(c), "", "  ")
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrCodeSerialization, "marshal chart").WithDetail(name)
		}
		if err := s.put(ctx, report, "data/"+name+".json", doc, "application/json", "data"); err != nil {
			return err
		}

		if c.Layout != nil {
			layout, err := json.MarshalIndent(c.Layout, "", "  ")
			if err != nil {
				return pkgerrors.Wrap(err, pkgerrors.ErrCodeSerialization, "marshal layout").WithDetail(name)
			}
			if err := s.put(ctx, report, "charts/"+name+"_layout.json", layout, "application/json", "layout"); err != nil {
				return err
			}
		}

		svg, err := render.SVG(c, render.Options{})
		if err != nil {
			return err
		}
		if err := s.put(ctx, report, "charts/"+name+".svg", svg, "image/svg+xml", "chart"); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) put(ctx context.Context, report *Report, rel string, data []byte, contentType, kind string) error {
	obj, err := s.store.Put(ctx, path.Join(report.Prefix, rel), data, contentType)
	if err != nil {
		return err
	}
	s.metrics.ArtifactWritten(kind, s.store.Name())
	report.Artifacts = append(report.Artifacts, *obj)
	return nil
}
