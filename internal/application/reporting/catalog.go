package reporting

import (
	"fmt"
	"sort"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// Chart names of the applicant/inventor catalog.
const (
	ChartApplicantsRatio          = "applicants_ratio"
	ChartInventorsRatio           = "inventors_ratio"
	ChartCombinedRatio            = "combined_ratio"
	ChartApplicantsCount          = "applicants_count"
	ChartInventorsCount           = "inventors_count"
	ChartCombinedCount            = "combined_count"
	ChartInventorsApplicantsCount = "inventors_applicants_count"
	ChartIndividualSplit          = "individual_split"
	ChartIndividualApplicantRatio = "individual_applicant_ratio"
)

// Side groups of paired charts.
const (
	groupLeft  = "left"
	groupRight = "right"
)

// ChartDef turns person records into one chart spec.
type ChartDef struct {
	Name  string
	Title string
	spec  func(records []family.PersonRecord, q family.Query, topK int) attribution.ChartSpec
}

var catalog = []ChartDef{
	{
		Name:  ChartApplicantsRatio,
		Title: "Applicant country share per family",
		spec: func(r []family.PersonRecord, q family.Query, k int) attribution.ChartSpec {
			return ratioSpec(q, k, "applicants", family.CountObservations(r, family.RoleApplicant))
		},
	},
	{
		Name:  ChartInventorsRatio,
		Title: "Inventor country share per family",
		spec: func(r []family.PersonRecord, q family.Query, k int) attribution.ChartSpec {
			return ratioSpec(q, k, "inventors", family.CountObservations(r, family.RoleInventor))
		},
	},
	{
		Name:  ChartCombinedRatio,
		Title: "Applicant and inventor country share per family",
		spec: func(r []family.PersonRecord, q family.Query, k int) attribution.ChartSpec {
			return ratioSpec(q, k, "combined", family.CountObservations(r, family.RoleCombined))
		},
	},
	{
		Name:  ChartApplicantsCount,
		Title: "Applicants per family and country",
		spec: func(r []family.PersonRecord, q family.Query, k int) attribution.ChartSpec {
			return countSpec(q, k, "applicants", family.CountObservations(r, family.RoleApplicant))
		},
	},
	{
		Name:  ChartInventorsCount,
		Title: "Inventors per family and country",
		spec: func(r []family.PersonRecord, q family.Query, k int) attribution.ChartSpec {
			return countSpec(q, k, "inventors", family.CountObservations(r, family.RoleInventor))
		},
	},
	{
		Name:  ChartCombinedCount,
		Title: "Applicants and inventors per family and country",
		spec: func(r []family.PersonRecord, q family.Query, k int) attribution.ChartSpec {
			return countSpec(q, k, "combined", family.CountObservations(r, family.RoleCombined))
		},
	},
	{
		Name:  ChartInventorsApplicantsCount,
		Title: "Inventors (left) and applicants (right) per family",
		spec: func(r []family.PersonRecord, q family.Query, k int) attribution.ChartSpec {
			return attribution.ChartSpec{
				Kind:      attribution.KindBar,
				TopK:      k,
				Reference: q.Country,
				OrderBy:   attribution.ByReference,
				PinFirst:  true,
				SkipZero:  true,
				Sides: []attribution.SideInput{
					{Name: "inventors", Group: groupLeft, Polarity: attribution.Positive, Observations: family.CountObservations(r, family.RoleInventor)},
					{Name: "applicants", Group: groupRight, Polarity: attribution.Positive, Observations: family.CountObservations(r, family.RoleApplicant)},
				},
			}
		},
	},
	{
		Name:  ChartIndividualSplit,
		Title: "Individual and non-individual inventors and applicants",
		spec: func(r []family.PersonRecord, q family.Query, k int) attribution.ChartSpec {
			invIndiv, invOther := family.SplitByIndividual(r, family.RoleInventor)
			appIndiv, appOther := family.SplitByIndividual(r, family.RoleApplicant)
			return attribution.ChartSpec{
				Kind:      attribution.KindBar,
				TopK:      k,
				Reference: q.Country,
				OrderBy:   attribution.ByReference,
				PinFirst:  true,
				SkipZero:  true,
				Sides: []attribution.SideInput{
					{Name: "inventors_individual", Group: groupLeft, Polarity: attribution.Positive, Observations: invIndiv},
					{Name: "inventors_non_individual", Group: groupLeft, Polarity: attribution.Negative, Observations: invOther},
					{Name: "applicants_non_individual", Group: groupRight, Polarity: attribution.Positive, Observations: appOther},
					{Name: "applicants_individual", Group: groupRight, Polarity: attribution.Negative, Observations: appIndiv},
				},
			}
		},
	},
	{
		Name:  ChartIndividualApplicantRatio,
		Title: "Share of individual applicants per family and country",
		spec: func(r []family.PersonRecord, q family.Query, k int) attribution.ChartSpec {
			return attribution.ChartSpec{
				Kind:                 attribution.KindLine,
				TopK:                 k,
				Reference:            q.Country,
				OrderBy:              attribution.ByReference,
				DropMissingReference: true,
				Sides: []attribution.SideInput{
					{Name: "individual_applicants", Observations: family.IndividualApplicantRatio(r)},
				},
			}
		},
	},
}

// ratioSpec stacks categories in rank order; only count charts pin the
// reference to the bottom.
func ratioSpec(q family.Query, k int, side string, obs []attribution.Observation) attribution.ChartSpec {
	return attribution.ChartSpec{
		Kind:      attribution.KindBar,
		Normalize: true,
		TopK:      k,
		Reference: q.Country,
		OrderBy:   attribution.ByReference,
		Sides:     []attribution.SideInput{{Name: side, Observations: obs}},
	}
}

func countSpec(q family.Query, k int, side string, obs []attribution.Observation) attribution.ChartSpec {
	return attribution.ChartSpec{
		Kind:      attribution.KindBar,
		TopK:      k,
		Reference: q.Country,
		OrderBy:   attribution.ByReference,
		PinFirst:  true,
		SkipZero:  true,
		Sides:     []attribution.SideInput{{Name: side, Observations: obs}},
	}
}

// Catalog returns the chart definitions in build order.
func Catalog() []ChartDef {
	return append([]ChartDef(nil), catalog...)
}

// ChartNames lists the catalog in build order.
func ChartNames() []string {
	out := make([]string, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, d.Name)
	}
	return out
}

// Specs returns the chart specs of the enabled charts, in catalog order.
// An empty enabled list selects the whole catalog.
func Specs(records []family.PersonRecord, q family.Query, topK int, enabled []string) ([]attribution.ChartSpec, error) {
	want := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		want[name] = true
	}
	known := make(map[string]bool, len(catalog))
	var specs []attribution.ChartSpec
	for _, d := range catalog {
		known[d.Name] = true
		if len(want) > 0 && !want[d.Name] {
			continue
		}
		s := d.spec(records, q, topK)
		s.Name = d.Name
		s.Title = fmt.Sprintf("%s, %s %d-%d", d.Title, q.Country, q.StartYear, q.EndYear)
		specs = append(specs, s)
	}

	var unknown []string
	for name := range want {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, pkgerrors.InvalidParam("unknown chart").WithDetail(fmt.Sprint(unknown))
	}
	return specs, nil
}
