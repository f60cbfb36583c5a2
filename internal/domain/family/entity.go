// Package family holds the person-level records of patent families and the
// derivations that turn them into attribution observations, with the family
// as entity and the person's country as category.
package family

import (
	"fmt"
	"sort"
	"strings"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

const (
	minYear = 1900
	maxYear = 2100
)

// Query selects the families with at least one person from Country whose
// earliest filing year falls in [StartYear, EndYear].
type Query struct {
	Country   string `json:"country"`
	StartYear int    `json:"start_year"`
	EndYear   int    `json:"end_year"`
}

// Normalized returns q with an upper-case country.
func (q Query) Normalized() Query {
	q.Country = strings.ToUpper(strings.TrimSpace(q.Country))
	return q
}

func (q Query) Validate() error {
	if len(q.Country) != 2 {
		return pkgerrors.InvalidParam("country must be a two-letter code").WithDetail("got " + q.Country)
	}
	if q.StartYear < minYear || q.EndYear > maxYear {
		return pkgerrors.InvalidParam(fmt.Sprintf("years must be within [%d, %d]", minYear, maxYear))
	}
	if q.StartYear > q.EndYear {
		return pkgerrors.InvalidParam("start year is after end year").
			WithDetail(fmt.Sprintf("%d > %d", q.StartYear, q.EndYear))
	}
	return nil
}

// Key identifies the query in caches, locks and output paths.
func (q Query) Key() string {
	return fmt.Sprintf("%s_%d_%d", q.Country, q.StartYear, q.EndYear)
}

// PersonRecord is one person of one family. A person may be both applicant
// and inventor.
type PersonRecord struct {
	FamilyID   string `json:"family_id"`
	PersonID   string `json:"person_id"`
	Country    string `json:"country"`
	Applicant  bool   `json:"applicant"`
	Inventor   bool   `json:"inventor"`
	Individual bool   `json:"individual"`
}

// Role selects which persons of a family count.
type Role string

const (
	RoleApplicant Role = "applicant"
	RoleInventor  Role = "inventor"
	// RoleCombined counts a person once when applicant, inventor or both.
	RoleCombined Role = "combined"
)

func (r Role) matches(p PersonRecord) bool {
	switch r {
	case RoleApplicant:
		return p.Applicant
	case RoleInventor:
		return p.Inventor
	case RoleCombined:
		return p.Applicant || p.Inventor
	default:
		return false
	}
}

// UnknownCountry is the category of persons without a country code.
const UnknownCountry = "??"

func countryOf(p PersonRecord) string {
	c := strings.ToUpper(strings.TrimSpace(p.Country))
	if c == "" {
		return UnknownCountry
	}
	return c
}

// CountObservations counts the persons of role per family and country.
func CountObservations(records []PersonRecord, role Role) []attribution.Observation {
	return count(records, func(p PersonRecord) bool { return role.matches(p) })
}

// SplitByIndividual counts the persons of role per family and country,
// separately for individuals and non-individuals.
func SplitByIndividual(records []PersonRecord, role Role) (individual, nonIndividual []attribution.Observation) {
	individual = count(records, func(p PersonRecord) bool { return role.matches(p) && p.Individual })
	nonIndividual = count(records, func(p PersonRecord) bool { return role.matches(p) && !p.Individual })
	return individual, nonIndividual
}

// IndividualApplicantRatio is, per family and country, the percentage of
// applicants that are individuals. A country with no applicants in a family
// produces no observation, so its ratio stays undefined.
func IndividualApplicantRatio(records []PersonRecord) []attribution.Observation {
	type cell struct{ indiv, all float64 }
	cells := make(map[familyCountry]*cell)
	var keys []familyCountry
	for _, p := range records {
		if !p.Applicant {
			continue
		}
		k := familyCountry{p.FamilyID, countryOf(p)}
		c, ok := cells[k]
		if !ok {
			c = &cell{}
			cells[k] = c
			keys = append(keys, k)
		}
		c.all++
		if p.Individual {
			c.indiv++
		}
	}
	out := make([]attribution.Observation, 0, len(keys))
	for _, k := range keys {
		c := cells[k]
		out = append(out, attribution.Observation{EntityID: k.family, CategoryID: k.country, Value: c.indiv / c.all * 100})
	}
	return out
}

type familyCountry struct{ family, country string }

func count(records []PersonRecord, keep func(PersonRecord) bool) []attribution.Observation {
	counts := make(map[familyCountry]float64)
	var keys []familyCountry
	for _, p := range records {
		if !keep(p) {
			continue
		}
		k := familyCountry{p.FamilyID, countryOf(p)}
		if _, ok := counts[k]; !ok {
			keys = append(keys, k)
		}
		counts[k]++
	}
	out := make([]attribution.Observation, 0, len(keys))
	for _, k := range keys {
		out = append(out, attribution.Observation{EntityID: k.family, CategoryID: k.country, Value: counts[k]})
	}
	return out
}

// Stats summarizes a record set.
type Stats struct {
	Families                int     `json:"families"`
	Persons                 int     `json:"persons"`
	Countries               int     `json:"countries"`
	FamiliesWithIndividual  int     `json:"families_with_individual_applicant"`
	FamiliesOnlyIndividuals int     `json:"families_only_individual_applicants"`
	OnlyIndividualRatio     float64 `json:"only_individual_ratio"`
}

// ComputeStats counts families and the share of families whose applicants
// are all individuals. Families without applicants count toward Families
// only.
func ComputeStats(records []PersonRecord) Stats {
	type fam struct{ applicants, individuals int }
	fams := make(map[string]*fam)
	persons := make(map[string]struct{})
	countries := make(map[string]struct{})
	for _, p := range records {
		f, ok := fams[p.FamilyID]
		if !ok {
			f = &fam{}
			fams[p.FamilyID] = f
		}
		persons[p.FamilyID+"/"+p.PersonID] = struct{}{}
		countries[countryOf(p)] = struct{}{}
		if p.Applicant {
			f.applicants++
			if p.Individual {
				f.individuals++
			}
		}
	}

	s := Stats{Families: len(fams), Persons: len(persons), Countries: len(countries)}
	for _, f := range fams {
		if f.individuals > 0 {
			s.FamiliesWithIndividual++
		}
		if f.applicants > 0 && f.individuals == f.applicants {
			s.FamiliesOnlyIndividuals++
		}
	}
	if s.Families > 0 {
		s.OnlyIndividualRatio = float64(s.FamiliesOnlyIndividuals) / float64(s.Families)
	}
	return s
}

// Countries returns the distinct countries of records in ascending order.
func Countries(records []PersonRecord) []string {
	seen := make(map[string]struct{})
	for _, p := range records {
		seen[countryOf(p)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
