package summarizer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// PromptKind selects a template.
type PromptKind string

const (
	PromptCount   PromptKind = "count"
	PromptRatio   PromptKind = "ratio"
	PromptShare   PromptKind = "share"
	PromptSummary PromptKind = "summary"
)

// individualShareChart is a line of per-country percentages that are not
// normalized per family.
const individualShareChart = "individual_applicant_ratio"

// KindFor picks the analysis template for a chart. Normalized ratio charts
// get the ratio prompt, the individual applicant share its own, everything
// else the count prompt.
func KindFor(chart string) PromptKind {
	switch {
	case strings.HasPrefix(chart, individualShareChart):
		return PromptShare
	case strings.Contains(chart, "ratio"):
		return PromptRatio
	default:
		return PromptCount
	}
}

// TableData feeds the count and ratio templates.
type TableData struct {
	Name      string
	Country   string
	Period    string
	TableJSON string
}

// SummaryData feeds the summary template.
type SummaryData struct {
	Country  string
	Period   string
	Analyses []Analysis
}

const systemPrompt = `You are a patent analytics assistant. You read tables of patent families broken down by the country of their applicants and inventors and explain what they show. Answer in plain prose, cite concrete families and countries from the data and do not invent numbers.`

const tableSection = `Please analyze this patent-related table.

Table - {{.Name}} (rows are patent families, columns are countries; JSON in split orientation):
{{.TableJSON}}
{{if .Period}}
Filing period: {{.Period}}
{{end}}`

var builtinTemplates = map[PromptKind]string{
	PromptCount: tableSection + `
The values are counts of persons per family and country. Please provide:

1. Key metrics: number of families, country distribution, notable outliers.
2. Patterns in country representation, with special focus on {{default "the reference country" .Country}}.
3. Families with interesting international collaboration.
4. A short conclusion about who owns and who invents in this data.

Provide clear and concise answers based on the data.`,

	PromptRatio: tableSection + `
The values are per-family shares in percent; each row sums to 100. Please provide:

1. Which countries dominate the shares and how concentrated they are.
2. The role of {{default "the reference country" .Country}} relative to the others.
3. Families where foreign participation is unusually high or low.
4. A short conclusion about the balance between domestic and foreign contribution.

Provide clear and concise answers based on the data.`,

	PromptShare: tableSection + `
The values are the percentage of a country's applicants in a family that are individuals (0 to 100). Rows do not sum to 100, and a missing cell means the country has no applicants in that family. Please provide:

1. Countries where individual applicants are common or rare.
2. How {{default "the reference country" .Country}} compares with the others.
3. Families owned mostly by individuals rather than companies or institutions.
4. A short conclusion about the role of individual applicants in this data.

Provide clear and concise answers based on the data.`,

	PromptSummary: `Summarize these analyses of patent families{{if .Country}} for {{.Country}}{{end}}{{if .Period}} ({{.Period}}){{end}} into one overview:
{{range .Analyses}}
{{.Name}}:
{{trimSpace .Text}}
{{end}}`,
}

// Prompts renders the built-in templates.
type Prompts struct {
	templates map[PromptKind]*template.Template
	maxTokens int
}

// NewPrompts parses the built-in templates. maxTokens caps the table payload;
// zero means 12000.
func NewPrompts(maxTokens int) (*Prompts, error) {
	if maxTokens <= 0 {
		maxTokens = 12000
	}
	p := &Prompts{templates: make(map[PromptKind]*template.Template, len(builtinTemplates)), maxTokens: maxTokens}
	for kind, raw := range builtinTemplates {
		parsed, err := template.New(string(kind)).Funcs(funcMap()).Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing template %q: %w", kind, err)
		}
		p.templates[kind] = parsed
	}
	return p, nil
}

// Render executes the template of kind against data.
func (p *Prompts) Render(kind PromptKind, data any) (Prompt, error) {
	t, ok := p.templates[kind]
	if !ok {
		return Prompt{}, pkgerrors.InvalidParam(fmt.Sprintf("template %q not found", kind))
	}
	if td, ok := data.(TableData); ok {
		td.TableJSON = truncateToTokens(td.TableJSON, p.maxTokens)
		data = td
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return Prompt{}, pkgerrors.Wrap(err, pkgerrors.ErrCodeInternal, "render prompt").WithDetail(string(kind))
	}
	return Prompt{System: systemPrompt, User: buf.String()}, nil
}

// EstimateTokenCount is a rough estimate at four characters per token.
func EstimateTokenCount(text string) int {
	if text == "" {
		return 0
	}
	n := (len([]rune(text)) + 3) / 4
	if n < 1 {
		return 1
	}
	return n
}

func truncateToTokens(text string, maxTokens int) string {
	if EstimateTokenCount(text) <= maxTokens {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxTokens*4]) + "\n[...truncated]"
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"trimSpace": strings.TrimSpace,
		"upper":     strings.ToUpper,
		"default": func(def, actual string) string {
			if actual == "" {
				return def
			}
			return actual
		},
	}
}
