// Package catalog holds the ward-statistic datasets and their localized
// category labels.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lang identifies a display language for labels.
type Lang string

const (
	LangEnglish Lang = "en"
	LangNepali  Lang = "ne"
)

// Metric is the kind of count a dataset aggregates.
type Metric string

const (
	MetricHouseholds Metric = "households"
	MetricPopulation Metric = "population"
)

// Section groups datasets on the public report index.
type Section string

const (
	SectionEconomics   Section = "economics"
	SectionHealth      Section = "health"
	SectionPhysical    Section = "physical"
	SectionAgriculture Section = "agriculture"
)

// Text is a string in both supported languages.
type Text struct {
	En string `yaml:"en" json:"en"`
	Ne string `yaml:"ne" json:"ne"`
}

// In returns the text for lang, falling back to English.
func (t Text) In(lang Lang) string {
	if lang == LangNepali && strings.TrimSpace(t.Ne) != "" {
		return t.Ne
	}
	return t.En
}

type Category struct {
	Code  string `yaml:"code" json:"code"`
	Label Text   `yaml:"label" json:"label"`
}

type Dataset struct {
	Slug          string     `yaml:"slug" json:"slug"`
	Section       Section    `yaml:"section" json:"section"`
	CategoryField string     `yaml:"categoryField" json:"categoryField"`
	Metric        Metric     `yaml:"metric" json:"metric"`
	Title         Text       `yaml:"title" json:"title"`
	Description   Text       `yaml:"description" json:"description"`
	Keywords      []string   `yaml:"keywords" json:"keywords"`
	Categories    []Category `yaml:"categories" json:"categories"`
}

// HasCategory reports whether code belongs to the dataset's enum.
func (d Dataset) HasCategory(code string) bool {
	for _, c := range d.Categories {
		if c.Code == code {
			return true
		}
	}
	return false
}

// Label returns the display label of code, or the code itself when unknown.
func (d Dataset) Label(code string, lang Lang) string {
	for _, c := range d.Categories {
		if c.Code == code {
			if label := c.Label.In(lang); label != "" {
				return label
			}
			break
		}
	}
	return code
}

// CategoryOrder returns the position of code in the enum, len(Categories) if absent.
func (d Dataset) CategoryOrder(code string) int {
	for i, c := range d.Categories {
		if c.Code == code {
			return i
		}
	}
	return len(d.Categories)
}

// Codes lists the enum codes in declaration order.
func (d Dataset) Codes() []string {
	codes := make([]string, len(d.Categories))
	for i, c := range d.Categories {
		codes[i] = c.Code
	}
	return codes
}

type Catalog struct {
	datasets []Dataset
	bySlug   map[string]int
}

//go:embed datasets.yaml
var embedded []byte

// Load parses the embedded dataset catalogue.
func Load() (*Catalog, error) {
	return Parse(embedded)
}

// Parse builds a catalogue from YAML and validates it.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Datasets []Dataset `yaml:"datasets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	if len(doc.Datasets) == 0 {
		return nil, fmt.Errorf("catalog: no datasets defined")
	}

	c := &Catalog{datasets: doc.Datasets, bySlug: make(map[string]int, len(doc.Datasets))}
	for i, ds := range doc.Datasets {
		if err := validateDataset(ds); err != nil {
			return nil, err
		}
		if _, dup := c.bySlug[ds.Slug]; dup {
			return nil, fmt.Errorf("catalog: duplicate dataset %q", ds.Slug)
		}
		c.bySlug[ds.Slug] = i
	}
	return c, nil
}

// MustLoad is Load for package-level initialization in tests and commands.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func validateDataset(ds Dataset) error {
	if strings.TrimSpace(ds.Slug) == "" {
		return fmt.Errorf("catalog: dataset slug is required")
	}
	if ds.CategoryField == "" {
		return fmt.Errorf("catalog: %s: categoryField is required", ds.Slug)
	}
	switch ds.Metric {
	case MetricHouseholds, MetricPopulation:
	default:
		return fmt.Errorf("catalog: %s: unknown metric %q", ds.Slug, ds.Metric)
	}
	switch ds.Section {
	case SectionEconomics, SectionHealth, SectionPhysical, SectionAgriculture:
	default:
		return fmt.Errorf("catalog: %s: unknown section %q", ds.Slug, ds.Section)
	}
	if ds.Title.En == "" {
		return fmt.Errorf("catalog: %s: english title is required", ds.Slug)
	}
	if len(ds.Categories) == 0 {
		return fmt.Errorf("catalog: %s: at least one category is required", ds.Slug)
	}
	seen := make(map[string]bool, len(ds.Categories))
	for _, c := range ds.Categories {
		if c.Code == "" {
			return fmt.Errorf("catalog: %s: empty category code", ds.Slug)
		}
		if seen[c.Code] {
			return fmt.Errorf("catalog: %s: duplicate category %q", ds.Slug, c.Code)
		}
		if c.Label.En == "" {
			return fmt.Errorf("catalog: %s: category %q has no english label", ds.Slug, c.Code)
		}
		seen[c.Code] = true
	}
	return nil
}

func (c *Catalog) Lookup(slug string) (Dataset, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return Dataset{}, false
	}
	return c.datasets[i], true
}

// All returns datasets in catalogue order.
func (c *Catalog) All() []Dataset {
	out := make([]Dataset, len(c.datasets))
	copy(out, c.datasets)
	return out
}

// Slugs returns dataset slugs sorted alphabetically.
func (c *Catalog) Slugs() []string {
	slugs := make([]string, 0, len(c.datasets))
	for _, ds := range c.datasets {
		slugs = append(slugs, ds.Slug)
	}
	sort.Strings(slugs)
	return slugs
}

// ParseLang maps a query value to a supported language, defaulting to English.
func ParseLang(value string) Lang {
	if strings.EqualFold(strings.TrimSpace(value), string(LangNepali)) {
		return LangNepali
	}
	return LangEnglish
}
