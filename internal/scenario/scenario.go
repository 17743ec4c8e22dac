// Package scenario holds the canned ten-year timelines and the keyword
// classifier that picks one for a decision.
package scenario

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Category is the classifier's output tag.
type Category string

const (
	CareerChange Category = "career-change"
	Relocation   Category = "relocation"
	Commitment   Category = "commitment"
)

// Categories lists every category the table must cover.
var Categories = []Category{CareerChange, Relocation, Commitment}

// Key addresses one timeline. Bold selects path A, otherwise path B.
type Key struct {
	Category Category
	Bold     bool
}

// FallbackKey is the entry served for any key the table does not define.
var FallbackKey = Key{Category: CareerChange, Bold: true}

// TimelineYears is the fixed year sequence of every timeline. Year 9 is absent.
var TimelineYears = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 10}

// Event is one pre-written milestone.
type Event struct {
	Year        int     `yaml:"year"`
	Title       string  `yaml:"title"`
	Description string  `yaml:"description"`
	ImpactScore float64 `yaml:"impact"`
}

// Scenario is a titled timeline.
type Scenario struct {
	Title  string
	Events []Event
}

// Table maps every (category, boldness) pair to its scenario.
type Table struct {
	entries map[Key]Scenario
}

//go:embed scenarios.yaml
var scenariosYAML []byte

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// Default returns the embedded scenario table. It panics if the embedded asset
// is malformed, which can only happen at build time.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = Parse(scenariosYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("scenario: embedded table: %v", defaultErr))
	}
	return defaultTable
}

type fileFormat struct {
	Scenarios []struct {
		Category Category `yaml:"category"`
		Path     string   `yaml:"path"`
		Title    string   `yaml:"title"`
		Events   []Event  `yaml:"events"`
	} `yaml:"scenarios"`
}

// Parse decodes and validates a scenario table document.
func Parse(raw []byte) (*Table, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("scenario: decode table: %w", err)
	}

	t := &Table{entries: make(map[Key]Scenario, len(doc.Scenarios))}
	for _, s := range doc.Scenarios {
		var bold bool
		switch s.Path {
		case "bold":
			bold = true
		case "safe":
		default:
			return nil, fmt.Errorf("scenario: %s: unknown path %q", s.Category, s.Path)
		}
		key := Key{Category: s.Category, Bold: bold}
		if _, dup := t.entries[key]; dup {
			return nil, fmt.Errorf("scenario: duplicate entry %s/%s", s.Category, s.Path)
		}
		if s.Title == "" {
			return nil, fmt.Errorf("scenario: %s/%s: empty title", s.Category, s.Path)
		}
		if err := checkYears(s.Events); err != nil {
			return nil, fmt.Errorf("scenario: %s/%s: %w", s.Category, s.Path, err)
		}
		t.entries[key] = Scenario{Title: s.Title, Events: s.Events}
	}

	for _, c := range Categories {
		for _, bold := range []bool{true, false} {
			if _, ok := t.entries[Key{Category: c, Bold: bold}]; !ok {
				return nil, fmt.Errorf("scenario: missing entry %s (bold=%t)", c, bold)
			}
		}
	}
	return t, nil
}

func checkYears(events []Event) error {
	if len(events) != len(TimelineYears) {
		return fmt.Errorf("want %d events, got %d", len(TimelineYears), len(events))
	}
	years := make([]int, len(events))
	for i, e := range events {
		if e.Title == "" || e.Description == "" {
			return fmt.Errorf("year %d: title and description are required", e.Year)
		}
		years[i] = e.Year
	}
	if !slices.Equal(years, TimelineYears) {
		return errors.New("years must be 0-8 then 10, ascending")
	}
	return nil
}

// Lookup returns the scenario for k. When k is not defined the fallback entry
// is returned and ok is false.
func (t *Table) Lookup(k Key) (s Scenario, ok bool) {
	if s, ok := t.entries[k]; ok {
		return s, true
	}
	return t.entries[FallbackKey], false
}

// Resolve returns the scenario for k, falling back silently.
func (t *Table) Resolve(k Key) Scenario {
	s, _ := t.Lookup(k)
	return s
}

// ForDecision classifies decision and returns the scenario for the requested path.
func (t *Table) ForDecision(decision string, bold bool) Scenario {
	return t.Resolve(Key{Category: Classify(decision), Bold: bold})
}
