package generator

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"proposal_wizard/format"
)

//go:embed sections.toml
var defaultSections []byte

// Schema kinds. Each kind has a matching post-processing pass in postprocess.go.
const (
	KindSentences   = "sentences"
	KindBullets     = "bullets"
	KindCategorized = "categorized"
	KindTables      = "tables"
	KindTimeline    = "timeline"
	KindDiagram     = "diagram"
)

// TimelineColumns is the header every implementation timeline table must use.
var TimelineColumns = []string{"Phase", "Duration", "Activities"}

var ErrUnknownSection = errors.New("unknown section type")

type TableSchema struct {
	Variant string   `toml:"variant" json:"variant"`
	Columns []string `toml:"columns" json:"columns"`
}

// Schema is the output shape a section's prompt asks for and its parser expects.
type Schema struct {
	Kind      string        `toml:"kind" json:"kind"`
	Sentences int           `toml:"sentences" json:"sentences,omitempty"`
	Bullets   int           `toml:"bullets" json:"bullets,omitempty"`
	Headings  []string      `toml:"headings" json:"headings,omitempty"`
	Tables    []TableSchema `toml:"tables" json:"tables,omitempty"`
}

// SectionDef registers one section type: its prompt template and output schema.
type SectionDef struct {
	Key            string  `toml:"key" json:"key"`
	Title          string  `toml:"title" json:"title"`
	MaxTokens      int     `toml:"max_tokens" json:"maxTokens"`
	Temperature    float64 `toml:"temperature" json:"temperature"`
	Instructions   string  `toml:"instructions" json:"-"`
	UsesCurrency   bool    `toml:"uses_currency" json:"-"`
	UsesObjectives bool    `toml:"uses_objectives" json:"-"`
	Images         bool    `toml:"images" json:"images"`
	Schema         Schema  `toml:"schema" json:"schema"`
}

type Registry struct {
	defs  []SectionDef
	byKey map[string]int
}

type registryFile struct {
	Sections []SectionDef `toml:"sections"`
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// DefaultRegistry returns the registry built from the embedded sections.toml.
func DefaultRegistry() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = LoadRegistry(defaultSections)
	})
	return defaultReg, defaultErr
}

// LoadRegistry decodes and validates section definitions from TOML.
func LoadRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("decode section registry: %w", err)
	}
	if len(file.Sections) == 0 {
		return nil, errors.New("section registry is empty")
	}
	reg := &Registry{byKey: make(map[string]int, len(file.Sections))}
	for _, def := range file.Sections {
		def.Key = strings.TrimSpace(def.Key)
		def.Instructions = strings.TrimSpace(def.Instructions)
		if err := validateSection(def); err != nil {
			return nil, err
		}
		if _, exists := reg.byKey[def.Key]; exists {
			return nil, fmt.Errorf("duplicate section key %q", def.Key)
		}
		reg.byKey[def.Key] = len(reg.defs)
		reg.defs = append(reg.defs, def)
	}
	return reg, nil
}

func validateSection(def SectionDef) error {
	if def.Key == "" {
		return errors.New("section key is required")
	}
	if strings.TrimSpace(def.Title) == "" {
		return fmt.Errorf("section %s: title is required", def.Key)
	}
	if def.Instructions == "" {
		return fmt.Errorf("section %s: instructions are required", def.Key)
	}
	if def.MaxTokens <= 0 {
		return fmt.Errorf("section %s: max_tokens must be positive", def.Key)
	}
	s := def.Schema
	switch s.Kind {
	case KindSentences:
		if s.Sentences <= 0 {
			return fmt.Errorf("section %s: sentences schema needs a sentence count", def.Key)
		}
	case KindBullets:
		if s.Bullets <= 0 {
			return fmt.Errorf("section %s: bullets schema needs a bullet count", def.Key)
		}
	case KindCategorized:
		if len(s.Headings) == 0 {
			return fmt.Errorf("section %s: categorized schema needs headings", def.Key)
		}
		for _, h := range s.Headings {
			if !strings.HasSuffix(h, ":") {
				return fmt.Errorf("section %s: heading %q must end with a colon", def.Key, h)
			}
		}
	case KindTables:
		if len(s.Tables) == 0 {
			return fmt.Errorf("section %s: tables schema needs at least one table", def.Key)
		}
		for _, t := range s.Tables {
			if len(t.Columns) == 0 {
				return fmt.Errorf("section %s: table %s has no columns", def.Key, t.Variant)
			}
			switch format.TableKind(t.Variant) {
			case format.TableOperational, format.TableAdditionalFeatures, format.TableTotalInvestment, format.TableGeneric:
			default:
				return fmt.Errorf("section %s: unknown table variant %q", def.Key, t.Variant)
			}
		}
	case KindTimeline, KindDiagram:
	default:
		return fmt.Errorf("section %s: unknown schema kind %q", def.Key, s.Kind)
	}
	return nil
}

// Sections returns the definitions in document order.
func (r *Registry) Sections() []SectionDef {
	out := make([]SectionDef, len(r.defs))
	copy(out, r.defs)
	return out
}

// Keys returns every section key in document order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.defs))
	for i, d := range r.defs {
		keys[i] = d.Key
	}
	return keys
}

func (r *Registry) Lookup(key string) (SectionDef, error) {
	i, ok := r.byKey[key]
	if !ok {
		return SectionDef{}, fmt.Errorf("%w: %s", ErrUnknownSection, key)
	}
	return r.defs[i], nil
}
