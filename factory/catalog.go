/*
Package factory provides YAML/JSON to Go report-type conversion.

PURPOSE:
  Converts report-type definitions into generic.TypeConfig values. New
  checklists, or per-deployment tweaks of the built-in ones (branch
  fallback, dedupe composite), are added by editing a catalog file instead
  of code.

WHY YAML?
  - Branch managers' IT contact edits it by hand
  - JSON is valid YAML, so admin tools can emit JSON into the same loader
  - Version control for type definitions

SCHEMA:
  types:
    - type: car_approvals
      title: Vehicle approvals
      date_field: reportDate
      entries_field: entries
      dedupe_fields: [vehicleNo, tradeLicense, issueDate, expiryDate]
      mode: merge-append
    - type: pos10_temperature
      title: POS 10 temperature log
      branch_fallback: POS 10
      one_per_day: true

  A bare list of types (without the "types:" wrapper) is accepted too.

VALIDATION:
  go-playground/validator checks required fields and enum values; type
  names must be unique within a file.

USAGE:
  configs, err := factory.ParseCatalog(data)
  catalog := generic.NewCatalog(append(checklists.Presets(), configs...)...)

SEE ALSO:
  - generic/catalog.go: TypeConfig and Catalog
  - checklists/presets.go: Built-in definitions
*/
package factory

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/warp/report-sync/generic"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// TypeYAML is the file representation of one report type.
type TypeYAML struct {
	Type           string   `yaml:"type" json:"type" validate:"required,max=64,printascii,excludesall=/?#"`
	Title          string   `yaml:"title,omitempty" json:"title,omitempty"`
	DateField      string   `yaml:"date_field,omitempty" json:"date_field,omitempty"`
	BranchFallback string   `yaml:"branch_fallback,omitempty" json:"branch_fallback,omitempty"`
	EntriesField   string   `yaml:"entries_field,omitempty" json:"entries_field,omitempty"`
	DedupeFields   []string `yaml:"dedupe_fields,omitempty" json:"dedupe_fields,omitempty" validate:"omitempty,unique,dive,required"`
	Mode           string   `yaml:"mode,omitempty" json:"mode,omitempty" validate:"omitempty,oneof=create-only upsert-replace merge-append"`
	OnePerDay      bool     `yaml:"one_per_day,omitempty" json:"one_per_day,omitempty"`
}

// CatalogYAML is the file representation of a catalog.
type CatalogYAML struct {
	Types []TypeYAML `yaml:"types" json:"types" validate:"dive"`
}

var validate = validator.New()

// =============================================================================
// PARSING
// =============================================================================

// ParseCatalog parses a catalog document (YAML or JSON).
func ParseCatalog(data []byte) ([]generic.TypeConfig, error) {
	var doc CatalogYAML
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' || isBareList(trimmed) {
		if err := yaml.Unmarshal(data, &doc.Types); err != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", describe(err))
	}

	seen := make(map[string]bool, len(doc.Types))
	configs := make([]generic.TypeConfig, 0, len(doc.Types))
	for _, t := range doc.Types {
		if seen[t.Type] {
			return nil, fmt.Errorf("invalid catalog: duplicate type %q", t.Type)
		}
		seen[t.Type] = true
		cfg, err := t.ToConfig()
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// LoadCatalogFile reads and parses a catalog file.
func LoadCatalogFile(path string) ([]generic.TypeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	configs, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return configs, nil
}

// ToConfig converts one validated type definition.
func (t TypeYAML) ToConfig() (generic.TypeConfig, error) {
	if strings.ContainsAny(strings.TrimSpace(t.Type), " \t") {
		return generic.TypeConfig{}, fmt.Errorf("type %q: must not contain whitespace", t.Type)
	}
	cfg := generic.TypeConfig{
		Type:           strings.TrimSpace(t.Type),
		Title:          t.Title,
		DateField:      t.DateField,
		BranchFallback: t.BranchFallback,
		EntriesField:   t.EntriesField,
		DedupeFields:   t.DedupeFields,
		OnePerDay:      t.OnePerDay,
	}
	if t.Mode != "" {
		mode, err := generic.ParseSaveMode(t.Mode)
		if err != nil {
			return generic.TypeConfig{}, fmt.Errorf("type %q: %w", t.Type, err)
		}
		cfg.DefaultMode = mode
	}
	if cfg.DefaultMode == generic.ModeMergeAppend && cfg.OnePerDay {
		return generic.TypeConfig{}, fmt.Errorf("type %q: merge-append writes superseding records and cannot be one_per_day", t.Type)
	}
	return cfg, nil
}

// FromConfig is the inverse of ToConfig, used to export the catalog.
func FromConfig(cfg generic.TypeConfig) TypeYAML {
	return TypeYAML{
		Type:           cfg.Type,
		Title:          cfg.Title,
		DateField:      cfg.DateField,
		BranchFallback: cfg.BranchFallback,
		EntriesField:   cfg.EntriesField,
		DedupeFields:   cfg.DedupeFields,
		Mode:           string(cfg.DefaultMode),
		OnePerDay:      cfg.OnePerDay,
	}
}

// MarshalCatalog renders configs as a YAML catalog document.
func MarshalCatalog(configs []generic.TypeConfig) ([]byte, error) {
	doc := CatalogYAML{Types: make([]TypeYAML, len(configs))}
	for i, cfg := range configs {
		doc.Types[i] = FromConfig(cfg)
	}
	return yaml.Marshal(doc)
}

// =============================================================================
// HELPERS
// =============================================================================

func isBareList(data []byte) bool {
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		return bytes.HasPrefix(line, []byte("- "))
	}
	return false
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
