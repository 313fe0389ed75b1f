package generic

import (
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// TYPE CONFIG - Per report type settings
// =============================================================================

// TypeConfig describes how the engine treats one report type.
type TypeConfig struct {
	Type           string
	Title          string
	DateField      string   // default reportDate, then date
	BranchFallback string   // for pages that only ever handle one branch
	EntriesField   string   // default: first of entries, items, rows
	DedupeFields   []string // composite identity of one entry for merge-append
	DefaultMode    SaveMode
	OnePerDay      bool // create-only saves are uniquely keyed by the store
}

// KeyOptions returns the key derivation settings of this type.
func (c TypeConfig) KeyOptions() KeyOptions {
	return KeyOptions{BranchFallback: c.BranchFallback, DateField: c.DateField}
}

// CalendarOptions returns the calendar settings of this type.
func (c TypeConfig) CalendarOptions() CalendarOptions {
	return CalendarOptions{DateField: c.DateField, EntriesField: c.EntriesField}
}

func (c TypeConfig) entriesFields() []string {
	if c.EntriesField != "" {
		return []string{c.EntriesField}
	}
	return DefaultEntriesFields
}

func (c TypeConfig) mode() SaveMode {
	if c.DefaultMode == "" {
		return ModeCreateOnly
	}
	return c.DefaultMode
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog holds type configs. Unknown types get a default config.
// Safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]TypeConfig
}

// NewCatalog creates a catalog from configs. Later entries win.
func NewCatalog(configs ...TypeConfig) *Catalog {
	c := &Catalog{types: make(map[string]TypeConfig)}
	for _, cfg := range configs {
		c.Register(cfg)
	}
	return c
}

// Register adds or replaces the config for cfg.Type.
func (c *Catalog) Register(cfg TypeConfig) {
	cfg.Type = strings.TrimSpace(cfg.Type)
	if cfg.Type == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[cfg.Type] = cfg
}

// Get returns the config for typ and whether it was registered.
func (c *Catalog) Get(typ string) (TypeConfig, bool) {
	typ = strings.TrimSpace(typ)
	if c == nil {
		return TypeConfig{Type: typ}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.types[typ]
	if !ok {
		return TypeConfig{Type: typ}, false
	}
	return cfg, true
}

// Config returns the config for typ, defaulted when unknown.
func (c *Catalog) Config(typ string) TypeConfig {
	cfg, _ := c.Get(typ)
	return cfg
}

// List returns all registered configs sorted by type.
func (c *Catalog) List() []TypeConfig {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]TypeConfig, 0, len(c.types))
	for _, cfg := range c.types {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
