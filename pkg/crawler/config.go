package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/SiteMapper/internal/browser"
	"github.com/PentesterFlow/SiteMapper/internal/extract"
	"github.com/PentesterFlow/SiteMapper/internal/output"
	"github.com/PentesterFlow/SiteMapper/internal/queue"
	"github.com/PentesterFlow/SiteMapper/internal/readiness"
	"github.com/PentesterFlow/SiteMapper/internal/scope"
	"github.com/PentesterFlow/SiteMapper/internal/visitor"
)

// Mode selects a preset tuned for a kind of site.
type Mode string

const (
	// ModeSPA targets client-rendered single page applications.
	ModeSPA Mode = "spa"
	// ModeGeneral targets mostly server-rendered sites.
	ModeGeneral Mode = "general"
)

// DefaultMaxChildren is how many links of a page are followed.
const DefaultMaxChildren = 10

// Config holds all crawler configuration. It is not modified once a crawl
// starts.
type Config struct {
	// Target URL to crawl
	Target string `json:"target" yaml:"target"`

	Mode Mode `json:"mode" yaml:"mode"`

	// Maximum crawl depth; the start page is depth 0.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// Links followed per page, in document order. 0 is unlimited.
	MaxChildren int `json:"max_children" yaml:"max_children"`

	QueryPolicy extract.QueryPolicy `json:"query_policy" yaml:"query_policy"`
	Order       queue.Order         `json:"order" yaml:"order"`

	// Scan onclick handlers of navigation elements for paths.
	OnClickLinks bool `json:"onclick_links" yaml:"onclick_links"`

	Timeouts    Timeouts          `json:"timeouts" yaml:"timeouts"`
	Readiness   ReadinessConfig   `json:"readiness" yaml:"readiness"`
	Interaction InteractionConfig `json:"interaction" yaml:"interaction"`

	// Browser configuration
	Browser browser.Config `json:"browser" yaml:"browser"`

	Scope  ScopeConfig   `json:"scope" yaml:"scope"`
	Output output.Config `json:"output" yaml:"output"`
	State  StateConfig   `json:"state" yaml:"state"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// Timeouts are the per-visit delays outside readiness detection.
type Timeouts struct {
	Navigation      time.Duration `json:"navigation" yaml:"navigation"`
	NavigationIdle  time.Duration `json:"navigation_idle" yaml:"navigation_idle"`
	ClickSettle     time.Duration `json:"click_settle" yaml:"click_settle"`
	Interaction     time.Duration `json:"interaction" yaml:"interaction"`
	PostInteraction time.Duration `json:"post_interaction" yaml:"post_interaction"`
	PreExtract      time.Duration `json:"pre_extract" yaml:"pre_extract"`
	// Action bounds each page script run after navigation.
	Action          time.Duration `json:"action" yaml:"action"`
}

// ReadinessConfig configures the readiness detector.
type ReadinessConfig struct {
	Strategies       []string         `json:"strategies" yaml:"strategies"`
	Timing           readiness.Timing `json:"timing" yaml:"timing"`
	ContentThreshold int              `json:"content_threshold" yaml:"content_threshold"`
}

// InteractionConfig configures the post-readiness interaction script.
type InteractionConfig struct {
	Enabled bool                `json:"enabled" yaml:"enabled"`
	Kind    visitor.Interaction `json:"kind" yaml:"kind"`
}

// ScopeConfig defines crawling scope rules beyond same-origin.
type ScopeConfig struct {
	IncludePatterns []string `json:"include_patterns" yaml:"include_patterns"`
	ExcludePatterns []string `json:"exclude_patterns" yaml:"exclude_patterns"`
	ExcludeGlobs    []string `json:"exclude_globs" yaml:"exclude_globs"`
	DefaultExcludes bool     `json:"default_excludes" yaml:"default_excludes"`
	SkipAssets      bool     `json:"skip_assets" yaml:"skip_assets"`
}

// StateConfig defines checkpoint persistence.
type StateConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	FilePath string `json:"file_path" yaml:"file_path"`
	AutoSave bool   `json:"auto_save" yaml:"auto_save"`
	Interval int    `json:"interval_seconds" yaml:"interval_seconds"`
}

// SPAConfig returns the preset for client-rendered applications.
func SPAConfig() *Config {
	return &Config{
		Mode:        ModeSPA,
		MaxDepth:    2,
		MaxChildren: DefaultMaxChildren,
		QueryPolicy: extract.QueryStrip,
		Order:       queue.DepthFirst,
		Timeouts: Timeouts{
			Navigation:      30 * time.Second,
			NavigationIdle:  10 * time.Second,
			ClickSettle:     2 * time.Second,
			Interaction:     time.Minute,
			PostInteraction: 2 * time.Second,
			PreExtract:      2 * time.Second,
			Action:          30 * time.Second,
		},
		Readiness: ReadinessConfig{
			Strategies:       append([]string(nil), readiness.SPAStrategies...),
			Timing:           readiness.SPATiming(),
			ContentThreshold: extract.DefaultContentThreshold,
		},
		Interaction: InteractionConfig{
			Enabled: true,
			Kind:    visitor.InteractionSPA,
		},
		Browser: browser.DefaultConfig(),
		Scope: ScopeConfig{
			DefaultExcludes: true,
			SkipAssets:      true,
		},
		Output: output.Config{
			FilePath: "spa_sitemap.json",
			Pretty:   true,
		},
		State: StateConfig{
			Enabled:  false,
			AutoSave: true,
			Interval: 60,
		},
	}
}

// GeneralConfig returns the preset for mostly server-rendered sites.
func GeneralConfig() *Config {
	c := SPAConfig()
	c.Mode = ModeGeneral
	c.MaxDepth = 3
	c.Timeouts.Navigation = 60 * time.Second
	c.Timeouts.NavigationIdle = 10 * time.Second
	c.Timeouts.PostInteraction = 3 * time.Second
	c.Readiness.Strategies = append([]string(nil), readiness.GeneralStrategies...)
	c.Readiness.Timing = readiness.GeneralTiming()
	c.Interaction.Kind = visitor.InteractionSmart
	c.Output.FilePath = "sitemap.json"
	return c
}

// DefaultConfig returns the SPA preset.
func DefaultConfig() *Config {
	return SPAConfig()
}

// ConfigForMode returns the preset for mode.
func ConfigForMode(mode Mode) (*Config, error) {
	switch Mode(strings.ToLower(string(mode))) {
	case ModeSPA, "":
		return SPAConfig(), nil
	case ModeGeneral:
		return GeneralConfig(), nil
	default:
		return nil, fmt.Errorf("unknown mode %q (want spa or general)", mode)
	}
}

// LoadFromFile loads configuration from a file (JSON or YAML). Fields the
// file leaves out keep the preset of the mode it names.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var probe struct {
		Mode Mode `json:"mode" yaml:"mode"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		_ = json.Unmarshal(data, &probe)
	}
	config, err := ConfigForMode(probe.Mode)
	if err != nil {
		return nil, err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file, as JSON when the path ends in
// .json and YAML otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("target URL is required")
	}
	if _, err := scope.Origin(c.Target); err != nil {
		return fmt.Errorf("invalid target URL %q: %w", c.Target, err)
	}

	if _, err := ConfigForMode(c.Mode); err != nil {
		return err
	}

	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative")
	}

	if c.MaxChildren < 0 {
		return fmt.Errorf("max children must not be negative")
	}

	switch c.QueryPolicy {
	case "", extract.QueryStrip, extract.QueryKeep:
	default:
		return fmt.Errorf("unknown query policy %q (want strip or keep)", c.QueryPolicy)
	}

	if _, err := queue.New(c.Order); err != nil {
		return err
	}

	for _, name := range c.Readiness.Strategies {
		if _, err := readiness.New(name, c.Readiness.Timing); err != nil {
			return err
		}
	}

	if !c.Interaction.Kind.Valid() {
		return fmt.Errorf("unknown interaction %q", c.Interaction.Kind)
	}

	switch strings.ToLower(c.Browser.Engine) {
	case "", browser.EngineRod, browser.EngineChromedp:
	default:
		return fmt.Errorf("unknown browser engine %q", c.Browser.Engine)
	}

	if c.Browser.PoolSize < 1 {
		return fmt.Errorf("browser pool size must be at least 1")
	}

	if c.Output.FilePath == "" {
		return fmt.Errorf("output file is required")
	}

	if c.State.Enabled && c.State.FilePath == "" {
		return fmt.Errorf("state file is required when state is enabled")
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)
	return clone
}

// scopeRules turns the config into checker rules.
func (c *Config) scopeRules() scope.Rules {
	rules := scope.Rules{
		IncludePatterns: c.Scope.IncludePatterns,
		ExcludePatterns: c.Scope.ExcludePatterns,
		ExcludeGlobs:    c.Scope.ExcludeGlobs,
		MaxDepth:        c.MaxDepth,
		SkipAssets:      c.Scope.SkipAssets,
	}
	if c.Scope.DefaultExcludes {
		rules = rules.WithDefaultExcludes()
	}
	return rules
}

// visitorConfig derives the per-visit settings.
func (c *Config) visitorConfig(origin string) visitor.Config {
	interaction := visitor.InteractionNone
	if c.Interaction.Enabled && c.Interaction.Kind != "" {
		interaction = c.Interaction.Kind
	}
	return visitor.Config{
		Origin:            origin,
		NavigationTimeout: c.Timeouts.Navigation,
		NetworkIdle:       c.Timeouts.NavigationIdle,
		ClickSettle:       c.Timeouts.ClickSettle,
		Interaction:       interaction,
		InteractionLimit:  c.Timeouts.Interaction,
		PostInteraction:   c.Timeouts.PostInteraction,
		PreExtract:        c.Timeouts.PreExtract,
		ActionTimeout:     c.Timeouts.Action,
		ContentThreshold:  c.Readiness.ContentThreshold,
	}
}
