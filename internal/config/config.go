// Package config loads and validates the site configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root site configuration, normally read from site.yaml.
type Config struct {
	Site   SiteConfig     `yaml:"site"`
	Paths  PathsConfig    `yaml:"paths"`
	Build  BuildConfig    `yaml:"build"`
	Serve  ServeConfig    `yaml:"serve"`
	Output OutputConfig   `yaml:"output"`
	Data   map[string]any `yaml:"data,omitempty"` // inline site-wide data, merged under data files
}

// SiteConfig holds site-wide metadata exposed to templates.
type SiteConfig struct {
	Title              string `yaml:"title"`
	BaseURL            string `yaml:"base_url"`
	Description        string `yaml:"description,omitempty"`
	Author             string `yaml:"author,omitempty"`
	Language           string `yaml:"language,omitempty"`
	GenerateRSS        bool   `yaml:"generate_rss"`
	GenerateTags       bool   `yaml:"generate_tags"`
	GenerateCategories bool   `yaml:"generate_categories"`
}

// PathsConfig locates the source trees relative to the config file.
type PathsConfig struct {
	Content   string `yaml:"content"`
	Templates string `yaml:"templates"`
	Data      string `yaml:"data"`
	Static    string `yaml:"static"`
}

// BuildConfig tunes the build pipeline.
type BuildConfig struct {
	Workers       int           `yaml:"workers"`        // render/load worker pool size, 0 = NumCPU
	RenderTimeout time.Duration `yaml:"render_timeout"` // per-node render budget
	Drafts        bool          `yaml:"drafts"`         // include draft pages
	Minify        bool          `yaml:"minify"`         // minify written HTML/CSS/JS/JSON
}

// ServeConfig tunes the development server and watcher.
type ServeConfig struct {
	Port     int           `yaml:"port"`
	Debounce time.Duration `yaml:"debounce"` // change-event coalescing window
}

// Address returns the listen address for the dev server.
func (c ServeConfig) Address() string { return fmt.Sprintf(":%d", c.Port) }

// OutputConfig controls where the rendered site is published.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// Load reads, expands, and validates configuration from path. Paths in
// the file are resolved relative to the file's directory.
func Load(path string) (*Config, error) {
	// Best effort .env loading; absence is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, rooted at dir.
func Default(dir string) *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.resolvePaths(dir)
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Site.Title == "" {
		c.Site.Title = "My Site"
	}
	if c.Site.BaseURL == "" {
		c.Site.BaseURL = "http://localhost:1111"
	}
	if c.Site.Language == "" {
		c.Site.Language = "en"
	}
	if c.Paths.Content == "" {
		c.Paths.Content = "content"
	}
	if c.Paths.Templates == "" {
		c.Paths.Templates = "templates"
	}
	if c.Paths.Data == "" {
		c.Paths.Data = "data"
	}
	if c.Paths.Static == "" {
		c.Paths.Static = "static"
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "public"
	}
	if c.Build.RenderTimeout <= 0 {
		c.Build.RenderTimeout = 30 * time.Second
	}
	if c.Serve.Port == 0 {
		c.Serve.Port = 1111
	}
	if c.Serve.Debounce <= 0 {
		c.Serve.Debounce = 300 * time.Millisecond
	}
	if c.Data == nil {
		c.Data = map[string]any{}
	}
}

func (c *Config) resolvePaths(root string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}
	c.Paths.Content = abs(c.Paths.Content)
	c.Paths.Templates = abs(c.Paths.Templates)
	c.Paths.Data = abs(c.Paths.Data)
	c.Paths.Static = abs(c.Paths.Static)
	c.Output.Directory = abs(c.Output.Directory)
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Site,
		validation.Field(&c.Site.Title, validation.Required),
		validation.Field(&c.Site.BaseURL, validation.Required),
	); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := validation.ValidateStruct(&c.Paths,
		validation.Field(&c.Paths.Content, validation.Required),
		validation.Field(&c.Paths.Templates, validation.Required),
	); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if err := validation.ValidateStruct(&c.Build,
		validation.Field(&c.Build.Workers, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if err := validation.ValidateStruct(&c.Serve,
		validation.Field(&c.Serve.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
