package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"expedientes/internal/domain"
)

const (
	VisibilityArea     = "area"
	VisibilityElevated = "elevated"
)

// Config models expedientes.yml.
type Config struct {
	Visibility Visibility `yaml:"visibility" json:"visibility"`
	Auth       Auth       `yaml:"auth" json:"auth"`
	Webhooks   []Webhook  `yaml:"webhooks" json:"webhooks"`
}

// Visibility selects which case files a caller can list and read.
// In "area" mode everyone sees only their own area. In "elevated" mode
// callers holding an unrestricted role or sitting in an unrestricted area see
// every area.
type Visibility struct {
	Mode              string        `yaml:"mode" json:"mode"`
	UnrestrictedRoles []domain.Role `yaml:"unrestricted_roles" json:"unrestricted_roles"`
	UnrestrictedAreas []domain.Area `yaml:"unrestricted_areas" json:"unrestricted_areas"`
}

type Auth struct {
	TokenTTL      time.Duration `yaml:"token_ttl" json:"token_ttl"`
	AllowDevLogin bool          `yaml:"allow_dev_login" json:"allow_dev_login"`
}

type Webhook struct {
	ID         string        `yaml:"id" json:"id"`
	URL        string        `yaml:"url" json:"url"`
	Events     []string      `yaml:"events" json:"events"`
	Secret     string        `yaml:"secret" json:"-"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
}

// Load reads and validates config from workspace, falling back to defaults
// when no file exists.
func Load(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Visibility.Mode {
	case VisibilityArea, VisibilityElevated:
	default:
		return fmt.Errorf("config.visibility.mode must be %q or %q", VisibilityArea, VisibilityElevated)
	}
	for _, r := range c.Visibility.UnrestrictedRoles {
		if !r.Valid() {
			return fmt.Errorf("config.visibility.unrestricted_roles: unknown role %q", r)
		}
	}
	for _, a := range c.Visibility.UnrestrictedAreas {
		if !a.Valid() {
			return fmt.Errorf("config.visibility.unrestricted_areas: unknown area %q", a)
		}
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	seen := map[string]bool{}
	for i, wh := range c.Webhooks {
		if wh.ID == "" {
			return fmt.Errorf("config.webhooks[%d].id is required", i)
		}
		if seen[wh.ID] {
			return fmt.Errorf("config.webhooks: duplicate id %s", wh.ID)
		}
		seen[wh.ID] = true
		u, err := url.Parse(wh.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%s].url must be an absolute http(s) url", wh.ID)
		}
		if wh.MaxRetries < 0 {
			return fmt.Errorf("config.webhooks[%s].max_retries must not be negative", wh.ID)
		}
	}
	return nil
}

// Unrestricted reports whether a caller may see case files of every area.
func (c *Config) Unrestricted(role domain.Role, area domain.Area) bool {
	if c == nil || c.Visibility.Mode != VisibilityElevated {
		return false
	}
	return slices.Contains(c.Visibility.UnrestrictedRoles, role) || slices.Contains(c.Visibility.UnrestrictedAreas, area)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "expedientes.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes. Unset fields
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Config{
		Visibility: Visibility{
			Mode:              VisibilityArea,
			UnrestrictedRoles: []domain.Role{domain.RoleAdmin},
			UnrestrictedAreas: []domain.Area{domain.AreaMesaEntrada},
		},
		Auth: Auth{TokenTTL: 7 * 24 * time.Hour},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	for i := range cfg.Webhooks {
		if cfg.Webhooks[i].Timeout <= 0 {
			cfg.Webhooks[i].Timeout = 5 * time.Second
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `visibility:
  # area: callers see only case files of their own area.
  # elevated: unrestricted roles/areas see every area.
  mode: area
  unrestricted_roles: [admin]
  unrestricted_areas: [mesa_entrada]

auth:
  token_ttl: 168h
  allow_dev_login: false

webhooks: []
`
