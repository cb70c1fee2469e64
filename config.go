package abac

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the declarative bootstrap format tenant administrators use to
// seed stores: tenants, policies (with rules and validity windows), dynamic
// group policies and direct user assignments.
type Config struct {
	Tenants     []Tenant       `json:"tenants" yaml:"tenants"`
	Policies    []*Policy      `json:"policies" yaml:"policies"`
	Groups      []*GroupPolicy `json:"groups" yaml:"groups"`
	Assignments []*UserPolicy  `json:"assignments" yaml:"assignments"`
}

// ConfigLoader loads configuration from YAML or JSON.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToYAML exports the config.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports the config.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks every policy against the catalog (structural checks only
// when catalog is nil) and every group/assignment reference against the
// config's own policy set.
func (c *Config) Validate(catalog *Catalog) error {
	ids := make(map[string]bool, len(c.Policies))
	for _, p := range c.Policies {
		var err error
		if catalog != nil {
			err = catalog.ValidatePolicy(p)
		} else {
			err = ValidatePolicy(p)
		}
		if err != nil {
			return err
		}
		if ids[p.ID] {
			return fmt.Errorf("abac: duplicate policy id %q", p.ID)
		}
		ids[p.ID] = true
	}
	for _, gp := range c.Groups {
		for _, pid := range gp.PolicyIDs {
			if !ids[pid] {
				return fmt.Errorf("abac: group %s references unknown policy %q", gp.ID, pid)
			}
		}
	}
	for _, up := range c.Assignments {
		if !ids[up.PolicyID] {
			return fmt.Errorf("abac: assignment %s references unknown policy %q", up.ID, up.PolicyID)
		}
	}
	return nil
}

// Apply validates the config and writes it through a PolicyWriter.
func (c *Config) Apply(ctx context.Context, w PolicyWriter) error {
	if err := c.Validate(nil); err != nil {
		return err
	}
	for _, p := range c.Policies {
		if err := w.SavePolicy(ctx, p); err != nil {
			return fmt.Errorf("save policy %s: %w", p.ID, err)
		}
	}
	for _, gp := range c.Groups {
		if err := w.SaveGroupPolicy(ctx, gp); err != nil {
			return fmt.Errorf("save group policy %s: %w", gp.ID, err)
		}
	}
	for _, up := range c.Assignments {
		if err := w.AssignUserPolicy(ctx, up); err != nil {
			return fmt.Errorf("assign policy %s to %s: %w", up.PolicyID, up.UserID, err)
		}
	}
	return nil
}
