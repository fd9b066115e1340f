package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Load reads a batch file, expands ${VAR} references from the environment,
// applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	return cfg, nil
}

// envReference matches ${VAR}. A bare $ is left alone so secrets may contain it.
var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces every ${VAR} in data with the value of VAR, or nothing
// when VAR is unset.
func expandEnv(data []byte) []byte {
	return envReference.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := envReference.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Parse decodes a batch description held in memory.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Sandbox returns a complete batch targeting a platform served at baseURL,
// mirroring the demo deployment: five applications and one tenant per
// identifier given.
func Sandbox(baseURL string, tenants ...string) *Config {
	cfg := &Config{
		Provisioner: Provisioner{
			URL:    baseURL + "/provisioner/v1",
			Secret: "sandbox",
		},
		Identity: Identity{
			URL: baseURL + "/identity/v1",
		},
		TenantAdmin: TenantAdmin{Password: "sandbox-admin"},
	}

	for _, name := range []string{"identity-v1", "office-v1", "customer-v1", "accounting-v1", "portfolio-v1"} {
		cfg.Applications = append(cfg.Applications, Application{
			Name: name,
			URI:  baseURL + "/" + name,
		})
	}

	for _, id := range tenants {
		cfg.Tenants = append(cfg.Tenants, Tenant{Identifier: id})
	}

	cfg.ApplyDefaults()
	return cfg
}
