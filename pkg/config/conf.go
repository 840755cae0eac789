package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mchmarny/veracity/pkg/detect"
	"github.com/mchmarny/veracity/pkg/feature"
	"github.com/mchmarny/veracity/pkg/rules"
	"github.com/mchmarny/veracity/pkg/verdict"
)

const (
	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600

	serverAddressDefault        = ":8080"
	engineTimeoutSecondsDefault = 5
)

// Config is the engine's operator-tunable surface: classification
// thresholds, governance dials, reconciliation tolerances, external
// engines, and the local server. Policy (the rule matrix) is code, not
// configuration.
type Config struct {
	Thresholds ThresholdConfig `yaml:"thresholds"`
	Governor   GovernorConfig  `yaml:"governor"`
	Tolerances ToleranceConfig `yaml:"tolerances"`
	Engines    []EngineConfig  `yaml:"engines,omitempty"`
	Server     ServerConfig    `yaml:"server"`
}

// ThresholdConfig holds the label cut points.
type ThresholdConfig struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// GovernorConfig holds the governance dials.
type GovernorConfig struct {
	SoftFactor            float64 `yaml:"softFactor"`
	FamilyConfidenceFloor float64 `yaml:"familyConfidenceFloor"`
}

// ToleranceConfig holds reconciliation tolerances as relative fractions.
type ToleranceConfig struct {
	Default  float64            `yaml:"default"`
	Families map[string]float64 `yaml:"families,omitempty"`
}

// EngineConfig describes one external analysis engine. API keys are not
// stored here; they live in the OS keyring under the engine name.
type EngineConfig struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// ServerConfig holds the local server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

func getDefaultConfig() *Config {
	tolerances := detect.DefaultTolerances()
	families := make(map[string]float64, len(tolerances.Families))
	for f, tol := range tolerances.Families {
		families[string(f)] = tol
	}
	return &Config{
		Thresholds: ThresholdConfig{
			Low:  verdict.ThresholdLowDefault,
			High: verdict.ThresholdHighDefault,
		},
		Governor: GovernorConfig{
			SoftFactor:            rules.SoftFactorDefault,
			FamilyConfidenceFloor: rules.FamilyConfidenceFloorDefault,
		},
		Tolerances: ToleranceConfig{
			Default:  tolerances.Default,
			Families: families,
		},
		Server: ServerConfig{
			Address: serverAddressDefault,
		},
	}
}

// Validate checks the whole configuration. It runs at startup; a config
// that fails here never reaches an analysis.
func (c *Config) Validate() error {
	if err := c.GetThresholds().Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	if err := c.GetGovernor().Validate(); err != nil {
		return fmt.Errorf("invalid governor settings: %w", err)
	}

	if c.Tolerances.Default <= 0 {
		return fmt.Errorf("default tolerance must be positive, got %f", c.Tolerances.Default)
	}
	for name, tol := range c.Tolerances.Families {
		if tol <= 0 {
			return fmt.Errorf("tolerance for family %s must be positive, got %f", name, tol)
		}
		if feature.ParseFamily(name) == feature.FamilyUnknown && name != string(feature.FamilyUnknown) {
			return fmt.Errorf("tolerance references unknown family %q", name)
		}
	}

	names := make(map[string]bool, len(c.Engines))
	for _, e := range c.Engines {
		if e.Name == "" {
			return errors.New("engine name is required")
		}
		if names[e.Name] {
			return fmt.Errorf("duplicate engine name %q", e.Name)
		}
		names[e.Name] = true
		u, err := url.Parse(e.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("engine %s: invalid url %q", e.Name, e.URL)
		}
		if e.TimeoutSeconds < 0 {
			return fmt.Errorf("engine %s: timeout cannot be negative", e.Name)
		}
	}

	if c.Server.Address == "" {
		return errors.New("server address is required")
	}

	return nil
}

// GetThresholds converts to the aggregator's threshold type.
func (c *Config) GetThresholds() verdict.Thresholds {
	return verdict.Thresholds{Low: c.Thresholds.Low, High: c.Thresholds.High}
}

// GetGovernor converts to the governor's config type.
func (c *Config) GetGovernor() rules.GovernorConfig {
	return rules.GovernorConfig{
		SoftFactor:            c.Governor.SoftFactor,
		FamilyConfidenceFloor: c.Governor.FamilyConfidenceFloor,
	}
}

// GetTolerances converts to the detector tolerance type.
func (c *Config) GetTolerances() detect.Tolerances {
	out := detect.Tolerances{
		Default:  c.Tolerances.Default,
		Families: make(map[feature.Family]float64, len(c.Tolerances.Families)),
	}
	for name, tol := range c.Tolerances.Families {
		out.Families[feature.ParseFamily(name)] = tol
	}
	return out
}

// GetEngineTimeoutSeconds returns the engine's timeout or the default.
func (e EngineConfig) GetEngineTimeoutSeconds() int {
	if e.TimeoutSeconds > 0 {
		return e.TimeoutSeconds
	}
	return engineTimeoutSecondsDefault
}

// Save writes the config into the directory.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configFileName, err)
	}
	return nil
}

// ReadOrCreate reads app config from the directory or creates a default
// one on first run. The returned config is validated.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.Mkdir(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(dirPath, getDefaultConfig()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening config file %s: %w", path, err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &c, nil
}

// GetOrCreateHomeDir returns the app home directory for the current
// user. The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}
	slog.Debug("home dir resolved", "dir", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "dir", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
