package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDt       = 0.01
	DefaultHorizon  = 25
	DefaultDuration = 5.0
	DefaultAlpha    = 10.0
	DefaultQMax     = 3.14159
	DefaultDQMax    = 5.0
	DefaultUMax     = 10.0
)

type Config struct {
	Model      string  `yaml:"model"`
	Controller string  `yaml:"controller"`
	Dt         float64 `yaml:"dt"`
	Horizon    int     `yaml:"horizon"`
	Duration   float64 `yaml:"duration"`

	Bounds    BoundsConfig    `yaml:"bounds"`
	Safety    SafetyConfig    `yaml:"safety"`
	Tolerance ToleranceConfig `yaml:"tolerance"`

	Obstacles []ObstacleConfig `yaml:"obstacles"`
}

type BoundsConfig struct {
	QMin  float64 `yaml:"q_min"`
	QMax  float64 `yaml:"q_max"`
	DQMax float64 `yaml:"dq_max"`
	UMax  float64 `yaml:"u_max"`
}

type SafetyConfig struct {
	// ArtifactPath points at the trained filter weights; empty means a
	// deterministic synthetic stand-in is generated.
	ArtifactPath string  `yaml:"artifact_path"`
	Alpha        float64 `yaml:"alpha"`
	AlphaSafe    float64 `yaml:"alpha_safe"`
	SlackWeight  float64 `yaml:"slack_weight"`

	// Device selects where filter inference runs. Resolved at load; the
	// only supported value is "cpu".
	Device string `yaml:"device"`
}

type ToleranceConfig struct {
	Bounds  float64 `yaml:"bounds"`
	Safety  float64 `yaml:"safety"`
	Rollout float64 `yaml:"rollout"`
}

type ObstacleConfig struct {
	Kind     string     `yaml:"kind"` // "floor" or "ball"
	Lower    float64    `yaml:"lower"`
	Upper    float64    `yaml:"upper"`
	Position [3]float64 `yaml:"position"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:      "triple_pendulum",
		Controller: "receding",
		Dt:         DefaultDt,
		Horizon:    DefaultHorizon,
		Duration:   DefaultDuration,
		Bounds: BoundsConfig{
			QMin:  -DefaultQMax,
			QMax:  DefaultQMax,
			DQMax: DefaultDQMax,
			UMax:  DefaultUMax,
		},
		Safety: SafetyConfig{
			Alpha:       DefaultAlpha,
			AlphaSafe:   4 * DefaultAlpha,
			SlackWeight: 1e4,
			Device:      "cpu",
		},
		Tolerance: ToleranceConfig{
			Bounds:  1e-4,
			Safety:  1e-3,
			Rollout: 1e-3,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("config: dt must be positive, got %f", c.Dt)
	}
	if c.Horizon < 1 {
		return fmt.Errorf("config: horizon must be at least 1, got %d", c.Horizon)
	}
	if c.Bounds.QMin >= c.Bounds.QMax {
		return fmt.Errorf("config: q_min %f must be below q_max %f", c.Bounds.QMin, c.Bounds.QMax)
	}
	if c.Bounds.DQMax <= 0 || c.Bounds.UMax <= 0 {
		return fmt.Errorf("config: dq_max and u_max must be positive")
	}
	if c.Safety.Alpha < 0 || c.Safety.Alpha > 100 {
		return fmt.Errorf("config: alpha %f outside [0,100]", c.Safety.Alpha)
	}
	if c.Safety.Device != "" && c.Safety.Device != "cpu" {
		return fmt.Errorf("config: unsupported inference device %q", c.Safety.Device)
	}
	for i, o := range c.Obstacles {
		if o.Kind != "floor" && o.Kind != "ball" {
			return fmt.Errorf("config: obstacle %d has unknown kind %q", i, o.Kind)
		}
		if o.Lower > o.Upper {
			return fmt.Errorf("config: obstacle %d bounds inverted", i)
		}
	}
	return nil
}
