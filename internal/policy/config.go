package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quietroom/warden/internal/behavior"
)

// Duration is a time.Duration that unmarshals from YAML strings ("15m",
// "24h") as well as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	case int64:
		*d = Duration(v)
	case float64:
		*d = Duration(int64(v))
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AnalyzerConfig holds behavior-analyzer thresholds shared by both tracks.
type AnalyzerConfig struct {
	RapidThreshold Duration `yaml:"rapid_threshold"`
	MinLength      int      `yaml:"min_length"`
	RepeatRun      int      `yaml:"repeat_run"`
}

// PermissiveConfig tunes the anonymous-track policy.
type PermissiveConfig struct {
	MaxLength int `yaml:"max_length"`

	// ShadowBanVolume is the session count above which rapid messaging
	// becomes a shadow-ban signal.
	ShadowBanVolume int `yaml:"shadow_ban_volume"`

	// ShadowBanScore is the behavioral score below which a recommended
	// shadow ban also attaches a temporary restriction.
	ShadowBanScore    float64  `yaml:"shadow_ban_score"`
	ShadowBanDuration Duration `yaml:"shadow_ban_duration"`
}

// StrictConfig tunes the registered-track policy.
type StrictConfig struct {
	MaxLength int `yaml:"max_length"`

	RestrictDuration Duration `yaml:"restrict_duration"`
	BanDuration      Duration `yaml:"ban_duration"`

	// PermanentBanAfter: more than this many violations inside BanWindow
	// makes the next ban permanent.
	PermanentBanAfter int `yaml:"permanent_ban_after"`

	// RecentWindow bounds the violation count used for confidence raising.
	RecentWindow Duration `yaml:"recent_window"`

	// BanWindow bounds the recidivism count in the ban threshold.
	BanWindow Duration `yaml:"ban_window"`
}

// SweepConfig tunes the maintenance sweeper.
type SweepConfig struct {
	Interval Duration `yaml:"interval"`

	// Retention is the violation-history retention window.
	Retention Duration `yaml:"retention"`

	// InactivityTTL is the eviction ceiling for inactive permissive profiles.
	InactivityTTL Duration `yaml:"inactivity_ttl"`

	// EvictStrict also evicts strict profiles without violation history.
	EvictStrict bool `yaml:"evict_strict"`
}

// Config holds all configurable engine parameters.
type Config struct {
	Analyzer   AnalyzerConfig   `yaml:"analyzer"`
	Permissive PermissiveConfig `yaml:"permissive"`
	Strict     StrictConfig     `yaml:"strict"`
	Sweep      SweepConfig      `yaml:"sweep"`
}

// DefaultConfig returns the built-in engine configuration.
func DefaultConfig() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{
			RapidThreshold: Duration(time.Second),
			MinLength:      5,
			RepeatRun:      5,
		},
		Permissive: PermissiveConfig{
			MaxLength:         500,
			ShadowBanVolume:   20,
			ShadowBanScore:    -0.5,
			ShadowBanDuration: Duration(15 * time.Minute),
		},
		Strict: StrictConfig{
			MaxLength:         1000,
			RestrictDuration:  Duration(60 * time.Minute),
			BanDuration:       Duration(24 * time.Hour),
			PermanentBanAfter: 2,
			RecentWindow:      Duration(24 * time.Hour),
			BanWindow:         Duration(7 * 24 * time.Hour),
		},
		Sweep: SweepConfig{
			Interval:      Duration(time.Hour),
			Retention:     Duration(90 * 24 * time.Hour),
			InactivityTTL: Duration(24 * time.Hour),
		},
	}
}

// LoadConfig loads engine configuration from a YAML file. Empty path or
// missing file returns defaults; invalid YAML or an invalid combination of
// values returns an error. Misconfiguration fails here, at startup, never
// per message.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read engine config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse engine config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.Analyzer.RapidThreshold < 0 {
		return fmt.Errorf("analyzer.rapid_threshold must not be negative")
	}
	if c.Analyzer.MinLength < 0 {
		return fmt.Errorf("analyzer.min_length must not be negative")
	}
	if c.Permissive.MaxLength <= c.Analyzer.MinLength {
		return fmt.Errorf("permissive.max_length (%d) must exceed analyzer.min_length (%d)",
			c.Permissive.MaxLength, c.Analyzer.MinLength)
	}
	if c.Strict.MaxLength <= c.Analyzer.MinLength {
		return fmt.Errorf("strict.max_length (%d) must exceed analyzer.min_length (%d)",
			c.Strict.MaxLength, c.Analyzer.MinLength)
	}
	if c.Permissive.ShadowBanDuration <= 0 {
		return fmt.Errorf("permissive.shadow_ban_duration must be positive")
	}
	if c.Strict.RestrictDuration <= 0 || c.Strict.BanDuration <= 0 {
		return fmt.Errorf("strict restriction durations must be positive")
	}
	if c.Strict.RecentWindow <= 0 || c.Strict.BanWindow <= 0 {
		return fmt.Errorf("strict violation windows must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive")
	}
	if c.Sweep.Retention <= 0 || c.Sweep.InactivityTTL <= 0 {
		return fmt.Errorf("sweep retention and inactivity windows must be positive")
	}
	return nil
}

// AnalyzerFor returns the behavior.Config for the given track's length cap.
func (c *Config) AnalyzerFor(maxLength int) behavior.Config {
	return behavior.Config{
		RapidThreshold: c.Analyzer.RapidThreshold.Std(),
		MinLength:      c.Analyzer.MinLength,
		MaxLength:      maxLength,
		RepeatRun:      c.Analyzer.RepeatRun,
	}
}

// DefaultConfigYAML returns a commented YAML string for init-policy.
func DefaultConfigYAML() string {
	return `# warden engine configuration
# Generated by: warden init-policy
#
# Values omitted here keep their built-in defaults.

# Behavior analyzer thresholds (shared by both tracks).
analyzer:
  rapid_threshold: 1s    # messages closer together than this flag rapid_messaging
  min_length: 5          # shorter messages flag too_short
  repeat_run: 5          # run-length of one character flagging spam

# Anonymous-track policy.
permissive:
  max_length: 500
  shadow_ban_volume: 20      # session count before rapid messaging recommends a shadow ban
  shadow_ban_score: -0.5     # behavioral score floor before a shadow ban restricts
  shadow_ban_duration: 15m

# Registered-track policy.
strict:
  max_length: 1000
  restrict_duration: 60m
  ban_duration: 24h
  permanent_ban_after: 2     # violations in ban_window before bans become permanent
  recent_window: 24h
  ban_window: 168h

# Maintenance sweeper.
sweep:
  interval: 1h
  retention: 2160h           # violation history retention (90 days)
  inactivity_ttl: 24h        # eviction ceiling for inactive anonymous profiles
  evict_strict: false
`
}
