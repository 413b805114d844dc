// Package config loads the sentinel configuration from defaults, an
// optional YAML file and SENTINEL_* environment variables, in that
// order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/relabs-tech/gnss_sentinel/internal/detect"
)

// SerialConfig selects the GNSS receiver port.
type SerialConfig struct {
	Port string `koanf:"port"`
	Baud uint   `koanf:"baud"`
}

// MQTTConfig controls the telemetry publisher.
type MQTTConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Broker   string `koanf:"broker"`
	ClientID string `koanf:"client_id"`
}

// FeedConfig controls the websocket live feed.
type FeedConfig struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}

// IndicatorConfig selects the GPIO pin raised on fallback.
type IndicatorConfig struct {
	Enabled bool   `koanf:"enabled"`
	Pin     string `koanf:"pin"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DetectionConfig groups the detector tuning knobs and the
// arbitration grace period.
type DetectionConfig struct {
	Speed         detect.SpeedConfig         `koanf:"speed"`
	Constellation detect.ConstellationConfig `koanf:"constellation"`
	GracePeriod   time.Duration              `koanf:"grace_period"`
}

// ScorerConfig points at the optional classifier artifact.
type ScorerConfig struct {
	ArtifactPath string `koanf:"artifact_path"`
}

// Config is the root configuration for all sentinel binaries.
type Config struct {
	Serial    SerialConfig    `koanf:"serial"`
	MQTT      MQTTConfig      `koanf:"mqtt"`
	Feed      FeedConfig      `koanf:"feed"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Indicator IndicatorConfig `koanf:"indicator"`
	Log       LogConfig       `koanf:"log"`
	Detection DetectionConfig `koanf:"detection"`
	Scorer    ScorerConfig    `koanf:"scorer"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyAMA0",
			Baud: 9600,
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://127.0.0.1:1883",
			ClientID: "gnss-sentinel",
		},
		Feed: FeedConfig{
			Enabled: false,
			Listen:  ":8080",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9100",
		},
		Indicator: IndicatorConfig{
			Enabled: false,
			Pin:     "GPIO17",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Detection: DetectionConfig{
			Speed:         detect.DefaultSpeedConfig(),
			Constellation: detect.DefaultConstellationConfig(),
			GracePeriod:   30 * time.Second,
		},
	}
}

// envPrefix is stripped from environment variables before mapping.
const envPrefix = "SENTINEL_"

// envMappings translates SENTINEL_* variables to config paths. Only
// listed variables are honored so unrelated environment noise cannot
// leak into the configuration.
var envMappings = map[string]string{
	"serial_port":                     "serial.port",
	"serial_baud":                     "serial.baud",
	"mqtt_enabled":                    "mqtt.enabled",
	"mqtt_broker":                     "mqtt.broker",
	"mqtt_client_id":                  "mqtt.client_id",
	"feed_enabled":                    "feed.enabled",
	"feed_listen":                     "feed.listen",
	"metrics_enabled":                 "metrics.enabled",
	"metrics_listen":                  "metrics.listen",
	"indicator_enabled":               "indicator.enabled",
	"indicator_pin":                   "indicator.pin",
	"log_level":                       "log.level",
	"log_format":                      "log.format",
	"grace_period":                    "detection.grace_period",
	"speed_stabilization_speed":       "detection.speed.stabilization_speed",
	"speed_spoof_speed":               "detection.speed.spoof_speed",
	"speed_stabilization_count":       "detection.speed.stabilization_count",
	"speed_min_jump_distance":         "detection.speed.min_jump_distance",
	"constellation_snr_jump":          "detection.constellation.snr_jump",
	"constellation_snr_jump_relative": "detection.constellation.snr_jump_relative",
	"constellation_new_prns":          "detection.constellation.new_prns",
	"constellation_lost_prns":         "detection.constellation.lost_prns",
	"constellation_shock_prns":        "detection.constellation.shock_prns",
	"constellation_confirm_count":     "detection.constellation.confirm_count",
	"constellation_history_length":    "detection.constellation.history_length",
	"constellation_snr_floor":         "detection.constellation.snr_floor",
	"constellation_min_satellites":    "detection.constellation.min_satellites",
	"constellation_warmup":            "detection.constellation.warmup",
	"scorer_artifact_path":            "scorer.artifact_path",
}

func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return envMappings[key]
}

// Load builds the configuration from defaults, the YAML file at path
// (skipped when path is empty or the file does not exist) and
// SENTINEL_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the detectors cannot run with.
func (c *Config) Validate() error {
	if c.Serial.Port == "" {
		return fmt.Errorf("serial.port must not be empty")
	}
	if c.Serial.Baud == 0 {
		return fmt.Errorf("serial.baud must be positive")
	}
	s := c.Detection.Speed
	if s.StabilizationCount < 1 {
		return fmt.Errorf("detection.speed.stabilization_count must be at least 1")
	}
	if s.StabilizationSpeed <= 0 || s.SpoofSpeed <= 0 {
		return fmt.Errorf("detection.speed thresholds must be positive")
	}
	if s.MinJumpDistance < 0 {
		return fmt.Errorf("detection.speed.min_jump_distance must not be negative")
	}
	cc := c.Detection.Constellation
	if cc.ConfirmCount < 1 {
		return fmt.Errorf("detection.constellation.confirm_count must be at least 1")
	}
	if cc.HistoryLength < 1 {
		return fmt.Errorf("detection.constellation.history_length must be at least 1")
	}
	if cc.MinSatellites < 1 {
		return fmt.Errorf("detection.constellation.min_satellites must be at least 1")
	}
	if cc.SNRJump <= 0 || cc.SNRJumpRelative <= 0 {
		return fmt.Errorf("detection.constellation SNR jump thresholds must be positive")
	}
	if cc.Warmup < 0 {
		return fmt.Errorf("detection.constellation.warmup must not be negative")
	}
	if c.Detection.GracePeriod < 0 {
		return fmt.Errorf("detection.grace_period must not be negative")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker must be set when mqtt is enabled")
	}
	return nil
}
