package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
	if cfg.Detection.Speed.SpoofSpeed != 6 {
		t.Errorf("spoof speed = %v, want 6", cfg.Detection.Speed.SpoofSpeed)
	}
	if cfg.Detection.GracePeriod != 30*time.Second {
		t.Errorf("grace period = %v, want 30s", cfg.Detection.GracePeriod)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyAMA0" {
		t.Errorf("serial port = %q, want /dev/ttyAMA0", cfg.Serial.Port)
	}
	if cfg.Detection.Constellation.MinSatellites != 4 {
		t.Errorf("min satellites = %d, want 4", cfg.Detection.Constellation.MinSatellites)
	}
}

func TestLoadMissingFileIsIgnored(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Baud != 9600 {
		t.Errorf("baud = %d, want 9600", cfg.Serial.Baud)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `serial:
  port: /dev/ttyUSB0
  baud: 115200
detection:
  speed:
    spoof_speed: 9.5
  constellation:
    confirm_count: 3
  grace_period: 45s
mqtt:
  enabled: true
  broker: tcp://broker.local:1883
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyUSB0" {
		t.Errorf("serial port = %q, want /dev/ttyUSB0", cfg.Serial.Port)
	}
	if cfg.Serial.Baud != 115200 {
		t.Errorf("baud = %d, want 115200", cfg.Serial.Baud)
	}
	if cfg.Detection.Speed.SpoofSpeed != 9.5 {
		t.Errorf("spoof speed = %v, want 9.5", cfg.Detection.Speed.SpoofSpeed)
	}
	if cfg.Detection.Constellation.ConfirmCount != 3 {
		t.Errorf("confirm count = %d, want 3", cfg.Detection.Constellation.ConfirmCount)
	}
	if cfg.Detection.GracePeriod != 45*time.Second {
		t.Errorf("grace period = %v, want 45s", cfg.Detection.GracePeriod)
	}
	// Untouched sections keep their defaults.
	if cfg.Detection.Speed.StabilizationSpeed != 8 {
		t.Errorf("stabilization speed = %v, want 8", cfg.Detection.Speed.StabilizationSpeed)
	}
	if cfg.MQTT.Broker != "tcp://broker.local:1883" {
		t.Errorf("broker = %q", cfg.MQTT.Broker)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("serial:\n  port: /dev/ttyUSB0\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("SENTINEL_SERIAL_PORT", "/dev/ttyACM3")
	t.Setenv("SENTINEL_CONSTELLATION_SNR_FLOOR", "25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyACM3" {
		t.Errorf("serial port = %q, want /dev/ttyACM3", cfg.Serial.Port)
	}
	if cfg.Detection.Constellation.SNRFloor != 25 {
		t.Errorf("SNR floor = %v, want 25", cfg.Detection.Constellation.SNRFloor)
	}
}

func TestUnknownEnvironmentVariablesIgnored(t *testing.T) {
	t.Setenv("SENTINEL_NO_SUCH_KNOB", "true")
	if _, err := Load(""); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty serial port", func(c *Config) { c.Serial.Port = "" }},
		{"zero baud", func(c *Config) { c.Serial.Baud = 0 }},
		{"zero stabilization count", func(c *Config) { c.Detection.Speed.StabilizationCount = 0 }},
		{"negative jump distance", func(c *Config) { c.Detection.Speed.MinJumpDistance = -1 }},
		{"zero confirm count", func(c *Config) { c.Detection.Constellation.ConfirmCount = 0 }},
		{"zero history length", func(c *Config) { c.Detection.Constellation.HistoryLength = 0 }},
		{"zero min satellites", func(c *Config) { c.Detection.Constellation.MinSatellites = 0 }},
		{"negative grace period", func(c *Config) { c.Detection.GracePeriod = -time.Second }},
		{"mqtt enabled without broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate accepted %s", tc.name)
			}
		})
	}
}
