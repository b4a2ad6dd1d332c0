package config

import (
	"fmt"
	"time"
)

const (
	DefaultHealthInterval    = 60 * time.Second
	DefaultTelemetryInterval = 5 * time.Minute

	DefaultMaxRestartAttempts = 3
)

// TelemetrySettings configures the optional MQTT status publisher
type TelemetrySettings struct {
	Enabled  bool         `toml:"enabled"`
	Broker   string       `toml:"broker,omitempty" comment:"broker url, e.g. tcp://broker.example.org:1883"`
	Topic    string       `toml:"topic,omitempty"`
	ClientID string       `toml:"client_id,omitempty"`
	Username string       `toml:"username,omitempty"`
	Password string       `toml:"password,omitempty"`
	Interval TOMLDuration `toml:"interval,omitempty"`
}

// If you want to modify any field at run-time here, make sure to lock it using a mutex
type SystemConfig struct {
	WatchdogEnabled    bool              `toml:"watchdog_enabled" comment:"feed the systemd watchdog from the main loop"`
	HealthInterval     TOMLDuration      `toml:"health_interval,omitempty" comment:"how often camera and modem liveness are checked"`
	AutoRestart        bool              `toml:"auto_restart" comment:"restart the service unit when the camera is gone for good"`
	MaxRestartAttempts int               `toml:"max_restart_attempts,omitempty"`
	RestartUnit        string            `toml:"restart_unit,omitempty" comment:"systemd unit restarted on unrecoverable failure"`
	NetworkCheck       bool              `toml:"network_check" comment:"consult NetworkManager before attempting uploads"`
	Telemetry          TelemetrySettings `toml:"telemetry,omitempty"`
}

type SystemConfigManager struct {
	BaseConfigManager[SystemConfig]
}

// Verify verifies the "hard" conditions that the rest of the code relies on
func (a *SystemConfigManager) Verify() error {
	telemetry := &a.conf.Telemetry
	if telemetry.Enabled {
		if telemetry.Broker == "" {
			return fmt.Errorf("telemetry enabled without a broker url")
		}
		if telemetry.Topic == "" {
			return fmt.Errorf("telemetry enabled without a topic")
		}
		if telemetry.Interval.Value() <= 0 {
			telemetry.Interval = TOMLDuration(DefaultTelemetryInterval)
		}
	}

	if a.conf.HealthInterval.Value() <= 0 {
		a.conf.HealthInterval = TOMLDuration(DefaultHealthInterval)
	}

	if a.conf.AutoRestart {
		if a.conf.RestartUnit == "" {
			a.conf.RestartUnit = ProductName + ".service"
		}
		if a.conf.MaxRestartAttempts <= 0 {
			a.conf.MaxRestartAttempts = DefaultMaxRestartAttempts
		}
	}

	return nil
}

func NewSystemConfigManager(config *SystemConfig, mgr *Manager) *SystemConfigManager {
	j := SystemConfigManager{}
	j.conf = config
	j.mgr = mgr

	return &j
}
