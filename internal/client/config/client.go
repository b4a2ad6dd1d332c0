package config

import (
	"os"

	"github.com/google/uuid"
)

// If you want to modify any field at run-time here, make sure to lock it using a mutex
type ClientConfig struct {
	DeviceName string `toml:"device_name,omitempty" comment:"name this device reports to the backend, generated on first start when empty"`
	DataDir    string `toml:"data_dir,omitempty"`
	Debug      bool   `toml:"debug"`
}

type ClientConfigManager struct {
	BaseConfigManager[ClientConfig]
}

// Verify verifies the "hard" conditions that the rest of the code relies on.
// A missing device name is generated from the hostname plus a random suffix
// so every unit in the field stays distinguishable.
func (a *ClientConfigManager) Verify() error {
	if a.conf.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = ProductName
		}
		a.conf.DeviceName = hostname + "-" + uuid.NewString()[:8]
	}

	if a.conf.DataDir == "" {
		a.conf.DataDir = UserdataDirectoryPrefix
	}

	return nil
}

func NewClientConfigManager(config *ClientConfig, mgr *Manager) *ClientConfigManager {
	j := ClientConfigManager{}
	j.conf = config
	j.mgr = mgr

	return &j
}
