package config

import "fmt"

// EvacuationSite is a fixed assembly point included in alert messages
type EvacuationSite struct {
	Name      string  `toml:"name"`
	Latitude  float64 `toml:"latitude"`
	Longitude float64 `toml:"longitude"`
	Address   string  `toml:"address,omitempty"`
}

// If you want to modify any field at run-time here, make sure to lock it using a mutex
type SitesConfig struct {
	Sites []EvacuationSite `toml:"sites,omitempty"`
}

type SitesConfigManager struct {
	BaseConfigManager[SitesConfig]
}

// Verify verifies the "hard" conditions that the rest of the code relies on
func (a *SitesConfigManager) Verify() error {
	for _, site := range a.conf.Sites {
		if site.Name == "" {
			return fmt.Errorf("evacuation site without a name")
		}
		if site.Latitude < -90 || site.Latitude > 90 || site.Longitude < -180 || site.Longitude > 180 {
			return fmt.Errorf("evacuation site %q has out of range coordinates", site.Name)
		}
	}

	return nil
}

func NewSitesConfigManager(config *SitesConfig, mgr *Manager) *SitesConfigManager {
	j := SitesConfigManager{}
	j.conf = config
	j.mgr = mgr

	return &j
}
