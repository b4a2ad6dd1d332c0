package config

import (
	"fmt"
	"time"

	"github.com/DisasterSentry/client/internal/modem"
	"github.com/DisasterSentry/client/pkg/log"
	"go.uber.org/zap"
)

const (
	DefaultModemDevice   = "/dev/ttyUSB2"
	DefaultModemBaudRate = 115200

	DefaultAlertCooldown = 5 * time.Minute
)

// If you want to modify any field at run-time here, make sure to lock it using a mutex
type ModemConfig struct {
	Device            string       `toml:"device,omitempty" comment:"serial device of the modem AT port"`
	BaudRate          int          `toml:"baud_rate,omitempty"`
	EmergencyContacts []string     `toml:"emergency_contacts,omitempty" comment:"phone numbers that receive alert messages"`
	AlertCooldown     TOMLDuration `toml:"sms_cooldown,omitempty" comment:"minimum pause between alert dispatches"`
	SendAttempts      int          `toml:"send_attempts,omitempty"`
	GpsFixAttempts    int          `toml:"gps_fix_attempts,omitempty"`
	Disabled          bool         `toml:"disabled"`
}

type ModemConfigManager struct {
	BaseConfigManager[ModemConfig]
}

// Verify verifies the "hard" conditions that the rest of the code relies on.
// Malformed contact numbers are rejected here so a misconfiguration surfaces
// at startup instead of during an emergency dispatch.
func (a *ModemConfigManager) Verify() error {
	for _, number := range a.conf.EmergencyContacts {
		if !modem.ValidatePhoneNumber(number) {
			return fmt.Errorf("invalid emergency contact %q", number)
		}
	}

	if len(a.conf.EmergencyContacts) == 0 && !a.conf.Disabled {
		log.Warn("no emergency contacts configured, alerts will not be delivered", zap.String("section", "modem"))
	}

	if a.conf.Device == "" {
		a.conf.Device = DefaultModemDevice
	}

	if a.conf.BaudRate == 0 {
		a.conf.BaudRate = DefaultModemBaudRate
	}

	if a.conf.AlertCooldown.Value() <= 0 {
		a.conf.AlertCooldown = TOMLDuration(DefaultAlertCooldown)
	}

	if a.conf.SendAttempts <= 0 {
		a.conf.SendAttempts = modem.DefaultSendAttempts
	}

	if a.conf.GpsFixAttempts <= 0 {
		a.conf.GpsFixAttempts = 3
	}

	return nil
}

func NewModemConfigManager(config *ModemConfig, mgr *Manager) *ModemConfigManager {
	j := ModemConfigManager{}
	j.conf = config
	j.mgr = mgr

	return &j
}
