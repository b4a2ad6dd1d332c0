package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DisasterSentry/client/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init(true)
	os.Exit(m.Run())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const sampleConfig = `
[client]
device_name = "sentry-ridge-07"
debug = true

[detection]
interval = "45s"
confidence_threshold = 0.6
classes = ["person"]

[modem]
device = "/dev/ttyUSB3"
emergency_contacts = ["+14155552671", "4155552671"]
sms_cooldown = "10m"

[sync]
url = "https://backend.example.org/api/v1/"

[[evacuation.sites]]
name = "Community Center"
latitude = 48.1173
longitude = 11.5167
address = "1 Main St"
`

func TestManagerLoad(t *testing.T) {
	mgr := NewManager()
	require.NoError(t, mgr.Load(writeConfig(t, sampleConfig), false))

	assert.Equal(t, "sentry-ridge-07", mgr.DeviceName())
	assert.Equal(t, "/dev/ttyUSB3", mgr.Modem().C().Device)
	assert.Equal(t, []string{"+14155552671", "4155552671"}, mgr.EmergencyContacts())
	assert.Equal(t, 10*time.Minute, mgr.AlertCooldown())

	detection := mgr.Detection().C()
	assert.Equal(t, 45*time.Second, detection.Interval.Value())
	assert.Equal(t, 0.6, detection.ConfidenceThreshold)
	assert.Equal(t, []string{"person"}, detection.Classes)

	require.Len(t, mgr.Sites().C().Sites, 1)
	assert.Equal(t, "Community Center", mgr.Sites().C().Sites[0].Name)
}

func TestManagerLoadDefaults(t *testing.T) {
	mgr := NewManager()
	require.NoError(t, mgr.Load(writeConfig(t, "[client]\ndevice_name = \"s\"\n[sync]\ndisabled = true\n"), false))

	assert.Equal(t, DefaultModemDevice, mgr.Modem().C().Device)
	assert.Equal(t, DefaultModemBaudRate, mgr.Modem().C().BaudRate)
	assert.Equal(t, DefaultAlertCooldown, mgr.AlertCooldown())
	assert.Equal(t, DefaultDetectionInterval, mgr.Detection().C().Interval.Value())
	assert.Equal(t, DefaultConfidenceThreshold, mgr.Detection().C().ConfidenceThreshold)
	assert.Equal(t, DefaultDetectionClasses, mgr.Detection().C().Classes)
}

func TestManagerLoadMissingFile(t *testing.T) {
	mgr := NewManager()
	assert.Error(t, mgr.Load(filepath.Join(t.TempDir(), "missing.toml"), false))

	mgr = NewManager()
	assert.NoError(t, mgr.Load(filepath.Join(t.TempDir(), "missing.toml"), true))
}

func TestManagerRejectsInvalidContact(t *testing.T) {
	mgr := NewManager()
	err := mgr.Load(writeConfig(t, "[modem]\nemergency_contacts = [\"12ab\"]\n"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid emergency contact")
}

func TestManagerRejectsBadThreshold(t *testing.T) {
	mgr := NewManager()
	assert.Error(t, mgr.Load(writeConfig(t, "[detection]\nconfidence_threshold = 1.5\n"), false))
}

func TestManagerRejectsBadSite(t *testing.T) {
	mgr := NewManager()
	err := mgr.Load(writeConfig(t, "[[evacuation.sites]]\nname = \"x\"\nlatitude = 95.0\nlongitude = 0.0\n"), false)
	assert.Error(t, err)
}

func TestManagerSaveRoundTrip(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	mgr := NewManager()
	require.NoError(t, mgr.Load(path, false))

	mgr.Modem().Set(func(c *ModemConfig) {
		c.SendAttempts = 5
	})
	require.NoError(t, mgr.Save())

	reloaded := NewManager()
	require.NoError(t, reloaded.Load(path, false))
	assert.Equal(t, 5, reloaded.Modem().C().SendAttempts)
	assert.Equal(t, "sentry-ridge-07", reloaded.DeviceName())
}

func TestSystemVerifyTelemetry(t *testing.T) {
	mgr := NewManager()
	err := mgr.Load(writeConfig(t, "[system.telemetry]\nenabled = true\n"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker")
}
