package config

import (
	"flag"
	"os"
	"sync"
	"time"

	"github.com/DisasterSentry/client/pkg/log"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

const (
	ProductName             = "sentry"
	UserdataDirectoryPrefix = "/data/"
	ConfigFolder            = "config/"

	ConfigPathPrefix = ConfigFolder + ProductName + "/"
	ConfigFile       = "config.toml"

	DefaultConfigPath = UserdataDirectoryPrefix + ConfigPathPrefix + ConfigFile

	DefaultTmpDir = "/run/" + ProductName + "/tmp/"

	DefaultDetectionDir = UserdataDirectoryPrefix + "detections/"
	DefaultSnapshotDir  = DefaultDetectionDir + "snapshots/"

	DefaultDebugModeValue = false
)

type CLIFlags struct {
	ConfigPath string
	RootCert   string
	Debug      bool
}

type MainConfig struct {
	Client    ClientConfig    `toml:"client"`
	Detection DetectionConfig `toml:"detection,omitempty"`
	Modem     ModemConfig     `toml:"modem,omitempty"`
	Sync      SyncConfig      `toml:"sync,omitempty"`
	Sites     SitesConfig     `toml:"evacuation,omitempty"`
	System    SystemConfig    `toml:"system,omitempty"`
}

type ConfigManager interface {
	lock()
	unlock()
	Verify() error
}

type ConfigManagerKey string

const (
	CMClient    ConfigManagerKey = "client"
	CMDetection ConfigManagerKey = "detection"
	CMModem     ConfigManagerKey = "modem"
	CMSync      ConfigManagerKey = "sync"
	CMSites     ConfigManagerKey = "sites"
	CMSystem    ConfigManagerKey = "system"
)

type ConfigManagerStore map[ConfigManagerKey]ConfigManager

type Manager struct {
	mu sync.RWMutex

	// The actual config, never share this with other code
	config *MainConfig
	flags  *CLIFlags

	// The config manager store (pointers)
	store ConfigManagerStore

	// The config path
	path string
}

func (m *Manager) Client() *ClientConfigManager {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm, ok := m.store[CMClient].(*ClientConfigManager)
	if !ok {
		log.Panic("implementation mistake, no CMClient found")
		return nil
	}
	return cm
}

func (m *Manager) Detection() *DetectionConfigManager {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm, ok := m.store[CMDetection].(*DetectionConfigManager)
	if !ok {
		log.Panic("implementation mistake, no CMDetection found")
		return nil
	}
	return cm
}

func (m *Manager) Modem() *ModemConfigManager {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm, ok := m.store[CMModem].(*ModemConfigManager)
	if !ok {
		log.Panic("implementation mistake, no CMModem found")
		return nil
	}
	return cm
}

func (m *Manager) Sync() *SyncConfigManager {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm, ok := m.store[CMSync].(*SyncConfigManager)
	if !ok {
		log.Panic("implementation mistake, no CMSync found")
		return nil
	}
	return cm
}

func (m *Manager) Sites() *SitesConfigManager {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm, ok := m.store[CMSites].(*SitesConfigManager)
	if !ok {
		log.Panic("implementation mistake, no CMSites found")
		return nil
	}
	return cm
}

func (m *Manager) System() *SystemConfigManager {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm, ok := m.store[CMSystem].(*SystemConfigManager)
	if !ok {
		log.Panic("implementation mistake, no CMSystem found")
		return nil
	}
	return cm
}

func (m *Manager) Load(path string, acceptEmptyConfig bool) error {
	data, err := os.ReadFile(path)
	if err == nil {
		if err = toml.Unmarshal(data, m.config); err != nil {
			log.Error("failed to unmarshal config file", zap.Error(err))
		}
	}

	if err != nil && !acceptEmptyConfig {
		return err
	}

	// Store the load path
	m.path = path

	// Each config section manager gets his own locking primitive
	m.store = ConfigManagerStore{
		CMClient:    NewClientConfigManager(&m.config.Client, m),
		CMDetection: NewDetectionConfigManager(&m.config.Detection, m),
		CMModem:     NewModemConfigManager(&m.config.Modem, m),
		CMSync:      NewSyncConfigManager(&m.config.Sync, m),
		CMSites:     NewSitesConfigManager(&m.config.Sites, m),
		CMSystem:    NewSystemConfigManager(&m.config.System, m),
	}

	// Verify all configs contain the mandatory values
	for _, value := range m.store {
		if err := value.Verify(); err != nil {
			return err
		}
	}

	// Debug log output
	log.Debug("active config", zap.Any("config", m.config), zap.String("path", m.path))

	return nil
}

// Save locks all configs and writes it to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Lock all config managers
	for _, value := range m.store {
		value.lock()
	}

	// Unlock the config managers when we are done
	defer func() {
		for _, value := range m.store {
			value.unlock()
		}
	}()

	// Marshal the config, does not use getters, so no locking => safe
	configData, err := toml.Marshal(m.config)
	if err != nil {
		return err
	}

	if err := os.WriteFile(m.path, configData, 0644); err != nil {
		log.Error("Failed to write config file", zap.Error(err))
		return err
	}

	return nil
}

func New() *MainConfig {
	return &MainConfig{}
}

func NewManager() *Manager {
	return &Manager{
		mu:     sync.RWMutex{},
		store:  make(ConfigManagerStore),
		config: New(),
	}
}

func ParseCLIFlags() CLIFlags {
	flags := CLIFlags{}

	flag.StringVar(&flags.ConfigPath, "config", DefaultConfigPath, "relative or absolute path to the config file")
	flag.StringVar(&flags.RootCert, "rootcert", "", "relative or absolute path to the root certificate used for server validation")
	flag.BoolVar(&flags.Debug, "debug", DefaultDebugModeValue, "true if the debug logging should be enabled")

	flag.Parse()

	return flags
}

type TOMLDuration time.Duration

func (d *TOMLDuration) UnmarshalText(b []byte) error {
	x, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = TOMLDuration(x)
	return nil
}

func (c TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(c).String()), nil
}

func (c TOMLDuration) Value() time.Duration {
	return time.Duration(c)
}

// Convenience accessors for the values the orchestration loop reads on
// every tick
func (m *Manager) DeviceName() string {
	return m.Client().C().DeviceName
}

func (m *Manager) EmergencyContacts() []string {
	return m.Modem().C().EmergencyContacts
}

func (m *Manager) AlertCooldown() time.Duration {
	cooldown := m.Modem().C().AlertCooldown
	return cooldown.Value()
}
