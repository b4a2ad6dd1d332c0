package client

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DisasterSentry/client/internal/alert"
	"github.com/DisasterSentry/client/internal/client/api"
	"github.com/DisasterSentry/client/internal/client/config"
	"github.com/DisasterSentry/client/internal/client/net"
	"github.com/DisasterSentry/client/internal/client/telemetry"
	"github.com/DisasterSentry/client/internal/detection"
	"github.com/DisasterSentry/client/internal/modem"
	"github.com/DisasterSentry/client/pkg/log"
	"github.com/DisasterSentry/client/pkg/sensors"
	"github.com/DisasterSentry/client/pkg/systemd"
	"github.com/DisasterSentry/client/pkg/usb"
)

// App global app struct that contains all services
type App struct {
	// A global wait group, all go routines that should
	// terminate when the application ends should be registered here
	WG sync.WaitGroup

	ReloadSignal chan os.Signal
	ExitSignal   chan os.Signal

	// The API
	Api *api.RestAPI

	Conf *config.Manager

	SystemdConnector *systemd.Connector

	// Modem services, all nil when the modem section is disabled
	ModemChannel *modem.Channel
	GPS          *modem.GPS
	SMS          *modem.SMS

	Engine         *detection.Engine
	Alerts         *alert.Dispatcher
	Telemetry      *telemetry.Publisher
	NetworkService net.Service
	UsbManager     *usb.USBDeviceManager

	StartTime   time.Time
	TestRunning bool
}

func (a *App) Shutdown() {
	if a.Engine != nil {
		a.Engine.Shutdown()
	}

	if a.GPS != nil {
		a.GPS.Shutdown()
	}

	if a.SMS != nil {
		a.SMS.Shutdown()
	}

	if a.ModemChannel != nil {
		a.ModemChannel.Close()
	}

	if a.Telemetry != nil {
		a.Telemetry.Shutdown()
	}

	if a.NetworkService != nil {
		a.NetworkService.Shutdown()
	}

	// Close the systemd connector
	if a.SystemdConnector != nil {
		_ = a.SystemdConnector.Shutdown()
	}

	if a.UsbManager != nil {
		a.UsbManager.Shutdown()
	}
}

func (a *App) loadConfiguration(configPath string, rootCert string, acceptEmptyConfig bool) error {
	// Create the new config manager and load the configuration
	a.Conf = config.NewManager()
	if err := a.Conf.Load(configPath, acceptEmptyConfig); err != nil {
		log.Error("an error occurred while trying to load the config file, trying default path", zap.String("path", configPath), zap.Error(err))
		err = a.Conf.Load(config.DefaultConfigPath, acceptEmptyConfig)
		if err != nil {
			// Only terminate if empty configs are not okay
			if !acceptEmptyConfig {
				return err
			}
		}
	}

	// Allow overwriting the root certificate
	if len(rootCert) != 0 {
		a.Conf.Sync().Set(func(param *config.SyncConfig) {
			param.RootCertificate = rootCert
		})
	}

	return nil
}

// startModemServices brings up the AT channel and the GPS and SMS handlers.
// A failure here is not fatal, the device keeps detecting and logging locally.
func startModemServices(app *App) {
	modemConf := app.Conf.Modem().C()
	if modemConf.Disabled {
		log.Info("modem disabled by configuration, alerts and gps unavailable")
		return
	}

	channel := modem.NewChannel(modem.NewSerialDialer(modemConf.Device, modemConf.BaudRate))
	if !channel.Connect() {
		log.Error("could not open modem channel, alerts and gps unavailable", zap.String("device", modemConf.Device))
		return
	}
	app.ModemChannel = channel

	app.GPS = modem.NewGPS(channel)
	if !app.GPS.Enable() {
		log.Warn("gps could not be enabled, records will carry no location")
	}

	app.SMS = modem.NewSMS(channel)
	if !app.SMS.Initialize() {
		log.Warn("sms initialization failed, will retry on first dispatch")
	}

	app.Alerts = alert.NewDispatcher(
		app.SMS,
		modemConf.EmergencyContacts,
		modemConf.AlertCooldown.Value(),
		modemConf.SendAttempts,
	)
}

// startDetectionEngine wires the camera and detector backends into the engine
func startDetectionEngine(app *App) error {
	detConf := app.Conf.Detection().C()
	if detConf.Disabled {
		log.Info("detection disabled by configuration")
		return nil
	}

	camera, err := detection.NewCamera(detection.STUB)
	if err != nil {
		return err
	}

	detector, err := detection.NewDetector(detection.STUB)
	if err != nil {
		camera.Shutdown()
		return err
	}

	app.Engine = detection.NewEngine(
		camera,
		detector,
		detConf.Classes,
		detConf.ConfidenceThreshold,
		detConf.SnapshotDir,
		detConf.LogPath,
	)

	return nil
}

func startNetworkService(app *App) {
	nsvc, err := net.NewService()
	if err != nil {
		log.Error("Network service could not be started", zap.Error(err))
	}

	app.NetworkService = nsvc
}

func startTelemetry(app *App) {
	publisher, err := telemetry.NewPublisher(app.Conf.System().C().Telemetry, app.Conf.DeviceName())
	if err != nil {
		log.Error("telemetry publisher could not be started, continuing without", zap.Error(err))
		return
	}

	app.Telemetry = publisher
}

func Setup(instrumentation bool) (*App, error) {
	app := App{StartTime: time.Now()}

	// Skip cli flag parsing on testing
	var flags config.CLIFlags
	if !instrumentation {
		flags = config.ParseCLIFlags()
	} else {
		flags = config.CLIFlags{Debug: true}
		app.TestRunning = instrumentation
	}

	// Register a quit signal
	app.ExitSignal = make(chan os.Signal, 1)
	signal.Notify(app.ExitSignal, os.Interrupt, syscall.SIGTERM)

	// Register the reload signal
	app.ReloadSignal = make(chan os.Signal, 1)
	signal.Notify(app.ReloadSignal, syscall.SIGUSR1, syscall.SIGUSR2)

	// Initialize logger
	log.Init(flags.Debug)

	log.Info("client starting")

	// Load the configuration file
	err := app.loadConfiguration(flags.ConfigPath, flags.RootCert, instrumentation)
	if err != nil {
		if !instrumentation {
			app.Shutdown()
			return nil, err
		}

		// reset the error if we are running a test
		err = nil
	}

	// Dont connect to dbus when testing
	if !instrumentation {
		// Connect to systemd & dbus
		app.SystemdConnector, err = systemd.NewConnector()
		if err != nil {
			log.Warn("could not connect to dbus, all related functionality is disabled.", zap.Error(err))
			err = nil
		}

		// The network connectivity probe also runs over dbus
		startNetworkService(&app)
	}

	// Bring up the modem stack
	startModemServices(&app)

	// Bring up the detection engine, a broken backend is fatal
	if err = startDetectionEngine(&app); err != nil {
		app.Shutdown()
		log.Error("Could not initialize detection backends, aborting", zap.Error(err))
		return nil, err
	}

	if !instrumentation && !app.Conf.Sync().C().Disabled {
		// Set up the remote API
		app.Api, err = api.NewRestAPI(app.Conf, flags.Debug)
		if err != nil {
			app.Shutdown()
			log.Error("Could not initialize api, aborting", zap.Error(err))
			return &app, err
		}
	}

	// Optional MQTT heartbeat
	if !instrumentation {
		startTelemetry(&app)
	}

	// Setup usb and run the device scan to get startup output
	app.UsbManager = usb.NewUSBDeviceManager()
	app.UsbManager.FindSupportedDevices()

	// Output all system temperatures
	log.Info("system_temperatures", zap.Any("sensors", sensors.ReadTemperatures()))

	return &app, err
}
