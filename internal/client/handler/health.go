package handler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DisasterSentry/client/pkg/log"
	"github.com/DisasterSentry/client/pkg/systemd"
	"github.com/DisasterSentry/client/pkg/usb"
)

const unitRestartTimeout = 30 * time.Second

// HealthTick verifies that the camera and the modem are still alive and feeds
// the systemd watchdog. Returns false when the client should terminate so
// systemd can give it a fresh start.
func (h *CommandHandler) HealthTick() bool {
	app := h.app
	sysConf := app.Conf.System().C()

	if sysConf.WatchdogEnabled {
		if err := systemd.EntertainWatchdog(); err != nil {
			log.Debug("watchdog notify failed", zap.Error(err))
		}
	}

	if app.SMS != nil && !app.SMS.TestConnection() {
		log.Warn("modem stopped responding to the probe command")

		// A usb reset brings a wedged SIM7600 back more often than not
		if app.UsbManager != nil {
			if err := app.UsbManager.ResetDevice(usb.ModemSIM7600); err != nil {
				log.Error("modem usb reset failed", zap.Error(err))
			}
		}
	}

	if app.Engine == nil {
		return true
	}

	h.RLock()
	failures := h.cameraFailures
	h.RUnlock()

	// A single dropped frame recovers on its own, a camera that produced
	// nothing since the previous health check does not
	if failures == 0 {
		h.Lock()
		h.restartAttempts = 0
		h.Unlock()
		return true
	}

	log.Warn("camera delivered no frames since the last health check", zap.Int("failedCycles", failures))

	if !sysConf.AutoRestart {
		return true
	}

	return h.tryUnitRestart(sysConf.RestartUnit, sysConf.MaxRestartAttempts)
}

func (h *CommandHandler) tryUnitRestart(unitName string, maxAttempts int) bool {
	h.Lock()
	h.restartAttempts++
	attempt := h.restartAttempts
	h.Unlock()

	if attempt > maxAttempts {
		log.Error("camera did not recover, giving up and terminating", zap.Int("attempts", attempt-1))
		return false
	}

	if h.app.SystemdConnector == nil {
		log.Error("no dbus connection for the unit restart, terminating instead")
		return false
	}

	log.Info("restarting unit to recover the camera", zap.String("unit", unitName), zap.Int("attempt", attempt))

	ctx, cancel := context.WithTimeout(context.Background(), unitRestartTimeout)
	defer cancel()

	ok, err := h.app.SystemdConnector.RestartUnit(unitName, ctx)
	if err != nil || !ok {
		log.Error("unit restart failed", zap.String("unit", unitName), zap.Bool("done", ok), zap.Error(err))
	}

	return true
}
