package handler

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/DisasterSentry/client/internal/client/api"
	"github.com/DisasterSentry/client/internal/client/net"
	"github.com/DisasterSentry/client/pkg/sensors"
)

// BuildStatus collects the periodic health snapshot. Every field is
// best-effort, a dead modem must not prevent the report that says so.
func (h *CommandHandler) BuildStatus() api.DeviceStatus {
	app := h.app

	status := api.DeviceStatus{
		OsVersion:     readOsVersion(),
		StatusTime:    time.Now().Unix(),
		UptimeSeconds: int64(time.Since(app.StartTime).Seconds()),
		Temperature:   sensors.MaxCelsius(),
	}

	if app.GPS != nil {
		gpsStatus := app.GPS.Status()
		status.GpsFixStatus = gpsStatus.FixStatus
		if gpsStatus.LastFix != nil {
			status.LocationLat = &gpsStatus.LastFix.Latitude
			status.LocationLon = &gpsStatus.LastFix.Longitude
		}
	}

	if app.SMS != nil {
		stats := app.SMS.Stats()
		status.SmsSent = stats.Sent
		status.SmsFailed = stats.Failed

		smsStatus := app.SMS.Status()
		if smsStatus.Signal != nil {
			status.SignalQuality = smsStatus.Signal.Quality
		}
	}

	if app.NetworkService != nil {
		gsmStatus, _ := app.NetworkService.GetConnectionStateStr(net.GSM)
		wifiStatus, _ := app.NetworkService.GetConnectionStateStr(net.WiFi)
		ethStatus, _ := app.NetworkService.GetConnectionStateStr(net.Ethernet)

		status.LTE = gsmStatus
		status.WiFi = wifiStatus
		status.Ethernet = ethStatus
	}

	return status
}

// readOsVersion pulls PRETTY_NAME out of os-release
func readOsVersion() string {
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return "unknown"
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if value, found := strings.CutPrefix(line, "PRETTY_NAME="); found {
			return strings.Trim(value, `"`)
		}
	}

	return "unknown"
}
