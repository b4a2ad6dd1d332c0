package modem

import (
	"strings"
	"sync"
	"time"

	"github.com/DisasterSentry/client/pkg/log"
	"go.uber.org/zap"
)

const (
	// MaxFixAge bounds how long a cached fix may substitute for a failed
	// live acquisition
	MaxFixAge = 300 * time.Second

	gpsPowerOnTimeout = 15 * time.Second
	gpsInfoTimeout    = 10 * time.Second

	// FixStatusNone and FixStatusAcquired describe the last acquisition result
	FixStatusNone     = "No Fix"
	FixStatusAcquired = "3D Fix"
)

// GPSStatus is a point-in-time snapshot of the acquisition state
type GPSStatus struct {
	Connected     bool     `json:"connected"`
	Enabled       bool     `json:"enabled"`
	FixStatus     string   `json:"fix_status"`
	LastFix       *Fix     `json:"last_fix,omitempty"`
	CacheAge      *float64 `json:"cache_age_seconds,omitempty"`
	PowerResponse string   `json:"power_response,omitempty"`
	SignalQuality string   `json:"signal_quality,omitempty"`
}

// GPS acquires position fixes through the shared modem command channel.
//
// A fix attempt first issues the regular info query and falls back to the
// alternative query format, both grammars are accepted (§fix.go). Failed
// acquisitions degrade to the cached fix while it is younger than MaxFixAge.
type GPS struct {
	channel *Channel

	cacheMu  sync.Mutex
	lastFix  *Fix
	cachedAt time.Time

	enabled   bool
	fixStatus string

	// overridable for tests
	settleDelay time.Duration
	retryDelay  time.Duration
	clock       func() time.Time
}

func NewGPS(channel *Channel) *GPS {
	return &GPS{
		channel:     channel,
		fixStatus:   FixStatusNone,
		settleDelay: 3 * time.Second,
		retryDelay:  5 * time.Second,
		clock:       time.Now,
	}
}

// Enable powers the GPS engine on. Returns false and stays disabled when the
// channel cannot be brought up or the modem rejects the power command.
func (g *GPS) Enable() bool {
	if !g.channel.Connect() {
		return false
	}

	log.Info("enabling GPS")
	resp := g.channel.Send(AtGpsPowerOn, gpsPowerOnTimeout)
	if !strings.Contains(resp, AtReplyOk) {
		log.Error("failed to enable GPS", zap.String("response", resp))
		return false
	}

	g.enabled = true

	// Give the engine time to start searching before the first info query
	time.Sleep(g.settleDelay)
	return true
}

// Disable powers the GPS engine off, best effort
func (g *GPS) Disable() {
	if !g.channel.Connected() {
		return
	}

	log.Info("disabling GPS")
	g.channel.Send(AtGpsPowerOff, DefaultCommandTimeout)
	g.enabled = false
}

// Coordinates tries up to maxAttempts times to acquire a live fix, enabling
// the engine first if needed. When every attempt fails, a cached fix younger
// than MaxFixAge is served instead, otherwise nil.
func (g *GPS) Coordinates(maxAttempts int) *Fix {
	if !g.enabled {
		if !g.Enable() {
			return nil
		}
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log.Info("GPS fix attempt", zap.Int("attempt", attempt), zap.Int("max", maxAttempts))

		resp := g.channel.Send(AtGpsInfo, gpsInfoTimeout)
		if strings.Contains(resp, AtReplyOk) && strings.Contains(resp, TagGpsInfo) {
			if fix := parseInfoResponse(resp, g.clock()); fix != nil {
				g.storeFix(fix)
				g.fixStatus = FixStatusAcquired
				return fix
			}
		}

		// Alternative query, some firmware replies in decimal degrees
		resp = g.channel.Send(AtGpsInfoAlt, gpsInfoTimeout)
		if resp != "" {
			if fix := parseDecimalResponse(resp, g.clock()); fix != nil {
				g.storeFix(fix)
				return fix
			}
		}

		if attempt < maxAttempts {
			log.Info("GPS fix failed, retrying", zap.Duration("delay", g.retryDelay))
			time.Sleep(g.retryDelay)
		}
	}

	g.fixStatus = FixStatusNone
	log.Warn("GPS acquisition failed after all attempts")

	return g.cachedFix()
}

// cachedFix returns the last fix while it is fresh enough to stand in for a
// live one. Staleness favors no data over wrong data.
func (g *GPS) cachedFix() *Fix {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()

	if g.lastFix == nil {
		return nil
	}

	age := g.clock().Sub(g.cachedAt)
	if age >= MaxFixAge {
		log.Debug("cached fix too old", zap.Duration("age", age))
		return nil
	}

	log.Info("serving cached GPS fix", zap.Duration("age", age))
	return g.lastFix
}

func (g *GPS) storeFix(fix *Fix) {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	g.lastFix = fix
	g.cachedAt = g.clock()
}

// TestConnection probes the modem with a bare AT
func (g *GPS) TestConnection() bool {
	if !g.channel.Connect() {
		return false
	}

	return strings.Contains(g.channel.Send(AtProbe, ProbeTimeout), AtReplyOk)
}

// Status collects the handler state plus live power and signal diagnostics
func (g *GPS) Status() GPSStatus {
	status := GPSStatus{
		Connected: g.channel.Connected(),
		Enabled:   g.enabled,
		FixStatus: g.fixStatus,
	}

	g.cacheMu.Lock()
	status.LastFix = g.lastFix
	if g.lastFix != nil {
		age := g.clock().Sub(g.cachedAt).Seconds()
		status.CacheAge = &age
	}
	g.cacheMu.Unlock()

	if !status.Connected {
		return status
	}

	if resp := g.channel.Send(AtGpsPowerQuery, ProbeTimeout); resp != "" {
		status.PowerResponse = resp
	}

	if resp := g.channel.Send(AtSignalQuality, ProbeTimeout); strings.Contains(resp, TagSignal) {
		if colon := strings.Index(resp, ":"); colon >= 0 {
			status.SignalQuality = strings.TrimSpace(strings.SplitN(resp[colon+1:], "\n", 2)[0])
		}
	}

	return status
}

// SatelliteInfo returns the raw per-satellite report lines
func (g *GPS) SatelliteInfo() []string {
	resp := g.channel.Send(AtGpsSatellites, gpsInfoTimeout)
	if resp == "" {
		return nil
	}

	var satellites []string
	for _, line := range strings.Split(resp, "\n") {
		if strings.HasPrefix(line, TagGpsSatellites) {
			satellites = append(satellites, strings.TrimSpace(line[len(TagGpsSatellites):]))
		}
	}

	return satellites
}

// Shutdown disables the engine and closes the channel
func (g *GPS) Shutdown() {
	g.Disable()
	g.channel.Close()
}
