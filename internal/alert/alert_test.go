package alert

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/DisasterSentry/client/internal/client/config"
	"github.com/DisasterSentry/client/internal/detection"
	"github.com/DisasterSentry/client/internal/modem"
	"github.com/DisasterSentry/client/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init(true)
	os.Exit(m.Run())
}

type fakeSender struct {
	sent    []string
	bodies  []string
	failAll bool
}

func (s *fakeSender) SendMessage(number string, body string, maxAttempts int) bool {
	s.sent = append(s.sent, number)
	s.bodies = append(s.bodies, body)
	return !s.failAll
}

func sampleRecord() *detection.Record {
	return &detection.Record{
		Id:   "det-1",
		Time: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
		Counts: map[string]int{
			"person": 2,
			"cat":    1,
		},
		Fix: &modem.Fix{Latitude: 48.1173, Longitude: 11.5167},
	}
}

func TestFormatMessage(t *testing.T) {
	site := &config.EvacuationSite{Name: "Community Center", Address: "1 Main St"}
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	message := FormatMessage(sampleRecord(), site, now)

	assert.Contains(t, message, "DISASTER RESPONSE ALERT")
	assert.Contains(t, message, "Detected: 2 people, 1 cats")
	assert.Contains(t, message, "Location: 48.117300, 11.516700")
	assert.Contains(t, message, "Google Maps: https://maps.google.com/?q=48.117300,11.516700")
	assert.Contains(t, message, "Evacuate to: Community Center")
	assert.Contains(t, message, "Address: 1 Main St")
	assert.Contains(t, message, "Time: 2026-08-31 12:00:00")
}

func TestFormatMessageNoFixNoSite(t *testing.T) {
	record := sampleRecord()
	record.Fix = nil

	message := FormatMessage(record, nil, time.Now())

	assert.Contains(t, message, "Location: GPS unavailable")
	assert.NotContains(t, message, "Evacuate to")
	assert.NotContains(t, message, "Google Maps")
}

func TestDispatchFansOut(t *testing.T) {
	sender := &fakeSender{}
	dispatcher := NewDispatcher(sender, []string{"+14155552671", "+14155552672"}, 5*time.Minute, 2)

	require.True(t, dispatcher.Dispatch(sampleRecord(), nil))
	assert.Equal(t, []string{"+14155552671", "+14155552672"}, sender.sent)

	// Same body for every contact
	require.Len(t, sender.bodies, 2)
	assert.Equal(t, sender.bodies[0], sender.bodies[1])
}

func TestDispatchCooldown(t *testing.T) {
	sender := &fakeSender{}
	dispatcher := NewDispatcher(sender, []string{"+14155552671"}, 5*time.Minute, 1)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	dispatcher.clock = func() time.Time { return now }

	require.True(t, dispatcher.Dispatch(sampleRecord(), nil))
	require.Len(t, sender.sent, 1)

	// Inside the window nothing goes out
	dispatcher.clock = func() time.Time { return now.Add(4 * time.Minute) }
	assert.False(t, dispatcher.Dispatch(sampleRecord(), nil))
	assert.Len(t, sender.sent, 1)

	// After the window the next alert flows
	dispatcher.clock = func() time.Time { return now.Add(5*time.Minute + time.Second) }
	assert.True(t, dispatcher.Dispatch(sampleRecord(), nil))
	assert.Len(t, sender.sent, 2)
}

func TestDispatchCooldownStartsOnAttempt(t *testing.T) {
	sender := &fakeSender{failAll: true}
	dispatcher := NewDispatcher(sender, []string{"+14155552671"}, 5*time.Minute, 1)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	dispatcher.clock = func() time.Time { return now }

	assert.False(t, dispatcher.Dispatch(sampleRecord(), nil))

	// The failed attempt still armed the cooldown
	dispatcher.clock = func() time.Time { return now.Add(time.Minute) }
	assert.False(t, dispatcher.Dispatch(sampleRecord(), nil))
	assert.Len(t, sender.sent, 1)
}

func TestDispatchNoContacts(t *testing.T) {
	sender := &fakeSender{}
	dispatcher := NewDispatcher(sender, nil, time.Minute, 1)

	assert.False(t, dispatcher.Dispatch(sampleRecord(), nil))
	assert.Empty(t, sender.sent)
}

func TestFormatMessageFitsPluralization(t *testing.T) {
	record := sampleRecord()
	record.Counts = map[string]int{"dog": 3}

	message := FormatMessage(record, nil, time.Now())
	require.True(t, strings.Contains(message, "Detected: 3 dogs"))
}
