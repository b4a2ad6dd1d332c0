package alert

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/DisasterSentry/client/internal/client/config"
	"github.com/DisasterSentry/client/internal/detection"
	"github.com/DisasterSentry/client/pkg/log"
	"go.uber.org/zap"
)

const header = "DISASTER RESPONSE ALERT"

// classLabels maps detection classes to the wording used in the message
// body. Person gets a proper plural, the rest a plain 's'.
func classLabel(class string, count int) string {
	if class == "person" {
		return fmt.Sprintf("%d people", count)
	}
	return fmt.Sprintf("%d %ss", count, class)
}

// Sender is the SMS surface the dispatcher needs, satisfied by modem.SMS
type Sender interface {
	SendMessage(number string, body string, maxAttempts int) bool
}

// Dispatcher gates alert delivery behind the cooldown and fans one message
// out to every emergency contact.
type Dispatcher struct {
	sender   Sender
	contacts []string
	cooldown time.Duration
	attempts int

	mu       sync.Mutex
	lastSent time.Time

	clock func() time.Time
}

func NewDispatcher(sender Sender, contacts []string, cooldown time.Duration, attempts int) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		contacts: contacts,
		cooldown: cooldown,
		attempts: attempts,
		clock:    time.Now,
	}
}

// Dispatch formats and sends the alert unless the cooldown is still active.
// The cooldown starts when a dispatch is attempted, not when it succeeds, so
// a dead network does not produce a message burst once it recovers.
func (d *Dispatcher) Dispatch(record *detection.Record, site *config.EvacuationSite) bool {
	d.mu.Lock()
	if !d.lastSent.IsZero() {
		elapsed := d.clock().Sub(d.lastSent)
		if elapsed < d.cooldown {
			d.mu.Unlock()
			log.Info("SMS cooldown active", zap.Duration("remaining", d.cooldown-elapsed))
			return false
		}
	}
	d.lastSent = d.clock()
	d.mu.Unlock()

	if len(d.contacts) == 0 {
		log.Warn("no emergency contacts configured")
		return false
	}

	message := FormatMessage(record, site, d.clock())

	delivered := 0
	for _, contact := range d.contacts {
		if d.sender.SendMessage(contact, message, d.attempts) {
			log.Info("alert sent", zap.String("contact", contact))
			delivered++
		} else {
			log.Error("failed to send alert", zap.String("contact", contact))
		}
	}

	return delivered > 0
}

// FormatMessage builds the alert body: counts, location with a maps link,
// the primary evacuation site and a timestamp.
func FormatMessage(record *detection.Record, site *config.EvacuationSite, now time.Time) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')

	var parts []string
	for _, class := range []string{"person", "cat", "dog"} {
		if count := record.Counts[class]; count > 0 {
			parts = append(parts, classLabel(class, count))
		}
	}
	for class, count := range record.Counts {
		if class == "person" || class == "cat" || class == "dog" || count == 0 {
			continue
		}
		parts = append(parts, classLabel(class, count))
	}
	if len(parts) > 0 {
		b.WriteString("Detected: " + strings.Join(parts, ", ") + "\n")
	}

	if record.Fix != nil {
		fmt.Fprintf(&b, "Location: %.6f, %.6f\n", record.Fix.Latitude, record.Fix.Longitude)
		b.WriteString("Google Maps: " + record.Fix.MapsLink() + "\n")
	} else {
		b.WriteString("Location: GPS unavailable\n")
	}

	if site != nil {
		b.WriteString("Evacuate to: " + site.Name + "\n")
		address := site.Address
		if address == "" {
			address = "Address unavailable"
		}
		b.WriteString("Address: " + address + "\n")
	}

	b.WriteString("Time: " + now.Format("2006-01-02 15:04:05"))

	return b.String()
}
