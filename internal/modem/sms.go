package modem

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DisasterSentry/client/pkg/log"
	"go.uber.org/zap"
)

const (
	// MaxMessageLength is the single-SMS text budget in GSM text mode
	MaxMessageLength = 160

	// partOverhead reserves room for the "[i/N] " prefix on multipart sends
	partOverhead = 10

	// DefaultSendAttempts bounds retries per message part
	DefaultSendAttempts = 3

	// sendConfirmTimeout is longer than the command timeout because the
	// network round trip dominates once the body is submitted
	sendConfirmTimeout = 30 * time.Second

	registrationAttempts = 5
)

var (
	phoneStripPattern = regexp.MustCompile(`[^\d+]`)
	digitsOnly        = regexp.MustCompile(`^\d+$`)
	registrationStat  = regexp.MustCompile(`\+CREG:\s*\d+,(\d+)`)
	sendRefPattern    = regexp.MustCompile(`\+CMGS:\s*(\d+)`)
	signalPattern     = regexp.MustCompile(`\+CSQ:\s*(\d+),(\d+)`)
)

// SendStats counts outcomes across the handler lifetime. Only the send path
// mutates it, status queries read a copy.
type SendStats struct {
	Sent         int        `json:"sent"`
	Failed       int        `json:"failed"`
	LastSendTime *time.Time `json:"last_send_time,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// SignalStrength is the decoded +CSQ report
type SignalStrength struct {
	RSSI    int    `json:"rssi"`
	BER     int    `json:"ber"`
	Quality string `json:"quality"`
}

// SMSStatus is a point-in-time snapshot for diagnostics and telemetry
type SMSStatus struct {
	Connected  bool            `json:"connected"`
	Ready      bool            `json:"ready"`
	Registered bool            `json:"registered"`
	Statistics SendStats       `json:"statistics"`
	Signal     *SignalStrength `json:"signal,omitempty"`
	SimStatus  string          `json:"sim_status,omitempty"`
	Operator   string          `json:"operator,omitempty"`
}

// StoredMessage is a text message read back from the SIM store
type StoredMessage struct {
	Index   string `json:"index"`
	Status  string `json:"status"`
	Sender  string `json:"sender"`
	Time    string `json:"time,omitempty"`
	Content string `json:"content"`
}

// SMS dispatches text messages through the shared modem command channel.
// Initialization happens lazily on the first send and fails closed when the
// network never registers or text mode cannot be confirmed.
type SMS struct {
	channel *Channel

	statsMu sync.Mutex
	stats   SendStats

	ready      bool
	registered bool

	// overridable for tests
	retryDelay     time.Duration
	promptDelay    time.Duration
	confirmTimeout time.Duration
}

func NewSMS(channel *Channel) *SMS {
	return &SMS{
		channel:        channel,
		retryDelay:     5 * time.Second,
		promptDelay:    2 * time.Second,
		confirmTimeout: sendConfirmTimeout,
	}
}

// ValidatePhoneNumber strips everything but digits and '+' and checks the
// remaining shape: international numbers carry 7-15 digits after the plus,
// local ones 10-11 plain digits. Invalid numbers are rejected before any
// modem I/O happens.
func ValidatePhoneNumber(number string) bool {
	cleaned := phoneStripPattern.ReplaceAllString(number, "")
	if cleaned == "" {
		return false
	}

	if strings.HasPrefix(cleaned, "+") {
		digits := cleaned[1:]
		return digitsOnly.MatchString(digits) && len(digits) >= 7 && len(digits) <= 15
	}

	return digitsOnly.MatchString(cleaned) && len(cleaned) >= 10 && len(cleaned) <= 11
}

// SplitMessage breaks a long body into SMS-sized parts on word boundaries.
// Parts are sized against the effective budget that leaves room for the
// "[i/N] " prefix, a single oversized word is hard-split.
func SplitMessage(message string, maxLength int) []string {
	if len(message) <= maxLength {
		return []string{message}
	}

	effective := maxLength - partOverhead

	var parts []string
	var current string
	for _, word := range strings.Fields(message) {
		switch {
		case current == "" && len(word) <= effective:
			current = word
		case current != "" && len(current)+1+len(word) <= effective:
			current += " " + word
		case current != "":
			parts = append(parts, current)
			current = word
		default:
			// Word alone exceeds the budget
			parts = append(parts, word[:effective])
			current = word[effective:]
		}
	}

	if current != "" {
		parts = append(parts, current)
	}

	return parts
}

// Initialize brings the modem into a sendable state: network registration,
// text mode, character set, notifications and storage selection. Only the
// first two are hard requirements.
func (s *SMS) Initialize() bool {
	if !s.channel.Connect() {
		return false
	}

	log.Info("initializing SMS")

	if !s.checkRegistration() {
		log.Error("network not registered")
		return false
	}

	if resp := s.channel.Send(AtTextMode, DefaultCommandTimeout); !strings.Contains(resp, AtReplyOk) {
		log.Error("failed to set SMS text mode", zap.String("response", resp))
		return false
	}

	// Fire and forget, senders work without these succeeding
	s.channel.Send(AtCharset, DefaultCommandTimeout)
	s.channel.Send(AtNotifications, DefaultCommandTimeout)
	s.channel.Send(AtStorage, DefaultCommandTimeout)

	s.ready = true
	log.Info("SMS initialized")
	return true
}

// checkRegistration polls the registration state, accepting home (1) and
// roaming (5) and backing off between attempts while the modem searches.
func (s *SMS) checkRegistration() bool {
	for attempt := 1; attempt <= registrationAttempts; attempt++ {
		resp := s.channel.Send(AtNetworkReg, DefaultCommandTimeout)
		if match := registrationStat.FindStringSubmatch(resp); match != nil {
			stat, _ := strconv.Atoi(match[1])
			switch stat {
			case 1, 5:
				s.registered = true
				log.Info("network registered", zap.Int("stat", stat))
				return true
			case 2:
				log.Info("network searching", zap.Int("attempt", attempt))
			default:
				log.Warn("network not registered", zap.Int("stat", stat))
			}
		}

		if attempt < registrationAttempts {
			time.Sleep(s.retryDelay)
		}
	}

	s.registered = false
	return false
}

// SendMessage validates, splits and sends a message. A multipart message
// aborts after the first failed part, the remaining parts are not attempted.
func (s *SMS) SendMessage(number string, body string, maxAttempts int) bool {
	if !s.ready {
		if !s.Initialize() {
			return false
		}
	}

	if !ValidatePhoneNumber(number) {
		log.Error("invalid phone number", zap.String("number", number))
		return false
	}

	parts := SplitMessage(body, MaxMessageLength)
	for i, part := range parts {
		if !s.sendPart(number, part, maxAttempts, i+1, len(parts)) {
			return false
		}
	}

	return true
}

// sendPart pushes one message part through the recipient/prompt/body/confirm
// sequence with bounded retries. The failed counter moves once per part, not
// once per attempt.
func (s *SMS) sendPart(number string, part string, maxAttempts int, partNum int, totalParts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = DefaultSendAttempts
	}

	payload := part
	if totalParts > 1 {
		payload = fmt.Sprintf("[%d/%d] %s", partNum, totalParts, part)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log.Info("sending SMS",
			zap.String("number", number),
			zap.Int("part", partNum), zap.Int("total", totalParts),
			zap.Int("attempt", attempt))

		resp := s.channel.Send(fmt.Sprintf(`AT+CMGS="%s"`, number), DefaultCommandTimeout, AtPrompt)
		if !strings.Contains(resp, AtPrompt) {
			log.Error("no SMS prompt received", zap.String("response", resp))
			if attempt < maxAttempts {
				time.Sleep(s.promptDelay)
				continue
			}
			s.recordFailure("failed to set recipient")
			return false
		}

		// Body followed by Ctrl+Z submits the message to the network
		confirm := s.channel.SendData(append([]byte(payload), AtCtrlZ), s.confirmTimeout, TagSendRef, AtReplyError)

		if match := sendRefPattern.FindStringSubmatch(confirm); match != nil {
			log.Info("SMS sent", zap.String("number", number), zap.String("ref", match[1]))
			s.recordSuccess()
			return true
		}

		if strings.Contains(confirm, AtReplyError) {
			log.Error("SMS send rejected", zap.String("response", confirm))
		} else {
			log.Error("SMS send timeout, no confirmation received")
		}

		if attempt < maxAttempts {
			time.Sleep(s.retryDelay)

			// Re-probe in case the channel wedged mid-transaction
			s.channel.Send(AtProbe, ProbeTimeout)
		}
	}

	s.recordFailure("all send attempts failed")
	return false
}

func (s *SMS) recordSuccess() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Sent++
	now := time.Now()
	s.stats.LastSendTime = &now
}

func (s *SMS) recordFailure(reason string) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Failed++
	s.stats.LastError = reason
}

// Stats returns a copy of the send counters
func (s *SMS) Stats() SendStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// Status collects handler state plus live signal, SIM and operator info
func (s *SMS) Status() SMSStatus {
	status := SMSStatus{
		Connected:  s.channel.Connected(),
		Ready:      s.ready,
		Registered: s.registered,
		Statistics: s.Stats(),
	}

	if !status.Connected {
		return status
	}

	if resp := s.channel.Send(AtSignalQuality, ProbeTimeout); resp != "" {
		if match := signalPattern.FindStringSubmatch(resp); match != nil {
			rssi, _ := strconv.Atoi(match[1])
			ber, _ := strconv.Atoi(match[2])
			status.Signal = &SignalStrength{RSSI: rssi, BER: ber, Quality: DescribeSignal(rssi)}
		}
	}

	if resp := s.channel.Send(AtSimStatus, ProbeTimeout); resp != "" {
		status.SimStatus = resp
	}

	if resp := s.channel.Send(AtOperator, ProbeTimeout); strings.Contains(resp, TagOperator) {
		status.Operator = resp
	}

	return status
}

// DescribeSignal buckets a +CSQ RSSI value into a human readable rating
func DescribeSignal(rssi int) string {
	switch {
	case rssi == 99:
		return "Unknown"
	case rssi >= 20:
		return "Excellent"
	case rssi >= 15:
		return "Good"
	case rssi >= 10:
		return "Fair"
	case rssi >= 5:
		return "Poor"
	default:
		return "Very Poor"
	}
}

// ReadMessages lists stored messages, index "ALL" reads the whole store
func (s *SMS) ReadMessages(index string) []StoredMessage {
	if !s.ready {
		if !s.Initialize() {
			return nil
		}
	}

	cmd := fmt.Sprintf(`AT+CMGL="%s"`, index)
	if index != "ALL" {
		cmd = "AT+CMGR=" + index
	}

	resp := s.channel.Send(cmd, 15*time.Second)
	if resp == "" {
		return nil
	}

	var messages []StoredMessage
	lines := strings.Split(resp, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, TagListMessage) && !strings.HasPrefix(line, TagReadMessage) {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			continue
		}

		msg := StoredMessage{
			Index:  strings.TrimSpace(strings.SplitN(fields[0], ":", 2)[1]),
			Status: strings.Trim(strings.TrimSpace(fields[1]), `"`),
			Sender: strings.Trim(strings.TrimSpace(fields[2]), `"`),
		}
		if len(fields) > 4 {
			msg.Time = strings.Trim(strings.TrimSpace(fields[4]), `"`)
		}

		// The body follows on the next line
		if i+1 < len(lines) {
			msg.Content = strings.TrimSpace(lines[i+1])
		}

		messages = append(messages, msg)
	}

	return messages
}

// DeleteMessage removes one stored message, or the whole store for "ALL"
func (s *SMS) DeleteMessage(index string) bool {
	cmd := "AT+CMGD=" + index
	if index == "ALL" {
		cmd = "AT+CMGD=1,4"
	}

	resp := s.channel.Send(cmd, DefaultCommandTimeout)
	ok := strings.Contains(resp, AtReplyOk)
	if ok {
		log.Info("SMS deleted", zap.String("index", index))
	} else {
		log.Error("failed to delete SMS", zap.String("index", index))
	}

	return ok
}

// TestConnection probes the modem with a bare AT
func (s *SMS) TestConnection() bool {
	if !s.channel.Connect() {
		return false
	}

	return strings.Contains(s.channel.Send(AtProbe, ProbeTimeout), AtReplyOk)
}

// Shutdown closes the channel
func (s *SMS) Shutdown() {
	s.channel.Close()
}
