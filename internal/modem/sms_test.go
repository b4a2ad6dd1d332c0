package modem

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSMS(steps ...scriptStep) (*SMS, *Channel, *scriptTransport) {
	channel, transport := newTestChannel(steps...)
	sms := NewSMS(channel)
	sms.retryDelay = 0
	sms.promptDelay = 0
	return sms, channel, transport
}

func smsInitSteps() []scriptStep {
	return []scriptStep{
		probeStep(),
		{expect: AtNetworkReg, reply: "\r\n+CREG: 0,1\r\n\r\nOK\r\n"},
		{expect: AtTextMode, reply: "\r\nOK\r\n"},
		{expect: AtCharset, reply: "\r\nOK\r\n"},
		{expect: AtNotifications, reply: "\r\nOK\r\n"},
		{expect: AtStorage, reply: "\r\nOK\r\n"},
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	valid := []string{
		"+14155552671",
		"+491701234567",
		"+1234567",
		"4155552671",
		"04155552671",
		"(415) 555-2671", // formatting is stripped
	}
	for _, number := range valid {
		assert.True(t, ValidatePhoneNumber(number), number)
	}

	invalid := []string{
		"",
		"+123456",           // too short after plus
		"+1234567890123456", // too long after plus
		"123456789",         // local too short
		"123456789012",      // local too long
		"+12345abc",         // letters stripped, too few digits remain
		"++14155552671",
		"abc",
	}
	for _, number := range invalid {
		assert.False(t, ValidatePhoneNumber(number), number)
	}
}

func TestSplitMessageShort(t *testing.T) {
	parts := SplitMessage("short alert", MaxMessageLength)
	require.Len(t, parts, 1)
	assert.Equal(t, "short alert", parts[0])
}

func TestSplitMessageExactLimit(t *testing.T) {
	body := strings.Repeat("a", MaxMessageLength)
	parts := SplitMessage(body, MaxMessageLength)
	require.Len(t, parts, 1)
}

func TestSplitMessageWordBoundaries(t *testing.T) {
	body := strings.TrimSpace(strings.Repeat("wildfire detected near sector seven ", 10))
	require.Greater(t, len(body), MaxMessageLength)

	parts := SplitMessage(body, MaxMessageLength)
	require.Greater(t, len(parts), 1)

	budget := MaxMessageLength - partOverhead
	for _, part := range parts {
		assert.LessOrEqual(t, len(part), budget)
		assert.NotEqual(t, "", part)
	}

	// Word-boundary splitting loses only the separators
	assert.Equal(t, strings.Fields(body), strings.Fields(strings.Join(parts, " ")))
}

func TestSplitMessageOversizedWord(t *testing.T) {
	budget := MaxMessageLength - partOverhead
	body := strings.Repeat("x", budget+25)

	parts := SplitMessage(body, MaxMessageLength)
	require.Len(t, parts, 2)
	assert.Equal(t, budget, len(parts[0]))
	assert.Equal(t, 25, len(parts[1]))
	assert.Equal(t, body, parts[0]+parts[1])
}

func TestSMSInitialize(t *testing.T) {
	sms, channel, _ := newTestSMS(smsInitSteps()...)
	defer channel.Close()

	require.True(t, sms.Initialize())
	assert.True(t, sms.ready)
	assert.True(t, sms.registered)
}

func TestSMSInitializeNotRegistered(t *testing.T) {
	steps := []scriptStep{probeStep()}
	for i := 0; i < registrationAttempts; i++ {
		steps = append(steps, scriptStep{expect: AtNetworkReg, reply: "\r\n+CREG: 0,0\r\n\r\nOK\r\n"})
	}
	sms, channel, _ := newTestSMS(steps...)
	defer channel.Close()

	assert.False(t, sms.Initialize())
	assert.False(t, sms.ready)
	assert.False(t, sms.registered)
}

func TestSMSInitializeRegistersWhileSearching(t *testing.T) {
	sms, channel, _ := newTestSMS(
		probeStep(),
		scriptStep{expect: AtNetworkReg, reply: "\r\n+CREG: 0,2\r\n\r\nOK\r\n"},
		scriptStep{expect: AtNetworkReg, reply: "\r\n+CREG: 0,5\r\n\r\nOK\r\n"},
		scriptStep{expect: AtTextMode, reply: "\r\nOK\r\n"},
		scriptStep{expect: AtCharset, reply: "\r\nOK\r\n"},
		scriptStep{expect: AtNotifications, reply: "\r\nOK\r\n"},
		scriptStep{expect: AtStorage, reply: "\r\nOK\r\n"},
	)
	defer channel.Close()

	// roaming (stat 5) is accepted on the second poll
	require.True(t, sms.Initialize())
	assert.True(t, sms.registered)
}

func TestSMSSendMessage(t *testing.T) {
	steps := append(smsInitSteps(),
		scriptStep{expect: "AT+CMGS", reply: "\r\n> "},
		scriptStep{expect: "Flood warning", reply: "\r\n+CMGS: 5\r\n\r\nOK\r\n"},
	)
	sms, channel, transport := newTestSMS(steps...)
	defer channel.Close()

	require.True(t, sms.SendMessage("+14155552671", "Flood warning at river gauge 3", 1))

	stats := sms.Stats()
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 0, stats.Failed)
	assert.NotNil(t, stats.LastSendTime)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	joined := strings.Join(transport.writes, "")
	assert.Contains(t, joined, `AT+CMGS="+14155552671"`+"\r\n")
	assert.Contains(t, joined, "Flood warning at river gauge 3"+string(AtCtrlZ))
}

func TestSMSSendMessageMultipart(t *testing.T) {
	body := strings.TrimSpace(strings.Repeat("evacuate zone four immediately ", 8))
	parts := SplitMessage(body, MaxMessageLength)
	require.Len(t, parts, 2)

	steps := smsInitSteps()
	for i := range parts {
		steps = append(steps,
			scriptStep{expect: "AT+CMGS", reply: "\r\n> "},
			scriptStep{expect: fmt.Sprintf("[%d/2]", i+1), reply: fmt.Sprintf("\r\n+CMGS: %d\r\n\r\nOK\r\n", i+1)},
		)
	}
	sms, channel, transport := newTestSMS(steps...)
	defer channel.Close()

	require.True(t, sms.SendMessage("+14155552671", body, 1))
	assert.Equal(t, 2, sms.Stats().Sent)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	joined := strings.Join(transport.writes, "")
	assert.Contains(t, joined, "[1/2] ")
	assert.Contains(t, joined, "[2/2] ")
}

func TestSMSSendMessageMultipartAbortsOnFailure(t *testing.T) {
	body := strings.TrimSpace(strings.Repeat("evacuate zone four immediately ", 8))
	require.Len(t, SplitMessage(body, MaxMessageLength), 2)

	steps := append(smsInitSteps(),
		scriptStep{expect: "AT+CMGS", reply: "\r\nERROR\r\n"},
	)
	sms, channel, transport := newTestSMS(steps...)
	defer channel.Close()

	assert.False(t, sms.SendMessage("+14155552671", body, 1))

	stats := sms.Stats()
	assert.Equal(t, 0, stats.Sent)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, "failed to set recipient", stats.LastError)

	// The second part is never attempted
	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.NotContains(t, strings.Join(transport.writes, ""), "[2/2]")
}

func TestSMSSendMessageRetriesBodyRejection(t *testing.T) {
	steps := append(smsInitSteps(),
		scriptStep{expect: "AT+CMGS", reply: "\r\n> "},
		scriptStep{expect: "hello", reply: "\r\nERROR\r\n"},
		probeStep(), // channel re-probe between attempts
		scriptStep{expect: "AT+CMGS", reply: "\r\n> "},
		scriptStep{expect: "hello", reply: "\r\n+CMGS: 7\r\n\r\nOK\r\n"},
	)
	sms, channel, _ := newTestSMS(steps...)
	defer channel.Close()

	require.True(t, sms.SendMessage("+14155552671", "hello", 2))

	stats := sms.Stats()
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 0, stats.Failed)
}

func TestSMSSendMessageAllAttemptsFail(t *testing.T) {
	steps := append(smsInitSteps(),
		scriptStep{expect: "AT+CMGS", reply: "\r\n> "},
		scriptStep{expect: "hello", reply: "\r\nERROR\r\n"},
		probeStep(),
		scriptStep{expect: "AT+CMGS", reply: "\r\n> "},
		scriptStep{expect: "hello", reply: "\r\nERROR\r\n"},
	)
	sms, channel, _ := newTestSMS(steps...)
	defer channel.Close()

	assert.False(t, sms.SendMessage("+14155552671", "hello", 2))

	// One part failed, the counter moves once regardless of attempts
	stats := sms.Stats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, "all send attempts failed", stats.LastError)
}

func TestSMSSendMessageInvalidNumber(t *testing.T) {
	sms, channel, transport := newTestSMS()
	defer channel.Close()
	sms.ready = true

	assert.False(t, sms.SendMessage("12ab", "hello", 1))

	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Empty(t, transport.writes)
}

func TestSMSStatus(t *testing.T) {
	steps := append(smsInitSteps(),
		scriptStep{expect: AtSignalQuality, reply: "\r\n+CSQ: 17,0\r\n\r\nOK\r\n"},
		scriptStep{expect: AtSimStatus, reply: "\r\n+CPIN: READY\r\n\r\nOK\r\n"},
		scriptStep{expect: AtOperator, reply: "\r\n+COPS: 0,0,\"Telekom.de\",7\r\n\r\nOK\r\n"},
	)
	sms, channel, _ := newTestSMS(steps...)
	defer channel.Close()
	require.True(t, sms.Initialize())

	status := sms.Status()
	assert.True(t, status.Connected)
	assert.True(t, status.Ready)
	require.NotNil(t, status.Signal)
	assert.Equal(t, 17, status.Signal.RSSI)
	assert.Equal(t, "Good", status.Signal.Quality)
	assert.Contains(t, status.SimStatus, "READY")
	assert.Contains(t, status.Operator, "Telekom.de")
}

func TestDescribeSignal(t *testing.T) {
	cases := map[int]string{
		99: "Unknown",
		31: "Excellent",
		20: "Excellent",
		17: "Good",
		12: "Fair",
		7:  "Poor",
		3:  "Very Poor",
		0:  "Very Poor",
	}
	for rssi, want := range cases {
		assert.Equal(t, want, DescribeSignal(rssi), "rssi %d", rssi)
	}
}

func TestSMSReadMessages(t *testing.T) {
	steps := append(smsInitSteps(), scriptStep{
		expect: "AT+CMGL",
		reply: "\r\n+CMGL: 1,\"REC READ\",\"+14155552671\",,\"24/09/12,10:15:30+08\"\r\n" +
			"Status check please\r\n\r\nOK\r\n",
	})
	sms, channel, _ := newTestSMS(steps...)
	defer channel.Close()
	require.True(t, sms.Initialize())

	messages := sms.ReadMessages("ALL")
	require.Len(t, messages, 1)
	assert.Equal(t, "1", messages[0].Index)
	assert.Equal(t, "REC READ", messages[0].Status)
	assert.Equal(t, "+14155552671", messages[0].Sender)
	assert.Equal(t, "Status check please", messages[0].Content)
}

func TestSMSDeleteMessage(t *testing.T) {
	steps := append(smsInitSteps(),
		scriptStep{expect: "AT+CMGD=3", reply: "\r\nOK\r\n"},
		scriptStep{expect: "AT+CMGD=1,4", reply: "\r\nOK\r\n"},
	)
	sms, channel, transport := newTestSMS(steps...)
	defer channel.Close()
	require.True(t, sms.Initialize())

	assert.True(t, sms.DeleteMessage("3"))
	assert.True(t, sms.DeleteMessage("ALL"))

	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Contains(t, strings.Join(transport.writes, ""), "AT+CMGD=1,4\r\n")
}
