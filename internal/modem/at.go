package modem

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const (
	AtReplyOk    = "OK"
	AtReplyError = "ERROR"
	AtPrompt     = ">"
	AtCtrlZ      = byte(0x1A)

	AtProbe = "AT"

	AtGpsPower      = "AT+CGPS"
	AtGpsPowerOn    = AtGpsPower + "=1"
	AtGpsPowerOff   = AtGpsPower + "=0"
	AtGpsPowerQuery = AtGpsPower + "?"
	AtGpsInfo       = "AT+CGPSINFO"
	AtGpsInfoAlt    = "AT+CGPSINF=0"
	AtGpsSatellites = "AT+CGPSSAT"

	AtSignalQuality = "AT+CSQ"
	AtNetworkReg    = "AT+CREG?"
	AtSimStatus     = "AT+CPIN?"
	AtOperator      = "AT+COPS?"

	AtTextMode      = "AT+CMGF=1"
	AtCharset       = `AT+CSCS="GSM"`
	AtNotifications = "AT+CNMI=1,2,0,0,0"
	AtStorage       = `AT+CPMS="SM","SM","SM"`

	TagGpsInfo       = "+CGPSINFO:"
	TagGpsInfoAlt    = "CGPSINF"
	TagGpsSatellites = "+CGPSSAT:"
	TagSendRef       = "+CMGS:"
	TagNetworkReg    = "+CREG:"
	TagSignal        = "+CSQ:"
	TagOperator      = "+COPS:"
	TagListMessage   = "+CMGL:"
	TagReadMessage   = "+CMGR:"
)

// splitTokens tokenizes modem output for a bufio.Scanner. Lines are CRLF
// terminated, except for the SMS input prompt "> " which arrives bare and
// must be surfaced immediately so the sender can push the message body.
func splitTokens(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if bytes.HasPrefix(data, []byte("> ")) {
		return 2, data[0:2], nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = splitTokens

func newTokenScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Split(splitTokens)
	return scanner
}

// TrimCRLF strips the line terminators the modem wraps around every reply
func TrimCRLF(s string) string {
	return strings.Trim(s, "\r\n")
}
