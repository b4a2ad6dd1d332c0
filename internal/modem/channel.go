package modem

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/DisasterSentry/client/pkg/log"
	"go.uber.org/zap"
)

const (
	// DefaultCommandTimeout is used for regular AT commands where the modem
	// answers from local state
	DefaultCommandTimeout = 10 * time.Second

	// ProbeTimeout suffices for the empty AT liveness probe
	ProbeTimeout = 5 * time.Second

	lineBufferDepth = 64
)

// Transport is an established byte stream to the modem. Serial ports are the
// production implementation, tests substitute in-memory fakes.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport, it is only consulted while (re)connecting.
type Dialer interface {
	Dial() (Transport, error)
}

// Channel is a line oriented AT command channel. Exactly one command may be
// in flight per channel, the internal mutex serializes competing callers.
//
// The completion contract is substring based on purpose: a reply is finished
// once a line contains "OK", "ERROR" or one of the caller supplied markers.
// This mirrors the firmware behaviour and callers judge success the same way,
// by looking for "OK" (checked first, so a line carrying both counts as
// success) or the absence of "ERROR". Timeouts surface as the partial reply
// collected so far, never as an error.
type Channel struct {
	mu sync.Mutex

	dialer    Dialer
	transport Transport
	lines     chan string

	// settleDelay gives the modem time to come up after opening the port
	settleDelay time.Duration
}

func NewChannel(dialer Dialer) *Channel {
	return &Channel{
		dialer:      dialer,
		settleDelay: 2 * time.Second,
	}
}

// Connect opens the transport and probes the modem with a bare AT. Calling
// it while connected is a no-op.
func (c *Channel) Connect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != nil {
		return true
	}

	transport, err := c.dialer.Dial()
	if err != nil {
		log.Error("modem channel dial failed", zap.Error(err))
		return false
	}

	c.transport = transport
	c.lines = make(chan string, lineBufferDepth)
	go readTokens(transport, c.lines)

	if c.settleDelay > 0 {
		time.Sleep(c.settleDelay)
	}

	if resp := c.sendLocked(AtProbe, ProbeTimeout, nil); !strings.Contains(resp, AtReplyOk) {
		log.Error("modem not responding to probe", zap.String("response", resp))
		c.dropLocked()
		return false
	}

	log.Info("modem channel connected")
	return true
}

// Connected reports whether a transport is currently attached
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil
}

// Close tears the transport down, the channel may be reconnected afterwards
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
}

// Send writes a single AT command and collects the reply until a line
// contains "OK", "ERROR" or one of the extra markers, or until the timeout
// elapses. The joined reply lines are returned, an empty string means the
// channel is down or the modem never produced a terminal line in time.
func (c *Channel) Send(cmd string, timeout time.Duration, extraMarkers ...string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return ""
	}

	// Stale bytes from an earlier exchange would corrupt this reply
	c.drainLocked()

	if _, err := c.transport.Write([]byte(cmd + "\r\n")); err != nil {
		log.Error("modem write failed", zap.String("command", cmd), zap.Error(err))
		c.dropLocked()
		return ""
	}

	markers := append([]string{AtReplyOk, AtReplyError}, extraMarkers...)
	resp := c.collectLocked(timeout, markers)
	log.Debug("AT exchange", zap.String("command", cmd), zap.String("response", resp))
	return resp
}

// SendData writes raw payload bytes without the CRLF terminator and waits
// for one of the markers. Used for the SMS body which is concluded by Ctrl+Z
// instead of a line ending.
func (c *Channel) SendData(data []byte, timeout time.Duration, markers ...string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return ""
	}

	if _, err := c.transport.Write(data); err != nil {
		log.Error("modem data write failed", zap.Error(err))
		c.dropLocked()
		return ""
	}

	return c.collectLocked(timeout, markers)
}

func (c *Channel) sendLocked(cmd string, timeout time.Duration, extraMarkers []string) string {
	c.drainLocked()

	if _, err := c.transport.Write([]byte(cmd + "\r\n")); err != nil {
		return ""
	}

	markers := append([]string{AtReplyOk, AtReplyError}, extraMarkers...)
	return c.collectLocked(timeout, markers)
}

// collectLocked gathers reply lines until a marker or the deadline. Partial
// output is returned on timeout so callers can still inspect it.
func (c *Channel) collectLocked(timeout time.Duration, markers []string) string {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var collected []string
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				// Reader terminated, transport is gone
				c.dropLocked()
				return strings.Join(collected, "\n")
			}

			collected = append(collected, line)
			for _, marker := range markers {
				if strings.Contains(line, marker) {
					return strings.Join(collected, "\n")
				}
			}

		case <-deadline.C:
			return strings.Join(collected, "\n")
		}
	}
}

// drainLocked discards buffered unread lines
func (c *Channel) drainLocked() {
	for {
		select {
		case _, ok := <-c.lines:
			if !ok {
				c.dropLocked()
				return
			}
		default:
			return
		}
	}
}

func (c *Channel) dropLocked() {
	if c.transport != nil {
		_ = c.transport.Close()
		c.transport = nil
	}
	c.lines = nil
}

// readTokens feeds scanner tokens into the line channel until the transport
// dies. When the buffer is full new tokens are dropped, senders drain the
// channel before every command anyway.
func readTokens(transport Transport, out chan<- string) {
	scanner := newTokenScanner(transport)
	for scanner.Scan() {
		token := TrimCRLF(scanner.Text())
		if token == "" {
			continue
		}

		select {
		case out <- token:
		default:
		}
	}
	close(out)
}
