package modem

import (
	"io"
	"sync"
)

// scriptStep pairs an expected write with the raw bytes the fake modem
// queues back. Steps are consumed strictly in order.
type scriptStep struct {
	expect string
	reply  string
}

// scriptTransport simulates the modem over channels so reads block like a
// real serial port would until the scripted reply is available.
type scriptTransport struct {
	mu     sync.Mutex
	steps  []scriptStep
	writes []string
	readCh chan []byte
	closed bool
}

func newScriptTransport(steps ...scriptStep) *scriptTransport {
	return &scriptTransport{
		steps:  steps,
		readCh: make(chan []byte, 32),
	}
}

func (t *scriptTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.writes = append(t.writes, string(p))

	if len(t.steps) > 0 {
		step := t.steps[0]
		t.steps = t.steps[1:]
		if !t.closed && step.reply != "" {
			t.readCh <- []byte(step.reply)
		}
	}

	return len(p), nil
}

func (t *scriptTransport) Read(p []byte) (int, error) {
	data, ok := <-t.readCh
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *scriptTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readCh)
	return nil
}

// push queues unsolicited data outside the write/reply script
func (t *scriptTransport) push(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readCh <- []byte(data)
	}
}

type scriptDialer struct {
	transport *scriptTransport
	err       error
}

func (d *scriptDialer) Dial() (Transport, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

// newTestChannel wires a channel to a scripted transport with all the
// stabilization delays removed
func newTestChannel(steps ...scriptStep) (*Channel, *scriptTransport) {
	transport := newScriptTransport(steps...)
	channel := NewChannel(&scriptDialer{transport: transport})
	channel.settleDelay = 0
	return channel, transport
}

// probeStep answers the connect-time liveness probe
func probeStep() scriptStep {
	return scriptStep{expect: AtProbe, reply: "\r\nOK\r\n"}
}
