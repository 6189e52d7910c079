// internal/frame/engine_test.go
package frame

import (
	"testing"
	"time"
)

type fakeLink struct {
	rx []byte
	tx []byte
}

func (l *fakeLink) Read(p []byte) (int, error) {
	if len(l.rx) == 0 {
		return 0, nil
	}
	p[0] = l.rx[0]
	l.rx = l.rx[1:]
	return 1, nil
}

func (l *fakeLink) Write(p []byte) (int, error) {
	l.tx = append(l.tx, p...)
	return len(p), nil
}

func (l *fakeLink) Close() error { return nil }

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestEngine(address uint8) (*Engine, *fakeLink, *fakeClock) {
	link := &fakeLink{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	e := NewEngine(link, Config{
		Address: address,
		Baud:    38400,
		Now:     clock.now,
		Sleep:   func(time.Duration) {},
	})
	return e, link, clock
}

// withCRC appends a valid CRC to frame bytes.
func withCRC(b ...byte) []byte {
	crc := CRC16(b)
	return append(b, byte(crc>>8), byte(crc))
}

// feed pushes a complete frame through the engine: every byte, then
// silence past the inter-character timeout.
func feed(t *testing.T, e *Engine, link *fakeLink, clock *fakeClock, data []byte) Event {
	t.Helper()

	link.rx = append(link.rx, data...)
	for range data {
		if ev := e.Poll(); ev.Kind != EventReceiving {
			t.Fatalf("mid-frame poll returned %v", ev.Kind)
		}
		clock.advance(100 * time.Microsecond)
	}

	clock.advance(time.Millisecond) // exceeds T1.5 at 38400 baud
	return e.Poll()
}

// drainSend polls the engine through a queued transmission.
func drainSend(t *testing.T, e *Engine, clock *fakeClock) {
	t.Helper()

	if e.State() != StateSending {
		t.Fatal("engine is not sending")
	}
	// Past the line time of a full frame, well short of the master timeout.
	clock.advance(20 * time.Millisecond)
	if ev := e.Poll(); ev.Kind != EventSent {
		t.Fatalf("expected EventSent, got %v", ev.Kind)
	}
}

func TestSlaveRequest(t *testing.T) {
	e, link, clock := newTestEngine(1)

	ev := feed(t, e, link, clock, withCRC(0x01, 0x03, 0x00, 0x69, 0x00, 0x03))
	if ev.Kind != EventRequest {
		t.Fatalf("expected EventRequest, got %v", ev.Kind)
	}
	if ev.StartRegister != 105 || ev.RegisterCount != 3 || ev.FunctionCode != 3 {
		t.Fatalf("bad request fields: start=%d count=%d fc=%d",
			ev.StartRegister, ev.RegisterCount, ev.FunctionCode)
	}
	if e.State() != StateIdle {
		t.Fatal("engine did not return to idle after parse")
	}
}

func TestOtherSlaveIgnored(t *testing.T) {
	e, link, clock := newTestEngine(1)

	ev := feed(t, e, link, clock, withCRC(0x07, 0x03, 0x00, 0x00, 0x00, 0x01))
	if ev.Kind != EventNone {
		t.Fatalf("expected EventNone for foreign frame, got %v", ev.Kind)
	}
}

func TestCRCFailure(t *testing.T) {
	e, link, clock := newTestEngine(1)

	bad := withCRC(0x01, 0x03, 0x00, 0x00, 0x00, 0x01)
	bad[len(bad)-1] ^= 0xFF

	if ev := feed(t, e, link, clock, bad); ev.Kind != EventCRCFailed {
		t.Fatalf("expected EventCRCFailed, got %v", ev.Kind)
	}
	if len(link.tx) != 0 {
		t.Fatal("malformed frame must not be answered")
	}
}

func TestShortFrameCorrupted(t *testing.T) {
	e, link, clock := newTestEngine(1)

	if ev := feed(t, e, link, clock, withCRC(0x01, 0x03, 0x00)); ev.Kind != EventCorrupted {
		t.Fatalf("expected EventCorrupted, got %v", ev.Kind)
	}
	if len(link.tx) != 0 {
		t.Fatal("corrupted frame must not be answered")
	}
}

func TestIllegalFunctionAnswered(t *testing.T) {
	e, link, clock := newTestEngine(1)

	ev := feed(t, e, link, clock, withCRC(0x01, 0x06, 0x00, 0x00, 0x00, 0x01))
	if ev.Kind != EventIllegalFunction {
		t.Fatalf("expected EventIllegalFunction, got %v", ev.Kind)
	}

	if len(link.tx) != 5 {
		t.Fatalf("expected 5-byte exception response, got %d bytes", len(link.tx))
	}
	if link.tx[0] != 0x01 || link.tx[1] != 0x86 || link.tx[2] != ExIllegalFunction {
		t.Fatalf("bad exception response: % x", link.tx)
	}
	wire := uint16(link.tx[3])<<8 | uint16(link.tx[4])
	if CRC16(link.tx[:3]) != wire {
		t.Fatal("exception response has a bad crc")
	}
}

func TestOverflowDiscardsUntilSilence(t *testing.T) {
	e, link, clock := newTestEngine(1)

	big := make([]byte, BufferSize+20)
	if ev := feed(t, e, link, clock, big); ev.Kind != EventOverflow {
		t.Fatalf("expected EventOverflow, got %v", ev.Kind)
	}

	// The engine must have recovered: a valid frame parses again.
	ev := feed(t, e, link, clock, withCRC(0x01, 0x04, 0x00, 0x00, 0x00, 0x01))
	if ev.Kind != EventRequest {
		t.Fatalf("engine did not recover from overflow: %v", ev.Kind)
	}
}

func TestSendResponse(t *testing.T) {
	e, link, clock := newTestEngine(1)

	payload := []byte{0x00, 0x05, 0x01, 0x02, 0x03, 0x04}
	if !e.SendResponse(0x03, payload) {
		t.Fatal("SendResponse refused a valid payload")
	}

	if ev := e.Poll(); ev.Kind != EventSending {
		t.Fatalf("expected EventSending, got %v", ev.Kind)
	}
	drainSend(t, e, clock)

	want := len(payload) + 5
	if len(link.tx) != want {
		t.Fatalf("expected %d bytes on the wire, got %d", want, len(link.tx))
	}
	if link.tx[0] != 0x01 || link.tx[1] != 0x03 || link.tx[2] != byte(len(payload)) {
		t.Fatalf("bad response header: % x", link.tx[:3])
	}
	wire := uint16(link.tx[want-2])<<8 | uint16(link.tx[want-1])
	if CRC16(link.tx[:want-2]) != wire {
		t.Fatal("response crc does not validate")
	}
}

func TestSendResponseRejectsOversized(t *testing.T) {
	e, _, _ := newTestEngine(1)

	if e.SendResponse(0x03, make([]byte, BufferSize)) {
		t.Fatal("oversized payload must be refused")
	}
	if e.SendResponse(0x10, []byte{0x00}) {
		t.Fatal("unsupported function code must be refused")
	}
}

func TestMasterReadRoundTrip(t *testing.T) {
	e, link, clock := newTestEngine(1)

	if !e.MasterRead(10, 0x04, 0, 12) {
		t.Fatal("MasterRead refused a valid request")
	}
	if len(link.tx) != 8 {
		t.Fatalf("expected 8-byte request, got %d bytes", len(link.tx))
	}
	if link.tx[0] != 10 || link.tx[1] != 0x04 {
		t.Fatalf("bad request header: % x", link.tx[:2])
	}
	drainSend(t, e, clock)

	if !e.Busy() {
		t.Fatal("engine must stay busy while awaiting the response")
	}

	resp := make([]byte, 0, 27)
	resp = append(resp, 10, 0x04, 24)
	for i := 0; i < 24; i++ {
		resp = append(resp, byte(i))
	}
	if ev := feed(t, e, link, clock, withCRC(resp...)); ev.Kind != EventMasterResponse {
		t.Fatalf("expected EventMasterResponse, got %v", ev.Kind)
	}

	var buf [BufferSize]byte
	n := e.MasterResponse(buf[:])
	if n != 24 {
		t.Fatalf("expected 24 payload bytes, got %d", n)
	}
	for i := 0; i < 24; i++ {
		if buf[i] != byte(i) {
			t.Fatalf("payload byte %d is 0x%02x", i, buf[i])
		}
	}
}

func TestMasterTimeoutClearsMarker(t *testing.T) {
	e, link, clock := newTestEngine(1)

	if !e.MasterRead(10, 0x04, 0, 12) {
		t.Fatal("MasterRead refused a valid request")
	}
	drainSend(t, e, clock)

	clock.advance(MasterReadTimeout + time.Millisecond)
	if ev := e.Poll(); ev.Kind != EventNone {
		t.Fatalf("expected EventNone, got %v", ev.Kind)
	}
	if e.Busy() {
		t.Fatal("timeout must release the master slot")
	}

	// A late response is no longer expected and must be ignored.
	resp := withCRC(10, 0x04, 0x02, 0x00, 0x01)
	if ev := feed(t, e, link, clock, resp); ev.Kind != EventNone {
		t.Fatalf("late response must be ignored, got %v", ev.Kind)
	}
}

func TestSlaveRequestDuringMasterPoll(t *testing.T) {
	e, link, clock := newTestEngine(1)

	if !e.MasterRead(10, 0x04, 0, 12) {
		t.Fatal("MasterRead refused a valid request")
	}
	drainSend(t, e, clock)

	// A request addressed to us arrives before the meter answers. It
	// must parse cleanly and clear the outstanding marker instead of
	// mixing two frames into one parse.
	ev := feed(t, e, link, clock, withCRC(0x01, 0x03, 0x00, 0x64, 0x00, 0x08))
	if ev.Kind != EventRequest {
		t.Fatalf("expected EventRequest, got %v", ev.Kind)
	}
	if e.Busy() {
		t.Fatal("outstanding master marker must be cleared")
	}

	// The meter's eventual response is stale and must be ignored.
	resp := make([]byte, 0, 27)
	resp = append(resp, 10, 0x04, 24)
	for i := 0; i < 24; i++ {
		resp = append(resp, 0xAA)
	}
	if ev := feed(t, e, link, clock, withCRC(resp...)); ev.Kind != EventNone {
		t.Fatalf("stale master response must be ignored, got %v", ev.Kind)
	}
}

func TestBroadcastIgnored(t *testing.T) {
	e, link, clock := newTestEngine(1)

	// Address byte 0 is a broadcast; with no master request outstanding
	// it must not be mistaken for a response.
	ev := feed(t, e, link, clock, withCRC(0x00, 0x03, 0x00, 0x00, 0x00, 0x01))
	if ev.Kind != EventNone {
		t.Fatalf("expected EventNone for broadcast, got %v", ev.Kind)
	}
}

func TestMasterReadRejections(t *testing.T) {
	e, _, _ := newTestEngine(1)

	if e.MasterRead(0, 0x04, 0, 1) {
		t.Fatal("node 0 must be refused")
	}
	if e.MasterRead(10, 0x06, 0, 1) {
		t.Fatal("write function codes must be refused")
	}
	if e.MasterRead(10, 0x04, 0, 0) {
		t.Fatal("zero-register read must be refused")
	}
	if e.MasterRead(10, 0x04, 0, (BufferSize-5)/2+1) {
		t.Fatal("response that cannot fit the buffer must be refused")
	}

	if !e.MasterRead(10, 0x04, 0, 1) {
		t.Fatal("valid request refused")
	}
	if e.MasterRead(11, 0x04, 0, 1) {
		t.Fatal("second request while busy must be refused")
	}
}
