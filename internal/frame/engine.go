// internal/frame/engine.go

// Package frame implements an asynchronous Modbus RTU frame engine.
//
// Frame boundaries are detected from serial-line silence, per the RTU
// timing rules: a frame is complete once no byte has arrived for the
// inter-character time T1.5, and a new frame may be transmitted only after
// the inter-frame gap T3.5. The engine never blocks: Poll reads whatever
// the link has buffered and reports progress as an Event.
//
// Both the slave role (answering requests addressed to the engine) and the
// master role (issuing a single outstanding request) share one frame
// buffer, because only one direction is ever active at a time. Only
// function codes 3 and 4 are supported.
package frame

import (
	"time"
)

// BufferSize is the fixed frame buffer size. Larger frames overflow.
const BufferSize = 50

// MasterReadTimeout is how long an outstanding master request may wait for
// a response before the outstanding marker is cleared.
const MasterReadTimeout = 1000 * time.Millisecond

// Link is the serial line under the engine. Read must not block beyond a
// short poll interval: returning (0, err) means no byte was available.
// goburrow/serial.Port satisfies Link.
type Link interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// State is the engine's explicit buffer state.
type State uint8

const (
	StateIdle State = iota
	StateReceiving
	StateSending
)

// EventKind classifies the outcome of one Poll call.
type EventKind uint8

const (
	EventNone EventKind = iota

	// Progress
	EventReceiving
	EventSending
	EventSent

	// Slave role
	EventRequest         // a valid read request addressed to us
	EventIllegalFunction // unsupported function code, exception already sent

	// Transport errors
	EventOverflow
	EventCRCFailed
	EventCorrupted

	// Master role
	EventMasterResponse // response to the outstanding request is buffered
	EventMasterError    // remote device answered with an exception
)

// Event is the result of one Poll call. StartRegister, RegisterCount and
// FunctionCode are meaningful only for EventRequest.
type Event struct {
	Kind          EventKind
	StartRegister uint16
	RegisterCount uint16
	FunctionCode  uint8
}

// Config holds the fixed communication parameters of an Engine.
type Config struct {
	Address uint8 // own slave address
	Baud    uint32

	// Now and Sleep default to time.Now and time.Sleep. Tests override
	// them to drive protocol timing deterministically.
	Now   func() time.Time
	Sleep func(time.Duration)
}

// Engine assembles, validates and transmits Modbus RTU frames over a Link.
// It has no knowledge of register semantics.
type Engine struct {
	link    Link
	address uint8

	t15      time.Duration // inter-character timeout
	t35      time.Duration // inter-frame gap
	charTime time.Duration // time of one byte on the wire

	now   func() time.Time
	sleep func(time.Duration)

	buf      [BufferSize]byte
	n        int
	state    State
	overflow bool

	lastActivity time.Time // last byte received or estimated end of transmit
	sendDone     time.Time

	awaitingFrom      uint8 // slave address of the outstanding master request, 0 if none
	masterSent        time.Time
	masterHasResponse bool
}

// NewEngine creates an engine on the given link. Timings follow the RTU
// standard: above 19200 baud the practical floor of 750/1750 us applies.
func NewEngine(link Link, cfg Config) *Engine {
	e := &Engine{
		link:    link,
		address: cfg.Address,
		now:     cfg.Now,
		sleep:   cfg.Sleep,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sleep == nil {
		e.sleep = time.Sleep
	}

	if cfg.Baud > 19200 {
		e.t15 = 750 * time.Microsecond
		e.t35 = 1750 * time.Microsecond
	} else {
		e.t15 = time.Duration(15000000/cfg.Baud) * time.Microsecond
		e.t35 = time.Duration(35000000/cfg.Baud) * time.Microsecond
	}

	// 1 start bit, 8 data bits, parity/stop, stop
	e.charTime = 11 * time.Second / time.Duration(cfg.Baud)

	return e
}

// State reports the engine's current buffer state.
func (e *Engine) State() State {
	return e.state
}

// Busy reports whether the engine is mid-receive, mid-transmit or waiting
// for a master response. Master reads must not be issued while busy.
func (e *Engine) Busy() bool {
	return e.state != StateIdle || e.awaitingFrom != 0
}

// Flush clears all engine state and drains the link receive buffer.
func (e *Engine) Flush() {
	e.n = 0
	e.state = StateIdle
	e.overflow = false
	e.awaitingFrom = 0
	e.masterHasResponse = false

	var b [1]byte
	for {
		n, _ := e.link.Read(b[:])
		if n == 0 {
			return
		}
	}
}

// Poll advances the engine state machine by at most one byte and reports
// what happened. It must be called frequently enough for requests to be
// answered within the requester's timeout.
func (e *Engine) Poll() Event {
	now := e.now()

	if e.state == StateSending {
		if now.Before(e.sendDone) {
			return Event{Kind: EventSending}
		}
		e.state = StateIdle
		return Event{Kind: EventSent}
	}

	// A slave that never answers must not block the master side forever.
	if e.awaitingFrom != 0 && now.Sub(e.masterSent) > MasterReadTimeout {
		e.awaitingFrom = 0
	}

	b, ok := e.readByte()
	if !ok {
		if e.state != StateReceiving {
			return Event{Kind: EventNone}
		}
		if now.Sub(e.lastActivity) < e.t15 {
			return Event{Kind: EventReceiving}
		}
		// Silence exceeded the inter-character timeout: frame is complete.
		return e.consumeFrame()
	}

	if e.state != StateReceiving {
		// First byte of an incoming frame. Any unread master response
		// shares this buffer and is lost.
		e.n = 0
		e.overflow = false
		e.state = StateReceiving
		e.masterHasResponse = false
	}

	switch {
	case e.overflow:
		// drain until the frame boundary
	case e.n == BufferSize:
		e.overflow = true
	default:
		e.buf[e.n] = b
		e.n++
	}
	e.lastActivity = now

	return Event{Kind: EventReceiving}
}

// consumeFrame validates the completed frame in the buffer and classifies
// it for the slave or master role. The buffer is released in every case.
func (e *Engine) consumeFrame() Event {
	e.state = StateIdle

	if e.overflow {
		return Event{Kind: EventOverflow}
	}

	// Minimum request frame is 8 bytes; minimum master response is 7.
	minLen := 8
	if e.awaitingFrom != 0 {
		minLen = 7
	}
	if e.n < minLen {
		e.awaitingFrom = 0
		return Event{Kind: EventCorrupted}
	}

	wire := uint16(e.buf[e.n-2])<<8 | uint16(e.buf[e.n-1])
	if CRC16(e.buf[:e.n-2]) != wire {
		e.awaitingFrom = 0
		return Event{Kind: EventCRCFailed}
	}

	switch {
	case e.buf[0] == e.address:
		// A request addressed to us wins over an in-flight master poll:
		// the response, if it ever comes, would be unparseable anyway.
		e.awaitingFrom = 0

		fc := e.buf[1]
		if fc != fcReadHolding && fc != fcReadInput {
			e.SendException(fc, ExIllegalFunction)
			return Event{Kind: EventIllegalFunction}
		}
		return Event{
			Kind:          EventRequest,
			StartRegister: uint16(e.buf[2])<<8 | uint16(e.buf[3]),
			RegisterCount: uint16(e.buf[4])<<8 | uint16(e.buf[5]),
			FunctionCode:  fc,
		}

	case e.awaitingFrom != 0 && e.buf[0] == e.awaitingFrom:
		e.awaitingFrom = 0

		fc := e.buf[1]
		if fc == fcReadHolding || fc == fcReadInput {
			e.masterHasResponse = true
			return Event{Kind: EventMasterResponse}
		}
		return Event{Kind: EventMasterError}
	}

	// Not addressed to us: some other conversation on the bus.
	return Event{Kind: EventNone}
}

func (e *Engine) readByte() (byte, bool) {
	var b [1]byte
	n, _ := e.link.Read(b[:])
	return b[0], n == 1
}

// ---- TRANSMIT ----

const (
	fcReadHolding uint8 = 0x03
	fcReadInput   uint8 = 0x04

	// Modbus exception codes
	ExIllegalFunction    uint8 = 0x01
	ExIllegalDataAddress uint8 = 0x02
)

// SendResponse queues a normal read response with the given payload
// (byte count and data bytes are filled in here). Returns false if the
// function code is unsupported or the payload does not fit the buffer.
func (e *Engine) SendResponse(functionCode uint8, payload []byte) bool {
	e.masterHasResponse = false

	if functionCode != fcReadHolding && functionCode != fcReadInput {
		return false
	}
	if len(payload)+5 > BufferSize {
		return false
	}

	e.buf[0] = e.address
	e.buf[1] = functionCode
	e.buf[2] = uint8(len(payload))
	copy(e.buf[3:], payload)

	e.transmit(len(payload) + 5)
	return true
}

// SendException queues a Modbus exception response.
func (e *Engine) SendException(functionCode uint8, exceptionCode uint8) bool {
	e.masterHasResponse = false

	if exceptionCode != ExIllegalFunction && exceptionCode != ExIllegalDataAddress {
		return false
	}

	e.buf[0] = e.address
	e.buf[1] = functionCode | 0x80
	e.buf[2] = exceptionCode

	e.transmit(5)
	return true
}

// MasterRead issues a read request to another slave on the bus and returns
// immediately. Poll reports EventMasterResponse once the response has been
// received; MasterResponse then yields the payload. Returns false if the
// parameters are invalid or the engine is busy.
func (e *Engine) MasterRead(node uint8, functionCode uint8, start uint16, count uint16) bool {
	if node < 1 || node > MasterReadMaxNode || count == 0 {
		return false
	}
	if functionCode != fcReadHolding && functionCode != fcReadInput {
		return false
	}
	// The response must fit the frame buffer.
	if int(count)*2+5 > BufferSize {
		return false
	}
	if e.Busy() {
		return false
	}

	// Drop any stale bytes from a previous hung exchange.
	e.Flush()

	e.buf[0] = node
	e.buf[1] = functionCode
	e.buf[2] = uint8(start >> 8)
	e.buf[3] = uint8(start)
	e.buf[4] = uint8(count >> 8)
	e.buf[5] = uint8(count)

	e.awaitingFrom = node
	e.transmit(8)
	e.masterSent = e.now()

	return true
}

// MasterReadMaxNode is the highest slave address a master read may target.
const MasterReadMaxNode = 254

// MasterResponse copies the payload of the buffered master response into
// buf. Call it right after Poll returned EventMasterResponse; a later
// incoming frame overwrites the shared buffer. Returns the number of bytes
// copied, 0 if no consistent response is buffered or buf is too small.
func (e *Engine) MasterResponse(buf []byte) int {
	if !e.masterHasResponse {
		return 0
	}
	// address + function + byte count + payload + CRC
	length := e.n - 5
	if length < 0 || length > len(buf) {
		return 0
	}
	// The byte count inside the frame must agree with the frame length.
	if length != int(e.buf[2]) {
		return 0
	}
	copy(buf, e.buf[3:3+length])
	return length
}

// transmit appends the CRC, enforces the inter-frame quiet period and
// writes the frame to the link. Transmission completion is observed by
// Poll once the estimated line time has elapsed.
func (e *Engine) transmit(length int) {
	crc := CRC16(e.buf[:length-2])
	e.buf[length-2] = uint8(crc >> 8)
	e.buf[length-1] = uint8(crc)

	if quiet := e.t35 - e.now().Sub(e.lastActivity); quiet > 0 {
		e.sleep(quiet)
	}

	e.state = StateSending
	e.link.Write(e.buf[:length])

	now := e.now()
	e.sendDone = now.Add(time.Duration(length) * e.charTime)
	e.lastActivity = e.sendDone
}
