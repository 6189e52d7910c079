// internal/dispatch/meter.go
package dispatch

import (
	"github.com/aattww/sensors/internal/frame"
	"github.com/aattww/sensors/internal/node"
	"github.com/aattww/sensors/internal/regmap"
)

// PollMeter issues one master-mode read to the configured energy meter.
// Returns false when no meter is configured or the engine is busy; the
// caller simply tries again on the next scheduled poll. Master polls must
// run in a quiescent window, never concurrently with slave service.
func (d *Dispatcher) PollMeter() bool {
	if d.meter == nil || d.meterPending {
		return false
	}
	if !d.engine.MasterRead(d.meter.Address, 0x04, d.meter.Start, MeterRegisterCount) {
		return false
	}
	d.meterPending = true
	d.meterDeadline = d.now().Add(frame.MasterReadTimeout)
	return true
}

// MeterValues returns the last successfully polled meter values and
// whether the meter has answered at all since boot.
func (d *Dispatcher) MeterValues() ([regmap.MeterValues]uint32, bool) {
	return d.meterValues, d.meterOnline
}

// collectMeterResponse decodes the buffered master response. Exactly 24
// payload bytes are expected: six 32-bit big-endian values. Anything else
// counts as a failed poll and the previous values stay.
func (d *Dispatcher) collectMeterResponse() {
	if !d.meterPending {
		return
	}
	d.meterPending = false

	var buf [frame.BufferSize]byte
	n := d.engine.MasterResponse(buf[:])
	if n != MeterRegisterCount*2 {
		d.meterTimeouts++
		d.meterOnline = false
		return
	}

	for i := 0; i < regmap.MeterValues; i++ {
		d.meterValues[i] = node.U32(buf[:], 4*i)
	}
	d.meterOnline = true

	if d.meter.NodeID != 0 {
		d.storeMeterRecord(buf[:n])
	}
}

// storeMeterRecord publishes the meter poll as a pulse+meter record so the
// supervisory side reads it like any other node. The pulse section is
// zero: this virtual node has no pulse inputs of its own.
func (d *Dispatcher) storeMeterRecord(meterBytes []byte) {
	payload := make([]byte, node.PulseMeterPayloadLen)
	payload[0] = node.TypePulseKamstrup
	copy(payload[node.PlsMeter-node.RecData+1:], meterBytes)

	// Best effort: an out-of-memory store already raised the flag.
	_ = d.Ingest(d.meter.NodeID, payload)
}

// meterFailed records a poll that will never complete: timeout, exception
// response from the meter, or a transport error that consumed the frame.
// Previous values are kept; stale-but-present beats blanking.
func (d *Dispatcher) meterFailed() {
	if !d.meterPending {
		return
	}
	d.meterPending = false
	d.meterTimeouts++
	d.meterOnline = false
}
