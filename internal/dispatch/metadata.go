// internal/dispatch/metadata.go
package dispatch

import (
	"github.com/aattww/sensors/internal/node"
	"github.com/aattww/sensors/internal/regmap"
	"github.com/aattww/sensors/internal/store"
)

// Minutes within which a node counts as recently heard.
const (
	heard12h = 12 * 60
	heard24h = 24 * 60
)

// metadata assembles the live gateway metadata snapshot. The store scan is
// linear over all node ids, which is fine at this scale and keeps the
// counters derived instead of separately maintained.
func (d *Dispatcher) metadata() regmap.Metadata {
	m := regmap.Metadata{
		UptimeMinutes: uint32(d.now().Sub(d.boot).Minutes()),
		External:      d.store.External(),
		OutOfMemory:   d.outOfMemory,
		MeterOnline:   d.meterOnline,
		FreeChunks:    uint16(d.store.FreeChunks()),
		FramesServed:  d.framesServed,
		CRCErrors:     d.crcErrors,
		BadFrames:     d.badFrames,
		IllegalFuncs:  d.illegalFuncs,
		IllegalAddrs:  d.illegalAddrs,
		RadioAccepted: d.radioAccepted,
		RadioRejected: d.radioRejected,
		PulseCount:    d.pulseCount.Load(),
		ButtonPresses: uint16(d.buttonPresses.Load()),
		MeterTimeouts: d.meterTimeouts,
	}

	nowMin := d.nowMinutes()

	var rec [node.BatteryRecordLen]byte
	for id := uint8(1); id <= store.MaxNodeID; id++ {
		header := d.store.Header(id)
		if header == 0 {
			continue
		}
		m.KnownNodes++

		if d.store.Read(id, rec[:], 0) < node.RecData {
			continue
		}

		age := nowMin - node.Timestamp(rec[:])
		if age <= heard12h {
			m.Nodes12h++
		}
		if age <= heard24h {
			m.Nodes24h++
		}

		if node.KindOf(header) == node.KindBattery {
			if vcc := node.U16(rec[:], node.BatVcc); vcc > 0 && vcc < d.batteryLowMv {
				m.LowBattery = true
			}
		}
	}

	return m
}
