// internal/dispatch/dispatcher.go

// Package dispatch binds frame engine events to the node store and the
// gateway metadata block. It owns the register address convention
// registerAddress = nodeId*100 + fieldOffset, with node id 0 reserved for
// gateway-wide metadata.
package dispatch

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aattww/sensors/internal/frame"
	"github.com/aattww/sensors/internal/node"
	"github.com/aattww/sensors/internal/regmap"
	"github.com/aattww/sensors/internal/store"
)

// Engine is the frame engine surface the dispatcher drives. *frame.Engine
// satisfies it; tests substitute a fake.
type Engine interface {
	Poll() frame.Event
	Busy() bool
	SendResponse(functionCode uint8, payload []byte) bool
	SendException(functionCode uint8, exceptionCode uint8) bool
	MasterRead(nodeAddr uint8, functionCode uint8, start uint16, count uint16) bool
	MasterResponse(buf []byte) int
}

// MeterConfig describes the downstream energy meter polled in master mode.
type MeterConfig struct {
	Address uint8  // meter slave address on the bus
	Start   uint16 // first register of the meter value block

	// NodeID, when non-zero, stores each successful poll as a
	// pulse+meter record under that id so supervisors read the meter
	// like any other node.
	NodeID uint8
}

// MeterRegisterCount is the fixed read size of a meter poll: six 32-bit
// values, 24 bytes on the wire.
const MeterRegisterCount = regmap.MeterValues * 2

// DefaultBatteryLowMillivolts is the battery alarm threshold used when the
// configuration does not set one.
const DefaultBatteryLowMillivolts = 2200

// Config carries the dispatcher's tunables.
type Config struct {
	Meter        *MeterConfig
	BatteryLowMv uint16
	Now          func() time.Time
}

// Dispatcher serves Modbus read requests from stored node records and
// feeds the store from the radio ingress path. It is driven from a single
// cooperative loop; only the pulse and button counters may be written from
// other contexts.
type Dispatcher struct {
	engine Engine
	store  store.Store

	now  func() time.Time
	boot time.Time

	meter         *MeterConfig
	meterPending  bool
	meterDeadline time.Time
	meterValues   [regmap.MeterValues]uint32
	meterOnline   bool

	batteryLowMv uint16

	// Loop-owned counters.
	framesServed  uint16
	crcErrors     uint16
	badFrames     uint16
	illegalFuncs  uint16
	illegalAddrs  uint16
	radioAccepted uint16
	radioRejected uint16
	meterTimeouts uint16
	outOfMemory   bool

	// Interrupt-writer counters: single writer, read by the loop.
	pulseCount    atomic.Uint32
	buttonPresses atomic.Uint32
}

// New creates a dispatcher over an engine and a store. Boot time is taken
// from cfg.Now at construction; record ages count from here.
func New(engine Engine, st store.Store, cfg Config) *Dispatcher {
	d := &Dispatcher{
		engine:       engine,
		store:        st,
		now:          cfg.Now,
		meter:        cfg.Meter,
		batteryLowMv: cfg.BatteryLowMv,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.batteryLowMv == 0 {
		d.batteryLowMv = DefaultBatteryLowMillivolts
	}
	d.boot = d.now()
	return d
}

// ---- SLAVE SERVICE ----

// Service advances the engine by one poll and handles whatever came out:
// serves read requests, counts transport errors, collects master
// responses. Call it from every loop iteration.
func (d *Dispatcher) Service() frame.Event {
	ev := d.engine.Poll()

	switch ev.Kind {
	case frame.EventRequest:
		d.serveRequest(ev.StartRegister, ev.RegisterCount, ev.FunctionCode)

	case frame.EventCRCFailed:
		d.crcErrors++
		d.meterFailed()

	case frame.EventCorrupted, frame.EventOverflow:
		d.badFrames++
		d.meterFailed()

	case frame.EventIllegalFunction:
		d.illegalFuncs++

	case frame.EventMasterResponse:
		d.collectMeterResponse()

	case frame.EventMasterError:
		d.meterFailed()
	}

	// A silently vanished response still has to release the poll slot.
	if d.meterPending && !d.now().Before(d.meterDeadline) {
		d.meterFailed()
	}

	return ev
}

// serveRequest resolves a register window against the store and emits the
// response. Malformed frames never reach here; well-formed but invalid
// requests get an illegal-data-address exception.
func (d *Dispatcher) serveRequest(start uint16, count uint16, functionCode uint8) {
	id := start / regmap.RegistersPerNode
	local := start - id*regmap.RegistersPerNode

	window, ok := d.window(id)
	if !ok || count == 0 || int(local)+int(count) > len(window) {
		d.illegalAddrs++
		d.engine.SendException(functionCode, frame.ExIllegalDataAddress)
		return
	}

	payload := make([]byte, 0, count*2)
	for _, reg := range window[local : local+count] {
		payload = append(payload, uint8(reg>>8), uint8(reg))
	}

	if d.engine.SendResponse(functionCode, payload) {
		d.framesServed++
	}
}

// window builds the full register window of a node id, or reports an
// unknown id.
func (d *Dispatcher) window(id uint16) ([]uint16, bool) {
	if id == 0 {
		return regmap.Encode(d.metadata()), true
	}
	if id > regmap.MaxNodeID {
		return nil, false
	}

	header := d.store.Header(uint8(id))
	kind := node.KindOf(header)
	if kind == node.KindInvalid {
		return nil, false
	}

	var rec [node.PulseMeterRecordLen]byte
	n := d.store.Read(uint8(id), rec[:recordLen(kind)], 0)
	if n == 0 {
		return nil, false
	}

	age := d.nowMinutes() - node.Timestamp(rec[:])

	switch kind {
	case node.KindBattery:
		return batteryWindow(rec[:], age), true
	case node.KindPulse:
		return pulseWindow(rec[:], age, false), true
	default:
		return pulseWindow(rec[:], age, true), true
	}
}

func recordLen(k node.Kind) int {
	switch k {
	case node.KindBattery:
		return node.BatteryRecordLen
	case node.KindPulse:
		return node.PulseRecordLen
	default:
		return node.PulseMeterRecordLen
	}
}

func batteryWindow(rec []byte, age uint16) []uint16 {
	regs := make([]uint16, regmap.BatteryRegisters)
	regs[regmap.BatteryAge] = age
	regs[regmap.BatteryVcc] = node.U16(rec, node.BatVcc)
	regs[regmap.BatteryTemp2] = node.U16(rec, node.BatNTCTemp)
	regs[regmap.BatteryFlags] = uint16(rec[node.RecHeader] >> 3)
	regs[regmap.BatteryHeader] = uint16(rec[node.RecHeader])
	regs[regmap.BatteryTemp] = node.U16(rec, node.BatTemp)
	regs[regmap.BatteryHumidity] = node.U16(rec, node.BatHumidity)
	regs[regmap.BatteryPressure] = node.U16(rec, node.BatPressure)
	return regs
}

func pulseWindow(rec []byte, age uint16, meter bool) []uint16 {
	size := regmap.PulseRegisters
	if meter {
		size = regmap.PulseMeterRegisters
	}

	regs := make([]uint16, size)
	regs[regmap.PulseAge] = age
	regs[regmap.PulseVcc] = node.U16(rec, node.PlsVcc)
	regs[regmap.PulseRate1] = node.U16(rec, node.PlsRate1)
	regs[regmap.PulseFlags] = uint16(rec[node.RecHeader] >> 3)
	regs[regmap.PulseHeader] = uint16(rec[node.RecHeader])
	regs[regmap.PulseRate2] = node.U16(rec, node.PlsRate2)

	count1 := node.U32(rec, node.PlsCount1)
	regs[regmap.PulseCount1Hi] = uint16(count1 >> 16)
	regs[regmap.PulseCount1Lo] = uint16(count1)

	count2 := node.U32(rec, node.PlsCount2)
	regs[regmap.PulseCount2Hi] = uint16(count2 >> 16)
	regs[regmap.PulseCount2Lo] = uint16(count2)

	if meter {
		for i := 0; i < regmap.MeterValues; i++ {
			v := node.U32(rec, node.PlsMeter+4*i)
			regs[regmap.MeterFirst+2*i] = uint16(v >> 16)
			regs[regmap.MeterFirst+2*i+1] = uint16(v)
		}
	}

	return regs
}

// ---- RADIO INGRESS ----

// ErrOutOfMemory reports that a record did not fit the store. The
// condition stays visible in the metadata flags until a later write
// succeeds in full.
var ErrOutOfMemory = errors.New("dispatch: node store out of memory")

// Ingest validates a radio payload, stamps it with the current minute and
// writes it through the store, superseding any previous record for the id.
func (d *Dispatcher) Ingest(id uint8, payload []byte) error {
	if err := node.Validate(id, payload); err != nil {
		d.radioRejected++
		return err
	}

	rec := node.Pack(payload, d.nowMinutes())
	if n := d.store.Write(id, rec); n != len(rec) {
		d.outOfMemory = true
		return fmt.Errorf("%w: node %d needs %d bytes", ErrOutOfMemory, id, len(rec))
	}

	d.outOfMemory = false
	d.radioAccepted++
	return nil
}

// ---- INTERRUPT COUNTERS ----

// AddPulse increments the gateway pulse counter. Safe to call from the
// pulse interrupt context.
func (d *Dispatcher) AddPulse() {
	d.pulseCount.Add(1)
}

// PressButton increments the wake button counter. Safe to call from the
// button interrupt context.
func (d *Dispatcher) PressButton() {
	d.buttonPresses.Add(1)
}

// ---- TIME ----

// nowMinutes returns minutes since boot truncated to 16 bits. Ages are
// computed with plain unsigned wraparound; after a counter rollover a
// fresh write re-synchronizes the age.
func (d *Dispatcher) nowMinutes() uint16 {
	return uint16(d.now().Sub(d.boot) / time.Minute)
}
