// internal/node/record.go

// Package node defines the field-node classes, their radio payload shapes
// and the stored record layout shared by the radio ingress path and the
// register mapper.
package node

import (
	"errors"
	"fmt"
)

// Header layout: low 3 bits select the node type, the remaining bits are
// flags.
const (
	TypeMask uint8 = 0x07

	FlagImportant  uint8 = 0x08
	FlagAckRequest uint8 = 0x10
)

// Node types (3-bit field, 0 is invalid by construction).
const (
	TypeBatterySi7021    uint8 = 1
	TypeBatteryBME280    uint8 = 2
	TypeBatteryNTC       uint8 = 3
	TypeBatterySi7021NTC uint8 = 4
	TypePulse            uint8 = 5
	TypePulseKamstrup    uint8 = 6
)

// Kind groups node types into the three record shapes.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBattery
	KindPulse
	KindPulseMeter
)

// Radio payload lengths per kind, header byte included.
const (
	BatteryPayloadLen    = 11
	PulsePayloadLen      = 15
	PulseMeterPayloadLen = 39
)

// Stored record layout: header (1) + timestamp minutes big-endian (2) +
// payload tail (payload minus its leading header byte).
const (
	RecHeader    = 0
	RecTimestamp = 1
	RecData      = 3
)

// Offsets of payload fields inside the stored record (RecData based).
//
// Battery payload tail: vcc u16, temp s16, humidity s16, pressure s16,
// NTC temp s16.
const (
	BatVcc      = RecData + 0
	BatTemp     = RecData + 2
	BatHumidity = RecData + 4
	BatPressure = RecData + 6
	BatNTCTemp  = RecData + 8
)

// Pulse payload tail: vcc u16, pulse counters u32 x2, rates u16 x2, then
// for the Kamstrup variant six u32 meter values.
const (
	PlsVcc    = RecData + 0
	PlsCount1 = RecData + 2
	PlsCount2 = RecData + 6
	PlsRate1  = RecData + 10
	PlsRate2  = RecData + 12
	PlsMeter  = RecData + 14
)

// Stored record lengths per kind.
const (
	BatteryRecordLen    = RecData + BatteryPayloadLen - 1
	PulseRecordLen      = RecData + PulsePayloadLen - 1
	PulseMeterRecordLen = RecData + PulseMeterPayloadLen - 1
)

// MaxNodeID is the highest valid node id; 0 and 254+ are reserved.
const MaxNodeID = 253

// KindOf classifies a header byte. Headers with an unknown type field,
// including 0, yield KindInvalid.
func KindOf(header uint8) Kind {
	switch header & TypeMask {
	case TypeBatterySi7021, TypeBatteryBME280, TypeBatteryNTC, TypeBatterySi7021NTC:
		return KindBattery
	case TypePulse:
		return KindPulse
	case TypePulseKamstrup:
		return KindPulseMeter
	default:
		return KindInvalid
	}
}

// PayloadLen returns the exact radio payload length of a kind, 0 for
// KindInvalid.
func PayloadLen(k Kind) int {
	switch k {
	case KindBattery:
		return BatteryPayloadLen
	case KindPulse:
		return PulsePayloadLen
	case KindPulseMeter:
		return PulseMeterPayloadLen
	default:
		return 0
	}
}

var (
	ErrBadNodeID = errors.New("node: id out of range")
	ErrBadClass  = errors.New("node: unknown type in header")
)

// Validate checks a radio payload against the contract: a valid node id
// and a payload whose length matches the class selected by its header.
func Validate(id uint8, payload []byte) error {
	if id < 1 || id > MaxNodeID {
		return fmt.Errorf("%w: %d", ErrBadNodeID, id)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrBadClass)
	}
	k := KindOf(payload[0])
	if k == KindInvalid {
		return fmt.Errorf("%w: 0x%02x", ErrBadClass, payload[0])
	}
	if len(payload) != PayloadLen(k) {
		return fmt.Errorf("node: payload length %d does not match class of header 0x%02x", len(payload), payload[0])
	}
	return nil
}

// Pack builds the stored record for a validated payload: the header,
// the receive timestamp in minutes, and the payload tail.
func Pack(payload []byte, minutes uint16) []byte {
	rec := make([]byte, RecData-1+len(payload))
	rec[RecHeader] = payload[0]
	rec[RecTimestamp] = uint8(minutes >> 8)
	rec[RecTimestamp+1] = uint8(minutes)
	copy(rec[RecData:], payload[1:])
	return rec
}

// Timestamp extracts the receive timestamp of a stored record.
func Timestamp(rec []byte) uint16 {
	return uint16(rec[RecTimestamp])<<8 | uint16(rec[RecTimestamp+1])
}

// U16 reads a big-endian 16-bit field of a stored record.
func U16(rec []byte, off int) uint16 {
	return uint16(rec[off])<<8 | uint16(rec[off+1])
}

// U32 reads a big-endian 32-bit field of a stored record.
func U32(rec []byte, off int) uint32 {
	return uint32(rec[off])<<24 | uint32(rec[off+1])<<16 |
		uint32(rec[off+2])<<8 | uint32(rec[off+3])
}
