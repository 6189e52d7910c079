// internal/regmap/encode.go
package regmap

// Metadata is a snapshot of the gateway state served at node id 0.
// It contains no logic and no memory of the past beyond current state.
type Metadata struct {
	UptimeMinutes uint32
	External      bool
	OutOfMemory   bool
	MeterOnline   bool
	FreeChunks    uint16
	KnownNodes    uint16
	FramesServed  uint16
	Nodes12h      uint16
	Nodes24h      uint16
	LowBattery    bool
	CRCErrors     uint16
	BadFrames     uint16
	IllegalFuncs  uint16
	IllegalAddrs  uint16
	RadioAccepted uint16
	RadioRejected uint16
	PulseCount    uint32
	ButtonPresses uint16
	MeterTimeouts uint16
}

// Encode converts a Metadata snapshot into the full metadata block.
// Layout is protocol-locked. No IO. No side effects.
func Encode(m Metadata) []uint16 {
	regs := make([]uint16, MetaRegisters)

	regs[MetaUptimeHi] = uint16(m.UptimeMinutes >> 16)
	regs[MetaUptimeLo] = uint16(m.UptimeMinutes)
	regs[MetaVersion] = Version

	var flags uint16
	if m.External {
		flags |= FlagExternalMemory
	}
	if m.OutOfMemory {
		flags |= FlagOutOfMemory
	}
	if m.MeterOnline {
		flags |= FlagMeterOnline
	}
	regs[MetaFlags] = flags

	regs[MetaFreeChunks] = m.FreeChunks
	regs[MetaKnownNodes] = m.KnownNodes
	regs[MetaFramesServed] = m.FramesServed
	regs[MetaNodes12h] = m.Nodes12h
	regs[MetaNodes24h] = m.Nodes24h
	if m.LowBattery {
		regs[MetaLowBattery] = 1
	}
	regs[MetaCRCErrors] = m.CRCErrors
	regs[MetaBadFrames] = m.BadFrames
	regs[MetaIllegalFuncs] = m.IllegalFuncs
	regs[MetaIllegalAddrs] = m.IllegalAddrs
	regs[MetaRadioAccepted] = m.RadioAccepted
	regs[MetaRadioRejected] = m.RadioRejected
	regs[MetaPulseHi] = uint16(m.PulseCount >> 16)
	regs[MetaPulseLo] = uint16(m.PulseCount)
	regs[MetaButtonPresses] = m.ButtonPresses
	regs[MetaMeterTimeouts] = m.MeterTimeouts

	return regs
}
