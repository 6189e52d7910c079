// internal/regmap/constants.go
package regmap

// Register map of the gateway's Modbus address space.
// These values define the protocol and MUST NOT be configurable.

// ---- ADDRESS SPACE GEOMETRY ----

// RegistersPerNode is the register stride per node id:
// register address = nodeId*RegistersPerNode + field offset.
const RegistersPerNode = 100

// MaxNodeID is the highest valid node id. 0 is the gateway itself,
// 254 and 255 are reserved by Modbus.
const MaxNodeID = 253

// ---- GATEWAY METADATA BLOCK (node id 0) ----

// MetaRegisters is the size of the gateway metadata block.
const MetaRegisters = 20

const (
	MetaUptimeHi       = 0 // minutes since boot, high word
	MetaUptimeLo       = 1 // minutes since boot, low word
	MetaVersion        = 2
	MetaFlags          = 3
	MetaFreeChunks     = 4
	MetaKnownNodes     = 5
	MetaFramesServed   = 6
	MetaNodes12h       = 7 // nodes heard within the last 12 hours
	MetaNodes24h       = 8 // nodes heard within the last 24 hours
	MetaLowBattery     = 9 // 1 if any battery node is below the threshold
	MetaCRCErrors      = 10
	MetaBadFrames      = 11 // corrupted or overflowed frames
	MetaIllegalFuncs   = 12
	MetaIllegalAddrs   = 13
	MetaRadioAccepted  = 14
	MetaRadioRejected  = 15
	MetaPulseHi        = 16 // gateway pulse counter, high word
	MetaPulseLo        = 17 // gateway pulse counter, low word
	MetaButtonPresses  = 18
	MetaMeterTimeouts  = 19
)

// ---- METADATA FLAG BITS (register MetaFlags) ----

const (
	FlagExternalMemory uint16 = 1 << 0
	FlagOutOfMemory    uint16 = 1 << 1
	FlagMeterOnline    uint16 = 1 << 2
)

// ---- PER-CLASS REGISTER WINDOWS ----

// BatteryRegisters is the register window of a battery-powered node.
const BatteryRegisters = 8

const (
	BatteryAge      = 0 // minutes since last received packet
	BatteryVcc      = 1 // battery voltage, mV
	BatteryTemp2    = 2 // NTC channel temperature
	BatteryFlags    = 3 // header flag bits
	BatteryHeader   = 4 // raw header byte
	BatteryTemp     = 5
	BatteryHumidity = 6
	BatteryPressure = 7
)

// PulseRegisters is the register window of a pulse node.
const PulseRegisters = 10

const (
	PulseAge      = 0
	PulseVcc      = 1
	PulseRate1    = 2
	PulseFlags    = 3
	PulseHeader   = 4
	PulseRate2    = 5
	PulseCount1Hi = 6
	PulseCount1Lo = 7
	PulseCount2Hi = 8
	PulseCount2Lo = 9
)

// PulseMeterRegisters is the register window of a pulse node with an
// attached Kamstrup meter: the pulse window followed by six 32-bit
// big-endian meter values (energy, volume, temperature in/out, flow, power).
const PulseMeterRegisters = 22

// MeterFirst is the first meter register offset inside the pulse+meter window.
const MeterFirst = PulseRegisters

// MeterValues is the number of 32-bit meter values.
const MeterValues = 6

// Version is the protocol version served at MetaVersion (major<<8 | minor).
const Version uint16 = 0x0104
