// internal/config/config.go
package config

// ---- GATEWAY DAEMON ----

// GatewayFile is the top-level document of the gateway configuration.
type GatewayFile struct {
	Gateway GatewayConfig `yaml:"gateway"`
}

type GatewayConfig struct {
	Serial       SerialConfig `yaml:"serial"`
	Address      uint8        `yaml:"address"` // own Modbus slave address
	Memory       string       `yaml:"memory"`  // auto | external | internal
	Radio        RadioConfig  `yaml:"radio"`
	BatteryLowMv uint16       `yaml:"battery_low_mv"`
	Meter        *MeterConfig `yaml:"meter"` // optional, nil disables polling
}

type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type RadioConfig struct {
	Listen string `yaml:"listen"` // UDP ingress address
	Buffer int    `yaml:"buffer"` // packet channel depth
}

// MeterConfig describes the downstream energy meter polled in master mode.
type MeterConfig struct {
	Address    uint8  `yaml:"address"`
	Start      uint16 `yaml:"start"`
	IntervalMs int    `yaml:"interval_ms"`
	NodeID     uint8  `yaml:"node_id"` // 0 keeps values out of the store
}

// ---- SUPERVISORY ARCHIVER ----

// ArchiveFile is the top-level document of the sensorsdb configuration.
type ArchiveFile struct {
	Archive ArchiveConfig `yaml:"archive"`
}

type ArchiveConfig struct {
	Serial     SerialConfig  `yaml:"serial"`
	Address    uint8         `yaml:"address"` // gateway slave address
	TimeoutMs  int           `yaml:"timeout_ms"`
	Database   string        `yaml:"database"`
	IntervalMs int           `yaml:"interval_ms"`
	Reads      []ArchiveRead `yaml:"reads"`
	Alarms     []AlarmRule   `yaml:"alarms"`
}

// ArchiveRead is one register window to poll, with the series names of the
// offsets worth keeping.
type ArchiveRead struct {
	Register uint16         `yaml:"register"`
	Count    uint16         `yaml:"count"`
	Names    map[int]string `yaml:"names"` // offset within window -> series name
	Signed   bool           `yaml:"signed"`
	Scale    float64        `yaml:"scale"`
}

// AlarmRule is one alarm definition; value is an integer constant or a
// register reference written "R<nr>".
type AlarmRule struct {
	Register  uint16 `yaml:"register"`
	Condition string `yaml:"condition"`
	Value     string `yaml:"value"`
	Message   string `yaml:"message"`
}
