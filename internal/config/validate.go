// internal/config/validate.go
package config

import (
	"fmt"
)

// Memory backend selectors.
const (
	MemoryAuto     = "auto"
	MemoryExternal = "external"
	MemoryInternal = "internal"
)

var conditions = map[string]bool{
	"<": true, ">": true, "=": true, "==": true,
	">=": true, "<=": true, "!=": true,
}

// ValidateGateway checks gateway configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func ValidateGateway(cfg *GatewayConfig) error {
	if cfg.Serial.Device == "" {
		return fmt.Errorf("gateway: serial.device is required")
	}
	if cfg.Serial.Baud < 0 {
		return fmt.Errorf("gateway: serial.baud must be positive")
	}
	if cfg.Address < 1 || cfg.Address > 247 {
		return fmt.Errorf("gateway: address %d outside 1..247", cfg.Address)
	}

	switch cfg.Memory {
	case "", MemoryAuto, MemoryExternal, MemoryInternal:
	default:
		return fmt.Errorf("gateway: memory %q must be auto, external or internal", cfg.Memory)
	}

	if m := cfg.Meter; m != nil {
		if m.Address < 1 || m.Address > 247 {
			return fmt.Errorf("gateway: meter.address %d outside 1..247", m.Address)
		}
		if m.Address == cfg.Address {
			return fmt.Errorf("gateway: meter.address collides with own address %d", cfg.Address)
		}
		if m.IntervalMs < 0 {
			return fmt.Errorf("gateway: meter.interval_ms must be positive")
		}
		if m.NodeID > 253 {
			return fmt.Errorf("gateway: meter.node_id %d outside 0..253", m.NodeID)
		}
	}

	return nil
}

// ValidateArchive checks sensorsdb configuration correctness.
func ValidateArchive(cfg *ArchiveConfig) error {
	if cfg.Serial.Device == "" {
		return fmt.Errorf("archive: serial.device is required")
	}
	if cfg.Address < 1 || cfg.Address > 247 {
		return fmt.Errorf("archive: address %d outside 1..247", cfg.Address)
	}
	if cfg.Database == "" {
		return fmt.Errorf("archive: database path is required")
	}
	if len(cfg.Reads) == 0 {
		return fmt.Errorf("archive: at least one read is required")
	}

	for i, r := range cfg.Reads {
		if r.Count == 0 {
			return fmt.Errorf("archive: reads[%d]: count must be > 0", i)
		}
		if len(r.Names) == 0 {
			return fmt.Errorf("archive: reads[%d]: at least one named offset is required", i)
		}
		for off, name := range r.Names {
			if off < 0 || off >= int(r.Count) {
				return fmt.Errorf("archive: reads[%d]: offset %d outside window of %d registers", i, off, r.Count)
			}
			if name == "" {
				return fmt.Errorf("archive: reads[%d]: offset %d has an empty series name", i, off)
			}
		}
		if r.Scale < 0 {
			return fmt.Errorf("archive: reads[%d]: scale must not be negative", i)
		}
	}

	for i, a := range cfg.Alarms {
		if !conditions[a.Condition] {
			return fmt.Errorf("archive: alarms[%d]: unknown condition %q", i, a.Condition)
		}
		if a.Value == "" {
			return fmt.Errorf("archive: alarms[%d]: value is required", i)
		}
		if a.Message == "" {
			return fmt.Errorf("archive: alarms[%d]: message is required", i)
		}
	}

	return nil
}
