// internal/config/normalize.go
package config

// Reference deployment defaults.
const (
	DefaultBaud          = 38400
	DefaultRadioBuffer   = 32
	DefaultMeterInterval = 60000 // ms
	DefaultPollInterval  = 60000 // ms
	DefaultTimeout       = 2000  // ms
)

// NormalizeGateway applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after ValidateGateway().
func NormalizeGateway(cfg *GatewayConfig) {
	if cfg == nil {
		return
	}

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = DefaultBaud
	}
	if cfg.Memory == "" {
		cfg.Memory = MemoryAuto
	}
	if cfg.Radio.Buffer == 0 {
		cfg.Radio.Buffer = DefaultRadioBuffer
	}
	if cfg.Meter != nil && cfg.Meter.IntervalMs == 0 {
		cfg.Meter.IntervalMs = DefaultMeterInterval
	}
}

// NormalizeArchive applies post-validation defaults for sensorsdb.
func NormalizeArchive(cfg *ArchiveConfig) {
	if cfg == nil {
		return
	}

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = DefaultBaud
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = DefaultTimeout
	}
	if cfg.IntervalMs == 0 {
		cfg.IntervalMs = DefaultPollInterval
	}
	for i := range cfg.Reads {
		if cfg.Reads[i].Scale == 0 {
			cfg.Reads[i].Scale = 1
		}
	}
}
