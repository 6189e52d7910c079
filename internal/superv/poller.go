// internal/superv/poller.go

// Package superv polls register windows from a running gateway over its
// Modbus slave side. It is the supervisory counterpart of the gateway
// daemon, used by the archiving and alarm tooling.
package superv

import (
	"errors"
	"time"
)

// Client abstracts the Modbus operations the poller needs. The poller
// depends on geometry only; the gateway serves holding and input registers
// identically, so holding reads are enough.
type Client interface {
	ReadRegisters(addr, qty uint16) ([]uint16, error)
}

// ReadBlock describes one register window to poll. Geometry only.
type ReadBlock struct {
	Address  uint16
	Quantity uint16
}

// BlockResult is the raw result of one window read.
type BlockResult struct {
	Address   uint16
	Registers []uint16
}

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	At     time.Time
	Blocks []BlockResult
	Err    error // non-nil means the poll cycle failed
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Interval time.Duration
	Reads    []ReadBlock
}

// Poller is a dumb, clock-driven reader.
type Poller struct {
	cfg    Config
	client Client
}

// New creates a poller with immutable config.
func New(cfg Config, client Client) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("superv: interval must be > 0")
	}
	if len(cfg.Reads) == 0 {
		return nil, errors.New("superv: at least one read block required")
	}
	return &Poller{cfg: cfg, client: client}, nil
}

// PollOnce performs exactly one poll cycle.
// All-or-nothing: any failure aborts the cycle.
func (p *Poller) PollOnce() PollResult {
	res := PollResult{At: time.Now()}

	var blocks []BlockResult
	for _, rb := range p.cfg.Reads {
		regs, err := p.client.ReadRegisters(rb.Address, rb.Quantity)
		if err != nil {
			res.Err = err
			return res
		}
		blocks = append(blocks, BlockResult{Address: rb.Address, Registers: regs})
	}

	// Commit only if all reads succeeded
	res.Blocks = blocks
	return res
}

// ToSigned reinterprets a gateway register as a signed 16-bit value, the
// conversion every consumer of temperature-like registers needs.
func ToSigned(v uint16) int16 {
	return int16(v)
}
