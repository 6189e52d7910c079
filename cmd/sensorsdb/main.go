// cmd/sensorsdb/main.go

// sensorsdb periodically reads configured node registers from a gateway,
// stores the readings into a SQLite database and reports active alarms.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aattww/sensors/internal/alarm"
	"github.com/aattww/sensors/internal/archive"
	"github.com/aattww/sensors/internal/config"
	"github.com/aattww/sensors/internal/superv"
	smodbus "github.com/aattww/sensors/internal/superv/modbus"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: sensorsdb <config.yaml>")
	}

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.LoadArchive(os.Args[1])
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.ValidateArchive(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.NormalizeArchive(cfg)

	// --------------------
	// Gateway client + poller
	// --------------------

	client, err := smodbus.New(smodbus.Config{
		Device:  cfg.Serial.Device,
		Baud:    cfg.Serial.Baud,
		SlaveID: cfg.Address,
		Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("gateway connect failed: %v", err)
	}
	defer client.Close()

	reads := make([]superv.ReadBlock, 0, len(cfg.Reads))
	for _, r := range cfg.Reads {
		reads = append(reads, superv.ReadBlock{Address: r.Register, Quantity: r.Count})
	}

	poller, err := superv.New(superv.Config{
		Interval: time.Duration(cfg.IntervalMs) * time.Millisecond,
		Reads:    reads,
	}, client)
	if err != nil {
		log.Fatalf("poller build failed: %v", err)
	}

	recorder, err := archive.Open(cfg.Database)
	if err != nil {
		log.Fatalf("database open failed: %v", err)
	}
	defer recorder.Close()

	rules := make([]alarm.Rule, 0, len(cfg.Alarms))
	for _, a := range cfg.Alarms {
		rules = append(rules, alarm.Rule{
			Register:  a.Register,
			Condition: a.Condition,
			Value:     a.Value,
			Message:   a.Message,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := make(chan superv.PollResult)
	go poller.Run(ctx, out)

	log.Printf("archiving %d windows from %s into %s every %dms",
		len(reads), cfg.Serial.Device, cfg.Database, cfg.IntervalMs)

	for {
		select {
		case <-ctx.Done():
			log.Print("shutting down")
			return

		case res := <-out:
			if res.Err != nil {
				log.Printf("poll failed: %v", res.Err)
				continue
			}

			if err := recorder.Store(res.At, extract(cfg.Reads, res)); err != nil {
				log.Printf("store failed: %v", err)
			}

			active, err := alarm.CheckAll(rules, readerFor(res))
			if err != nil {
				log.Printf("alarm check failed: %v", err)
				continue
			}
			for _, msg := range active {
				log.Printf("ALARM: %s", msg)
			}
		}
	}
}

// extract turns a poll snapshot into named readings using the configured
// offset names, signedness and scale.
func extract(reads []config.ArchiveRead, res superv.PollResult) []archive.Reading {
	var out []archive.Reading
	for i, blk := range res.Blocks {
		if i >= len(reads) {
			break
		}
		r := reads[i]
		for off, name := range r.Names {
			if off >= len(blk.Registers) {
				continue
			}
			raw := blk.Registers[off]

			var value float64
			if r.Signed {
				value = float64(superv.ToSigned(raw))
			} else {
				value = float64(raw)
			}
			out = append(out, archive.Reading{Name: name, Value: value * r.Scale})
		}
	}
	return out
}

// readerFor serves alarm register lookups from the snapshot. Alarms
// against registers outside the polled windows fail; add the window to
// the reads section instead of widening this.
func readerFor(res superv.PollResult) alarm.ReadFunc {
	return func(register uint16) (uint16, error) {
		for _, blk := range res.Blocks {
			if register >= blk.Address && int(register-blk.Address) < len(blk.Registers) {
				return blk.Registers[register-blk.Address], nil
			}
		}
		return 0, fmt.Errorf("register %d is not covered by any configured read", register)
	}
}
