// cmd/gateway/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goburrow/serial"

	"github.com/aattww/sensors/internal/config"
	"github.com/aattww/sensors/internal/dispatch"
	"github.com/aattww/sensors/internal/frame"
	"github.com/aattww/sensors/internal/radio"
	"github.com/aattww/sensors/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: gateway <config.yaml>")
	}

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.LoadGateway(os.Args[1])
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.ValidateGateway(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.NormalizeGateway(cfg)

	// --------------------
	// Serial link
	// --------------------

	// The short read timeout keeps engine polls non-blocking.
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Serial.Device,
		BaudRate: cfg.Serial.Baud,
		DataBits: 8,
		Parity:   "N",
		StopBits: 1,
		Timeout:  time.Millisecond,
	})
	if err != nil {
		log.Fatalf("serial open failed (%s): %v", cfg.Serial.Device, err)
	}
	defer port.Close()

	// --------------------
	// Store, engine, dispatcher
	// --------------------

	st := buildStore(cfg.Memory)
	log.Printf("node store ready (external=%v, free=%d)", st.External(), st.FreeChunks())

	engine := frame.NewEngine(port, frame.Config{
		Address: cfg.Address,
		Baud:    uint32(cfg.Serial.Baud),
	})

	var meter *dispatch.MeterConfig
	if cfg.Meter != nil {
		meter = &dispatch.MeterConfig{
			Address: cfg.Meter.Address,
			Start:   cfg.Meter.Start,
			NodeID:  cfg.Meter.NodeID,
		}
	}

	d := dispatch.New(engine, st, dispatch.Config{
		Meter:        meter,
		BatteryLowMv: cfg.BatteryLowMv,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Radio ingress
	// --------------------

	var packets <-chan radio.Packet
	if cfg.Radio.Listen != "" {
		recv, err := radio.Listen(cfg.Radio.Listen, cfg.Radio.Buffer)
		if err != nil {
			log.Fatalf("radio listen failed (%s): %v", cfg.Radio.Listen, err)
		}
		go recv.Run(ctx)
		packets = recv.Packets()
		log.Printf("radio ingress on %s", cfg.Radio.Listen)
	}

	// --------------------
	// Cooperative control loop
	// --------------------

	var meterEvery time.Duration
	var lastMeterPoll time.Time
	if meter != nil {
		meterEvery = time.Duration(cfg.Meter.IntervalMs) * time.Millisecond
	}

	log.Printf("gateway serving as slave %d on %s at %d baud", cfg.Address, cfg.Serial.Device, cfg.Serial.Baud)

	for {
		select {
		case <-ctx.Done():
			log.Print("shutting down")
			return
		default:
		}

		d.Service()

		select {
		case pkt := <-packets:
			if err := d.Ingest(pkt.NodeID, pkt.Payload); err != nil {
				log.Printf("radio ingest failed (node=%d): %v", pkt.NodeID, err)
			}
		default:
		}

		// Meter polls happen in quiescent windows only.
		if meter != nil && time.Since(lastMeterPoll) >= meterEvery && !engine.Busy() {
			if d.PollMeter() {
				lastMeterPoll = time.Now()
			}
		}

		// Yield briefly; the serial read timeout already paces the loop.
		time.Sleep(200 * time.Microsecond)
	}
}

// buildStore selects the record store backend. "external" uses the
// in-process memory device in lieu of a hardware memory chip; "auto"
// probes for an attached device and falls back to the internal pool.
func buildStore(memory string) store.Store {
	switch memory {
	case config.MemoryExternal:
		return store.New(store.NewMemoryDevice())
	default:
		return store.New(nil)
	}
}
