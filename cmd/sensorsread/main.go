// cmd/sensorsread/main.go

// sensorsread reads a register window from a running gateway and prints
// it. Use for debugging:
//
//	sensorsread -device /dev/ttyUSB0 0 20     # gateway metadata
//	sensorsread -device /dev/ttyUSB0 100 8    # node id 1
package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	smodbus "github.com/aattww/sensors/internal/superv/modbus"
)

func main() {
	device := flag.String("device", "/dev/serial0", "serial device of the gateway")
	address := flag.Uint("address", 1, "gateway slave address")
	baud := flag.Int("baud", 38400, "serial baud rate")
	timeout := flag.Duration("timeout", 2*time.Second, "request timeout")
	flag.Parse()

	if flag.NArg() != 2 {
		log.Fatal("usage: sensorsread [flags] <start register> <nr of registers>")
	}
	start, err := strconv.ParseUint(flag.Arg(0), 10, 16)
	if err != nil {
		log.Fatalf("bad start register %q: %v", flag.Arg(0), err)
	}
	count, err := strconv.ParseUint(flag.Arg(1), 10, 16)
	if err != nil {
		log.Fatalf("bad register count %q: %v", flag.Arg(1), err)
	}

	client, err := smodbus.New(smodbus.Config{
		Device:  *device,
		Baud:    *baud,
		SlaveID: uint8(*address),
		Timeout: *timeout,
	})
	if err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	defer client.Close()

	regs, err := client.ReadRegisters(uint16(start), uint16(count))
	if err != nil {
		log.Fatalf("read failed: %v", err)
	}

	fmt.Println("Read Modbus data:")
	fmt.Println()
	for i, reg := range regs {
		fmt.Printf("%d: %d\n", int(start)+i, reg)
	}
}
