// internal/store/device.go
package store

// Device is a random-access byte memory, the abstraction over the 23K256
// serial SRAM chip of the reference hardware. Contents are volatile: the
// store zeroes the device at initialization.
type Device interface {
	ReadByte(addr uint16) uint8
	WriteByte(addr uint16, b uint8)
	ReadSeq(addr uint16, buf []byte)
	WriteSeq(addr uint16, data []byte)
	Size() int
}

// DeviceSize is the address space of the reference device (32 KiB).
const DeviceSize = 32 * 1024

// MemoryDevice is an in-process Device. The gateway uses it when no real
// memory chip is attached but the external-backend layout is wanted;
// tests use it to drive the chip backend.
type MemoryDevice struct {
	data [DeviceSize]byte
}

// NewMemoryDevice returns a zeroed in-process memory device.
func NewMemoryDevice() *MemoryDevice {
	return &MemoryDevice{}
}

func (d *MemoryDevice) ReadByte(addr uint16) uint8 {
	return d.data[addr]
}

func (d *MemoryDevice) WriteByte(addr uint16, b uint8) {
	d.data[addr] = b
}

func (d *MemoryDevice) ReadSeq(addr uint16, buf []byte) {
	copy(buf, d.data[addr:])
}

func (d *MemoryDevice) WriteSeq(addr uint16, data []byte) {
	copy(d.data[addr:], data)
}

func (d *MemoryDevice) Size() int {
	return DeviceSize
}
