// internal/store/store.go

// Package store keeps the latest record of every field node behind one
// uniform interface, regardless of which memory actually holds it: an
// external serial memory device with full random access, or a small
// internal chunk pool. The backend is probed once at start-up and fixed
// for the process lifetime.
package store

// MaxRecordBytes is the most a single node record may occupy.
const MaxRecordBytes = 100

// MaxNodeID is the highest storable node id.
const MaxNodeID = 253

// Store is the uniform per-node record store.
//
// None of the operations block, retry or allocate beyond pre-reserved
// storage. Failure is communicated through return values: 0 bytes written
// or read means "could not".
type Store interface {
	// Header returns the stored header byte of a node, 0 if the node
	// does not exist. A header can never legitimately be 0, so this
	// doubles as an existence check.
	Header(id uint8) uint8

	// Read copies up to len(buf) bytes of the node's record starting at
	// offset and returns the number of bytes copied. Returns 0 if the
	// node does not exist. Bytes beyond the stored record length are
	// undefined.
	Read(id uint8, buf []byte, offset uint8) int

	// Write replaces the node's record with data and returns the number
	// of bytes stored. Data longer than MaxRecordBytes is silently
	// truncated. A return value smaller than the truncated length means
	// the store is out of memory for this record; nothing was kept.
	Write(id uint8, data []byte) int

	// Delete removes the node's record. Idempotent.
	Delete(id uint8)

	// External reports whether the external memory device backend is
	// active.
	External() bool

	// FreeChunks reports the remaining capacity in backend units:
	// free pool chunks, or free record slots on the external device.
	FreeChunks() int
}

// New selects the backend: if dev is present and passes the probe, the
// whole device is zeroed and used; otherwise the internal pool backs the
// store.
func New(dev Device) Store {
	if dev != nil && Probe(dev) {
		c := &chipStore{dev: dev}
		c.clear()
		return c
	}
	return newPoolStore()
}

// Probe checks for a working memory device by round-tripping a sentinel
// byte through its highest address.
func Probe(dev Device) bool {
	addr := uint16(dev.Size() - 1)

	dev.WriteByte(addr, probeSentinel)
	if dev.ReadByte(addr) != probeSentinel {
		return false
	}
	// A floating bus can echo a single value; the complement must
	// round-trip too.
	dev.WriteByte(addr, ^probeSentinel)
	return dev.ReadByte(addr) == ^probeSentinel
}

const probeSentinel uint8 = 0xA5

func validID(id uint8) bool {
	return id >= 1 && id <= MaxNodeID
}
