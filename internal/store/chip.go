// internal/store/chip.go
package store

// chipStore lays node records out on an external memory device as flat
// 100-byte slots indexed by node id. A zero header byte marks a slot
// unused. The device is zeroed when the backend is selected.
type chipStore struct {
	dev Device
}

func (c *chipStore) slot(id uint8) uint16 {
	return uint16(id) * MaxRecordBytes
}

func (c *chipStore) clear() {
	zeros := make([]byte, 256)
	for addr := 0; addr < c.dev.Size(); addr += len(zeros) {
		n := c.dev.Size() - addr
		if n > len(zeros) {
			n = len(zeros)
		}
		c.dev.WriteSeq(uint16(addr), zeros[:n])
	}
}

func (c *chipStore) Header(id uint8) uint8 {
	if !validID(id) {
		return 0
	}
	return c.dev.ReadByte(c.slot(id))
}

func (c *chipStore) Read(id uint8, buf []byte, offset uint8) int {
	if !validID(id) || c.Header(id) == 0 {
		return 0
	}

	length := len(buf)
	if int(offset)+length > MaxRecordBytes {
		length = MaxRecordBytes - int(offset)
	}
	if length <= 0 {
		return 0
	}

	c.dev.ReadSeq(c.slot(id)+uint16(offset), buf[:length])
	return length
}

func (c *chipStore) Write(id uint8, data []byte) int {
	if !validID(id) {
		return 0
	}
	if len(data) > MaxRecordBytes {
		data = data[:MaxRecordBytes]
	}

	// Full replace: stale tail bytes of a longer previous record must
	// not survive within the slot.
	c.Delete(id)

	rec := make([]byte, MaxRecordBytes)
	copy(rec, data)
	c.dev.WriteSeq(c.slot(id), rec)

	return len(data)
}

func (c *chipStore) Delete(id uint8) {
	if !validID(id) {
		return
	}
	c.dev.WriteByte(c.slot(id), 0)
}

func (c *chipStore) External() bool {
	return true
}

func (c *chipStore) FreeChunks() int {
	free := 0
	for id := uint8(1); id <= MaxNodeID; id++ {
		if c.dev.ReadByte(c.slot(id)) == 0 {
			free++
		}
	}
	return free
}
