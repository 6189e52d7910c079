// internal/store/pool.go
package store

// Internal chunk pool geometry. A record spans ceil(len/chunkData) chunks;
// the chunks of a node need not be contiguous.
const (
	// PoolChunks is the number of chunks in the internal pool. Enough
	// for roughly ten battery nodes or five pulse nodes.
	PoolChunks = 10

	chunkData   = 13
	chunkHeader = 2 // owning node id + ordinal
	chunkRaw    = chunkData + chunkHeader
)

// poolStore is the fallback backend: a fixed arena of chunk slots. The
// first byte of a chunk is the owning node id; 0 marks the chunk free.
// The second byte is the ordinal of the chunk within its node's record,
// dense from 0.
type poolStore struct {
	chunks [PoolChunks][chunkRaw]byte
	free   int
}

func newPoolStore() *poolStore {
	return &poolStore{free: PoolChunks}
}

// allocate returns the index of the first free chunk, -1 if none.
func (p *poolStore) allocate() int {
	for i := range p.chunks {
		if p.chunks[i][0] == 0 {
			p.free--
			return i
		}
	}
	return -1
}

// find returns the index of the chunk holding the given ordinal for a
// node, -1 if absent.
func (p *poolStore) find(id uint8, ordinal uint8) int {
	for i := range p.chunks {
		if p.chunks[i][0] == id && p.chunks[i][1] == ordinal {
			return i
		}
	}
	return -1
}

func (p *poolStore) Header(id uint8) uint8 {
	if !validID(id) {
		return 0
	}
	if i := p.find(id, 0); i >= 0 {
		return p.chunks[i][2]
	}
	return 0
}

func (p *poolStore) Write(id uint8, data []byte) int {
	if !validID(id) {
		return 0
	}
	if len(data) > MaxRecordBytes {
		data = data[:MaxRecordBytes]
	}

	// Replacing is simpler than reusing chunks in place: the node type,
	// and with it the record length, may have changed.
	p.Delete(id)

	needed := (len(data) + chunkData - 1) / chunkData
	if p.free < needed {
		return 0
	}

	for ordinal := 0; ordinal < needed; ordinal++ {
		i := p.allocate()
		p.chunks[i] = [chunkRaw]byte{id, uint8(ordinal)}

		start := ordinal * chunkData
		end := start + chunkData
		if end > len(data) {
			end = len(data)
		}
		copy(p.chunks[i][chunkHeader:], data[start:end])
	}

	return len(data)
}

func (p *poolStore) Read(id uint8, buf []byte, offset uint8) int {
	if !validID(id) || p.Header(id) == 0 {
		return 0
	}

	length := len(buf)
	if int(offset)+length > MaxRecordBytes {
		length = MaxRecordBytes - int(offset)
	}
	if length <= 0 {
		return 0
	}

	copied := 0
	skip := int(offset)
	for ordinal := 0; copied < length; ordinal++ {
		if skip >= chunkData {
			skip -= chunkData
			continue
		}

		i := p.find(id, uint8(ordinal))
		if i < 0 {
			// Past the last stored chunk: remaining bytes are
			// undefined, report what was actually copied.
			break
		}

		n := copy(buf[copied:length], p.chunks[i][chunkHeader+skip:])
		copied += n
		skip = 0
	}

	return copied
}

func (p *poolStore) Delete(id uint8) {
	if !validID(id) {
		return
	}
	for i := range p.chunks {
		if p.chunks[i][0] == id {
			p.chunks[i][0] = 0
			p.free++
		}
	}
}

func (p *poolStore) External() bool {
	return false
}

func (p *poolStore) FreeChunks() int {
	return p.free
}
