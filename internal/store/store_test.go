// internal/store/store_test.go
package store

import (
	"bytes"
	"testing"
)

// failingDevice never round-trips the probe sentinel.
type failingDevice struct {
	MemoryDevice
}

func (d *failingDevice) ReadByte(addr uint16) uint8 { return 0x00 }

func backends(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"chip": New(NewMemoryDevice()),
		"pool": New(nil),
	}
}

func TestProbeSelectsBackend(t *testing.T) {
	if s := New(NewMemoryDevice()); !s.External() {
		t.Fatal("working device must select the external backend")
	}
	if s := New(&failingDevice{}); s.External() {
		t.Fatal("failing device must fall back to the internal pool")
	}
	if s := New(nil); s.External() {
		t.Fatal("missing device must fall back to the internal pool")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	record := []byte{0x11, 0x00, 0x0a, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if n := s.Write(42, record); n != len(record) {
				t.Fatalf("wrote %d of %d bytes", n, len(record))
			}
			if h := s.Header(42); h != 0x11 {
				t.Fatalf("header is 0x%02x, want 0x11", h)
			}

			buf := make([]byte, len(record))
			if n := s.Read(42, buf, 0); n != len(record) {
				t.Fatalf("read %d of %d bytes", n, len(record))
			}
			if !bytes.Equal(buf, record) {
				t.Fatalf("read % x, want % x", buf, record)
			}
		})
	}
}

func TestReadWithOffset(t *testing.T) {
	record := []byte{0x11, 0x00, 0x0a, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s.Write(7, record)

			// An offset past the first pool chunk exercises the
			// chunk walk.
			buf := make([]byte, 3)
			if n := s.Read(7, buf, 14); n != 3 {
				t.Fatalf("read %d bytes, want 3", n)
			}
			if !bytes.Equal(buf, record[14:17]) {
				t.Fatalf("read % x, want % x", buf, record[14:17])
			}
		})
	}
}

func TestReadNonexistent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			buf := make([]byte, 16)
			if n := s.Read(5, buf, 0); n != 0 {
				t.Fatalf("read of nonexistent node returned %d", n)
			}
			if n := s.Read(5, buf, 90); n != 0 {
				t.Fatalf("offset read of nonexistent node returned %d", n)
			}
			if h := s.Header(5); h != 0 {
				t.Fatalf("header of nonexistent node is 0x%02x", h)
			}
		})
	}
}

func TestInvalidIDs(t *testing.T) {
	data := []byte{0x11, 0x01}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if n := s.Write(0, data); n != 0 {
				t.Fatal("id 0 must not be storable")
			}
			if n := s.Write(254, data); n != 0 {
				t.Fatal("reserved ids must not be storable")
			}
		})
	}
}

func TestShorterRecordLeavesNoStaleTail(t *testing.T) {
	long := make([]byte, 41)
	for i := range long {
		long[i] = 0xEE
	}
	long[0] = 0x16
	short := []byte{0x11, 0x00, 0x05, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s.Write(3, long)
			if n := s.Write(3, short); n != len(short) {
				t.Fatalf("rewrite stored %d of %d bytes", n, len(short))
			}

			buf := make([]byte, len(long))
			n := s.Read(3, buf, 0)
			for i := len(short); i < n; i++ {
				if buf[i] == 0xEE {
					t.Fatalf("stale byte of the old record at offset %d", i)
				}
			}
		})
	}
}

func TestOversizedWriteTruncated(t *testing.T) {
	big := make([]byte, 150)
	big[0] = 0x11

	s := New(NewMemoryDevice())
	if n := s.Write(9, big); n != MaxRecordBytes {
		t.Fatalf("stored %d bytes, want %d", n, MaxRecordBytes)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s.Write(4, []byte{0x15, 0x00, 0x01, 1})
			s.Delete(4)
			s.Delete(4)
			if h := s.Header(4); h != 0 {
				t.Fatalf("header survives delete: 0x%02x", h)
			}
		})
	}
}

// ---- POOL BACKEND SPECIFICS ----

func TestPoolExhaustionAndRecovery(t *testing.T) {
	s := New(nil)

	// A 13-byte battery record takes one chunk. Fill the pool.
	rec := []byte{0x11, 0x00, 0x00, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	for id := uint8(1); id <= PoolChunks; id++ {
		if n := s.Write(id, rec); n != len(rec) {
			t.Fatalf("node %d: stored %d of %d bytes", id, n, len(rec))
		}
	}
	if s.FreeChunks() != 0 {
		t.Fatalf("pool reports %d free chunks, want 0", s.FreeChunks())
	}

	// The next write must fail whole, not crash or partially store.
	if n := s.Write(200, rec); n != 0 {
		t.Fatalf("write into a full pool stored %d bytes", n)
	}
	if s.Header(200) != 0 {
		t.Fatal("failed write left a record behind")
	}

	// Freeing one record makes room again.
	s.Delete(1)
	if s.FreeChunks() != 1 {
		t.Fatalf("pool reports %d free chunks after delete, want 1", s.FreeChunks())
	}
	if n := s.Write(200, rec); n != len(rec) {
		t.Fatalf("write after delete stored %d of %d bytes", n, len(rec))
	}
}

func TestPoolMultiChunkAccounting(t *testing.T) {
	s := New(nil)

	// A 17-byte pulse record spans two chunks.
	rec := make([]byte, 17)
	for i := range rec {
		rec[i] = byte(i + 1)
	}
	rec[0] = 0x15

	if n := s.Write(1, rec); n != len(rec) {
		t.Fatalf("stored %d of %d bytes", n, len(rec))
	}
	if free := s.FreeChunks(); free != PoolChunks-2 {
		t.Fatalf("pool reports %d free chunks, want %d", free, PoolChunks-2)
	}

	buf := make([]byte, len(rec))
	if n := s.Read(1, buf, 0); n != len(rec) {
		t.Fatalf("read %d of %d bytes", n, len(rec))
	}
	if !bytes.Equal(buf, rec) {
		t.Fatalf("read % x, want % x", buf, rec)
	}

	s.Delete(1)
	if free := s.FreeChunks(); free != PoolChunks {
		t.Fatalf("pool reports %d free chunks after delete, want %d", free, PoolChunks)
	}
}

func TestChipSlotsAreIndependent(t *testing.T) {
	s := New(NewMemoryDevice())

	a := []byte{0x11, 0x00, 0x01, 0xAA}
	b := []byte{0x15, 0x00, 0x02, 0xBB}
	s.Write(1, a)
	s.Write(2, b)
	s.Delete(1)

	if s.Header(1) != 0 {
		t.Fatal("deleted slot still has a header")
	}
	if s.Header(2) != 0x15 {
		t.Fatal("neighboring slot was disturbed by delete")
	}
}
