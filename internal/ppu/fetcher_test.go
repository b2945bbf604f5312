package ppu

import "testing"

type mockVRAM map[uint16]byte

func (m mockVRAM) Read(addr uint16) byte { return m[addr] }

func TestDecodeTileRow_UnsignedAddressing(t *testing.T) {
	mem := mockVRAM{}
	mem[0x8000] = 0x55
	mem[0x8001] = 0x33

	row := decodeTileRow(mem, true, 0, 0)
	lo, hi := byte(0x55), byte(0x33)
	for i := 0; i < 8; i++ {
		b := 7 - byte(i)
		want := ((hi>>b)&1)<<1 | ((lo >> b) & 1)
		if row[i] != want {
			t.Fatalf("px %d got %d want %d", i, row[i], want)
		}
	}
}

func TestDecodeTileRow_SignedAddressing8800(t *testing.T) {
	mem := mockVRAM{}
	// For 0x8800 signed addressing, tile index 0 is at 0x9000; -1 => 0x8FF0.
	fineY := byte(5) // row 5 -> offset 10 bytes into tile (each row 2 bytes)
	rowAddr := uint16(0x8FF0) + uint16(fineY)*2
	lo, hi := byte(0xA5), byte(0x5A)
	mem[rowAddr] = lo
	mem[rowAddr+1] = hi

	row := decodeTileRow(mem, false, 0xFF, fineY)
	for i := 0; i < 8; i++ {
		b := 7 - byte(i)
		want := ((hi>>b)&1)<<1 | ((lo >> b) & 1)
		if row[i] != want {
			t.Fatalf("px %d got %d want %d", i, row[i], want)
		}
	}
}
