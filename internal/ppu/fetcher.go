package ppu

// VRAMReader provides read-only access for the scanline renderer. It
// abstracts how VRAM bytes are fetched (tests vs. live PPU).
type VRAMReader interface {
	Read(addr uint16) byte
}

// decodeTileRow reads one 8-pixel tile row (2bpp, planar) from mem and
// returns the 2-bit color id for each of the 8 pixels, MSB (leftmost) first.
// tileData8000 selects 0x8000-unsigned vs 0x8800-signed tile addressing.
func decodeTileRow(mem VRAMReader, tileData8000 bool, tileNum byte, fineY byte) [8]byte {
	var base uint16
	if tileData8000 {
		base = 0x8000 + uint16(tileNum)*16 + uint16(fineY&7)*2
	} else {
		base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY&7)*2
	}
	lo := mem.Read(base)
	hi := mem.Read(base + 1)
	var out [8]byte
	for px := 0; px < 8; px++ {
		bit := 7 - byte(px)
		out[px] = ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
	}
	return out
}
