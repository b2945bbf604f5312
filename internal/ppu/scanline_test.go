package ppu

import "testing"

func TestRenderBGLine_SCXOffsetAndTileWrap(t *testing.T) {
	p, _ := newTestPPU(false)
	p.lcdc = 0x10 // 0x8000 addressing, BG map at 0x9800
	mapBase := uint16(0x9800)
	for tile := 0; tile < 32; tile++ {
		p.vram.WriteBank(0, mapBase+uint16(tile), byte(tile))
		base := uint16(0x8000 + tile*16)
		p.vram.WriteBank(0, base, byte(tile))
		p.vram.WriteBank(0, base+1, ^byte(tile))
	}
	p.scx = 5
	out := p.renderBGLine(0)

	lo0, hi0 := byte(0), ^byte(0)
	for i := 0; i < 3; i++ {
		b := 2 - byte(i)
		want := ((hi0>>b)&1)<<1 | ((lo0 >> b) & 1)
		if out[i].colorID != want {
			t.Fatalf("px %d got %d want %d", i, out[i].colorID, want)
		}
	}
	lo1, hi1 := byte(1), ^byte(1)
	for i := 0; i < 8; i++ {
		b := 7 - byte(i)
		want := ((hi1>>b)&1)<<1 | ((lo1 >> b) & 1)
		if out[3+i].colorID != want {
			t.Fatalf("tile1 px %d got %d want %d", i, out[3+i].colorID, want)
		}
	}
}

func TestRenderBGLine_SCYRowSelectAndMapWrap(t *testing.T) {
	p, _ := newTestPPU(false)
	p.lcdc = 0x10
	mapBase := uint16(0x9800)
	p.vram.WriteBank(0, mapBase+32+0, 0)
	p.vram.WriteBank(0, mapBase+32+1, 1)

	fineY := uint16(3)
	base0 := uint16(0x8000+0*16) + fineY*2
	p.vram.WriteBank(0, base0, 0x12)
	p.vram.WriteBank(0, base0+1, 0x34)
	base1 := uint16(0x8000+1*16) + fineY*2
	p.vram.WriteBank(0, base1, 0x56)
	p.vram.WriteBank(0, base1+1, 0x78)

	p.scy = 11
	out := p.renderBGLine(0) // bgY = 0+11 = 11 -> mapY=1, fineY=3

	lo0, hi0 := byte(0x12), byte(0x34)
	for i := 0; i < 8; i++ {
		b := 7 - byte(i)
		want := ((hi0>>b)&1)<<1 | ((lo0 >> b) & 1)
		if out[i].colorID != want {
			t.Fatalf("tile0 px %d got %d want %d", i, out[i].colorID, want)
		}
	}
	lo1, hi1 := byte(0x56), byte(0x78)
	for i := 0; i < 8; i++ {
		b := 7 - byte(i)
		want := ((hi1>>b)&1)<<1 | ((lo1 >> b) & 1)
		if out[8+i].colorID != want {
			t.Fatalf("tile1 px %d got %d want %d", i, out[8+i].colorID, want)
		}
	}
}
