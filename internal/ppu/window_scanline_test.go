package ppu

import "testing"

func TestRenderWindowLine_WXAndTiles(t *testing.T) {
	p, _ := newTestPPU(false)
	p.lcdc = 0x10 // 0x8000 addressing, window map at 0x9800
	mapBase := uint16(0x9800)
	p.vram.WriteBank(0, mapBase+0, 0)
	p.vram.WriteBank(0, mapBase+1, 1)

	fineY := uint16(2)
	base0 := uint16(0x8000) + 0*16 + fineY*2
	p.vram.WriteBank(0, base0, 0xAA)
	p.vram.WriteBank(0, base0+1, 0x0F)
	base1 := uint16(0x8000) + 1*16 + fineY*2
	p.vram.WriteBank(0, base1, 0x55)
	p.vram.WriteBank(0, base1+1, 0xF0)

	out := p.renderWindowLine(2, 20)

	for x := 0; x < 20; x++ {
		if out[x].colorID != 0 {
			t.Fatalf("pre-window px %d = %d, want 0", x, out[x].colorID)
		}
	}
	lo0, hi0 := byte(0xAA), byte(0x0F)
	for i := 0; i < 8; i++ {
		b := 7 - byte(i)
		want := ((hi0>>b)&1)<<1 | ((lo0 >> b) & 1)
		if out[20+i].colorID != want {
			t.Fatalf("tile0 px %d got %d want %d", i, out[20+i].colorID, want)
		}
	}
	lo1, hi1 := byte(0x55), byte(0xF0)
	for i := 0; i < 8; i++ {
		b := 7 - byte(i)
		want := ((hi1>>b)&1)<<1 | ((lo1 >> b) & 1)
		if out[28+i].colorID != want {
			t.Fatalf("tile1 px %d got %d want %d", i, out[28+i].colorID, want)
		}
	}
}
