package ppu

import (
	"testing"

	"github.com/haltline/gbcore/internal/color"
)

func TestDebugTileset_DecodesAllFourShades(t *testing.T) {
	p, _ := newTestPPU(false)
	// Tile 0, bank 0: one row with both bit planes set gives color id 3.
	p.vram.WriteBank(0, 0x8000, 0xFF)
	p.vram.WriteBank(0, 0x8001, 0xFF)
	p.color.WriteBGP(0xE4) // identity shade mapping

	img := p.DebugTileset()
	want := color.DMGColorARGB(0xE4, 3)
	if img[0] != want {
		t.Fatalf("tile 0 row 0 px 0 got %08X want %08X", img[0], want)
	}
	// Bank 1 half starts at column 128; all-zero on DMG decodes to shade 0.
	wantZero := color.DMGColorARGB(0xE4, 0)
	if img[128] != wantZero {
		t.Fatalf("bank 1 half px (128,0) got %08X want %08X (blank)", img[128], wantZero)
	}
}

func TestDebugBackground_FollowsTileMapSelectBit(t *testing.T) {
	p, _ := newTestPPU(false)
	p.WriteLCDC(0x10) // BG/window tile data at 0x8000, map at 0x9800, LCD off
	p.vram.WriteBank(0, 0x9800, 0x01)
	p.vram.WriteBank(0, 0x8010, 0xFF) // tile 1 row 0, both planes
	p.vram.WriteBank(0, 0x8011, 0xFF)
	p.color.WriteBGP(0xE4)

	img := p.DebugBackground()
	want := color.DMGColorARGB(0xE4, 3)
	if img[0] != want {
		t.Fatalf("background (0,0) got %08X want %08X", img[0], want)
	}
}
