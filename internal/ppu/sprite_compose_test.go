package ppu

import (
	"testing"

	"github.com/haltline/gbcore/internal/color"
	"github.com/haltline/gbcore/internal/oam"
)

func TestComposeSprites_PriorityAndTransparency(t *testing.T) {
	p, _ := newTestPPU(false)
	p.lcdc = 0x02 // sprites enabled, 8x8
	p.color.WriteOBP0(0xE4)
	p.vram.WriteBank(0, 0x8000, 0x80)
	p.vram.WriteBank(0, 0x8001, 0x00)

	p.spritesLine = []oam.Sprite{{Y: 16 + 5, X: 10 + 8, TileIndex: 0, Attributes: 0}}
	var bg [160]tilePixel
	out := p.composeSprites(5, bg)
	if out[10] != color.DMGColorARGB(0xE4, 1) {
		t.Fatalf("expected an opaque sprite pixel at x=10")
	}

	p.spritesLine[0].Attributes = oam.AttrPriority
	bg[10] = tilePixel{colorID: 1}
	out = p.composeSprites(5, bg)
	if out[10] != p.resolveBGPixel(bg[10]) {
		t.Fatalf("sprite behind a non-zero BG pixel should be hidden")
	}
}

func TestComposeSprites_LeftmostXWinsTie(t *testing.T) {
	p, _ := newTestPPU(false)
	p.lcdc = 0x02
	p.color.WriteOBP0(0xE4)
	p.color.WriteOBP1(0x1B)
	p.vram.WriteBank(0, 0x8000, 0xFF)
	p.vram.WriteBank(0, 0x8001, 0x00)

	// Distinct palettes tell the two overlapping sprites apart at x=20.
	s0 := oam.Sprite{Y: 16, X: 19 + 8, TileIndex: 0, Attributes: oam.AttrDMGPal}
	s1 := oam.Sprite{Y: 16, X: 20 + 8, TileIndex: 0, Attributes: 0}
	p.spritesLine = []oam.Sprite{s0, s1}
	var bg [160]tilePixel
	out := p.composeSprites(0, bg)
	if out[20] != color.DMGColorARGB(0x1B, 1) {
		t.Fatalf("expected the x=19 sprite's pixel at x=20")
	}
}
