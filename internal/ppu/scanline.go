package ppu

import (
	"github.com/haltline/gbcore/internal/color"
	"github.com/haltline/gbcore/internal/oam"
)

// bankReader adapts a single VRAM bank to the VRAMReader interface the tile
// decoder expects, so the same decodeTileRow logic serves both DMG (bank 0
// only) and CGB (attribute-selected bank) rendering.
type bankReader struct {
	read func(addr uint16) byte
}

func (b bankReader) Read(addr uint16) byte { return b.read(addr) }

// tilePixel is one resolved background/window pixel: its 2-bit color id,
// the CGB palette (or DMG-irrelevant 0), and the BG-over-OBJ priority bit.
type tilePixel struct {
	colorID  byte
	palette  byte
	priority bool
}

// renderBGLine resolves 160 background pixels for scanline ly.
func (p *PPU) renderBGLine(ly byte) [160]tilePixel {
	var out [160]tilePixel
	mapBase := uint16(0x9800)
	if p.lcdc&0x08 != 0 {
		mapBase = 0x9C00
	}
	tileData8000 := p.lcdc&0x10 != 0

	bgY := uint16(ly) + uint16(p.scy)
	mapY := (bgY >> 3) & 31
	fineY := byte(bgY & 7)

	for x := 0; x < 160; x++ {
		bgX := (uint16(x) + uint16(p.scx)) & 0xFF
		mapX := (bgX >> 3) & 31
		fineX := byte(bgX & 7)
		mapAddr := mapBase + mapY*32 + mapX

		attr := byte(0)
		if p.cgb {
			attr = p.vram.ReadBank(1, mapAddr)
		}
		tileNum := p.vram.ReadBank(0, mapAddr)

		effFineY := fineY
		if attr&0x40 != 0 { // y-flip
			effFineY = 7 - fineY
		}
		bank := byte(0)
		if attr&0x08 != 0 {
			bank = 1
		}
		reader := bankReader{read: func(addr uint16) byte { return p.vram.ReadBank(bank, addr) }}
		row := decodeTileRow(reader, tileData8000, tileNum, effFineY)

		px := fineX
		if attr&0x20 != 0 { // x-flip
			px = 7 - fineX
		}
		out[x] = tilePixel{colorID: row[px], palette: attr & 0x07, priority: attr&0x80 != 0}
	}
	return out
}

// renderWindowLine resolves the window layer for window line winLine, starting at
// wxStart (WX-7). Pixels before wxStart are zero-valued; the caller only
// uses entries from wxStart onward when the window is active on this line.
func (p *PPU) renderWindowLine(winLine byte, wxStart int) [160]tilePixel {
	var out [160]tilePixel
	if wxStart >= 160 {
		return out
	}
	if wxStart < 0 {
		wxStart = 0
	}
	mapBase := uint16(0x9800)
	if p.lcdc&0x40 != 0 {
		mapBase = 0x9C00
	}
	tileData8000 := p.lcdc&0x10 != 0

	mapY := (uint16(winLine) >> 3) & 31
	fineY := winLine & 7

	for x := wxStart; x < 160; x++ {
		col := uint16(x-wxStart) >> 3 & 31
		fineX := byte(uint16(x-wxStart) & 7)
		mapAddr := mapBase + mapY*32 + col

		attr := byte(0)
		if p.cgb {
			attr = p.vram.ReadBank(1, mapAddr)
		}
		tileNum := p.vram.ReadBank(0, mapAddr)

		effFineY := fineY
		if attr&0x40 != 0 {
			effFineY = 7 - fineY
		}
		bank := byte(0)
		if attr&0x08 != 0 {
			bank = 1
		}
		reader := bankReader{read: func(addr uint16) byte { return p.vram.ReadBank(bank, addr) }}
		row := decodeTileRow(reader, tileData8000, tileNum, effFineY)

		px := fineX
		if attr&0x20 != 0 {
			px = 7 - fineX
		}
		out[x] = tilePixel{colorID: row[px], palette: attr & 0x07, priority: attr&0x80 != 0}
	}
	return out
}

// composeSprites returns the 160 ARGB pixels of scanline ly: bg resolved
// through its palette, with the currently latched sprite list drawn over it
// (transparent and behind-BG pixels skipped; the list is iterated in
// reverse so the lowest x/index draws last, i.e. wins).
func (p *PPU) composeSprites(ly byte, bg [160]tilePixel) [160]uint32 {
	var line [160]uint32
	for x := range line {
		line[x] = p.resolveBGPixel(bg[x])
	}
	if p.lcdc&0x02 == 0 || len(p.spritesLine) == 0 {
		return line
	}
	tall := p.lcdc&0x04 != 0
	objHeight := 8
	if tall {
		objHeight = 16
	}

	for i := len(p.spritesLine) - 1; i >= 0; i-- {
		s := p.spritesLine[i]
		rowInSprite := int(ly) - s.ScreenY()
		if rowInSprite < 0 || rowInSprite >= objHeight {
			continue
		}
		yFlip := s.Attributes&oam.AttrYFlip != 0
		if yFlip {
			rowInSprite = objHeight - 1 - rowInSprite
		}
		tile := s.TileIndex
		if tall {
			tile &^= 0x01
			if rowInSprite >= 8 {
				tile |= 0x01
				rowInSprite -= 8
			}
		}
		bank := byte(0)
		if p.cgb && s.Attributes&oam.AttrCGBBank != 0 {
			bank = 1
		}
		reader := bankReader{read: func(addr uint16) byte { return p.vram.ReadBank(bank, addr) }}
		row := decodeTileRow(reader, true, tile, byte(rowInSprite))

		xFlip := s.Attributes&oam.AttrXFlip != 0
		for col := 0; col < 8; col++ {
			sx := s.ScreenX() + col
			if sx < 0 || sx >= 160 {
				continue
			}
			px := col
			if xFlip {
				px = 7 - col
			}
			ci := row[px]
			if ci == 0 {
				continue
			}
			behindBG := s.Attributes&oam.AttrPriority != 0
			if p.cgb {
				globalPriority := p.lcdc&0x01 != 0
				if globalPriority && (bg[sx].priority || behindBG) && bg[sx].colorID != 0 {
					continue
				}
			} else if behindBG && bg[sx].colorID != 0 {
				continue
			}
			if p.cgb {
				line[sx] = p.color.OBJColorARGB(s.Attributes&oam.AttrCGBPal, ci)
			} else {
				pal := p.color.ReadOBP0()
				if s.Attributes&oam.AttrDMGPal != 0 {
					pal = p.color.ReadOBP1()
				}
				line[sx] = color.DMGColorARGB(pal, ci)
			}
		}
	}
	return line
}

func (p *PPU) resolveBGPixel(px tilePixel) uint32 {
	if p.cgb {
		return p.color.BGColorARGB(px.palette, px.colorID)
	}
	return color.DMGColorARGB(p.color.ReadBGP(), px.colorID)
}
