package ppu

import "github.com/haltline/gbcore/internal/color"

// DebugBackground renders the full 256x256 background tile map ignoring
// SCX/SCY, the same way renderBGLine resolves a single visible scanline.
func (p *PPU) DebugBackground() [256 * 256]uint32 {
	var out [256 * 256]uint32
	mapBase := uint16(0x9800)
	if p.lcdc&0x08 != 0 {
		mapBase = 0x9C00
	}
	tileData8000 := p.lcdc&0x10 != 0

	for ly := 0; ly < 256; ly++ {
		mapY := uint16(ly) >> 3 & 31
		fineY := byte(ly & 7)
		for lx := 0; lx < 256; lx++ {
			mapX := uint16(lx) >> 3 & 31
			fineX := byte(lx & 7)
			mapAddr := mapBase + mapY*32 + mapX

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
			var rgb uint32
			if p.cgb {
				rgb = p.color.BGColorARGB(attr&0x07, row[px])
			} else {
				rgb = color.DMGColorARGB(p.color.ReadBGP(), row[px])
			}
			out[ly*256+lx] = rgb
		}
	}
	return out
}

// DebugTileset renders all 384 tiles of both VRAM banks side by side, bank 0
// filling the left half and bank 1 the right (all-zero on DMG, since
// bank 1 is never selected or written there): 16 tiles wide by 24 tall per half,
// 8x8 pixels each, 256x192 total.
func (p *PPU) DebugTileset() [256 * 192]uint32 {
	var out [256 * 192]uint32
	for bank := byte(0); bank < 2; bank++ {
		xOff := int(bank) * 128
		for tile := 0; tile < 384; tile++ {
			col := tile % 16
			row := tile / 16
			base := 0x8000 + uint16(tile)*16
			for fy := 0; fy < 8; fy++ {
				lo := p.vram.ReadBank(bank, base+uint16(fy)*2)
				hi := p.vram.ReadBank(bank, base+uint16(fy)*2+1)
				for fx := 0; fx < 8; fx++ {
					bit := 7 - byte(fx)
					ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
					rgb := color.DMGColorARGB(p.color.ReadBGP(), ci)
					px := xOff + col*8 + fx
					py := row*8 + fy
					out[py*256+px] = rgb
				}
			}
		}
	}
	return out
}
