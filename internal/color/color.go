// Package color implements the DMG fixed grayscale palette registers
// (BGP/OBP0/OBP1) and the CGB programmable BG/OBJ palette RAM exposed
// through BCPS/BCPD and OCPS/OCPD with auto-increment.
package color

import (
	"bytes"
	"encoding/gob"
)

// dmgShades are the four canonical DMG shades in 0xAARRGGBB, lightest first.
var dmgShades = [4]uint32{
	0xFFFFFFFF, // white
	0xFFAAAAAA, // light gray
	0xFF555555, // dark gray
	0xFF000000, // black
}

// Controller owns both the DMG shade registers and the CGB palette RAM;
// which half is consulted depends on the mode the cartridge/boot ROM put
// the PPU in.
type Controller struct {
	cgb bool

	bgp, obp0, obp1 byte

	bgPalRAM  [64]byte // 8 palettes * 4 colors * 2 bytes (little-endian RGB555)
	objPalRAM [64]byte
	bcps      byte
	ocps      byte
}

func New(cgb bool) *Controller {
	return &Controller{cgb: cgb}
}

func (c *Controller) ReadBGP() byte  { return c.bgp }
func (c *Controller) WriteBGP(v byte) { c.bgp = v }
func (c *Controller) ReadOBP0() byte  { return c.obp0 }
func (c *Controller) WriteOBP0(v byte) { c.obp0 = v }
func (c *Controller) ReadOBP1() byte  { return c.obp1 }
func (c *Controller) WriteOBP1(v byte) { c.obp1 = v }

// DMGShade maps a 2-bit color id through the given palette register to the
// actual 0-3 shade index.
func DMGShade(reg byte, colorID byte) byte {
	return (reg >> (colorID * 2)) & 0x03
}

// DMGColorARGB resolves a 2-bit color id through reg straight to ARGB.
func DMGColorARGB(reg byte, colorID byte) uint32 {
	return dmgShades[DMGShade(reg, colorID)]
}

func (c *Controller) ReadBCPS() byte { return 0x40 | c.bcps }
func (c *Controller) WriteBCPS(v byte) { c.bcps = v & 0xBF }

func (c *Controller) ReadOCPS() byte { return 0x40 | c.ocps }
func (c *Controller) WriteOCPS(v byte) { c.ocps = v & 0xBF }

func (c *Controller) ReadBCPD() byte {
	if !c.cgb {
		return 0xFF
	}
	return c.bgPalRAM[c.bcps&0x3F]
}

func (c *Controller) WriteBCPD(v byte) {
	if !c.cgb {
		return
	}
	c.bgPalRAM[c.bcps&0x3F] = v
	if c.bcps&0x80 != 0 {
		c.bcps = 0x80 | ((c.bcps + 1) & 0x3F)
	}
}

func (c *Controller) ReadOCPD() byte {
	if !c.cgb {
		return 0xFF
	}
	return c.objPalRAM[c.ocps&0x3F]
}

func (c *Controller) WriteOCPD(v byte) {
	if !c.cgb {
		return
	}
	c.objPalRAM[c.ocps&0x3F] = v
	if c.ocps&0x80 != 0 {
		c.ocps = 0x80 | ((c.ocps + 1) & 0x3F)
	}
}

// BGColorARGB resolves palette/color indices from CGB BG palette RAM.
func (c *Controller) BGColorARGB(paletteIdx, colorID byte) uint32 {
	return rgb555ToARGB(c.bgPalRAM, paletteIdx, colorID)
}

// OBJColorARGB resolves palette/color indices from CGB OBJ palette RAM.
func (c *Controller) OBJColorARGB(paletteIdx, colorID byte) uint32 {
	return rgb555ToARGB(c.objPalRAM, paletteIdx, colorID)
}

func rgb555ToARGB(ram [64]byte, paletteIdx, colorID byte) uint32 {
	off := int(paletteIdx&0x07)*8 + int(colorID&0x03)*2
	lo, hi := ram[off], ram[off+1]
	word := uint16(lo) | uint16(hi)<<8
	r5 := byte(word & 0x1F)
	g5 := byte((word >> 5) & 0x1F)
	b5 := byte((word >> 10) & 0x1F)
	scale := func(v byte) uint32 { return uint32(v)*255/31 }
	return 0xFF000000 | scale(r5)<<16 | scale(g5)<<8 | scale(b5)
}

type colorState struct {
	BGP, OBP0, OBP1 byte
	BGPalRAM        [64]byte
	ObjPalRAM       [64]byte
	BCPS, OCPS      byte
}

func (c *Controller) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(colorState{
		BGP: c.bgp, OBP0: c.obp0, OBP1: c.obp1,
		BGPalRAM: c.bgPalRAM, ObjPalRAM: c.objPalRAM,
		BCPS: c.bcps, OCPS: c.ocps,
	})
	return buf.Bytes()
}

func (c *Controller) LoadState(data []byte) {
	var s colorState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	c.bgp, c.obp0, c.obp1 = s.BGP, s.OBP0, s.OBP1
	c.bgPalRAM, c.objPalRAM = s.BGPalRAM, s.ObjPalRAM
	c.bcps, c.ocps = s.BCPS, s.OCPS
}
