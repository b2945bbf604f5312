// Package oam models the 40-entry sprite attribute table at 0xFE00-0xFE9F
// and the OAM-DMA engine that fills it from an arbitrary 256-byte source
// page over 160 M-cycles.
package oam

import (
	"bytes"
	"encoding/gob"
)

// Sprite is one of the 40 OAM entries. Y and X are stored as on real
// hardware (screen position plus the 16/8 offset); ScreenY/ScreenX apply
// the offset at read time rather than pre-subtracting it in storage, so a
// sprite with Y=0 or Y=255 is unambiguously off-screen rather than wrapping.
type Sprite struct {
	Y          byte
	X          byte
	TileIndex  byte
	Attributes byte
}

const (
	AttrPriority = 1 << 7 // 1 = BG/window over OBJ
	AttrYFlip    = 1 << 6
	AttrXFlip    = 1 << 5
	AttrDMGPal   = 1 << 4
	AttrCGBBank  = 1 << 3
	AttrCGBPal   = 0x07
)

func (s Sprite) ScreenY() int { return int(s.Y) - 16 }
func (s Sprite) ScreenX() int { return int(s.X) - 8 }

// OAM holds the raw 160-byte table plus the in-flight OAM-DMA state.
type OAM struct {
	data [160]byte
	dma  dmaState
}

type dmaState struct {
	pending bool // armed this cycle; transfer begins on the next
	active  bool
	step    int // 0..159 while active
	srcHigh byte
}

func New() *OAM {
	return &OAM{}
}

// Sprite returns entry i (0..39) decoded from the raw table.
func (o *OAM) Sprite(i int) Sprite {
	b := o.data[i*4 : i*4+4]
	return Sprite{Y: b[0], X: b[1], TileIndex: b[2], Attributes: b[3]}
}

// ReadCPU returns the OAM byte at addr (0xFE00-0xFE9F), or 0xFF while
// OAM-DMA is actively transferring. addr must already be in range.
func (o *OAM) ReadCPU(addr uint16) byte {
	if o.dma.active {
		return 0xFF
	}
	return o.data[addr-0xFE00]
}

// WriteCPU writes the OAM byte at addr; writes during DMA are ignored.
func (o *OAM) WriteCPU(addr uint16, value byte) {
	if o.dma.active {
		return
	}
	o.data[addr-0xFE00] = value
}

// StartDMA arms a transfer from srcHigh<<8; it begins on the next Tick.
func (o *OAM) StartDMA(srcHigh byte) {
	o.dma.pending = true
	o.dma.srcHigh = srcHigh
}

func (o *OAM) DMAActive() bool { return o.dma.active || o.dma.pending }

// Tick advances the DMA engine by one M-cycle, copying one byte per call
// via read (which must go through the full bus so ROM/ERAM banking applies).
func (o *OAM) Tick(read func(addr uint16) byte) {
	if o.dma.pending {
		o.dma.pending = false
		o.dma.active = true
		o.dma.step = 0
		return
	}
	if !o.dma.active {
		return
	}
	addr := uint16(o.dma.srcHigh)<<8 | uint16(o.dma.step)
	o.data[o.dma.step] = read(addr)
	o.dma.step++
	if o.dma.step >= 160 {
		o.dma.active = false
	}
}

type oamState struct {
	Data    [160]byte
	Pending bool
	Active  bool
	Step    int
	SrcHigh byte
}

func (o *OAM) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(oamState{
		Data: o.data, Pending: o.dma.pending, Active: o.dma.active,
		Step: o.dma.step, SrcHigh: o.dma.srcHigh,
	})
	return buf.Bytes()
}

func (o *OAM) LoadState(data []byte) {
	var s oamState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	o.data = s.Data
	o.dma = dmaState{pending: s.Pending, active: s.Active, step: s.Step, srcHigh: s.SrcHigh}
}
