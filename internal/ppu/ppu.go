// Package ppu implements the scanline mode machine: OAM search, pixel
// transfer (rendered synchronously at transfer entry rather than pixel by
// pixel), HBlank, VBlank, and the STAT interrupt line's OR-of-sources
// rising-edge detection.
package ppu

import (
	"bytes"
	"encoding/gob"
	"sort"

	"github.com/haltline/gbcore/internal/color"
	"github.com/haltline/gbcore/internal/interrupt"
	"github.com/haltline/gbcore/internal/oam"
	"github.com/haltline/gbcore/internal/vram"
)

type mode byte

const (
	modeHBlank      mode = 0
	modeVBlank      mode = 1
	modeOAMSearch   mode = 2
	modeTransfer    mode = 3
	modeHBlankFirst mode = 4 // internal only; never exposed on STAT
)

const (
	oamSearchMCycles   = 20
	transferMCycles    = 43
	hblankMCycles      = 51
	lineMCycles        = oamSearchMCycles + transferMCycles + hblankMCycles // 114
	linesPerFrame      = 154
	visibleLines       = 144
	hblankFirstMCycles = 18 // re-enabling the LCD holds HBlankFirst this long before Transfer
)

// PPU owns its register file and the rendered frame buffers. It references
// (does not own) the VRAM and OAM tables, which the bus shares with
// OAM-DMA/HDMA; the bus combines PPU access gating with DMA-active gating
// on the CPU-facing read/write path.
type PPU struct {
	vram  *vram.VRAM
	oam   *oam.OAM
	color *color.Controller
	cgb   bool
	sink  interrupt.Sink

	lcdc, stat         byte
	scy, scx, ly, lyc  byte
	wy, wx             byte
	windowLineCounter  int
	windowDrawnOnLine  bool

	curMode       mode
	modeMCycles   int
	transferExtra int

	spritesLine []oam.Sprite

	prevStatLine bool

	videoBuffer  [160 * 144]uint32
	lastVideoOut [160 * 144]uint32
}

func New(cgb bool, v *vram.VRAM, o *oam.OAM, c *color.Controller, sink interrupt.Sink) *PPU {
	return &PPU{vram: v, oam: o, color: c, cgb: cgb, sink: sink, curMode: modeOAMSearch}
}

// CanReadOAM/CanWriteOAM/CanReadVRAM/CanWriteVRAM report the current mode's
// access gates for the bus to combine with OAM-DMA's own gating. While the
// LCD is off the PPU holds no lock on either table at all.
func (p *PPU) CanReadOAM() bool {
	return p.lcdc&0x80 == 0 || (p.curMode != modeOAMSearch && p.curMode != modeTransfer)
}
func (p *PPU) CanWriteOAM() bool {
	return p.lcdc&0x80 == 0 || (p.curMode != modeOAMSearch && p.curMode != modeTransfer)
}
func (p *PPU) CanReadVRAM() bool  { return p.lcdc&0x80 == 0 || p.curMode != modeTransfer }
func (p *PPU) CanWriteVRAM() bool { return p.lcdc&0x80 == 0 || p.curMode != modeTransfer }

func (p *PPU) ReadLCDC() byte { return p.lcdc }
func (p *PPU) ReadSTAT() byte { return 0x80 | (p.stat & 0x7F) }
func (p *PPU) ReadSCY() byte  { return p.scy }
func (p *PPU) ReadSCX() byte  { return p.scx }
func (p *PPU) ReadLY() byte   { return p.ly }
func (p *PPU) ReadLYC() byte  { return p.lyc }
func (p *PPU) ReadWY() byte   { return p.wy }
func (p *PPU) ReadWX() byte   { return p.wx }

func (p *PPU) WriteLCDC(value byte) {
	prev := p.lcdc
	p.lcdc = value
	if prev&0x80 != 0 && value&0x80 == 0 {
		p.ly = 0
		p.modeMCycles = 0
		p.curMode = modeHBlank
		p.updateLYCMatch()
	} else if prev&0x80 == 0 && value&0x80 != 0 {
		p.ly = 0
		p.modeMCycles = 0
		p.windowLineCounter = 0
		p.curMode = modeHBlankFirst
		p.stat &^= 0x03
		p.updateLYCMatch()
	}
	p.recomputeStatLine()
}

func (p *PPU) WriteSTAT(value byte) {
	p.stat = (p.stat & 0x07) | (value & 0x78)
	p.recomputeStatLine()
}

func (p *PPU) WriteSCY(v byte) { p.scy = v }
func (p *PPU) WriteSCX(v byte) { p.scx = v }
func (p *PPU) WriteLYC(v byte) {
	p.lyc = v
	p.updateLYCMatch()
	p.recomputeStatLine()
}
func (p *PPU) WriteWY(v byte) { p.wy = v }
func (p *PPU) WriteWX(v byte) { p.wx = v }

// VideoOut returns the last frame published at VBlank entry.
func (p *PPU) VideoOut() *[160 * 144]uint32 { return &p.lastVideoOut }

func (p *PPU) modeBits() byte {
	if p.curMode == modeHBlankFirst {
		return 0
	}
	return byte(p.curMode)
}

// Tick advances the PPU by mCycles M-cycles.
func (p *PPU) Tick(mCycles int) {
	for i := 0; i < mCycles; i++ {
		p.tickOne()
	}
}

func (p *PPU) tickOne() {
	if p.lcdc&0x80 == 0 {
		return
	}
	p.modeMCycles++

	switch p.curMode {
	case modeHBlankFirst:
		// Re-enabling the LCD starts the first line in HBlankFirst for 18
		// M-cycles before entering Transfer directly, bypassing OAMSearch.
		if p.modeMCycles >= hblankFirstMCycles {
			p.transferExtra = 0
			p.windowDrawnOnLine = false
			p.latchSprites()
			p.enterTransfer()
		}
	case modeOAMSearch:
		if p.modeMCycles == 1 {
			p.stat = (p.stat &^ 0x03) | byte(modeOAMSearch)
		}
		if p.modeMCycles >= oamSearchMCycles {
			p.latchSprites()
			p.enterTransfer()
		}
	case modeTransfer:
		if p.modeMCycles >= transferMCycles+p.transferExtra {
			p.enterHBlank()
		}
	case modeHBlank:
		if p.modeMCycles == 2 {
			// No separate step here: OAM/VRAM access already re-opened
			// at HBlank entry.
		}
		if p.modeMCycles >= hblankMCycles-p.transferExtra {
			p.advanceLine()
		}
	case modeVBlank:
		if p.modeMCycles >= lineMCycles {
			p.modeMCycles = 0
			p.ly++
			if p.ly >= linesPerFrame {
				p.ly = 0
				p.windowLineCounter = 0
				p.enterOAMSearch()
			}
			p.updateLYCMatch()
		}
	}
	p.recomputeStatLine()
}

func (p *PPU) enterOAMSearch() {
	p.curMode = modeOAMSearch
	p.modeMCycles = 0
	p.transferExtra = 0
	p.windowDrawnOnLine = false
}

func (p *PPU) enterTransfer() {
	p.curMode = modeTransfer
	p.modeMCycles = 0
	p.stat = (p.stat &^ 0x03) | byte(modeTransfer)
	p.renderScanline()
}

func (p *PPU) enterHBlank() {
	p.curMode = modeHBlank
	p.modeMCycles = 0
	p.stat = (p.stat &^ 0x03) | byte(modeHBlank)
}

func (p *PPU) advanceLine() {
	p.ly++
	p.modeMCycles = 0
	p.updateLYCMatch()
	if p.ly == visibleLines {
		p.curMode = modeVBlank
		p.stat = (p.stat &^ 0x03) | byte(modeVBlank)
		p.lastVideoOut = p.videoBuffer
		if p.sink != nil {
			p.sink.RequestInterrupt(interrupt.VBlank)
		}
	} else {
		p.enterOAMSearch()
	}
}

// latchSprites selects up to 10 sprites visible on the upcoming scanline
// and computes the transfer_extra_cycles penalty.
func (p *PPU) latchSprites() {
	objHeight := 8
	if p.lcdc&0x04 != 0 {
		objHeight = 16
	}
	type candidate struct {
		s   oam.Sprite
		idx int
	}
	var found []candidate
	for i := 0; i < 40; i++ {
		s := p.oam.Sprite(i)
		y := s.ScreenY()
		if int(p.ly) >= y && int(p.ly) < y+objHeight {
			found = append(found, candidate{s: s, idx: i})
			if len(found) == 10 {
				break
			}
		}
	}
	sort.SliceStable(found, func(a, b int) bool {
		if found[a].s.X != found[b].s.X {
			return found[a].s.X < found[b].s.X
		}
		return found[a].idx < found[b].idx
	})

	seenX := map[byte]bool{}
	extra := 0
	for _, c := range found {
		if !seenX[c.s.X] {
			seenX[c.s.X] = true
			penalty := 5 - min8(5, (int(c.s.X)+int(p.scx))%8)
			extra += penalty
		}
	}
	extra += (6 * len(found)) / 4
	extra += ceilDiv(int(p.scx)%8, 4)
	p.transferExtra = extra

	p.spritesLine = make([]oam.Sprite, len(found))
	for i, c := range found {
		p.spritesLine[i] = c.s
	}
}

func min8(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func ceilDiv(a, b int) int {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func (p *PPU) renderScanline() {
	bg := p.renderBGLine(p.ly)

	windowActive := p.lcdc&0x20 != 0 && int(p.ly) >= int(p.wy)
	wxStart := int(p.wx) - 7
	if windowActive {
		win := p.renderWindowLine(byte(p.windowLineCounter), wxStart)
		for x := wxStart; x < 160; x++ {
			if x < 0 {
				continue
			}
			bg[x] = win[x]
		}
		p.windowDrawnOnLine = true
	}
	if p.lcdc&0x01 == 0 && !p.cgb {
		for x := range bg {
			bg[x] = tilePixel{}
		}
	}

	line := p.composeSprites(p.ly, bg)
	base := int(p.ly) * 160
	copy(p.videoBuffer[base:base+160], line[:])

	if windowActive && p.windowDrawnOnLine {
		p.windowLineCounter++
	}
}

func (p *PPU) updateLYCMatch() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
	} else {
		p.stat &^= 1 << 2
	}
}

// recomputeStatLine evaluates the STAT interrupt line as the OR of its
// enabled sources and raises IF.Stat on a rising edge.
func (p *PPU) recomputeStatLine() {
	line := false
	if p.stat&(1<<6) != 0 && p.stat&(1<<2) != 0 {
		line = true
	}
	if p.stat&(1<<3) != 0 && p.modeBits() == byte(modeHBlank) {
		line = true
	}
	if p.stat&(1<<4) != 0 && p.modeBits() == byte(modeVBlank) {
		line = true
	}
	if p.stat&(1<<5) != 0 && p.modeBits() == byte(modeOAMSearch) {
		line = true
	}
	if line && !p.prevStatLine && p.sink != nil {
		p.sink.RequestInterrupt(interrupt.Stat)
	}
	p.prevStatLine = line
}

type ppuState struct {
	LCDC, STAT                 byte
	SCY, SCX, LY, LYC, WY, WX  byte
	WindowLineCounter          int
	CurMode                    mode
	ModeMCycles, TransferExtra int
	PrevStatLine               bool
}

func (p *PPU) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(ppuState{
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly, LYC: p.lyc,
		WY: p.wy, WX: p.wx, WindowLineCounter: p.windowLineCounter,
		CurMode: p.curMode, ModeMCycles: p.modeMCycles, TransferExtra: p.transferExtra,
		PrevStatLine: p.prevStatLine,
	})
	return buf.Bytes()
}

func (p *PPU) LoadState(data []byte) {
	var s ppuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	p.lcdc, p.stat = s.LCDC, s.STAT
	p.scy, p.scx, p.ly, p.lyc, p.wy, p.wx = s.SCY, s.SCX, s.LY, s.LYC, s.WY, s.WX
	p.windowLineCounter = s.WindowLineCounter
	p.curMode, p.modeMCycles, p.transferExtra = s.CurMode, s.ModeMCycles, s.TransferExtra
	p.prevStatLine = s.PrevStatLine
}
