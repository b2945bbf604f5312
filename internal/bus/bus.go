// Package bus wires the CPU-visible address space to the cartridge, WRAM,
// HRAM, and every memory-mapped peripheral (PPU/VRAM/OAM/color, APU, timer,
// joypad, interrupts), and drives them cycle by cycle from the CPU's M-cycle
// loop.
package bus

import (
	"bytes"
	"encoding/gob"
	"io"
	"os"

	"github.com/haltline/gbcore/internal/apu"
	"github.com/haltline/gbcore/internal/cart"
	"github.com/haltline/gbcore/internal/color"
	"github.com/haltline/gbcore/internal/interrupt"
	"github.com/haltline/gbcore/internal/joypad"
	"github.com/haltline/gbcore/internal/oam"
	"github.com/haltline/gbcore/internal/ppu"
	"github.com/haltline/gbcore/internal/timer"
	"github.com/haltline/gbcore/internal/vram"
)

// Bus owns every peripheral and decodes the full CPU address space,
// combining each peripheral's own access gating (PPU mode, OAM-DMA) at the
// point of CPU read/write rather than inside the peripherals themselves.
type Bus struct {
	cart cart.Cartridge

	wram     [8][0x1000]byte // bank 0 fixed at 0xC000-CFFF; SVBK selects 0xD000-DFFF
	svbk     byte
	hram     [0x7F]byte
	irq      interrupt.Flags
	vram     *vram.VRAM
	oamTbl   *oam.OAM
	colorCtl *color.Controller
	ppu      *ppu.PPU
	apu      *apu.APU
	timer    *timer.Timer
	joypad   *joypad.Joypad

	cgb         bool
	doubleSpeed bool
	speedArmed  bool
	lastStatMode byte

	sb, sc byte
	sw     io.Writer

	bootROM     []byte
	bootEnabled bool

	debugTimer bool
}

// New constructs a Bus from raw ROM bytes, picking the MBC per the header.
func New(rom []byte, cgb bool) (*Bus, error) {
	c, err := cart.NewCartridge(rom)
	if err != nil {
		return nil, err
	}
	return NewWithCartridge(c, cgb), nil
}

// NewWithCartridge wires a provided cartridge implementation, useful for
// tests that want a bare ROM-only or a specific MBC.
func NewWithCartridge(c cart.Cartridge, cgb bool) *Bus {
	b := &Bus{cart: c, cgb: cgb}
	b.irq = interrupt.Flags{}
	b.vram = vram.New(cgb)
	b.oamTbl = oam.New()
	b.colorCtl = color.New(cgb)
	b.joypad = joypad.New(&b.irq)
	b.timer = timer.New(&b.irq)
	b.ppu = ppu.New(cgb, b.vram, b.oamTbl, b.colorCtl, &b.irq)
	b.apu = apu.New(nil)
	if os.Getenv("GB_DEBUG_TIMER") != "" {
		b.debugTimer = true
	}
	return b
}

func (b *Bus) PPU() *ppu.PPU           { return b.ppu }
func (b *Bus) APU() *apu.APU           { return b.apu }
func (b *Bus) VRAM() *vram.VRAM        { return b.vram }
func (b *Bus) Cart() cart.Cartridge    { return b.cart }
func (b *Bus) Joypad() *joypad.Joypad  { return b.joypad }
func (b *Bus) Interrupts() *interrupt.Flags { return &b.irq }
func (b *Bus) DoubleSpeed() bool       { return b.doubleSpeed }
func (b *Bus) SpeedSwitchArmed() bool  { return b.speedArmed }

// SetAPUSink wires the host's audio callback; nil disables sample delivery.
func (b *Bus) SetAPUSink(sink apu.Sink) { b.apu.SetSink(sink) }

// CommitSpeedSwitch toggles CGB double-speed mode. Called by the CPU when
// executing STOP while KEY1's armed bit is set.
func (b *Bus) CommitSpeedSwitch() {
	if !b.speedArmed {
		return
	}
	b.doubleSpeed = !b.doubleSpeed
	b.speedArmed = false
}

func (b *Bus) wramBank() byte {
	bank := b.svbk & 0x07
	if bank == 0 {
		bank = 1
	}
	if !b.cgb {
		bank = 1
	}
	return bank
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		if b.bootEnabled && b.cgb && addr >= 0x0200 && addr < 0x0900 && len(b.bootROM) >= 0x900 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.vram.ReadCPU(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xCFFF:
		return b.wram[0][addr-0xC000]
	case addr >= 0xD000 && addr <= 0xDFFF:
		return b.wram[b.wramBank()][addr-0xD000]
	case addr >= 0xE000 && addr <= 0xEFFF:
		return b.wram[0][addr-0xE000]
	case addr >= 0xF000 && addr <= 0xFDFF:
		return b.wram[b.wramBank()][addr-0xF000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.oamTbl.DMAActive() || !b.ppu.CanReadOAM() {
			return 0xFF
		}
		return b.oamTbl.ReadCPU(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFF00:
		return b.joypad.Read()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF04:
		return b.timer.ReadDIV()
	case addr == 0xFF05:
		return b.timer.ReadTIMA()
	case addr == 0xFF06:
		return b.timer.ReadTMA()
	case addr == 0xFF07:
		return b.timer.ReadTAC()
	case addr == 0xFF0F:
		return b.irq.ReadIF()
	case addr >= 0xFF10 && addr <= 0xFF26:
		return b.apu.CPURead(addr)
	case addr >= 0xFF30 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == 0xFF40:
		return b.ppu.ReadLCDC()
	case addr == 0xFF41:
		return b.ppu.ReadSTAT()
	case addr == 0xFF42:
		return b.ppu.ReadSCY()
	case addr == 0xFF43:
		return b.ppu.ReadSCX()
	case addr == 0xFF44:
		return b.ppu.ReadLY()
	case addr == 0xFF45:
		return b.ppu.ReadLYC()
	case addr == 0xFF46:
		return 0xFF // DMA register is write-only in practice
	case addr == 0xFF47:
		return b.colorCtl.ReadBGP()
	case addr == 0xFF48:
		return b.colorCtl.ReadOBP0()
	case addr == 0xFF49:
		return b.colorCtl.ReadOBP1()
	case addr == 0xFF4A:
		return b.ppu.ReadWY()
	case addr == 0xFF4B:
		return b.ppu.ReadWX()
	case addr == 0xFF4D:
		return b.readKEY1()
	case addr == 0xFF4F:
		return b.vram.ReadVBK()
	case addr == 0xFF50:
		return 0xFF
	case addr == 0xFF51, addr == 0xFF52, addr == 0xFF53, addr == 0xFF54:
		return 0xFF // HDMA1-4 are write-only
	case addr == 0xFF55:
		return b.vram.HDMA.ReadHDMA5()
	case addr == 0xFF68:
		return b.colorCtl.ReadBCPS()
	case addr == 0xFF69:
		return b.colorCtl.ReadBCPD()
	case addr == 0xFF6A:
		return b.colorCtl.ReadOCPS()
	case addr == 0xFF6B:
		return b.colorCtl.ReadOCPD()
	case addr == 0xFF70:
		if !b.cgb {
			return 0xFF
		}
		return 0xF8 | (b.svbk & 0x07)
	case addr == 0xFFFF:
		return b.irq.ReadIE()
	}
	return 0xFF
}

func (b *Bus) readKEY1() byte {
	if !b.cgb {
		return 0xFF
	}
	v := byte(0x7E)
	if b.doubleSpeed {
		v |= 0x80
	}
	if b.speedArmed {
		v |= 0x01
	}
	return v
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.vram.WriteCPU(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xCFFF:
		b.wram[0][addr-0xC000] = value
	case addr >= 0xD000 && addr <= 0xDFFF:
		b.wram[b.wramBank()][addr-0xD000] = value
	case addr >= 0xE000 && addr <= 0xEFFF:
		b.wram[0][addr-0xE000] = value
	case addr >= 0xF000 && addr <= 0xFDFF:
		b.wram[b.wramBank()][addr-0xF000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.oamTbl.DMAActive() || !b.ppu.CanWriteOAM() {
			return
		}
		b.oamTbl.WriteCPU(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// unusable
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFF00:
		b.joypad.Write(value)
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.irq.RequestInterrupt(interrupt.Serial)
			b.sc &^= 0x80
		}
	case addr == 0xFF04:
		b.timer.WriteDIV()
	case addr == 0xFF05:
		b.timer.WriteTIMA(value)
	case addr == 0xFF06:
		b.timer.WriteTMA(value)
	case addr == 0xFF07:
		b.timer.WriteTAC(value)
	case addr == 0xFF0F:
		b.irq.WriteIF(value)
	case addr >= 0xFF10 && addr <= 0xFF26:
		b.apu.CPUWrite(addr, value)
	case addr >= 0xFF30 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == 0xFF40:
		b.ppu.WriteLCDC(value)
	case addr == 0xFF41:
		b.ppu.WriteSTAT(value)
	case addr == 0xFF42:
		b.ppu.WriteSCY(value)
	case addr == 0xFF43:
		b.ppu.WriteSCX(value)
	case addr == 0xFF45:
		b.ppu.WriteLYC(value)
	case addr == 0xFF46:
		b.oamTbl.StartDMA(value)
	case addr == 0xFF47:
		b.colorCtl.WriteBGP(value)
	case addr == 0xFF48:
		b.colorCtl.WriteOBP0(value)
	case addr == 0xFF49:
		b.colorCtl.WriteOBP1(value)
	case addr == 0xFF4A:
		b.ppu.WriteWY(value)
	case addr == 0xFF4B:
		b.ppu.WriteWX(value)
	case addr == 0xFF4D:
		if b.cgb {
			b.speedArmed = value&0x01 != 0
		}
	case addr == 0xFF4F:
		b.vram.WriteVBK(value)
	case addr == 0xFF50:
		if value != 0x00 {
			b.bootEnabled = false
		}
	case addr == 0xFF51:
		if b.cgb {
			b.vram.HDMA.WriteHDMA1(value)
		}
	case addr == 0xFF52:
		if b.cgb {
			b.vram.HDMA.WriteHDMA2(value)
		}
	case addr == 0xFF53:
		if b.cgb {
			b.vram.HDMA.WriteHDMA3(value)
		}
	case addr == 0xFF54:
		if b.cgb {
			b.vram.HDMA.WriteHDMA4(value)
		}
	case addr == 0xFF55:
		if b.cgb {
			b.startHDMA(value)
		}
	case addr == 0xFF68:
		b.colorCtl.WriteBCPS(value)
	case addr == 0xFF69:
		b.colorCtl.WriteBCPD(value)
	case addr == 0xFF6A:
		b.colorCtl.WriteOCPS(value)
	case addr == 0xFF6B:
		b.colorCtl.WriteOCPD(value)
	case addr == 0xFF70:
		if b.cgb {
			b.svbk = value & 0x07
		}
	case addr == 0xFFFF:
		b.irq.WriteIE(value)
	}
}

// startHDMA begins a VRAM-DMA transfer. A general-purpose transfer steals
// CPU cycles immediately by ticking every peripheral for the transfer's
// duration (8 M-cycles per 16 bytes, doubled at CGB double speed); an
// HBlank-triggered transfer instead advances one 16-byte chunk per HBlank
// entry from Tick.
func (b *Bus) startHDMA(value byte) {
	startedGP := b.vram.HDMA.WriteHDMA5(value)
	if !startedGP {
		return
	}
	for b.vram.HDMA.Active() {
		b.hdmaChunk()
		stolen := 8
		if b.doubleSpeed {
			stolen = 16
		}
		for i := 0; i < stolen; i++ {
			b.tickOneM()
		}
	}
}

func (b *Bus) hdmaChunk() bool {
	return b.vram.HDMA.TransferChunk(
		func(src uint16) byte { return b.Read(src) },
		func(dstOffset uint16, v byte) { b.vram.WriteBank(b.vram.CurrentBank(), 0x8000+dstOffset, v) },
	)
}

// SetJoypadState updates which buttons are currently pressed (set bits mean
// pressed), using the joypad.* bitmask constants.
func (b *Bus) SetJoypadState(mask byte) { b.joypad.SetState(mask) }

// SetSerialWriter sets a sink that receives bytes written via the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

// SetBootROM loads a DMG (256-byte) or CGB (2304-byte) boot ROM to be
// overlaid until disabled via an FF50 write.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	minLen := 0x100
	if b.cgb {
		minLen = 0x900
	}
	if len(data) >= minLen {
		b.bootROM = make([]byte, len(data))
		copy(b.bootROM, data)
		b.bootEnabled = true
	}
}

// Tick advances every peripheral by mCycles CPU M-cycles (4 T-cycles each).
func (b *Bus) Tick(mCycles int) {
	for i := 0; i < mCycles; i++ {
		b.tickOneM()
	}
}

func (b *Bus) tickOneM() {
	tCycles := 4
	b.timer.Tick(tCycles)
	b.apu.Tick(tCycles, b.doubleSpeed, b.timer)
	if ticker, ok := b.cart.(cart.Ticker); ok {
		ticker.Tick(tCycles)
	}

	b.ppu.Tick(1)
	b.vram.SetAccess(b.ppu.CanReadVRAM(), b.ppu.CanWriteVRAM())

	b.oamTbl.Tick(func(addr uint16) byte { return b.Read(addr) })

	curMode := b.ppu.ReadSTAT() & 0x03
	if curMode == 0 && b.lastStatMode != 0 && b.vram.HDMA.Active() && b.vram.HDMA.HBlankMode() {
		b.hdmaChunk()
	}
	b.lastStatMode = curMode
}

type busState struct {
	WRAM        [8][0x1000]byte
	SVBK        byte
	HRAM        [0x7F]byte
	IE, IF      byte
	SB, SC      byte
	BootEnabled bool
	CGB         bool
	DoubleSpeed bool
	SpeedArmed  bool
	LastStatMode byte

	VRAM    []byte
	OAM     []byte
	Color   []byte
	PPU     []byte
	APU     []byte
	Timer   []byte
	Joypad  []byte
	Cart    []byte
}

// SaveState serializes the full bus: WRAM/HRAM/IE/IF/serial plus every
// peripheral's own state blob, and the cartridge's banking/RAM state.
func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	s := busState{
		WRAM: b.wram, SVBK: b.svbk, HRAM: b.hram,
		IE: b.irq.ReadIE(), IF: b.irq.ReadIF(),
		SB: b.sb, SC: b.sc, BootEnabled: b.bootEnabled,
		CGB: b.cgb, DoubleSpeed: b.doubleSpeed, SpeedArmed: b.speedArmed,
		LastStatMode: b.lastStatMode,
		VRAM:   b.vram.SaveState(),
		OAM:    b.oamTbl.SaveState(),
		Color:  b.colorCtl.SaveState(),
		PPU:    b.ppu.SaveState(),
		APU:    b.apu.SaveState(),
		Timer:  b.timer.SaveState(),
		Joypad: b.joypad.SaveState(),
		Cart:   b.cart.SaveState(),
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	b.wram, b.svbk, b.hram = s.WRAM, s.SVBK, s.HRAM
	b.irq.WriteIE(s.IE)
	b.irq.WriteIF(s.IF)
	b.sb, b.sc, b.bootEnabled = s.SB, s.SC, s.BootEnabled
	b.cgb, b.doubleSpeed, b.speedArmed = s.CGB, s.DoubleSpeed, s.SpeedArmed
	b.lastStatMode = s.LastStatMode
	b.vram.LoadState(s.VRAM)
	b.oamTbl.LoadState(s.OAM)
	b.colorCtl.LoadState(s.Color)
	b.ppu.LoadState(s.PPU)
	b.apu.LoadState(s.APU)
	b.timer.LoadState(s.Timer)
	b.joypad.LoadState(s.Joypad)
	b.cart.LoadState(s.Cart)
}
