// Package cpu implements the Sharp LR35902 (SM83) instruction set: the full
// 0x00-0xFF primary table and the 0xCB-prefixed extended table, the HALT
// bug, and the EI one-instruction-delayed IME automaton.
package cpu

import (
	"bytes"
	"encoding/gob"

	"github.com/haltline/gbcore/internal/bus"
	"github.com/haltline/gbcore/internal/interrupt"
	"github.com/haltline/gbcore/internal/regs"
)

// CPU holds the SM83 register file and drives the bus one M-cycle at a
// time: every opcode handler below issues exactly as many fetch8/read8/
// write8/internalCycle calls as the instruction's real machine-cycle count,
// so a peripheral state change raised mid-instruction (an interrupt, an
// OAM-DMA byte) is observed by the bus at the same granularity as on real
// hardware, without needing a resumable micro-op coroutine.
type CPU struct {
	A, F byte

	// BC, DE, HL are the three general-purpose register pairs. Exposed as
	// regs.DoubleRegister so the LD (HL+),A / LD (HL-),A forms can use
	// Inc/Dec directly instead of a separate get/add/set sequence.
	BC, DE, HL regs.DoubleRegister

	SP, PC uint16

	ime     interrupt.IMEState
	halted  bool
	haltBug bool

	locked   bool
	lockedOp byte
	lockedPC uint16

	mCycles int

	bus *bus.Bus
}

// New creates a CPU wired to b. Registers start zeroed except SP (0xFFFE); call ResetNoBoot or
// ResetNoBootCGB (or run a boot ROM through the bus) before stepping.
func New(b *bus.Bus) *CPU {
	return &CPU{bus: b, SP: 0xFFFE}
}

func (c *CPU) SetPC(pc uint16) { c.PC = pc }
func (c *CPU) Bus() *bus.Bus   { return c.bus }
func (c *CPU) Halted() bool    { return c.halted }

// Locked reports whether the CPU has executed an illegal opcode and is
// spinning on it forever, and if so which opcode and PC triggered it.
func (c *CPU) Locked() (pc uint16, opcode byte, ok bool) {
	return c.lockedPC, c.lockedOp, c.locked
}

// ResetNoBoot sets registers to DMG post-boot state, for running without a
// boot ROM image.
func (c *CPU) ResetNoBoot() {
	c.A, c.F = 0x01, 0xB0
	c.BC = regs.DoubleRegister{Hi: 0x00, Lo: 0x13}
	c.DE = regs.DoubleRegister{Hi: 0x00, Lo: 0xD8}
	c.HL = regs.DoubleRegister{Hi: 0x01, Lo: 0x4D}
	c.SP, c.PC = 0xFFFE, 0x0100
	c.ime = interrupt.Disabled
	c.halted, c.haltBug = false, false
}

// ResetNoBootCGB sets registers to CGB post-boot state (A carries the CGB
// hardware identification byte; everything else matches DMG).
func (c *CPU) ResetNoBootCGB() {
	c.ResetNoBoot()
	c.A = 0x11
}

const (
	flagZ byte = 1 << 7
	flagN byte = 1 << 6
	flagH byte = 1 << 5
	flagC byte = 1 << 4
)

func (c *CPU) setZNHC(z, n, h, cy bool) {
	var f byte
	if z {
		f |= flagZ
	}
	if n {
		f |= flagN
	}
	if h {
		f |= flagH
	}
	if cy {
		f |= flagC
	}
	c.F = f
}

func b2u8(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// --- 8-bit ALU helpers ---

func (c *CPU) add8(a, b byte) (res byte, z, n, h, cy bool) {
	r := uint16(a) + uint16(b)
	res = byte(r)
	z = res == 0
	h = ((a & 0x0F) + (b & 0x0F)) > 0x0F
	cy = r > 0xFF
	return
}

func (c *CPU) adc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := b2u8(carryIn)
	r := uint16(a) + uint16(b) + uint16(ci)
	res = byte(r)
	z = res == 0
	h = ((a & 0x0F) + (b & 0x0F) + ci) > 0x0F
	cy = r > 0xFF
	return
}

func (c *CPU) sub8(a, b byte) (res byte, z, n, h, cy bool) {
	r := int16(a) - int16(b)
	res = byte(r)
	z = res == 0
	n = true
	h = (a & 0x0F) < (b & 0x0F)
	cy = int16(a) < int16(b)
	return
}

func (c *CPU) sbc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := int16(b2u8(carryIn))
	r := int16(a) - int16(b) - ci
	res = byte(r)
	z = res == 0
	n = true
	h = int16(a&0x0F)-int16(b&0x0F)-ci < 0
	cy = r < 0
	return
}

func (c *CPU) and8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a & b
	z = res == 0
	h = true
	return
}

func (c *CPU) xor8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a ^ b
	z = res == 0
	return
}

func (c *CPU) or8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a | b
	z = res == 0
	return
}

func (c *CPU) cp8(a, b byte) (z, n, h, cy bool) {
	_, z, n, h, cy = c.sub8(a, b)
	return
}

// --- bus access primitives: each one ticks every peripheral one M-cycle ---

func (c *CPU) tick1() {
	c.bus.Tick(1)
	c.mCycles++
}

// internalCycle accounts for an M-cycle the CPU spends on internal work
// (address computation, SP adjustment) with no bus transaction.
func (c *CPU) internalCycle() { c.tick1() }

func (c *CPU) fetch8() byte {
	v := c.bus.Read(c.PC)
	if c.haltBug {
		c.haltBug = false
	} else {
		c.PC++
	}
	c.tick1()
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	return lo | hi<<8
}

func (c *CPU) read8(addr uint16) byte {
	v := c.bus.Read(addr)
	c.tick1()
	return v
}

func (c *CPU) write8(addr uint16, v byte) {
	c.bus.Write(addr, v)
	c.tick1()
}

func (c *CPU) write16(addr uint16, v uint16) {
	c.write8(addr, byte(v))
	c.write8(addr+1, byte(v>>8))
}

func (c *CPU) getAF() uint16  { return uint16(c.A)<<8 | uint16(c.F&0xF0) }
func (c *CPU) setAF(v uint16) { c.A = byte(v >> 8); c.F = byte(v) & 0xF0 }
func (c *CPU) getBC() uint16  { return c.BC.Get() }
func (c *CPU) setBC(v uint16) { c.BC.Set(v) }
func (c *CPU) getDE() uint16  { return c.DE.Get() }
func (c *CPU) setDE(v uint16) { c.DE.Set(v) }
func (c *CPU) getHL() uint16  { return c.HL.Get() }
func (c *CPU) setHL(v uint16) { c.HL.Set(v) }

// getRP/setRP address the SP-form register-pair encoding (0=BC,1=DE,2=HL,3=SP)
// used by LD rr,d16 / INC rr / DEC rr / ADD HL,rr.
func (c *CPU) getRP(idx byte) uint16 {
	switch idx {
	case 0:
		return c.getBC()
	case 1:
		return c.getDE()
	case 2:
		return c.getHL()
	default:
		return c.SP
	}
}

func (c *CPU) setRP(idx byte, v uint16) {
	switch idx {
	case 0:
		c.setBC(v)
	case 1:
		c.setDE(v)
	case 2:
		c.setHL(v)
	default:
		c.SP = v
	}
}

// reg8/setReg8 address the single-register encoding used throughout the
// main table and the CB-prefixed table (6 = (HL), ticking a real bus
// access so instruction timing for (HL) forms falls out automatically).
func (c *CPU) reg8(idx byte) byte {
	switch idx {
	case 0:
		return c.BC.Hi
	case 1:
		return c.BC.Lo
	case 2:
		return c.DE.Hi
	case 3:
		return c.DE.Lo
	case 4:
		return c.HL.Hi
	case 5:
		return c.HL.Lo
	case 6:
		return c.read8(c.getHL())
	default:
		return c.A
	}
}

func (c *CPU) setReg8(idx byte, v byte) {
	switch idx {
	case 0:
		c.BC.Hi = v
	case 1:
		c.BC.Lo = v
	case 2:
		c.DE.Hi = v
	case 3:
		c.DE.Lo = v
	case 4:
		c.HL.Hi = v
	case 5:
		c.HL.Lo = v
	case 6:
		c.write8(c.getHL(), v)
	default:
		c.A = v
	}
}

func (c *CPU) push16(v uint16) {
	c.internalCycle()
	c.SP--
	c.write8(c.SP, byte(v>>8))
	c.SP--
	c.write8(c.SP, byte(v))
}

func (c *CPU) pop16() uint16 {
	lo := uint16(c.read8(c.SP))
	c.SP++
	hi := uint16(c.read8(c.SP))
	c.SP++
	return lo | hi<<8
}

func (c *CPU) incR(idx byte) {
	old := c.reg8(idx)
	v := old + 1
	c.setReg8(idx, v)
	c.setZNHC(v == 0, false, old&0x0F == 0x0F, c.F&flagC != 0)
}

func (c *CPU) decR(idx byte) {
	old := c.reg8(idx)
	v := old - 1
	c.setReg8(idx, v)
	c.setZNHC(v == 0, true, old&0x0F == 0x00, c.F&flagC != 0)
}

// enterHalt implements the HALT bug: if IME is not Enabled and an
// interrupt is already pending, the CPU doesn't actually halt, but the
// very next opcode fetch fails to advance PC, so that byte executes twice.
func (c *CPU) enterHalt() {
	if c.ime != interrupt.Enabled && c.bus.Interrupts().Pending() != 0 {
		c.haltBug = true
		return
	}
	c.halted = true
}

// Step executes one instruction (servicing a pending interrupt or advancing
// HALT instead, if applicable) and returns the number of M-cycles spent.
func (c *CPU) Step() int {
	c.mCycles = 0
	c.ime = c.ime.Advance()

	flags := c.bus.Interrupts()

	if c.halted {
		if flags.Pending() != 0 {
			if c.ime == interrupt.Enabled {
				c.halted = false
				c.serviceInterrupt(flags)
				return c.mCycles
			}
			c.halted = false
		} else {
			c.internalCycle()
			return c.mCycles
		}
	}

	if c.ime == interrupt.Enabled && flags.Pending() != 0 {
		c.serviceInterrupt(flags)
		return c.mCycles
	}

	op := c.fetch8()
	c.execute(op)
	return c.mCycles
}

// serviceInterrupt dispatches the highest-priority (lowest-bit) pending interrupt: clear
// its IF bit, disable IME, push PC, and jump to its vector. Costs 5
// M-cycles total (2 internal + push16's internal+write+write).
func (c *CPU) serviceInterrupt(flags *interrupt.Flags) {
	f, _ := flags.Lowest()
	flags.Clear(f)
	c.ime = interrupt.Disabled
	c.internalCycle()
	c.internalCycle()
	c.push16(c.PC)
	c.PC = f.Vector()
}

func (c *CPU) execute(op byte) {
	switch {
	case op == 0xCB:
		c.executeCB(c.fetch8())
		return
	case op >= 0x40 && op <= 0x7F:
		if op == 0x76 {
			c.enterHalt()
			return
		}
		d := (op >> 3) & 7
		s := op & 7
		c.setReg8(d, c.reg8(s))
		return
	case op >= 0x80 && op <= 0xBF:
		src := c.reg8(op & 7)
		switch (op >> 3) & 7 {
		case 0: // ADD
			r, z, n, h, cy := c.add8(c.A, src)
			c.A = r
			c.setZNHC(z, n, h, cy)
		case 1: // ADC
			r, z, n, h, cy := c.adc8(c.A, src, c.F&flagC != 0)
			c.A = r
			c.setZNHC(z, n, h, cy)
		case 2: // SUB
			r, z, n, h, cy := c.sub8(c.A, src)
			c.A = r
			c.setZNHC(z, n, h, cy)
		case 3: // SBC
			r, z, n, h, cy := c.sbc8(c.A, src, c.F&flagC != 0)
			c.A = r
			c.setZNHC(z, n, h, cy)
		case 4: // AND
			r, z, n, h, cy := c.and8(c.A, src)
			c.A = r
			c.setZNHC(z, n, h, cy)
		case 5: // XOR
			r, z, n, h, cy := c.xor8(c.A, src)
			c.A = r
			c.setZNHC(z, n, h, cy)
		case 6: // OR
			r, z, n, h, cy := c.or8(c.A, src)
			c.A = r
			c.setZNHC(z, n, h, cy)
		case 7: // CP
			z, n, h, cy := c.cp8(c.A, src)
			c.setZNHC(z, n, h, cy)
		}
		return
	}

	switch op {
	case 0x00: // NOP

	case 0x10: // STOP; CGB armed KEY1 toggles double speed
		c.fetch8()
		if c.bus.SpeedSwitchArmed() {
			c.bus.CommitSpeedSwitch()
		}

	// LD rr,d16
	case 0x01:
		c.setRP(0, c.fetch16())
	case 0x11:
		c.setRP(1, c.fetch16())
	case 0x21:
		c.setRP(2, c.fetch16())
	case 0x31:
		c.setRP(3, c.fetch16())

	case 0x08: // LD (a16),SP
		addr := c.fetch16()
		c.write16(addr, c.SP)

	// LD (BC/DE),A and LD A,(BC/DE)
	case 0x02:
		c.write8(c.getBC(), c.A)
	case 0x12:
		c.write8(c.getDE(), c.A)
	case 0x0A:
		c.A = c.read8(c.getBC())
	case 0x1A:
		c.A = c.read8(c.getDE())

	// LD (HL+/-),A and LD A,(HL+/-)
	case 0x22:
		c.write8(c.HL.Inc(), c.A)
	case 0x2A:
		c.A = c.read8(c.HL.Inc())
	case 0x32:
		c.write8(c.HL.Dec(), c.A)
	case 0x3A:
		c.A = c.read8(c.HL.Dec())

	// LD r,d8
	case 0x06:
		c.setReg8(0, c.fetch8())
	case 0x0E:
		c.setReg8(1, c.fetch8())
	case 0x16:
		c.setReg8(2, c.fetch8())
	case 0x1E:
		c.setReg8(3, c.fetch8())
	case 0x26:
		c.setReg8(4, c.fetch8())
	case 0x2E:
		c.setReg8(5, c.fetch8())
	case 0x36:
		c.setReg8(6, c.fetch8())
	case 0x3E:
		c.setReg8(7, c.fetch8())

	// INC/DEC r (and (HL))
	case 0x04:
		c.incR(0)
	case 0x0C:
		c.incR(1)
	case 0x14:
		c.incR(2)
	case 0x1C:
		c.incR(3)
	case 0x24:
		c.incR(4)
	case 0x2C:
		c.incR(5)
	case 0x34:
		c.incR(6)
	case 0x3C:
		c.incR(7)
	case 0x05:
		c.decR(0)
	case 0x0D:
		c.decR(1)
	case 0x15:
		c.decR(2)
	case 0x1D:
		c.decR(3)
	case 0x25:
		c.decR(4)
	case 0x2D:
		c.decR(5)
	case 0x35:
		c.decR(6)
	case 0x3D:
		c.decR(7)

	// INC/DEC rr
	case 0x03:
		c.setRP(0, c.getRP(0)+1)
		c.internalCycle()
	case 0x13:
		c.setRP(1, c.getRP(1)+1)
		c.internalCycle()
	case 0x23:
		c.setRP(2, c.getRP(2)+1)
		c.internalCycle()
	case 0x33:
		c.setRP(3, c.getRP(3)+1)
		c.internalCycle()
	case 0x0B:
		c.setRP(0, c.getRP(0)-1)
		c.internalCycle()
	case 0x1B:
		c.setRP(1, c.getRP(1)-1)
		c.internalCycle()
	case 0x2B:
		c.setRP(2, c.getRP(2)-1)
		c.internalCycle()
	case 0x3B:
		c.setRP(3, c.getRP(3)-1)
		c.internalCycle()

	// ADD HL,rr
	case 0x09, 0x19, 0x29, 0x39:
		idx := (op >> 4) & 3
		hl := c.getHL()
		val := c.getRP(idx)
		r := uint32(hl) + uint32(val)
		h := (hl&0x0FFF)+(val&0x0FFF) > 0x0FFF
		c.setHL(uint16(r))
		c.setZNHC(c.F&flagZ != 0, false, h, r > 0xFFFF)
		c.internalCycle()

	// Rotates/flags on A
	case 0x07: // RLCA
		cy := c.A&0x80 != 0
		c.A = c.A<<1 | b2u8(cy)
		c.setZNHC(false, false, false, cy)
	case 0x0F: // RRCA
		cy := c.A&1 != 0
		c.A = c.A>>1 | b2u8(cy)<<7
		c.setZNHC(false, false, false, cy)
	case 0x17: // RLA
		cy := c.A&0x80 != 0
		c.A = c.A<<1 | b2u8(c.F&flagC != 0)
		c.setZNHC(false, false, false, cy)
	case 0x1F: // RRA
		cy := c.A&1 != 0
		c.A = c.A>>1 | b2u8(c.F&flagC != 0)<<7
		c.setZNHC(false, false, false, cy)

	case 0x27: // DAA
		a := c.A
		cf := c.F&flagC != 0
		if c.F&flagN == 0 {
			if cf || a > 0x99 {
				a += 0x60
				cf = true
			}
			if c.F&flagH != 0 || a&0x0F > 9 {
				a += 0x06
			}
		} else {
			if cf {
				a -= 0x60
			}
			if c.F&flagH != 0 {
				a -= 0x06
			}
		}
		c.A = a
		c.setZNHC(c.A == 0, c.F&flagN != 0, false, cf)
	case 0x2F: // CPL
		c.A = ^c.A
		c.F = (c.F & (flagZ | flagC)) | flagN | flagH
	case 0x37: // SCF
		c.F = (c.F & flagZ) | flagC
	case 0x3F: // CCF
		cy := c.F&flagC == 0
		c.F = (c.F & flagZ) | b2u8(cy)<<4

	// JR
	case 0x18:
		off := int8(c.fetch8())
		c.PC = uint16(int32(c.PC) + int32(off))
		c.internalCycle()
	case 0x20:
		off := int8(c.fetch8())
		if c.F&flagZ == 0 {
			c.PC = uint16(int32(c.PC) + int32(off))
			c.internalCycle()
		}
	case 0x28:
		off := int8(c.fetch8())
		if c.F&flagZ != 0 {
			c.PC = uint16(int32(c.PC) + int32(off))
			c.internalCycle()
		}
	case 0x30:
		off := int8(c.fetch8())
		if c.F&flagC == 0 {
			c.PC = uint16(int32(c.PC) + int32(off))
			c.internalCycle()
		}
	case 0x38:
		off := int8(c.fetch8())
		if c.F&flagC != 0 {
			c.PC = uint16(int32(c.PC) + int32(off))
			c.internalCycle()
		}

	// ALU A,(HL) and A,d8
	case 0x86:
		r, z, n, h, cy := c.add8(c.A, c.read8(c.getHL()))
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0x8E:
		r, z, n, h, cy := c.adc8(c.A, c.read8(c.getHL()), c.F&flagC != 0)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0x96:
		r, z, n, h, cy := c.sub8(c.A, c.read8(c.getHL()))
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0x9E:
		r, z, n, h, cy := c.sbc8(c.A, c.read8(c.getHL()), c.F&flagC != 0)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0xA6:
		r, z, n, h, cy := c.and8(c.A, c.read8(c.getHL()))
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0xAE:
		r, z, n, h, cy := c.xor8(c.A, c.read8(c.getHL()))
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0xB6:
		r, z, n, h, cy := c.or8(c.A, c.read8(c.getHL()))
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0xBE:
		z, n, h, cy := c.cp8(c.A, c.read8(c.getHL()))
		c.setZNHC(z, n, h, cy)
	case 0xC6:
		r, z, n, h, cy := c.add8(c.A, c.fetch8())
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0xCE:
		r, z, n, h, cy := c.adc8(c.A, c.fetch8(), c.F&flagC != 0)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0xD6:
		r, z, n, h, cy := c.sub8(c.A, c.fetch8())
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0xDE:
		r, z, n, h, cy := c.sbc8(c.A, c.fetch8(), c.F&flagC != 0)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0xE6:
		r, z, n, h, cy := c.and8(c.A, c.fetch8())
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0xEE:
		r, z, n, h, cy := c.xor8(c.A, c.fetch8())
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0xF6:
		r, z, n, h, cy := c.or8(c.A, c.fetch8())
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 0xFE:
		z, n, h, cy := c.cp8(c.A, c.fetch8())
		c.setZNHC(z, n, h, cy)

	case 0xEA: // LD (a16),A
		c.write8(c.fetch16(), c.A)
	case 0xFA: // LD A,(a16)
		c.A = c.read8(c.fetch16())
	case 0xE0: // LDH (a8),A
		n := uint16(c.fetch8())
		c.write8(0xFF00+n, c.A)
	case 0xF0: // LDH A,(a8)
		n := uint16(c.fetch8())
		c.A = c.read8(0xFF00 + n)
	case 0xE2: // LD (C),A
		c.write8(0xFF00+uint16(c.BC.Lo), c.A)
	case 0xF2: // LD A,(C)
		c.A = c.read8(0xFF00 + uint16(c.BC.Lo))

	case 0xC3: // JP a16
		addr := c.fetch16()
		c.PC = addr
		c.internalCycle()
	case 0xE9: // JP (HL)
		c.PC = c.getHL()
	case 0xC2:
		addr := c.fetch16()
		if c.F&flagZ == 0 {
			c.PC = addr
			c.internalCycle()
		}
	case 0xCA:
		addr := c.fetch16()
		if c.F&flagZ != 0 {
			c.PC = addr
			c.internalCycle()
		}
	case 0xD2:
		addr := c.fetch16()
		if c.F&flagC == 0 {
			c.PC = addr
			c.internalCycle()
		}
	case 0xDA:
		addr := c.fetch16()
		if c.F&flagC != 0 {
			c.PC = addr
			c.internalCycle()
		}

	case 0xCD: // CALL a16
		addr := c.fetch16()
		c.push16(c.PC)
		c.PC = addr
	case 0xC4:
		addr := c.fetch16()
		if c.F&flagZ == 0 {
			c.push16(c.PC)
			c.PC = addr
		}
	case 0xCC:
		addr := c.fetch16()
		if c.F&flagZ != 0 {
			c.push16(c.PC)
			c.PC = addr
		}
	case 0xD4:
		addr := c.fetch16()
		if c.F&flagC == 0 {
			c.push16(c.PC)
			c.PC = addr
		}
	case 0xDC:
		addr := c.fetch16()
		if c.F&flagC != 0 {
			c.push16(c.PC)
			c.PC = addr
		}

	case 0xC9: // RET
		c.PC = c.pop16()
		c.internalCycle()
	case 0xD9: // RETI
		c.PC = c.pop16()
		c.internalCycle()
		c.ime = interrupt.Enabled
	case 0xC0:
		c.internalCycle()
		if c.F&flagZ == 0 {
			c.PC = c.pop16()
			c.internalCycle()
		}
	case 0xC8:
		c.internalCycle()
		if c.F&flagZ != 0 {
			c.PC = c.pop16()
			c.internalCycle()
		}
	case 0xD0:
		c.internalCycle()
		if c.F&flagC == 0 {
			c.PC = c.pop16()
			c.internalCycle()
		}
	case 0xD8:
		c.internalCycle()
		if c.F&flagC != 0 {
			c.PC = c.pop16()
			c.internalCycle()
		}

	case 0xC7:
		c.push16(c.PC)
		c.PC = 0x00
	case 0xCF:
		c.push16(c.PC)
		c.PC = 0x08
	case 0xD7:
		c.push16(c.PC)
		c.PC = 0x10
	case 0xDF:
		c.push16(c.PC)
		c.PC = 0x18
	case 0xE7:
		c.push16(c.PC)
		c.PC = 0x20
	case 0xEF:
		c.push16(c.PC)
		c.PC = 0x28
	case 0xF7:
		c.push16(c.PC)
		c.PC = 0x30
	case 0xFF:
		c.push16(c.PC)
		c.PC = 0x38

	case 0xC5:
		c.push16(c.getBC())
	case 0xD5:
		c.push16(c.getDE())
	case 0xE5:
		c.push16(c.getHL())
	case 0xF5:
		c.push16(c.getAF())
	case 0xC1:
		c.setBC(c.pop16())
	case 0xD1:
		c.setDE(c.pop16())
	case 0xE1:
		c.setHL(c.pop16())
	case 0xF1:
		c.setAF(c.pop16())

	case 0xF9: // LD SP,HL
		c.SP = c.getHL()
		c.internalCycle()
	case 0xF8: // LD HL,SP+r8
		off := int8(c.fetch8())
		low := byte(c.SP)
		_, _, _, h, cy := c.add8(low, byte(off))
		c.setHL(uint16(int32(int16(c.SP)) + int32(off)))
		c.setZNHC(false, false, h, cy)
		c.internalCycle()
	case 0xE8: // ADD SP,r8
		off := int8(c.fetch8())
		low := byte(c.SP)
		_, _, _, h, cy := c.add8(low, byte(off))
		c.SP = uint16(int32(int16(c.SP)) + int32(off))
		c.setZNHC(false, false, h, cy)
		c.internalCycle()
		c.internalCycle()

	case 0xF3: // DI
		c.ime = interrupt.Disabled
	case 0xFB: // EI
		if c.ime != interrupt.Enabled {
			c.ime = interrupt.WillEnable1
		}

	// Illegal opcodes lock the CPU: the fetch above already advanced PC,
	// so step it back and keep refetching the same byte forever.
	case 0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD:
		if !c.locked {
			c.locked = true
			c.lockedOp = op
			c.lockedPC = c.PC - 1
		}
		c.PC--
	}
}

func (c *CPU) executeCB(cb byte) {
	idx := cb & 7
	group := (cb >> 6) & 3
	y := (cb >> 3) & 7
	v := c.reg8(idx)

	switch group {
	case 0: // rotate/shift/swap
		var res byte
		var cy bool
		switch y {
		case 0: // RLC
			cy = v&0x80 != 0
			res = v<<1 | b2u8(cy)
		case 1: // RRC
			cy = v&1 != 0
			res = v>>1 | b2u8(cy)<<7
		case 2: // RL
			cy = v&0x80 != 0
			res = v<<1 | b2u8(c.F&flagC != 0)
		case 3: // RR
			cy = v&1 != 0
			res = v>>1 | b2u8(c.F&flagC != 0)<<7
		case 4: // SLA
			cy = v&0x80 != 0
			res = v << 1
		case 5: // SRA
			cy = v&1 != 0
			res = v>>1 | v&0x80
		case 6: // SWAP
			res = v<<4 | v>>4
		case 7: // SRL
			cy = v&1 != 0
			res = v >> 1
		}
		c.setReg8(idx, res)
		c.setZNHC(res == 0, false, false, cy)
	case 1: // BIT y,r
		c.F = (c.F & flagC) | flagH
		if v&(1<<y) == 0 {
			c.F |= flagZ
		}
	case 2: // RES y,r
		c.setReg8(idx, v&^(1<<y))
	case 3: // SET y,r
		c.setReg8(idx, v|(1<<y))
	}
}

type cpuState struct {
	A, F, B, C, D, E, H, L byte
	SP, PC                 uint16
	IME                    interrupt.IMEState
	Halted, HaltBug        bool
	Locked                 bool
	LockedOp               byte
	LockedPC               uint16
}

func (c *CPU) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(cpuState{
		A: c.A, F: c.F, B: c.BC.Hi, C: c.BC.Lo, D: c.DE.Hi, E: c.DE.Lo, H: c.HL.Hi, L: c.HL.Lo,
		SP: c.SP, PC: c.PC, IME: c.ime, Halted: c.halted, HaltBug: c.haltBug,
		Locked: c.locked, LockedOp: c.lockedOp, LockedPC: c.lockedPC,
	})
	return buf.Bytes()
}

func (c *CPU) LoadState(data []byte) {
	var s cpuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	c.A, c.F = s.A, s.F
	c.BC = regs.DoubleRegister{Hi: s.B, Lo: s.C}
	c.DE = regs.DoubleRegister{Hi: s.D, Lo: s.E}
	c.HL = regs.DoubleRegister{Hi: s.H, Lo: s.L}
	c.SP, c.PC = s.SP, s.PC
	c.ime, c.halted, c.haltBug = s.IME, s.Halted, s.HaltBug
	c.locked, c.lockedOp, c.lockedPC = s.Locked, s.LockedOp, s.LockedPC
}
