// Package vram models the 8 KiB (DMG) or 2x8 KiB (CGB) video RAM banks,
// the CGB VBK bank-select register, and the CGB-only HDMA/GDMA engine that
// copies ROM/RAM into VRAM in 16-byte chunks.
package vram

import (
	"bytes"
	"encoding/gob"
)

// VRAM holds one bank on DMG, two on CGB. Addr is always given as a CPU
// address in 0x8000-0x9FFF; bank selection is applied internally.
type VRAM struct {
	banks [2][0x2000]byte
	bank  byte // VBK & 1; always 0 on DMG
	cgb   bool

	canRead  bool
	canWrite bool

	HDMA HDMA
}

func New(cgb bool) *VRAM {
	return &VRAM{cgb: cgb, canRead: true, canWrite: true}
}

// SetAccess is called by the PPU once per M-cycle to reflect the current
// mode's can_read_vram/can_write_vram gates.
func (v *VRAM) SetAccess(canRead, canWrite bool) {
	v.canRead, v.canWrite = canRead, canWrite
}

func (v *VRAM) ReadCPU(addr uint16) byte {
	if !v.canRead {
		return 0xFF
	}
	return v.banks[v.bank][addr-0x8000]
}

func (v *VRAM) WriteCPU(addr uint16, value byte) {
	if !v.canWrite {
		return
	}
	v.banks[v.bank][addr-0x8000] = value
}

// ReadBank bypasses gating and VBK selection: the PPU renderer needs bank 1
// (tile attributes) regardless of which bank the CPU has selected.
func (v *VRAM) ReadBank(bank byte, addr uint16) byte {
	return v.banks[bank&1][addr-0x8000]
}

// WriteBank bypasses gating and VBK selection; used by the HDMA/GDMA engine,
// which is not subject to the PPU's mode-based access gates.
func (v *VRAM) WriteBank(bank byte, addr uint16, value byte) {
	v.banks[bank&1][addr-0x8000] = value
}

// CurrentBank returns the VBK-selected bank, for HDMA destination writes.
func (v *VRAM) CurrentBank() byte { return v.bank }

func (v *VRAM) ReadVBK() byte {
	if !v.cgb {
		return 0xFF
	}
	return 0xFE | v.bank
}

func (v *VRAM) WriteVBK(value byte) {
	if !v.cgb {
		return
	}
	v.bank = value & 0x01
}

// --- HDMA / GDMA ---

// HDMA implements the CGB VRAM-DMA engine (HDMA1-5 at 0xFF51-0xFF55).
type HDMA struct {
	srcAddr uint16 // masked to 0xFFF0
	dstAddr uint16 // offset within VRAM, masked to 0x1FF0

	remaining  int // bytes left to transfer
	active     bool
	hblankMode bool
}

func (h *HDMA) WriteHDMA1(v byte) { h.srcAddr = (h.srcAddr & 0x00FF) | uint16(v)<<8 }
func (h *HDMA) WriteHDMA2(v byte) { h.srcAddr = (h.srcAddr&0xFF00 | uint16(v&0xF0)) & 0xFFF0 }
func (h *HDMA) WriteHDMA3(v byte) { h.dstAddr = (h.dstAddr & 0x00FF) | uint16(v&0x1F)<<8 }
func (h *HDMA) WriteHDMA4(v byte) { h.dstAddr = (h.dstAddr&0xFF00 | uint16(v&0xF0)) & 0x1FF0 }

// WriteHDMA5 starts a transfer and reports whether it's general-purpose
// (true: caller must steal CPU cycles until the whole transfer completes)
// or HBlank-triggered (false: caller drives TransferChunk once per HBlank).
// Writing bit7=0 while an HBlank transfer is active cancels it instead.
func (h *HDMA) WriteHDMA5(value byte) (startedGP bool) {
	if h.active && h.hblankMode && value&0x80 == 0 {
		h.active = false
		return false
	}
	h.remaining = (int(value&0x7F) + 1) * 16
	h.hblankMode = value&0x80 != 0
	h.active = true
	return !h.hblankMode
}

// ReadHDMA5 reports remaining length in 16-byte units minus one, with bit 7
// set when no transfer is in progress.
func (h *HDMA) ReadHDMA5() byte {
	if !h.active {
		return 0xFF
	}
	units := h.remaining/16 - 1
	return byte(units & 0x7F)
}

func (h *HDMA) Active() bool     { return h.active }
func (h *HDMA) HBlankMode() bool { return h.hblankMode }

// TransferChunk copies one 16-byte chunk, advancing src/dst and remaining.
// read/write operate on bus addresses (dst is offset by 0x8000 by the
// caller's write closure). Returns false if no transfer was in progress.
func (h *HDMA) TransferChunk(read func(src uint16) byte, write func(dstOffset uint16, value byte)) bool {
	if !h.active {
		return false
	}
	for i := uint16(0); i < 16; i++ {
		write(h.dstAddr+i, read(h.srcAddr+i))
	}
	h.srcAddr = (h.srcAddr + 16) & 0xFFF0
	h.dstAddr = (h.dstAddr + 16) & 0x1FF0
	h.remaining -= 16
	if h.remaining <= 0 {
		h.active = false
	}
	return true
}

type vramState struct {
	Banks                   [2][0x2000]byte
	Bank                    byte
	SrcAddr, DstAddr        uint16
	Remaining               int
	Active, HBlank          bool
}

func (v *VRAM) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(vramState{
		Banks: v.banks, Bank: v.bank,
		SrcAddr: v.HDMA.srcAddr, DstAddr: v.HDMA.dstAddr,
		Remaining: v.HDMA.remaining, Active: v.HDMA.active, HBlank: v.HDMA.hblankMode,
	})
	return buf.Bytes()
}

func (v *VRAM) LoadState(data []byte) {
	var s vramState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	v.banks, v.bank = s.Banks, s.Bank
	v.HDMA = HDMA{srcAddr: s.SrcAddr, dstAddr: s.DstAddr, remaining: s.Remaining, active: s.Active, hblankMode: s.HBlank}
}
