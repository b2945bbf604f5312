// Package system wires the CPU and bus into the top-level frame-stepping
// simulator: construction from a ROM plus options, the step_frame loop that
// drives CPU instructions and lets the bus fan them out to every peripheral,
// and save/load of the full machine state.
package system

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"hash/crc32"

	"github.com/haltline/gbcore/internal/apu"
	"github.com/haltline/gbcore/internal/bus"
	"github.com/haltline/gbcore/internal/cpu"
	"github.com/haltline/gbcore/internal/joypad"
	"github.com/haltline/gbcore/internal/log"
)

// Mode selects DMG or CGB hardware behavior at construction time.
type Mode int

const (
	DMG Mode = iota
	CGB
)

// mCyclesPerFrame is 70,224 T-cycles (154 scanlines * 114 M-cycles/line) at
// single speed; StepFrame doubles it in CGB double-speed mode.
const mCyclesPerFrame = 17556

// Buttons is the button/d-pad snapshot GameBoyInput.Read returns.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Input is polled once per frame (conceptually at VBlank) to latch the
// joypad matrix for that frame.
type Input interface {
	Read() Buttons
}

// Output receives, once at the end of each StepFrame, the frame the PPU
// published at its most recent VBlank start; it is not called at the
// VBlank instant itself. Every other host
// callback is an optional capability the host opts into by also
// implementing the matching narrow interface below (checked with a type
// assertion), the same pattern cart.BatteryBacked/cart.Ticker use for
// optional cartridge capabilities.
type Output interface {
	ReceiveGraphics(frame [160 * 144]uint32)
}

// SoundSink receives a filled sample buffer whenever the APU's resampler
// fills one; it is exactly apu.Sink; wiring straight to the bus once at
// construction means it fires mid-frame as samples become ready rather than
// once per StepFrame call.
type SoundSink = apu.Sink

// SerialSink receives the SB byte each time SC is written with bit 7 set
// (one byte per link-cable transfer).
type SerialSink interface {
	SerialOut(b byte)
}

// DebugBackgroundSink receives the full 256x256 background tile map,
// ignoring scroll, on request.
type DebugBackgroundSink interface {
	DebugBackground(frame [256 * 256]uint32)
}

// DebugTilesetSink receives a dump of both VRAM banks' tile data.
type DebugTilesetSink interface {
	DebugTileset(frame [256 * 192]uint32)
}

// StepCounter is notified of the cumulative frame count after every
// StepFrame call.
type StepCounter interface {
	StepCount(n int)
}

// Options configures construction: an optional boot ROM overlay, an
// optional save blob to load immediately, and ambient debug logging.
type Options struct {
	BootROM []byte
	Save    []byte
	Debug   log.Logger
}

// InvalidROMError reports a ROM construction failure. The only case raised
// is a ROM shorter than 0x8000 bytes: an unknown MBC type falls back to
// ROM-only, and the header's ROM size is not checked against the image
// length.
type InvalidROMError struct{ Reason string }

func (e *InvalidROMError) Error() string { return "invalid rom: " + e.Reason }

// InvalidOpcodeError reports the CPU locking up on an illegal opcode. It is
// fatal: StepFrame returns it on every subsequent call once raised. Prefixed
// is always false today: every CB-prefixed opcode is defined, so only the
// unprefixed table can lock the CPU, but the field is kept so a future CB
// gap (none currently exists) doesn't need an API change.
type InvalidOpcodeError struct {
	PC       uint16
	Opcode   byte
	Prefixed bool
}

func (e *InvalidOpcodeError) Error() string {
	if e.Prefixed {
		return fmt.Sprintf("invalid opcode CB %02X at PC=%04X", e.Opcode, e.PC)
	}
	return fmt.Sprintf("invalid opcode %02X at PC=%04X", e.Opcode, e.PC)
}

// SaveMismatchError reports that a loaded save blob does not belong to this
// ROM (different checksum) or came from a different save-format version.
type SaveMismatchError struct {
	WantROM, GotROM         uint32
	WantVersion, GotVersion int
}

func (e *SaveMismatchError) Error() string {
	if e.WantVersion != e.GotVersion {
		return fmt.Sprintf("save format version mismatch: want %d, got %d", e.WantVersion, e.GotVersion)
	}
	return fmt.Sprintf("save belongs to a different ROM: want checksum %08X, got %08X", e.WantROM, e.GotROM)
}

// System is the top-level simulator: a CPU and bus driven frame by frame.
type System struct {
	mode Mode
	bus  *bus.Bus
	cpu  *cpu.CPU
	log  log.Logger

	romChecksum uint32

	input  Input
	output Output

	carry      int
	frameCount int
	fatalErr   error
}

// New constructs a System for rom in the given mode. input/output may be
// nil if the host doesn't need that direction (a nil Output simply means no
// frame is ever delivered).
func New(mode Mode, rom []byte, input Input, output Output, opts Options) (*System, error) {
	b, err := bus.New(rom, mode == CGB)
	if err != nil {
		return nil, &InvalidROMError{Reason: err.Error()}
	}

	lg := opts.Debug
	if lg == nil {
		lg = log.Nop{}
	}

	s := &System{
		mode:        mode,
		bus:         b,
		log:         lg,
		input:       input,
		output:      output,
		romChecksum: crc32.ChecksumIEEE(rom),
	}

	if serial, ok := output.(SerialSink); ok {
		b.SetSerialWriter(serialWriter{sink: serial})
	}
	if snk, ok := output.(SoundSink); ok {
		b.SetAPUSink(snk)
	}

	c := cpu.New(b)
	if len(opts.BootROM) >= 0x100 {
		b.SetBootROM(opts.BootROM)
		c.SetPC(0x0000)
	} else {
		if mode == CGB {
			c.ResetNoBootCGB()
		} else {
			c.ResetNoBoot()
		}
		seedPostBootIO(b)
	}
	s.cpu = c

	if len(opts.Save) > 0 {
		if err := s.Load(opts.Save); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// seedPostBootIO writes the DMG post-boot I/O register defaults a real boot
// ROM would have left behind, for the no-boot-ROM construction path.
func seedPostBootIO(b *bus.Bus) {
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00) // TIMA
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x00) // TAC
	b.Write(0xFF40, 0x91) // LCDC on, BG+sprites
	b.Write(0xFF42, 0x00) // SCY
	b.Write(0xFF43, 0x00) // SCX
	b.Write(0xFF45, 0x00) // LYC
	b.Write(0xFF47, 0xFC) // BGP
	b.Write(0xFF48, 0xFF) // OBP0
	b.Write(0xFF49, 0xFF) // OBP1
	b.Write(0xFF4A, 0x00) // WY
	b.Write(0xFF4B, 0x00) // WX
	b.Write(0xFFFF, 0x00) // IE
}

func buttonMask(b Buttons) byte {
	var m byte
	if b.A {
		m |= joypad.A
	}
	if b.B {
		m |= joypad.B
	}
	if b.Start {
		m |= joypad.Start
	}
	if b.Select {
		m |= joypad.Select
	}
	if b.Up {
		m |= joypad.Up
	}
	if b.Down {
		m |= joypad.Down
	}
	if b.Left {
		m |= joypad.Left
	}
	if b.Right {
		m |= joypad.Right
	}
	return m
}

// serialWriter adapts a SerialSink to the io.Writer the bus expects, one
// callback per byte written.
type serialWriter struct{ sink SerialSink }

func (w serialWriter) Write(p []byte) (int, error) {
	for _, ch := range p {
		w.sink.SerialOut(ch)
	}
	return len(p), nil
}

// StepFrame runs the CPU (and, through it, every bus-ticked peripheral)
// until the accumulated M-cycle counter reaches one frame's budget, then
// delivers the rendered frame and any wired optional outputs. Once the CPU
// locks on an illegal opcode, StepFrame returns the same InvalidOpcodeError
// forever.
func (s *System) StepFrame() error {
	if s.fatalErr != nil {
		return s.fatalErr
	}

	if s.input != nil {
		s.bus.SetJoypadState(buttonMask(s.input.Read()))
	}

	budget := mCyclesPerFrame
	if s.bus.DoubleSpeed() {
		budget *= 2
	}
	remaining := budget - s.carry

	spent := 0
	for spent < remaining {
		spent += s.cpu.Step()
		if pc, op, ok := s.cpu.Locked(); ok {
			err := &InvalidOpcodeError{PC: pc, Opcode: op}
			s.fatalErr = err
			s.log.Debugf(log.CPU, "locked on illegal opcode %02X at PC=%04X", op, pc)
			return err
		}
	}
	s.carry = spent - remaining

	s.frameCount++
	if s.output != nil {
		s.output.ReceiveGraphics(*s.bus.PPU().VideoOut())
		if snk, ok := s.output.(DebugBackgroundSink); ok {
			snk.DebugBackground(s.bus.PPU().DebugBackground())
		}
		if snk, ok := s.output.(DebugTilesetSink); ok {
			snk.DebugTileset(s.bus.PPU().DebugTileset())
		}
		if snk, ok := s.output.(StepCounter); ok {
			snk.StepCount(s.frameCount)
		}
	}
	return nil
}

// Mode reports the hardware mode this System was constructed with.
func (s *System) Mode() Mode { return s.mode }

// Bus exposes the underlying bus for hosts that need direct register access
// (e.g. a debugger view); not used by StepFrame's own callers.
func (s *System) Bus() *bus.Bus { return s.bus }

const saveFormatVersion = 1

type saveBlob struct {
	Version     int
	ROMChecksum uint32
	Bus         []byte
	CPU         []byte
}

// Save serializes the full machine state: WRAM, HRAM, OAM, VRAM (both banks
// on CGB), ERAM/cartridge registers, and the APU/PPU/timer/joypad state via
// the bus's own blob, plus the CPU's register file, IME state, and
// HALT/lock flags, under a versioned header carrying the ROM's checksum for
// SaveMismatch detection on load.
func (s *System) Save() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(saveBlob{
		Version:     saveFormatVersion,
		ROMChecksum: s.romChecksum,
		Bus:         s.bus.SaveState(),
		CPU:         s.cpu.SaveState(),
	})
	return buf.Bytes()
}

// Load restores a blob produced by Save. It refuses to load a blob from a
// different ROM or a different save-format version, returning
// SaveMismatchError rather than corrupting machine state silently.
func (s *System) Load(data []byte) error {
	var b saveBlob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return &SaveMismatchError{WantVersion: saveFormatVersion, GotVersion: -1}
	}
	if b.Version != saveFormatVersion {
		return &SaveMismatchError{WantVersion: saveFormatVersion, GotVersion: b.Version}
	}
	if b.ROMChecksum != s.romChecksum {
		return &SaveMismatchError{WantROM: s.romChecksum, GotROM: b.ROMChecksum, WantVersion: saveFormatVersion, GotVersion: b.Version}
	}
	s.bus.LoadState(b.Bus)
	s.cpu.LoadState(b.CPU)
	s.fatalErr = nil
	return nil
}
