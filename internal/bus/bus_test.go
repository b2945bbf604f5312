package bus

import (
	"testing"

	"github.com/haltline/gbcore/internal/joypad"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := New(make([]byte, 0x8000), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestBus_ROMAndRAM(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0100] = 0x42
	b, err := New(rom, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := b.Read(0x0100); got != 0x42 {
		t.Fatalf("ROM read got %02x, want 42", got)
	}

	b.Write(0xC000, 0x99)
	if got := b.Read(0xC000); got != 0x99 {
		t.Fatalf("RAM read got %02x, want 99", got)
	}

	// Echo RAM mirrors C000-DDFF
	b.Write(0xE000, 0x55)
	if got := b.Read(0xC000); got != 0x55 {
		t.Fatalf("Echo write did not mirror to WRAM: got %02x", got)
	}

	b.Write(0xFF80, 0xAB)
	if got := b.Read(0xFF80); got != 0xAB {
		t.Fatalf("HRAM read got %02x, want AB", got)
	}

	if got := b.Read(0xA123); got != 0xFF {
		t.Fatalf("Ext RAM (ROM-only) got %02x, want FF", got)
	}
}

func TestBus_InvalidROMReturnsError(t *testing.T) {
	_, err := New(make([]byte, 0x10), false)
	if err == nil {
		t.Fatalf("expected error constructing bus from a truncated ROM")
	}
}

func TestBus_VRAM_OAM_InterruptRegs(t *testing.T) {
	b := newTestBus(t)

	b.Write(0x8000, 0x11)
	if got := b.Read(0x8000); got != 0x11 {
		t.Fatalf("VRAM read got %02x, want 11", got)
	}

	b.Write(0xFE00, 0x22)
	if got := b.Read(0xFE00); got != 0x22 {
		t.Fatalf("OAM read got %02x, want 22", got)
	}

	b.Write(0xFF0F, 0x3F)
	if got := b.Read(0xFF0F); got != 0xE0|0x1F {
		t.Fatalf("IF read got %02x, want %02x", got, 0xE0|0x1F)
	}

	b.Write(0xFFFF, 0x1B)
	if got := b.Read(0xFFFF); got != 0x1B {
		t.Fatalf("IE read got %02x, want 1B", got)
	}
}

func TestBus_JOYP(t *testing.T) {
	b := newTestBus(t)

	if got := b.Read(0xFF00); got&0x0F != 0x0F {
		t.Fatalf("JOYP default lower bits got %02x want 0x0F", got)
	}

	b.Write(0xFF00, 0x20) // select D-Pad (P14=0)
	b.SetJoypadState(joypad.Right | joypad.Up)
	if got := b.Read(0xFF00) & 0x0F; got != 0x0A {
		t.Fatalf("JOYP D-Pad got %02x want 0x0A", got)
	}

	b.Write(0xFF00, 0x10) // select Buttons (P15=0)
	b.SetJoypadState(joypad.A | joypad.Start)
	if got := b.Read(0xFF00) & 0x0F; got != 0x06 {
		t.Fatalf("JOYP Buttons got %02x want 0x06", got)
	}
}

func TestBus_TimersRoundTrip(t *testing.T) {
	b := newTestBus(t)

	b.Write(0xFF04, 0x12) // any DIV write resets to 0
	if got := b.Read(0xFF04); got != 0x00 {
		t.Fatalf("DIV got %02x want 00", got)
	}
	b.Write(0xFF05, 0x77)
	if got := b.Read(0xFF05); got != 0x77 {
		t.Fatalf("TIMA got %02x want 77", got)
	}
	b.Write(0xFF06, 0x88)
	if got := b.Read(0xFF06); got != 0x88 {
		t.Fatalf("TMA got %02x want 88", got)
	}
	b.Write(0xFF07, 0xFD)
	if got := b.Read(0xFF07); got != (0xF8 | (0xFD & 0x07)) {
		t.Fatalf("TAC got %02x want %02x", got, 0xF8|(0xFD&0x07))
	}
}

func TestBus_SerialImmediateTransfer(t *testing.T) {
	b := newTestBus(t)
	var out []byte
	b.SetSerialWriter(writerFunc(func(p []byte) (int, error) {
		out = append(out, p...)
		return len(p), nil
	}))

	b.Write(0xFF01, 0x41) // 'A'
	b.Write(0xFF02, 0x81) // start, external clock
	if len(out) != 1 || out[0] != 0x41 {
		t.Fatalf("serial out got %v want [0x41]", out)
	}
	if got := b.Read(0xFF02); got&0x80 != 0 {
		t.Fatalf("serial control bit7 not cleared: %02x", got)
	}
	if b.Read(0xFF0F)&(1<<3) == 0 {
		t.Fatalf("serial IF bit not set after transfer")
	}
}

func TestBus_SVBK_WRAMBanking(t *testing.T) {
	b, err := New(make([]byte, 0x8000), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.Write(0xFF70, 0x02) // bank 2
	b.Write(0xD000, 0xAA)
	b.Write(0xFF70, 0x03) // bank 3
	b.Write(0xD000, 0xBB)
	b.Write(0xFF70, 0x02)
	if got := b.Read(0xD000); got != 0xAA {
		t.Fatalf("bank 2 WRAM got %02x want AA", got)
	}
	b.Write(0xFF70, 0x03)
	if got := b.Read(0xD000); got != 0xBB {
		t.Fatalf("bank 3 WRAM got %02x want BB", got)
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
