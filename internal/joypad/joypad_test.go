package joypad

import (
	"testing"

	"github.com/haltline/gbcore/internal/interrupt"
)

func TestJoypad_DPadSelection(t *testing.T) {
	j := New(nil)
	j.Write(0x20) // select D-Pad (P14 low, P15 high)
	j.SetState(Right | Up)

	got := j.Read()
	if got&0x01 != 0 {
		t.Fatalf("Right should read low (pressed), got %02x", got)
	}
	if got&0x04 != 0 {
		t.Fatalf("Up should read low (pressed), got %02x", got)
	}
	if got&0x02 == 0 || got&0x08 == 0 {
		t.Fatalf("unpressed Left/Down should read high, got %02x", got)
	}
}

func TestJoypad_ButtonSelection(t *testing.T) {
	j := New(nil)
	j.Write(0x10) // select Buttons (P15 low, P14 high)
	j.SetState(A | Start)

	got := j.Read()
	if got&0x01 != 0 || got&0x08 != 0 {
		t.Fatalf("A/Start should read low (pressed), got %02x", got)
	}
}

func TestJoypad_InterruptOnFallingEdge(t *testing.T) {
	flags := &interrupt.Flags{}
	j := New(flags)
	j.Write(0x20) // select D-Pad

	j.SetState(Right)
	if flags.ReadIF()&byte(interrupt.Joypad) == 0 {
		t.Fatalf("expected joypad interrupt on press")
	}

	flags.Clear(interrupt.Joypad)
	j.SetState(Right) // no change, no new edge
	if flags.ReadIF()&byte(interrupt.Joypad) != 0 {
		t.Fatalf("unexpected joypad interrupt with no transition")
	}
}

func TestJoypad_SaveLoadStateRoundTrips(t *testing.T) {
	j := New(nil)
	j.Write(0x20)
	j.SetState(Down | B)

	data := j.SaveState()
	other := New(nil)
	other.LoadState(data)
	if other.Read() != j.Read() {
		t.Fatalf("state did not round-trip: got %02x want %02x", other.Read(), j.Read())
	}
}
