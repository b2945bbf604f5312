// Package joypad models the JOYP register at 0xFF00: button state, the
// D-Pad/Buttons select lines, and the joypad interrupt raised on any
// 1->0 transition of the selected group's lower nibble.
package joypad

import (
	"bytes"
	"encoding/gob"

	"github.com/haltline/gbcore/internal/interrupt"
	"github.com/haltline/gbcore/internal/regs"
)

// Button bitmasks for SetState. Set bits mean "pressed".
const (
	Right  = 1 << 0
	Left   = 1 << 1
	Up     = 1 << 2
	Down   = 1 << 3
	A      = 1 << 4
	B      = 1 << 5
	Select = 1 << 6
	Start  = 1 << 7
)

type Joypad struct {
	sel    regs.PaddedRegister // bits 7-6 hard-wired high, bits 5-4 last written (P15/P14)
	state  byte                // Button* bitmask, set = pressed
	lower4 byte                // last computed active-low nibble, for edge detection

	sink interrupt.Sink
}

func New(sink interrupt.Sink) *Joypad {
	return &Joypad{sink: sink, sel: regs.NewPaddedRegister(0xC0)}
}

// Read returns the JOYP byte: bits 7-6 always 1, bits 5-4 the last
// written selection, bits 3-0 the active-low state of the selected group(s).
func (j *Joypad) Read() byte {
	return j.sel.Get() | j.lowerNibble()
}

func (j *Joypad) Write(value byte) {
	j.sel.Set(value & 0x30)
	j.recompute()
}

// SetState updates which buttons are pressed and re-evaluates the
// interrupt edge, as real hardware does whenever the matrix changes.
func (j *Joypad) SetState(mask byte) {
	j.state = mask
	j.recompute()
}

func (j *Joypad) lowerNibble() byte {
	sel := j.sel.Value
	n := byte(0x0F)
	if sel&0x10 == 0 { // P14 low selects D-Pad
		if j.state&Right != 0 {
			n &^= 0x01
		}
		if j.state&Left != 0 {
			n &^= 0x02
		}
		if j.state&Up != 0 {
			n &^= 0x04
		}
		if j.state&Down != 0 {
			n &^= 0x08
		}
	}
	if sel&0x20 == 0 { // P15 low selects Buttons
		if j.state&A != 0 {
			n &^= 0x01
		}
		if j.state&B != 0 {
			n &^= 0x02
		}
		if j.state&Select != 0 {
			n &^= 0x04
		}
		if j.state&Start != 0 {
			n &^= 0x08
		}
	}
	return n
}

func (j *Joypad) recompute() {
	newLower := j.lowerNibble()
	falling := j.lower4 &^ newLower
	if falling != 0 && j.sink != nil {
		j.sink.RequestInterrupt(interrupt.Joypad)
	}
	j.lower4 = newLower
}

type joypadState struct {
	Sel, State, Lower4 byte
}

func (j *Joypad) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(joypadState{Sel: j.sel.Value, State: j.state, Lower4: j.lower4})
	return buf.Bytes()
}

func (j *Joypad) LoadState(data []byte) {
	var s joypadState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	j.sel.Set(s.Sel)
	j.state, j.lower4 = s.State, s.Lower4
}
