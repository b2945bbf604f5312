// Package timer models the DIV/TIMA/TMA/TAC register file: the 16-bit
// internal divider, TIMA's falling-edge increment, and the 4-T-cycle
// overflow-to-reload delay with its write-during-reload quirks.
package timer

import (
	"bytes"
	"encoding/gob"

	"github.com/haltline/gbcore/internal/interrupt"
	"github.com/haltline/gbcore/internal/regs"
)

// Timer is driven in real T-cycles. DIV runs at a fixed hardware rate
// regardless of CGB double-speed mode, so callers must not scale the
// cycle count passed to Tick when double speed is active.
type Timer struct {
	div  uint16            // internal divider; FF04 exposes the upper 8 bits
	tima byte               // FF05
	tma  byte               // FF06
	tac  regs.PaddedRegister // FF07, bits 3-7 hard-wired high, lower 3 bits used

	// reloadDelay counts down from 4 after a TIMA overflow. While non-zero,
	// TIMA reads as 0x00 and further falling-edge increments are ignored.
	// It reaches 0 on the T-cycle that loads TMA into TIMA and raises the
	// timer interrupt.
	reloadDelay int

	sink interrupt.Sink
}

func New(sink interrupt.Sink) *Timer {
	return &Timer{sink: sink, tac: regs.NewPaddedRegister(0xF8)}
}

// FrameSequencerBit returns the internal DIV counter bit the APU's frame
// sequencer watches for falling edges: bit 12 (visible DIV register bit 4)
// at single speed, bit 13 (register bit 5) at double speed.
func (t *Timer) FrameSequencerBit(doubleSpeed bool) bool {
	bit := uint(12)
	if doubleSpeed {
		bit = 13
	}
	return (t.div>>bit)&1 != 0
}

func (t *Timer) ReadDIV() byte  { return byte(t.div >> 8) }
func (t *Timer) ReadTIMA() byte { return t.tima }
func (t *Timer) ReadTMA() byte  { return t.tma }
func (t *Timer) ReadTAC() byte  { return t.tac.Get() }

// WriteDIV resets the internal divider to zero. Because the reset can
// itself cause a falling edge on the selected bit, it can increment TIMA.
func (t *Timer) WriteDIV() {
	old := t.input()
	t.div = 0
	if old && !t.input() {
		t.incrementTIMA()
	}
}

// WriteTIMA during a pending reload cancels the reload; otherwise it sets
// TIMA directly. A write on the exact cycle the reload commits is ignored,
// matching the real hardware behavior where the TMA load wins that cycle.
func (t *Timer) WriteTIMA(v byte) {
	if t.reloadDelay == 1 {
		return
	}
	t.tima = v
	t.reloadDelay = 0
}

// WriteTMA updates the reload value. If a reload is currently pending, the
// new value is used when it commits.
func (t *Timer) WriteTMA(v byte) { t.tma = v }

func (t *Timer) WriteTAC(v byte) {
	old := t.input()
	t.tac.Set(v & 0x07)
	if old && !t.input() {
		t.incrementTIMA()
	}
}

// Tick advances the timer by tCycles real T-cycles.
func (t *Timer) Tick(tCycles int) {
	for i := 0; i < tCycles; i++ {
		t.tickOne()
	}
}

func (t *Timer) tickOne() {
	old := t.input()
	t.div++
	falling := old && !t.input()

	if t.reloadDelay > 0 {
		t.reloadDelay--
		if t.reloadDelay == 0 {
			t.tima = t.tma
			if t.sink != nil {
				t.sink.RequestInterrupt(interrupt.Timer)
			}
		}
	}

	if falling {
		t.incrementTIMA()
	}
}

// input returns the current timer clock input after TAC gating: the
// selected divider bit, masked by the enable bit.
func (t *Timer) input() bool {
	tac := t.tac.Get()
	if tac&0x04 == 0 {
		return false
	}
	var bit uint
	switch tac & 0x03 {
	case 0x00:
		bit = 9 // 4096 Hz
	case 0x01:
		bit = 3 // 262144 Hz
	case 0x02:
		bit = 5 // 65536 Hz
	case 0x03:
		bit = 7 // 16384 Hz
	}
	return (t.div>>bit)&1 != 0
}

func (t *Timer) incrementTIMA() {
	if t.reloadDelay > 0 {
		return
	}
	if t.tima == 0xFF {
		t.tima = 0x00
		t.reloadDelay = 4
		return
	}
	t.tima++
}

type timerState struct {
	Div         uint16
	Tima, Tma   byte
	Tac         byte
	ReloadDelay int
}

func (t *Timer) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(timerState{
		Div: t.div, Tima: t.tima, Tma: t.tma, Tac: t.tac.Value, ReloadDelay: t.reloadDelay,
	})
	return buf.Bytes()
}

func (t *Timer) LoadState(data []byte) {
	var s timerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	t.div, t.tima, t.tma, t.reloadDelay = s.Div, s.Tima, s.Tma, s.ReloadDelay
	t.tac.Set(s.Tac)
}
