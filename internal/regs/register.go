// Package regs provides the small memory primitives the rest of the core is
// built from: plain byte registers, registers with hard-wired bits, and
// 16-bit register pairs with the increment/decrement semantics the SM83
// instruction set relies on (LD (HL+),A and friends).
package regs

// Register is a single hardware byte. It exists mostly for documentation and
// symmetry with PaddedRegister/DoubleRegister; most call sites just use a
// bare byte field.
type Register struct {
	Value byte
}

func (r *Register) Get() byte     { return r.Value }
func (r *Register) Set(v byte)    { r.Value = v }

// PaddedRegister models an IO register where some bits are hard-wired to 1
// regardless of what is written. STAT's bit 7,
// TAC's bits 3-7, IF's bits 5-7 are all instances of this.
type PaddedRegister struct {
	Value byte
	// Mask marks the bits that are hard-wired high on readback.
	Mask byte
}

func NewPaddedRegister(mask byte) PaddedRegister {
	return PaddedRegister{Mask: mask}
}

// Get returns the stored value with the padded bits forced high.
func (r *PaddedRegister) Get() byte { return r.Value | r.Mask }

// Set stores a value transparently; the padding is only applied on read.
func (r *PaddedRegister) Set(v byte) { r.Value = v }

// DoubleRegister is a 16-bit register exposed as two byte halves, used for
// the CPU's register pairs (BC, DE, HL) and for 16-bit IO latches.
type DoubleRegister struct {
	Hi, Lo byte
}

func (d DoubleRegister) Get() uint16 {
	return uint16(d.Hi)<<8 | uint16(d.Lo)
}

func (d *DoubleRegister) Set(v uint16) {
	d.Hi = byte(v >> 8)
	d.Lo = byte(v)
}

// Inc increments the pair and returns the value it held *before* the
// mutation, matching the Game Boy's LD (HL+),A / LD A,(HL+) timing where the
// memory access uses the pre-increment address.
func (d *DoubleRegister) Inc() uint16 {
	old := d.Get()
	d.Set(old + 1)
	return old
}

// Dec is the decrementing counterpart of Inc.
func (d *DoubleRegister) Dec() uint16 {
	old := d.Get()
	d.Set(old - 1)
	return old
}
