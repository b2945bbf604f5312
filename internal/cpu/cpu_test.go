package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haltline/gbcore/internal/bus"
	"github.com/haltline/gbcore/internal/interrupt"
)

func newCPUWithROM(t *testing.T, code []byte) *CPU {
	t.Helper()
	rom := make([]byte, 0x8000)
	copy(rom[0x0100:], code)
	b, err := bus.New(rom, false)
	require.NoError(t, err)
	c := New(b)
	c.SetPC(0x0100)
	return c
}

func TestStep_NOP_OneMCycle(t *testing.T) {
	c := newCPUWithROM(t, []byte{0x00})
	assert.Equal(t, 1, c.Step())
	assert.Equal(t, uint16(0x0101), c.PC)
}

func TestStep_LD_BC_d16_ThreeMCycles(t *testing.T) {
	c := newCPUWithROM(t, []byte{0x01, 0x34, 0x12})
	assert.Equal(t, 3, c.Step())
	assert.Equal(t, uint16(0x1234), c.getBC())
}

func TestStep_LD_r_r(t *testing.T) {
	c := newCPUWithROM(t, []byte{0x3E, 0x12, 0x47}) // LD A,0x12; LD B,A
	c.Step()
	c.Step()
	assert.Equal(t, byte(0x12), c.BC.Hi)
}

func TestStep_LD_viaHL_MissingOpcodesNowWork(t *testing.T) {
	// LD HL,0xC000; LD (HL),0x99; LD B,(HL)
	c := newCPUWithROM(t, []byte{0x21, 0x00, 0xC0, 0x36, 0x99, 0x46})
	c.Step()
	c.Step()
	cycles := c.Step()
	assert.Equal(t, byte(0x99), c.BC.Hi)
	assert.Equal(t, 2, cycles) // LD r,(HL) is 8T = 2M
}

func TestXOR_A_SetsZeroFlag(t *testing.T) {
	c := newCPUWithROM(t, []byte{0x3E, 0x12, 0xAF})
	c.Step()
	c.Step()
	assert.Equal(t, byte(0), c.A)
	assert.NotZero(t, c.F&flagZ)
}

func TestPOP_AF_MasksLowNibble(t *testing.T) {
	// LD SP,0xFFFE; LD BC,0x1234; PUSH BC; POP AF
	c := newCPUWithROM(t, []byte{0x31, 0xFE, 0xFF, 0x01, 0x34, 0x12, 0xC5, 0xF1})
	for i := 0; i < 4; i++ {
		c.Step()
	}
	assert.Equal(t, byte(0x12), c.A)
	assert.Equal(t, byte(0x30), c.F)
}

func TestDAA_AfterAddWithHalfCarry(t *testing.T) {
	// LD A,0x09; ADD A,0x0F; DAA
	c := newCPUWithROM(t, []byte{0x3E, 0x09, 0xC6, 0x0F, 0x27})
	c.Step()
	c.Step()
	assert.NotZero(t, c.F&flagH)
	c.Step()
	assert.Equal(t, byte(0x24), c.A)
}

func TestHALTBug_DuplicatesFollowingByte(t *testing.T) {
	prog := []byte{0x00, 0xAF, 0xF3, 0x00, 0x76, 0x3C, 0x00, 0x00, 0x00, 0xC3, 0x09, 0x01}
	c := newCPUWithROM(t, prog)
	c.bus.Write(0xFFFF, 0x01)

	for i := 0; i < 4; i++ {
		c.Step() // NOP, XOR A, DI, NOP
	}
	c.bus.Write(0xFF0F, 0x01) // request VBlank while already halted-bound
	c.Step()                 // HALT: IME disabled, interrupt pending -> HALT bug, not real halt

	for i := 0; i < 100; i++ {
		c.Step()
	}
	assert.Equal(t, byte(2), c.A)
	assert.Equal(t, interrupt.Disabled, c.ime)
}

func TestEI_DelaysOneInstruction(t *testing.T) {
	// EI; NOP; NOP -- interrupt must not fire until after the NOP following EI
	c := newCPUWithROM(t, []byte{0xFB, 0x00, 0x00})
	c.bus.Write(0xFFFF, 0x01)
	c.bus.Write(0xFF0F, 0x01)

	c.Step() // EI
	assert.NotEqual(t, interrupt.Enabled, c.ime)
	c.Step() // NOP immediately after EI: must still run with IME not yet effective
	assert.Equal(t, uint16(0x0102), c.PC)

	before := c.PC
	c.Step() // now IME enabled: dispatch instead of fetching the second NOP
	assert.NotEqual(t, before, c.PC)
	assert.Equal(t, uint16(0x0040), c.PC)
}

func TestInterruptDispatch_CostsFiveMCycles(t *testing.T) {
	c := newCPUWithROM(t, []byte{0xFB, 0x00, 0x00})
	c.bus.Write(0xFFFF, 0x01)
	c.bus.Write(0xFF0F, 0x01)
	c.Step()
	c.Step()
	cycles := c.Step()
	assert.Equal(t, 5, cycles)
	assert.Equal(t, uint16(0x0040), c.PC)
	assert.Equal(t, byte(0), c.bus.Read(0xFF0F)&0x01)
}

func TestRETI_EnablesIMEImmediately(t *testing.T) {
	// LD SP,0xFFFE; CALL handler; inside handler: RETI immediately resumes
	c := newCPUWithROM(t, []byte{0x31, 0xFE, 0xFF, 0xCD, 0x08, 0x01, 0x00, 0x00, 0xD9})
	c.Step() // LD SP
	c.Step() // CALL 0x0108
	assert.Equal(t, uint16(0x0108), c.PC)
	c.Step() // RETI
	assert.Equal(t, uint16(0x0106), c.PC)
	assert.Equal(t, interrupt.Enabled, c.ime)
}

func TestCB_BIT_SetsZeroFlagAndPreservesCarry(t *testing.T) {
	// SCF; LD B,0x00; CB 0x40 (BIT 0,B)
	c := newCPUWithROM(t, []byte{0x37, 0x06, 0x00, 0xCB, 0x40})
	c.Step()
	c.Step()
	cycles := c.Step()
	assert.Equal(t, 2, cycles)
	assert.NotZero(t, c.F&flagZ)
	assert.NotZero(t, c.F&flagH)
	assert.NotZero(t, c.F&flagC) // carry preserved from SCF
}

func TestCB_RES_SET_OnMemory(t *testing.T) {
	// LD HL,0xC000; LD (HL),0xFF; CB 0x86 (RES 0,(HL)); CB 0xC6 (SET 0,(HL))
	c := newCPUWithROM(t, []byte{0x21, 0x00, 0xC0, 0x36, 0xFF, 0xCB, 0x86, 0xCB, 0xC6})
	c.Step()
	c.Step()
	cycles := c.Step()
	assert.Equal(t, 4, cycles) // RES on (HL) is 16T = 4M
	assert.Equal(t, byte(0xFE), c.bus.Read(0xC000))
	cycles = c.Step()
	assert.Equal(t, 4, cycles) // SET on (HL) is 16T = 4M
	assert.Equal(t, byte(0xFF), c.bus.Read(0xC000))
}

func TestIllegalOpcode_LocksCPU(t *testing.T) {
	c := newCPUWithROM(t, []byte{0xD3})
	pc := c.PC
	c.Step()
	assert.Equal(t, pc, c.PC)
	c.Step()
	assert.Equal(t, pc, c.PC)

	lockedPC, op, ok := c.Locked()
	assert.True(t, ok)
	assert.Equal(t, byte(0xD3), op)
	assert.Equal(t, pc, lockedPC)
}

func TestSaveLoadState_RoundTripsRegistersAndIME(t *testing.T) {
	c := newCPUWithROM(t, []byte{0xFB, 0x00})
	c.A, c.SP = 0x42, 0xD000
	c.BC.Hi = 0x99
	c.Step()
	data := c.SaveState()

	other := newCPUWithROM(t, nil)
	other.LoadState(data)
	assert.Equal(t, c.A, other.A)
	assert.Equal(t, c.BC.Hi, other.BC.Hi)
	assert.Equal(t, c.SP, other.SP)
	assert.Equal(t, c.ime, other.ime)
}
