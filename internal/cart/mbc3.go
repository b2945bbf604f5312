package cart

import (
	"bytes"
	"encoding/gob"

	"github.com/haltline/gbcore/internal/regs"
)

// MBC3 implements ROM/RAM banking plus the MBC3 real-time-clock register
// file. Per the Non-goals, clock precision beyond a monotonic counter is not
// attempted: RTC registers are derived from a cycle counter advanced by
// Tick, never from wall-clock time.
//
// Banking behavior:
//   - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
//   - 2000-3FFF: ROM bank low 7 bits (0 maps to 1)
//   - 4000-5FFF: RAM bank (0-3) or RTC reg select (08-0C)
//   - 6000-7FFF: latch clock on a 0x00 then 0x01 write
//   - A000-BFFF: external RAM, or the latched RTC register if 08-0C selected
type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    regs.Register // 7 bits (1..127)
	ramBank    regs.Register // 0..3, or an RTC select 0x08..0x0C

	rtcCounter uint64 // monotonic T-cycles since cart creation
	rtcLatch   [5]byte
	latchArmed bool // saw a 0x00 write, waiting for 0x01 to latch
	rtcHalted  bool
	haltBase   uint64 // counter value at which halt began
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank.Set(1)
	return m
}

// Tick advances the RTC's monotonic counter by the given number of T-cycles.
func (m *MBC3) Tick(tCycles int) {
	if m.rtcHalted || tCycles <= 0 {
		return
	}
	m.rtcCounter += uint64(tCycles)
}

const cyclesPerRTCSecond = 4194304

func (m *MBC3) rtcSeconds() uint64 {
	base := m.rtcCounter
	if m.rtcHalted {
		base = m.haltBase
	}
	return base / cyclesPerRTCSecond
}

func (m *MBC3) latchRegisters() {
	secs := m.rtcSeconds()
	days := secs / 86400
	rem := secs % 86400
	m.rtcLatch[0] = byte(rem % 60)
	m.rtcLatch[1] = byte((rem / 60) % 60)
	m.rtcLatch[2] = byte((rem / 3600) % 24)
	m.rtcLatch[3] = byte(days & 0xFF)
	dh := byte((days >> 8) & 0x01)
	if m.rtcHalted {
		dh |= 0x40
	}
	if days > 0x1FF {
		dh |= 0x80 // day counter carry
	}
	m.rtcLatch[4] = dh
}

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank.Get() & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		ramBank := m.ramBank.Get()
		if ramBank >= 0x08 && ramBank <= 0x0C {
			return m.rtcLatch[ramBank-0x08]
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank.Set(v)
	case addr < 0x6000:
		m.ramBank.Set(value)
	case addr < 0x8000:
		if value == 0x00 {
			m.latchArmed = true
		} else if value == 0x01 && m.latchArmed {
			m.latchRegisters()
			m.latchArmed = false
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		ramBank := m.ramBank.Get()
		if ramBank >= 0x08 && ramBank <= 0x0C {
			m.writeRTC(ramBank-0x08, value)
			return
		}
		if len(m.ram) == 0 {
			return
		}
		rb := int(ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC3) writeRTC(reg byte, value byte) {
	switch reg {
	case 4: // DH: bit6 halts/resumes the counter
		wasHalted := m.rtcHalted
		m.rtcHalted = value&0x40 != 0
		if m.rtcHalted && !wasHalted {
			m.haltBase = m.rtcCounter
		} else if !m.rtcHalted && wasHalted {
			m.rtcCounter = m.haltBase
		}
	default:
		// Writes to S/M/H/DL land in the latched snapshot only; the
		// counter is unchanged, so the next latch replaces them with
		// values derived from the counter.
		m.rtcLatch[reg] = value
	}
}

func (m *MBC3) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}

type mbc3State struct {
	RAM               []byte
	RAMEnabled        bool
	ROMBank, RAMBank  byte
	RTCCounter        uint64
	RTCLatch          [5]byte
	LatchArmed        bool
	RTCHalted         bool
	HaltBase          uint64
}

func (m *MBC3) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc3State{
		RAM: m.ram, RAMEnabled: m.ramEnabled,
		ROMBank: m.romBank.Get(), RAMBank: m.ramBank.Get(),
		RTCCounter: m.rtcCounter, RTCLatch: m.rtcLatch,
		LatchArmed: m.latchArmed, RTCHalted: m.rtcHalted, HaltBase: m.haltBase,
	})
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(s.RAM) == len(m.ram) {
		copy(m.ram, s.RAM)
	}
	m.ramEnabled = s.RAMEnabled
	m.romBank.Set(s.ROMBank)
	m.ramBank.Set(s.RAMBank)
	m.rtcCounter, m.rtcLatch = s.RTCCounter, s.RTCLatch
	m.latchArmed, m.rtcHalted, m.haltBase = s.LatchArmed, s.RTCHalted, s.HaltBase
}
